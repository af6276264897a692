package commands

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli/v2"

	"garden-relay/internal/app"
)

// GetCommands возвращает все доступные команды
func GetCommands() []*cli.Command {
	return []*cli.Command{
		GetServerCommand(),
		GetCheckConfigCommand(),
		GetTokenCommand(),
		GetDetectCommand(),
		GetVersionCommand(),
	}
}

// GetVersionCommand возвращает команду вывода версии
func GetVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "Garden Relay\n")
			fmt.Fprintf(c.App.Writer, "Version:    %s\n", app.Version)
			fmt.Fprintf(c.App.Writer, "Go:         %s\n", runtime.Version())
			return nil
		},
	}
}
