package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"garden-relay/internal/app"
	"garden-relay/internal/app/commands"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	app.Version = Version

	application := &cli.App{
		Name:    "garden-relay",
		Usage:   "Relay between the garden frontend, the video platform and the weed detector",
		Version: fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		Flags:   commands.GlobalFlags(),
		// Без команды запускаем сервер
		DefaultCommand: "server",
		Commands:       commands.GetCommands(),
	}

	if err := application.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}
