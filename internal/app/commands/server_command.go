package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"garden-relay/internal/app"
)

// GetServerCommand возвращает команду для запуска сервера
func GetServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Start the relay server",
		Description: `Start the HTTP relay and, when grpc_port is set, the gRPC health endpoint.

Examples:
  garden-relay --config config/config.yaml server
  garden-relay server --port 3001 --grpc-port 9090`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Server port (overrides config)",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Server host (overrides config)",
			},
			&cli.IntFlag{
				Name:  "grpc-port",
				Usage: "gRPC health port, 0 disables (overrides config)",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			if c.IsSet("port") {
				ctx.Config.Port = c.Int("port")
			}
			if c.IsSet("host") {
				ctx.Config.Host = c.String("host")
			}
			if c.IsSet("grpc-port") {
				ctx.Config.GRPCPort = c.Int("grpc-port")
			}

			if err := ctx.Config.Validate(); err != nil {
				ctx.Logger.Error("Invalid configuration", zap.Error(err))
				return err
			}

			ctx.Logger.Info("Starting garden relay",
				zap.String("address", ctx.Config.Address()),
				zap.Int("grpc_port", ctx.Config.GRPCPort),
				zap.String("detector", ctx.Config.Detection.Backend))

			// Создаем приложение
			application, err := app.NewApplicationWithConfig(ctx.Config, ctx.Logger)
			if err != nil {
				ctx.Logger.Error("Failed to build application", zap.Error(err))
				return err
			}

			// Graceful shutdown контекст
			runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return application.Run(runCtx)
		},
	}
}
