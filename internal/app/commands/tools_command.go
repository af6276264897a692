package commands

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"garden-relay/internal/detector"
	"garden-relay/internal/signer"
	"garden-relay/internal/types"
)

// GetCheckConfigCommand возвращает команду проверки конфигурации
func GetCheckConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "check-config",
		Usage: "Validate configuration and signing key, then exit",
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			if err := ctx.Config.Validate(); err != nil {
				return err
			}
			identity, err := signer.LoadIdentity(ctx.Config.Upstream.ClientID, ctx.Config.Upstream.PrivateKeyPath, ctx.Config.Upstream.APIAddress)
			if err != nil {
				return err
			}

			fmt.Fprintln(c.App.Writer, "configuration OK")
			fmt.Fprintf(c.App.Writer, "  http:            %s\n", ctx.Config.Address())
			fmt.Fprintf(c.App.Writer, "  grpc port:       %d\n", ctx.Config.GRPCPort)
			fmt.Fprintf(c.App.Writer, "  allowed origins: %s\n", strings.Join(ctx.Config.CORS.AllowedOrigins, ", "))
			fmt.Fprintf(c.App.Writer, "  token endpoint:  %s\n", identity.TokenEndpoint)
			fmt.Fprintf(c.App.Writer, "  detector:        %s\n", ctx.Config.Detection.Backend)
			return nil
		},
	}
}

// tokenClaims - claims токена без подписи, для отладки оператором
type tokenClaims struct {
	ID        string   `json:"jti"`
	Issuer    string   `json:"iss"`
	Subject   string   `json:"sub"`
	Audience  string   `json:"aud"`
	Scope     []string `json:"scope"`
	IssuedAt  string   `json:"iat"`
	ExpiresAt string   `json:"exp"`
}

// GetTokenCommand возвращает команду, которая подписывает токен и печатает его claims
func GetTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Sign a fresh platform token and print its claims (signature is never printed)",
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			identity, err := signer.LoadIdentity(ctx.Config.Upstream.ClientID, ctx.Config.Upstream.PrivateKeyPath, ctx.Config.Upstream.APIAddress)
			if err != nil {
				return err
			}
			s, err := signer.New(identity)
			if err != nil {
				return err
			}
			token, err := s.IssueToken()
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(tokenClaims{
				ID:        token.ID,
				Issuer:    token.Issuer,
				Subject:   token.Subject,
				Audience:  token.Audience,
				Scope:     token.Scope,
				IssuedAt:  token.IssuedAt.UTC().Format(time.RFC3339),
				ExpiresAt: token.ExpiresAt.UTC().Format(time.RFC3339),
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, string(out))
			return nil
		},
	}
}

// GetDetectCommand возвращает команду, которая прогоняет один файл через настроенный детектор
func GetDetectCommand() *cli.Command {
	return &cli.Command{
		Name:      "detect",
		Usage:     "Run one image file through the configured detector",
		ArgsUsage: "<image file>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("detect requires exactly one image file", 2)
			}

			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			if err := ctx.Config.Detection.Validate(); err != nil {
				return err
			}

			path := c.Args().First()
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			d, err := detector.New(ctx.Config.Detection, nil, ctx.Logger)
			if err != nil {
				return err
			}

			frame := types.FramePayload{
				MimeType:   mimeFromExtension(path),
				Base64Data: base64.StdEncoding.EncodeToString(data),
				Data:       data,
			}

			ctx.Logger.Info("Running detection",
				zap.String("backend", d.Name()),
				zap.String("file", path),
				zap.Int("bytes", len(data)))

			result, err := d.Detect(context.Background(), frame)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, string(result.Body))
			return nil
		},
	}
}

func mimeFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}
