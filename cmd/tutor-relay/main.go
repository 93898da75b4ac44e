package main

import (
	"context"
	"embed"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/al-code-git/my-ai-tutor/pkg/relay"
)

//go:embed static/*
var staticFS embed.FS

func main() {
	rootCmd := &cobra.Command{
		Use:   "tutor-relay",
		Short: "Serve the AI tutor web chat relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	flags := rootCmd.Flags()
	flags.String("addr", ":5000", "HTTP listen address")
	flags.String("api-key", "", "upstream API key (empty runs the offline echo gateway)")
	flags.String("base-url", "", "upstream API base URL (default OpenAI)")
	flags.String("model", "gpt-4o-mini", "upstream model identifier")
	flags.Int("max-transcript", 12, "maximum transcript length per connection")
	flags.Int("max-tokens", 300, "maximum completion output tokens")
	flags.Float32("temperature", 0.7, "sampling temperature")
	flags.Duration("timeout", 30*time.Second, "upstream call timeout")
	flags.String("system-prompt", relay.DefaultSystemPrompt, "tutor persona system prompt")
	flags.String("log-level", "info", "log level (trace|debug|info|warn|error)")
	flags.String("log-format", "console", "log format (console|json)")

	viper.SetEnvPrefix("TUTOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	cobra.CheckErr(viper.BindPFlags(flags))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	if err := setupLogging(viper.GetString("log-level"), viper.GetString("log-format")); err != nil {
		return err
	}

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return errors.Wrap(err, "mount static assets")
	}

	srv := relay.NewServer(ctx, relay.Settings{
		Addr:          viper.GetString("addr"),
		SystemPrompt:  viper.GetString("system-prompt"),
		MaxTranscript: viper.GetInt("max-transcript"),
		Gateway: relay.GatewayConfig{
			APIKey:      viper.GetString("api-key"),
			BaseURL:     viper.GetString("base-url"),
			Model:       viper.GetString("model"),
			MaxTokens:   viper.GetInt("max-tokens"),
			Temperature: float32(viper.GetFloat64("temperature")),
			Timeout:     viper.GetDuration("timeout"),
		},
	}, static)

	return srv.Run(ctx)
}

func setupLogging(level, format string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", level)
	}
	zerolog.SetGlobalLevel(lvl)
	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return nil
}
