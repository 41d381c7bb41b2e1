package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/warblehq/warble/internal/config"
	"github.com/warblehq/warble/internal/discord"
	"github.com/warblehq/warble/internal/logging"
)

var (
	configPath string
	verbose    bool
)

// SetupRootCmd builds the warble command tree around the embedded
// default config.
func SetupRootCmd(defaults *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "warble",
		Short:        "Warble is a streaming LLM chat bot for Discord",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(defaults)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to warble.yaml")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(versionCmd())
	return root
}

func run(defaults *config.Config) error {
	logging.SetVerbose(verbose)

	cfg := defaults
	watchPath := ""
	switch {
	case configPath != "":
		loaded, err := config.LoadFrom(configPath)
		if err != nil {
			return fmt.Errorf("loading config %s: %w", configPath, err)
		}
		cfg = loaded
		watchPath = configPath
	default:
		if _, err := os.Stat("warble.yaml"); err == nil {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading warble.yaml: %w", err)
			}
			cfg = loaded
			watchPath = "warble.yaml"
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	bot, err := discord.New(cfg)
	if err != nil {
		return err
	}
	defer bot.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Infof("warble %s starting with model %s", Version, cfg.Model)
	return bot.Run(ctx, watchPath)
}
