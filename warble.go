package main

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	cli "github.com/warblehq/warble/cmd/warble"
	"github.com/warblehq/warble/internal/config"
)

//go:embed etc/warble.yaml
var embeddedConfig []byte

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// The embedded defaults only validate once DISCORD_BOT_TOKEN is set;
	// fall back to bare defaults so help and version still work without it.
	cfg, err := config.LoadFromBytes(embeddedConfig)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	if err := cli.SetupRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
