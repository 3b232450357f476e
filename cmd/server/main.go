/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the tuition engine. `serve` runs the HTTP API,
  `classify` runs one message through the intent pipeline and prints the
  result.

CONFIGURATION (highest priority first):
  1. Command-line flags
  2. TUITION_* environment variables (TUITION_SERVER_PORT, TUITION_GEMINI_API_KEY, ...)
  3. config.yaml in . or /etc/tuition-engine (or --config)
  4. Defaults (config/config.go)

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/tuition.db

  # Run with in-memory database on another port
  ./server serve --db=:memory: --port=3000

  # Share admission quotas between instances
  TUITION_REDIS_ADDR=localhost:6379 ./server serve

  # Classify a message without starting the server
  ./server classify "I want to pay 500 for student 2023001 for 2025-SUMMER"

SEE ALSO:
  - serve.go: Server startup and graceful shutdown
  - wiring.go: Dependency construction
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warp/tuition-engine/config"
)

var (
	cfgFile string
	v       = config.New()
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tuition-engine",
		Short:         "Tuition payment engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "console", "log format (console, json)")
	bindFlag(v, root, "log.level", "log-level")
	bindFlag(v, root, "log.format", "log-format")

	root.AddCommand(newServeCmd())
	root.AddCommand(newClassifyCmd())
	return root
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	f := cmd.PersistentFlags().Lookup(flag)
	if f == nil {
		f = cmd.Flags().Lookup(flag)
	}
	_ = v.BindPFlag(key, f)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
