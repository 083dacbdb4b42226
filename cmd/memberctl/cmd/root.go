package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"hize/membership/internal/app"
	"hize/membership/pkg/config"
	"hize/membership/pkg/logger"
)

var (
	configPath string
	logLevel   string

	a       *app.App
	cleanup func()
)

var rootCmd = &cobra.Command{
	Use:           "memberctl",
	Short:         "Operate the IEEE membership validation pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if a != nil {
			return nil
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.Store.Driver == config.DriverMemory {
			return fmt.Errorf("memberctl needs a shared store, store.driver=memory is process-local")
		}

		log, err := logger.NewZapLogger(logLevel)
		if err != nil {
			return err
		}
		a, cleanup, err = app.InitializeApp(cfg, log)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cleanup != nil {
			cleanup()
		}
	},
}

// Execute 运行 memberctl
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config/apiserver.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
