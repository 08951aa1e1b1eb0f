// Package main implements the memory-loop daemon CLI.
//
// File index, mirroring the engine split in internal/:
//
//	main.go    - entry point, rootCmd, global flags
//	app.go     - shared app wiring (config, vaults, connectors, gateway)
//	serve.go   - `serve`: run the daemon (scheduler-driven)
//	sync.go    - `sync`: one-shot Sync Engine run
//	extract.go - `extract`: one-shot Extraction Engine run
//	cards.go   - `cards`: one-shot Card Discovery run
//	status.go  - `status`: print per-vault ledger state
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/memory-loop/daemon/internal/logging"
)

var (
	configPath string
	vaultsRoot string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "memory-loop",
	Short: "memory-loop maintains a Markdown knowledge vault via background sync, extraction, and card discovery",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to $HOME/.memory-loop/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&vaultsRoot, "vaults-root", "", "override the configured vaults parent directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
