package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/memory-loop/daemon/internal/syncengine"
)

var syncVaultFlag string
var syncFullFlag bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "run the Sync Engine once against a vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		v, err := selectVault(a, syncVaultFlag)
		if err != nil {
			return err
		}

		secrets, err := loadVaultSecrets(v)
		if err != nil {
			return fmt.Errorf("load secrets: %w", err)
		}
		cmd.Printf("loaded %d secret key(s) for vault %s\n", len(secrets.Keys()), v.Root)

		led := loadVaultLedger(v)
		engine := syncengine.New(a.registry, a.cache, a.normalizer, led, v.ID)

		mode := syncengine.ModeIncremental
		if syncFullFlag {
			mode = syncengine.ModeFull
		}

		result, nextLedger, err := engine.Run(context.Background(), syncengine.Options{
			VaultRoot:                 v.Root,
			Mode:                      mode,
			IncrementalThresholdHours: a.cfg.Sync.IncrementalThresholdHours,
		})
		if err != nil {
			return fmt.Errorf("sync run: %w", err)
		}
		if result.Status == "success" {
			nextLedger = nextLedger.WithLastRunAt(time.Now())
		}
		if err := persistVaultLedger(v)(nextLedger); err != nil {
			return fmt.Errorf("persist ledger: %w", err)
		}

		cmd.Printf("sync: status=%s processed=%d updated=%d errors=%d\n",
			result.Status, result.FilesProcessed, result.FilesUpdated, len(result.Errors))
		for _, e := range result.Errors {
			cmd.Printf("  - %s\n", e)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncVaultFlag, "vault", "", "vault root to sync (defaults to the only discovered vault)")
	syncCmd.Flags().BoolVar(&syncFullFlag, "full", false, "ignore _sync_meta.last_synced and resync every matched file")
	rootCmd.AddCommand(syncCmd)
}
