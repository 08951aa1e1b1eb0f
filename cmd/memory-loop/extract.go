package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/memory-loop/daemon/internal/extraction"
	"github.com/memory-loop/daemon/internal/ledger"
)

var extractVaultFlag string

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "run the sandboxed Extraction Engine once against a vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		v, err := selectVault(a, extractVaultFlag)
		if err != nil {
			return err
		}

		sandboxDir := a.cfg.SandboxDir
		if !filepath.IsAbs(sandboxDir) {
			sandboxDir = filepath.Join(v.Root, sandboxDir)
		}

		driver := extraction.New(sandboxDir, a.cfg.MemoryFilePath, a.cfg.Extraction.MemoryByteLimit, a.gateway)
		if err := driver.Recover(context.Background()); err != nil {
			return fmt.Errorf("extraction recovery: %w", err)
		}

		led := loadVaultLedger(v)
		transcripts, err := extraction.DiscoverTranscripts(v, led)
		if err != nil {
			return fmt.Errorf("discover transcripts: %w", err)
		}

		result, nextLedger, err := driver.Run(context.Background(), transcripts, led)
		if err != nil {
			return fmt.Errorf("extraction run: %w", err)
		}
		if err := ledger.Persist(ledgerPath(v), nextLedger); err != nil {
			return fmt.Errorf("persist ledger: %w", err)
		}

		cmd.Printf("extract: status=%s transcripts=%d facts=%d duplicates=%d\n",
			result.Status, result.TranscriptsRead, result.FactsWritten, result.DuplicatesFiltered)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractVaultFlag, "vault", "", "vault root to extract from (defaults to the only discovered vault)")
	rootCmd.AddCommand(extractCmd)
}
