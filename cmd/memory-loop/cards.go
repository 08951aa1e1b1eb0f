package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memory-loop/daemon/internal/cards"
)

var (
	cardsVaultFlag  string
	cardsWeeklyFlag bool
)

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "run the Card Discovery Engine once against a vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		v, err := selectVault(a, cardsVaultFlag)
		if err != nil {
			return err
		}
		if !v.CardsEnabled {
			cmd.Printf("cards: disabled for vault %s\n", v.Root)
			return nil
		}

		generator := cards.NewLLMGenerator(a.gateway)
		engine := cards.New(generator, int64(a.cfg.Cards.WeeklyByteBudget))
		led := loadVaultLedger(v)
		persist := persistVaultLedger(v)

		var result cards.Result
		if cardsWeeklyFlag {
			result, _, err = engine.RunWeekly(context.Background(), v, led, persist)
		} else {
			result, _, err = engine.RunDaily(context.Background(), v, led, persist)
		}
		if err != nil {
			return fmt.Errorf("card discovery run: %w", err)
		}

		cmd.Printf("cards: status=%s handled=%d retriable=%d errors=%d created=%d\n",
			result.Status, result.SuccessfullyHandled, result.RetriableCount, result.ErrorCount, result.CardsCreated)
		return nil
	},
}

func init() {
	cardsCmd.Flags().StringVar(&cardsVaultFlag, "vault", "", "vault root to scan (defaults to the only discovered vault)")
	cardsCmd.Flags().BoolVar(&cardsWeeklyFlag, "weekly", false, "run the weekly catch-up pass instead of the daily pass")
	rootCmd.AddCommand(cardsCmd)
}
