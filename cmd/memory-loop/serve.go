package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/memory-loop/daemon/internal/cards"
	"github.com/memory-loop/daemon/internal/configwatch"
	"github.com/memory-loop/daemon/internal/extraction"
	"github.com/memory-loop/daemon/internal/ledger"
	"github.com/memory-loop/daemon/internal/logging"
	"github.com/memory-loop/daemon/internal/progress"
	"github.com/memory-loop/daemon/internal/scheduler"
	"github.com/memory-loop/daemon/internal/syncengine"
	"github.com/memory-loop/daemon/internal/vault"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the daemon: scheduled sync, extraction, and card discovery for every discovered vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		if len(a.vaults) == 0 {
			return fmt.Errorf("no vaults found under %s", a.cfg.VaultsRoot)
		}

		reporter := progress.NewReporter()
		reporter.Subscribe(func(e progress.Event) {
			logging.Boot("progress: engine=%s status=%s %d/%d %s", e.Engine, e.Status, e.Current, e.Total, e.CurrentItem)
		})

		sched, err := scheduler.New(a.cfg.Scheduler.Timezone)
		if err != nil {
			return fmt.Errorf("build scheduler: %w", err)
		}

		var watchers []*configwatch.Watcher
		for _, v := range a.vaults {
			if err := registerVaultEngines(sched, a, v, reporter); err != nil {
				return fmt.Errorf("register vault %s: %w", v.Root, err)
			}

			w, err := configwatch.New([]string{v.SyncConfigDir(), v.SecretsDir()}, func(path string) {
				logging.Scheduler("config change detected at %s, triggering sync for %s", path, v.Root)
				if triggerErr := sched.TriggerNow(context.Background(), v.ID+":sync"); triggerErr != nil {
					logging.SchedulerWarn("config-triggered sync failed for %s: %v", v.Root, triggerErr)
				}
			})
			if err != nil {
				return fmt.Errorf("build config watcher for %s: %w", v.Root, err)
			}
			watchers = append(watchers, w)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for _, w := range watchers {
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("start config watcher: %w", err)
			}
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		logging.Boot("memory-loop serving %d vault(s)", len(a.vaults))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logging.Boot("shutdown signal received, stopping")
		for _, w := range watchers {
			w.Stop()
		}
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		return sched.Stop(stopCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// registerVaultEngines arms the daily/weekly triggers for sync, extraction,
// and (if enabled) card discovery against one vault. Each engine run loads
// and persists the vault's ledger itself, so concurrent vaults never share
// ledger state.
func registerVaultEngines(sched *scheduler.Scheduler, a *app, v *vault.Vault, reporter *progress.Reporter) error {
	sandboxDir := a.cfg.SandboxDir
	if !filepath.IsAbs(sandboxDir) {
		sandboxDir = filepath.Join(v.Root, sandboxDir)
	}
	extractionDriver := extraction.New(sandboxDir, a.cfg.MemoryFilePath, a.cfg.Extraction.MemoryByteLimit, a.gateway)
	cardsEngine := cards.New(cards.NewLLMGenerator(a.gateway), int64(a.cfg.Cards.WeeklyByteBudget))

	catchup := a.cfg.Scheduler.GetCatchupThreshold()

	if err := sched.Register(scheduler.EngineSchedule{
		Name:             v.ID + ":sync",
		DailyCron:        a.cfg.Scheduler.DailyCron,
		CatchupThreshold: catchup,
		Run: func(ctx context.Context) (scheduler.RunResult, error) {
			led := loadVaultLedger(v)
			engine := syncengine.New(a.registry, a.cache, a.normalizer, led, v.ID)
			result, nextLedger, err := engine.Run(ctx, syncengine.Options{
				VaultRoot:                 v.Root,
				Mode:                      syncengine.ModeIncremental,
				IncrementalThresholdHours: a.cfg.Sync.IncrementalThresholdHours,
				Reporter:                  reporter,
			})
			if err != nil {
				return scheduler.RunResult{}, err
			}
			if result.Status == "success" {
				nextLedger = nextLedger.WithLastRunAt(time.Now())
			}
			if perr := ledger.Persist(ledgerPath(v), nextLedger); perr != nil {
				return scheduler.RunResult{}, perr
			}
			return scheduler.RunResult{Retriable: result.Status != "success"}, nil
		},
		LastRunAt:      func() time.Time { return loadVaultLedger(v).LastRunAt },
		AdvanceLastRun: func(time.Time) {},
	}); err != nil {
		return err
	}

	if err := sched.Register(scheduler.EngineSchedule{
		Name:             v.ID + ":extraction",
		DailyCron:        a.cfg.Scheduler.DailyCron,
		CatchupThreshold: catchup,
		Recover:          extractionDriver.Recover,
		Run: func(ctx context.Context) (scheduler.RunResult, error) {
			led := loadVaultLedger(v)
			transcripts, err := extraction.DiscoverTranscripts(v, led)
			if err != nil {
				return scheduler.RunResult{}, err
			}
			_, nextLedger, err := extractionDriver.Run(ctx, transcripts, led)
			if err != nil {
				return scheduler.RunResult{}, err
			}
			if perr := ledger.Persist(ledgerPath(v), nextLedger); perr != nil {
				return scheduler.RunResult{}, perr
			}
			return scheduler.RunResult{}, nil
		},
		LastRunAt:      func() time.Time { return loadVaultLedger(v).LastRunAt },
		AdvanceLastRun: func(time.Time) {},
	}); err != nil {
		return err
	}

	if !v.CardsEnabled {
		return nil
	}

	cardsHour := a.cfg.Cards.Hour
	dailyCron := fmt.Sprintf("0 %d * * *", cardsHour)
	weeklyCron := fmt.Sprintf("0 %d * * 0", cardsHour)

	return sched.Register(scheduler.EngineSchedule{
		Name:             v.ID + ":cards",
		DailyCron:        dailyCron,
		WeeklyCron:       weeklyCron,
		CatchupThreshold: catchup,
		Run: func(ctx context.Context) (scheduler.RunResult, error) {
			led := loadVaultLedger(v)
			persist := persistVaultLedger(v)
			result, nextLedger, err := cardsEngine.RunDaily(ctx, v, led, persist)
			if err != nil {
				return scheduler.RunResult{}, err
			}
			// Sunday runs (the weekly trigger fires then) also run the
			// weekly catch-up pass on the ledger the daily pass left.
			if cardsEngine.Now().Weekday() == time.Sunday {
				if _, _, err := cardsEngine.RunWeekly(ctx, v, nextLedger, persist); err != nil {
					return scheduler.RunResult{}, err
				}
			}
			return scheduler.RunResult{Retriable: result.Status != "success"}, nil
		},
		LastRunAt:      func() time.Time { return loadVaultLedger(v).LastDailyRun },
		AdvanceLastRun: func(time.Time) {},
	})
}
