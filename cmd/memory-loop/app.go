package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/memory-loop/daemon/internal/config"
	"github.com/memory-loop/daemon/internal/connector"
	"github.com/memory-loop/daemon/internal/ledger"
	"github.com/memory-loop/daemon/internal/llmgateway"
	"github.com/memory-loop/daemon/internal/logging"
	"github.com/memory-loop/daemon/internal/secret"
	"github.com/memory-loop/daemon/internal/vault"
	"github.com/memory-loop/daemon/internal/vocabulary"
)

// app bundles the shared substrate every subcommand needs: a loaded
// config, the discovered vaults, and the connector/gateway/vocabulary
// plumbing each engine is built from.
type app struct {
	cfg        *config.Config
	vaults     []*vault.Vault
	registry   *connector.Registry
	cache      *connector.Cache
	gateway    llmgateway.Gateway
	normalizer *vocabulary.Normalizer
}

func buildApp() (*app, error) {
	path := configPath
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".memory-loop", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if vaultsRoot != "" {
		cfg.VaultsRoot = vaultsRoot
	}

	if err := logging.Configure(cfg.StateDir, cfg.Logging.DebugMode, cfg.Logging.Level, cfg.Logging.Categories, cfg.Logging.Format == "json"); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	vaults, err := vault.Discover(cfg.VaultsRoot)
	if err != nil {
		return nil, fmt.Errorf("discover vaults under %s: %w", cfg.VaultsRoot, err)
	}

	registry := connector.NewRegistry()
	registry.Register(connector.NewStubConnector("stub", nil))

	gateway, err := buildGateway(cfg)
	if err != nil {
		return nil, fmt.Errorf("build LLM gateway: %w", err)
	}

	return &app{
		cfg:        cfg,
		vaults:     vaults,
		registry:   registry,
		cache:      connector.NewCache(),
		gateway:    gateway,
		normalizer: vocabulary.New(gateway),
	}, nil
}

func buildGateway(cfg *config.Config) (llmgateway.Gateway, error) {
	if cfg.LLM.Provider == "genai" && cfg.LLM.APIKey != "" {
		return llmgateway.NewGenAIGateway(cfg.LLM.APIKey, cfg.LLM.Model)
	}
	return llmgateway.NewStubGateway(nil), nil
}

// ledgerPath returns the per-vault processing ledger's persisted path,
// under the vault's own metadata subtree so each vault's state travels
// with it.
func ledgerPath(v *vault.Vault) string {
	return filepath.Join(v.MetadataSubtree(), "ledger.json")
}

func loadVaultLedger(v *vault.Vault) *ledger.Ledger {
	return ledger.Load(ledgerPath(v))
}

func persistVaultLedger(v *vault.Vault) func(*ledger.Ledger) error {
	return func(l *ledger.Ledger) error {
		return ledger.Persist(ledgerPath(v), l)
	}
}

func loadVaultSecrets(v *vault.Vault) (*secret.Store, error) {
	return secret.Load(v.SecretsDir())
}

// selectVault resolves the --vault flag (matched against Root or its base
// name) against
// the discovered vaults, defaulting to the first when exactly one vault
// is configured and none was specified.
func selectVault(a *app, name string) (*vault.Vault, error) {
	if len(a.vaults) == 0 {
		return nil, fmt.Errorf("no vaults found under %s", a.cfg.VaultsRoot)
	}
	if name == "" {
		if len(a.vaults) == 1 {
			return a.vaults[0], nil
		}
		return nil, fmt.Errorf("multiple vaults found, specify one with --vault")
	}
	for _, v := range a.vaults {
		if v.Root == name || filepath.Base(v.Root) == name {
			return v, nil
		}
	}
	return nil, fmt.Errorf("no vault named %q", name)
}
