package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"stakevault/config"
	"stakevault/core/types"
	"stakevault/native/staking"
	"stakevault/observability/logging"
	"stakevault/rpc"
	"stakevault/state/bank"
	"stakevault/storage"
)

var (
	snapshotKey     = []byte("staking/snapshot")
	bankAccountsKey = []byte("bank/accounts")
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("STAKEVAULT_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Setup(cfg.ServiceName, env)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	ledger := bank.NewLedger()
	restoredBank, err := restoreBank(db, ledger)
	if err != nil {
		logger.Error("Failed to restore bank ledger", slog.Any("error", err))
		os.Exit(1)
	}

	params, err := cfg.EngineParams()
	if err != nil {
		logger.Error("Invalid engine configuration", slog.Any("error", err))
		os.Exit(1)
	}
	engine, err := staking.NewEngine(params, bank.NewCustodian(ledger))
	if err != nil {
		logger.Error("Failed to construct staking engine", slog.Any("error", err))
		os.Exit(1)
	}

	restoredLedger, err := restoreEngine(db, engine)
	if err != nil {
		logger.Error("Failed to restore ledger snapshot", slog.Any("error", err))
		os.Exit(1)
	}

	if !restoredBank {
		if err := seedGenesis(cfg, ledger); err != nil {
			logger.Error("Failed to seed genesis balances", slog.Any("error", err))
			os.Exit(1)
		}
	}
	if !restoredLedger {
		if err := seedTiers(cfg, engine, params); err != nil {
			logger.Error("Failed to configure tiers", slog.Any("error", err))
			os.Exit(1)
		}
	}

	logger.Info("ledger ready",
		"restored", restoredLedger,
		"tiers", engine.TierCount(),
		"totalStaked", engine.TotalStaked().String(),
	)

	persist := func() error {
		return persistState(db, engine, ledger)
	}
	server := rpc.NewServer(engine, logger, rpc.WithPersist(persist))
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// restoreEngine loads the last ledger snapshot; reports whether one existed.
func restoreEngine(db storage.Database, engine *staking.Engine) (bool, error) {
	raw, err := db.Get(snapshotKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var snap staking.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return false, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := engine.Restore(&snap); err != nil {
		return false, err
	}
	return true, nil
}

func restoreBank(db storage.Database, ledger *bank.Ledger) (bool, error) {
	raw, err := db.Get(bankAccountsKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var encoded map[string]*types.Account
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return false, fmt.Errorf("decode bank accounts: %w", err)
	}
	accounts := make(map[string]*types.Account, len(encoded))
	for key, acc := range encoded {
		rawKey, err := hex.DecodeString(key)
		if err != nil {
			return false, fmt.Errorf("decode account key %q: %w", key, err)
		}
		accounts[string(rawKey)] = acc
	}
	ledger.SetAccounts(accounts)
	return true, nil
}

func persistState(db storage.Database, engine *staking.Engine, ledger *bank.Ledger) error {
	snap, err := json.Marshal(engine.Snapshot())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := db.Put(snapshotKey, snap); err != nil {
		return err
	}
	encoded := make(map[string]*types.Account)
	for key, acc := range ledger.Accounts() {
		encoded[hex.EncodeToString([]byte(key))] = acc
	}
	accounts, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("encode bank accounts: %w", err)
	}
	return db.Put(bankAccountsKey, accounts)
}

func seedGenesis(cfg *config.Config, ledger *bank.Ledger) error {
	entries, err := cfg.Genesis()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := ledger.Mint(entry.Token, entry.Address, entry.Amount); err != nil {
			return err
		}
	}
	return nil
}

func seedTiers(cfg *config.Config, engine *staking.Engine, params staking.Params) error {
	tiers, err := cfg.TierMultipliers()
	if err != nil {
		return err
	}
	for _, tier := range tiers {
		if err := engine.AddTier(params.Admin, tier.LockSeconds, tier.Multiplier); err != nil {
			return err
		}
	}
	// Drop the synthetic tier-added events; only runtime changes are logged.
	engine.DrainEvents()
	return nil
}
