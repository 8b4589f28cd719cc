package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"stakevault/crypto"
	"stakevault/native/staking"
)

// TierConfig declares one lock tier. The multiplier is given in basis points
// (10000 = 1x) and converted to the engine's fixed-point scale on load.
type TierConfig struct {
	LockSeconds   uint64 `toml:"LockSeconds"`
	MultiplierBps uint64 `toml:"MultiplierBps"`
}

// BalanceConfig seeds one custodial balance on first boot, before any
// snapshot exists. Typically used to fund the module account's reward budget.
type BalanceConfig struct {
	Address string `toml:"Address"`
	Token   string `toml:"Token"`
	Amount  string `toml:"Amount"`
}

type Config struct {
	ListenAddress       string          `toml:"ListenAddress"`
	DataDir             string          `toml:"DataDir"`
	ServiceName         string          `toml:"ServiceName"`
	Environment         string          `toml:"Environment"`
	StakeToken          string          `toml:"StakeToken"`
	ModuleAddress       string          `toml:"ModuleAddress"`
	AdminAddress        string          `toml:"AdminAddress"`
	TreasuryAddress     string          `toml:"TreasuryAddress"`
	RewardRatePerSecond string          `toml:"RewardRatePerSecond"`
	StakingCap          string          `toml:"StakingCap"`
	PenaltyBps          uint64          `toml:"PenaltyBps"`
	Tiers               []TierConfig    `toml:"Tier"`
	GenesisBalances     []BalanceConfig `toml:"GenesisBalance"`
}

const defaultListenAddress = ":8546"

// Load reads the configuration from the given path, writing a commented
// default file first when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = "stakevaultd"
	}
	if strings.TrimSpace(c.StakeToken) == "" {
		c.StakeToken = "SVT"
	}
	if c.PenaltyBps == 0 {
		c.PenaltyBps = staking.DefaultPenaltyBps
	}
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("config: %s must be a non-negative integer, got %q", field, value)
	}
	return v, nil
}

// EngineParams converts the on-disk settings into engine wiring.
func (c *Config) EngineParams() (staking.Params, error) {
	module, err := crypto.DecodeAddress(c.ModuleAddress)
	if err != nil {
		return staking.Params{}, fmt.Errorf("config: ModuleAddress: %w", err)
	}
	admin, err := crypto.DecodeAddress(c.AdminAddress)
	if err != nil {
		return staking.Params{}, fmt.Errorf("config: AdminAddress: %w", err)
	}
	treasury, err := crypto.DecodeAddress(c.TreasuryAddress)
	if err != nil {
		return staking.Params{}, fmt.Errorf("config: TreasuryAddress: %w", err)
	}
	rate, err := parseAmount("RewardRatePerSecond", c.RewardRatePerSecond)
	if err != nil {
		return staking.Params{}, err
	}
	cap, err := parseAmount("StakingCap", c.StakingCap)
	if err != nil {
		return staking.Params{}, err
	}
	return staking.Params{
		StakeToken:          c.StakeToken,
		ModuleAddress:       module,
		Admin:               admin,
		Treasury:            treasury,
		RewardRatePerSecond: rate,
		StakingCap:          cap,
		PenaltyBps:          c.PenaltyBps,
	}, nil
}

// TierMultipliers converts the configured tiers into fixed-point multipliers
// in declaration order.
func (c *Config) TierMultipliers() ([]staking.Tier, error) {
	out := make([]staking.Tier, 0, len(c.Tiers))
	for i, tier := range c.Tiers {
		if tier.LockSeconds == 0 {
			return nil, fmt.Errorf("config: tier %d: LockSeconds must be positive", i)
		}
		if tier.MultiplierBps == 0 {
			return nil, fmt.Errorf("config: tier %d: MultiplierBps must be positive", i)
		}
		multiplier := new(big.Int).Mul(staking.PrecisionUnit(), new(big.Int).SetUint64(tier.MultiplierBps))
		multiplier.Quo(multiplier, big.NewInt(10_000))
		out = append(out, staking.Tier{LockSeconds: tier.LockSeconds, Multiplier: multiplier})
	}
	return out, nil
}

// GenesisEntry is one decoded genesis balance.
type GenesisEntry struct {
	Address crypto.Address
	Token   string
	Amount  *big.Int
}

// Genesis decodes the configured first-boot balances.
func (c *Config) Genesis() ([]GenesisEntry, error) {
	out := make([]GenesisEntry, 0, len(c.GenesisBalances))
	for i, entry := range c.GenesisBalances {
		addr, err := crypto.DecodeAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("config: genesis balance %d: %w", i, err)
		}
		token := strings.TrimSpace(entry.Token)
		if token == "" {
			token = c.StakeToken
		}
		amount, err := parseAmount("GenesisBalance.Amount", entry.Amount)
		if err != nil {
			return nil, err
		}
		if amount.Sign() <= 0 {
			return nil, fmt.Errorf("config: genesis balance %d: amount must be positive", i)
		}
		out = append(out, GenesisEntry{Address: addr, Token: token, Amount: amount})
	}
	return out, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:       defaultListenAddress,
		DataDir:             "./data",
		ServiceName:         "stakevaultd",
		Environment:         "dev",
		StakeToken:          "SVT",
		RewardRatePerSecond: "0",
		StakingCap:          "0",
		PenaltyBps:          staking.DefaultPenaltyBps,
		Tiers: []TierConfig{
			{LockSeconds: 7 * 24 * 60 * 60, MultiplierBps: 10_000},
			{LockSeconds: 30 * 24 * 60 * 60, MultiplierBps: 15_000},
			{LockSeconds: 90 * 24 * 60 * 60, MultiplierBps: 25_000},
		},
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
