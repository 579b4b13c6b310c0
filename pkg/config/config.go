// Package config loads the guard's YAML configuration. Documents are checked
// against an embedded JSON schema before decoding and environment variables
// override deployment-specific fields.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/assetguard/pkg/guard"
	"github.com/Mindburn-Labs/assetguard/pkg/observability"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

// SupportedSchema is the range of schema_version values this build reads.
const SupportedSchema = "^1.0.0"

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://assetguard.schemas.local/config.schema.json"

var compiledSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("config schema load failed: %v", err))
	}
	return c.MustCompile(schemaURL)
}()

// Config is the full guard configuration.
type Config struct {
	SchemaVersion string                `yaml:"schema_version"`
	LogLevel      string                `yaml:"log_level"`
	Owner         string                `yaml:"owner"`
	Wallet        WalletConfig          `yaml:"wallet"`
	Targets       []TargetConfig        `yaml:"targets"`
	Whitelist     map[string][]string   `yaml:"whitelist"`
	Bindings      []BindingConfig       `yaml:"bindings"`
	Store         StoreConfig           `yaml:"store"`
	Events        EventsConfig          `yaml:"events"`
	API           APIConfig             `yaml:"api"`
	Observability *observability.Config `yaml:"observability"`
}

// WalletConfig names the custodial wallet and the node it reads through.
type WalletConfig struct {
	Address string `yaml:"address"`
	RPCURL  string `yaml:"rpc_url"`
}

// TargetConfig registers one contract with the dispatcher.
type TargetConfig struct {
	Address     string   `yaml:"address"`
	Family      string   `yaml:"family"`
	AnyAsset    bool     `yaml:"any_asset"`
	Constraints []string `yaml:"constraints"`
}

// BindingConfig seeds a router binding at boot.
type BindingConfig struct {
	Router string `yaml:"router"`
	Escrow string `yaml:"escrow"`
	Note   string `yaml:"note"`
}

// StoreConfig selects where registry state persists.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "memory" | "sqlite" | "postgres"
	DSN    string `yaml:"dsn"`
}

// EventsConfig enables event sinks beyond the log.
type EventsConfig struct {
	Audit bool         `yaml:"audit"`
	Redis *RedisConfig `yaml:"redis"`
}

// RedisConfig points the order-book stream at a Redis server.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Listen        string  `yaml:"listen"`
	JWTSecret     string  `yaml:"jwt_secret"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// Default returns a configuration with every optional field filled.
func Default() *Config {
	return &Config{
		SchemaVersion: "1.0.0",
		LogLevel:      "INFO",
		Store:         StoreConfig{Driver: "memory"},
		API: APIConfig{
			Listen:        ":8080",
			RatePerSecond: 5,
			Burst:         10,
		},
		Observability: observability.DefaultConfig(),
	}
}

// Load reads path, validates and decodes it, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates a YAML document and decodes it over Default.
func Parse(data []byte) (*Config, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if cfg.Observability == nil {
		cfg.Observability = observability.DefaultConfig()
	}
	applyEnv(cfg)

	if err := cfg.checkVersion(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config is not representable as json: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var inst any
	if err := dec.Decode(&inst); err != nil {
		return fmt.Errorf("config is not representable as json: %w", err)
	}
	if err := compiledSchema.Validate(inst); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func (c *Config) checkVersion() error {
	v, err := semver.NewVersion(c.SchemaVersion)
	if err != nil {
		return fmt.Errorf("schema_version %q: %w", c.SchemaVersion, err)
	}
	constraint, err := semver.NewConstraint(SupportedSchema)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return fmt.Errorf("schema_version %s is not supported (want %s)", v, SupportedSchema)
	}
	return nil
}

// applyEnv overlays ASSETGUARD_* variables.
func applyEnv(c *Config) {
	if v := os.Getenv("ASSETGUARD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ASSETGUARD_LISTEN"); v != "" {
		c.API.Listen = v
	}
	if v := os.Getenv("ASSETGUARD_JWT_SECRET"); v != "" {
		c.API.JWTSecret = v
	}
	if v := os.Getenv("ASSETGUARD_DATABASE_URL"); v != "" {
		c.Store.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			c.Store.Driver = "postgres"
		}
	}
	if v := os.Getenv("ASSETGUARD_RPC_URL"); v != "" {
		c.Wallet.RPCURL = v
	}
	if v := os.Getenv("ASSETGUARD_REDIS_ADDR"); v != "" {
		if c.Events.Redis == nil {
			c.Events.Redis = &RedisConfig{}
		}
		c.Events.Redis.Addr = v
	}
	if v := os.Getenv("ASSETGUARD_OTEL_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Observability.Enabled = enabled
		}
	}
}

// OwnerAddress returns the registry owner.
func (c *Config) OwnerAddress() common.Address { return common.HexToAddress(c.Owner) }

// WalletAddress returns the custodial wallet.
func (c *Config) WalletAddress() common.Address { return common.HexToAddress(c.Wallet.Address) }

// DispatchTargets converts target entries for the dispatcher.
func (c *Config) DispatchTargets() ([]guard.Target, error) {
	out := make([]guard.Target, 0, len(c.Targets))
	for i, t := range c.Targets {
		family := protocol.Family(t.Family)
		if !family.Valid() {
			return nil, fmt.Errorf("targets[%d]: unknown family %q", i, t.Family)
		}
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("targets[%d]: %q is not an address", i, t.Address)
		}
		out = append(out, guard.Target{
			Address:     common.HexToAddress(t.Address),
			Family:      family,
			AnyAsset:    t.AnyAsset,
			Constraints: t.Constraints,
		})
	}
	return out, nil
}

// Seed is one whitelist entry from the config file.
type Seed struct {
	Dimension whitelist.Dimension
	Key       whitelist.Key
}

// Seeds parses the whitelist section in a stable order.
func (c *Config) Seeds() ([]Seed, error) {
	var out []Seed
	for _, d := range whitelist.Dimensions {
		for _, raw := range c.Whitelist[string(d)] {
			k, err := whitelist.ParseKey(d, raw)
			if err != nil {
				return nil, fmt.Errorf("whitelist.%s: %w", d, err)
			}
			out = append(out, Seed{Dimension: d, Key: k})
		}
	}
	return out, nil
}

// RouterBindings parses the bindings section.
func (c *Config) RouterBindings() ([]whitelist.Binding, error) {
	out := make([]whitelist.Binding, 0, len(c.Bindings))
	for i, b := range c.Bindings {
		if !common.IsHexAddress(b.Router) || !common.IsHexAddress(b.Escrow) {
			return nil, fmt.Errorf("bindings[%d]: router and escrow must be addresses", i)
		}
		out = append(out, whitelist.Binding{
			Router: common.HexToAddress(b.Router),
			Escrow: common.HexToAddress(b.Escrow),
			Note:   b.Note,
		})
	}
	return out, nil
}
