package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Chain contains JSON-RPC and contract settings.
type Chain struct {
	RPCEndpoint     string `toml:"rpc_endpoint"`
	WSEndpoint      string `toml:"ws_endpoint"`
	ContractAddress string `toml:"contract_address"`
	// PrivateKey is the hex secp256k1 key used for minting. Prefer CONWAY_PRIVATE_KEY.
	PrivateKey          string `toml:"private_key"`
	Confirmations       uint64 `toml:"confirmations"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	MaxRetries          int    `toml:"max_retries"`
	GasLimit            uint64 `toml:"gas_limit"` // 0 estimates per mint
}

// Discovery contains ownership enumeration settings.
type Discovery struct {
	MaxProbes         uint64 `toml:"max_probes"`
	Window            int    `toml:"window"`
	DecodeConcurrency int    `toml:"decode_concurrency"`
}

// Cache contains optional persistence settings.
type Cache struct {
	Enabled       bool   `toml:"enabled"`
	PostgresDSN   string `toml:"postgres_dsn"`
	RecordScans   bool   `toml:"record_scans"`
	ClickhouseDSN string `toml:"clickhouse_dsn"`
}

// Export contains decode output settings.
type Export struct {
	Dir string `toml:"dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Server contains HTTP gallery settings.
type Server struct {
	Bind string `toml:"bind"`
}

// Config encapsulates all configuration values.
//
// Configuration sections:
//   - Chain: RPC endpoints, contract address, signer and finality
//   - Discovery: probe bound and concurrency of ownership scans
//   - Cache: PostgreSQL token-URI cache and ClickHouse scan records
//   - Export: where decoded assets are written
//   - Logging: log format and level
//   - Server: HTTP bind address
type Config struct {
	Chain     Chain     `toml:"chain"`
	Discovery Discovery `toml:"discovery"`
	Cache     Cache     `toml:"cache"`
	Export    Export    `toml:"export"`
	Logging   Logging   `toml:"logging"`
	Server    Server    `toml:"server"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/conway/config.toml")
}

// Load locates, parses, and validates a configuration file. Environment
// overrides are applied after the file is read.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("conway.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"CONWAY_RPC_ENDPOINT", &c.Chain.RPCEndpoint},
		{"CONWAY_WS_ENDPOINT", &c.Chain.WSEndpoint},
		{"CONWAY_CONTRACT_ADDRESS", &c.Chain.ContractAddress},
		{"CONWAY_PRIVATE_KEY", &c.Chain.PrivateKey},
		{"CONWAY_POSTGRES_DSN", &c.Cache.PostgresDSN},
		{"CONWAY_CLICKHOUSE_DSN", &c.Cache.ClickhouseDSN},
	}
	for _, o := range overrides {
		if value, ok := os.LookupEnv(o.env); ok && strings.TrimSpace(value) != "" {
			*o.target = value
		}
	}
}

// Contract returns the configured contract address.
func (c *Config) Contract() common.Address {
	return common.HexToAddress(c.Chain.ContractAddress)
}

// PollInterval returns the receipt polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Chain.PollIntervalSeconds) * time.Second
}

// Timeout returns the per-request RPC timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Chain.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes the sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
