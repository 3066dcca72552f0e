package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateChain(); err != nil {
		return err
	}
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateChain() error {
	if err := validateURL("chain.rpc_endpoint", c.Chain.RPCEndpoint, "http", "https"); err != nil {
		return err
	}
	if c.Chain.WSEndpoint != "" {
		if err := validateURL("chain.ws_endpoint", c.Chain.WSEndpoint, "ws", "wss"); err != nil {
			return err
		}
	}
	if !common.IsHexAddress(c.Chain.ContractAddress) {
		return fmt.Errorf("chain.contract_address %q is not a hex address", c.Chain.ContractAddress)
	}
	if c.Chain.PrivateKey != "" {
		if _, err := crypto.HexToECDSA(c.Chain.PrivateKey); err != nil {
			return errors.New("chain.private_key must be a 32-byte hex secp256k1 key")
		}
	}
	if c.Chain.PollIntervalSeconds < 0 {
		return errors.New("chain.poll_interval_seconds must be positive")
	}
	if c.Chain.TimeoutSeconds < 0 {
		return errors.New("chain.timeout_seconds must be positive")
	}
	if c.Chain.MaxRetries < 0 {
		return errors.New("chain.max_retries must be >= 0")
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s %q is not a valid URL", field, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of %v, got %q", field, schemes, u.Scheme)
}

func (c *Config) validateDiscovery() error {
	if c.Discovery.Window < 1 || c.Discovery.Window > maxWindow {
		return fmt.Errorf("discovery.window must be between 1 and %d", maxWindow)
	}
	if c.Discovery.DecodeConcurrency < 1 {
		return errors.New("discovery.decode_concurrency must be positive")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.Enabled && c.Cache.PostgresDSN == "" {
		return errors.New("cache.postgres_dsn is required when cache.enabled is true (or set CONWAY_POSTGRES_DSN)")
	}
	if c.Cache.RecordScans && c.Cache.ClickhouseDSN == "" {
		return errors.New("cache.clickhouse_dsn is required when cache.record_scans is true (or set CONWAY_CLICKHOUSE_DSN)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
}
