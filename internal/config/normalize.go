package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeChain()
	c.normalizeDiscovery()
	c.normalizeCache()
	if err := c.normalizeExport(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	return nil
}

func (c *Config) normalizeChain() {
	c.Chain.RPCEndpoint = strings.TrimSpace(c.Chain.RPCEndpoint)
	if c.Chain.RPCEndpoint == "" {
		c.Chain.RPCEndpoint = defaultRPCEndpoint
	}
	c.Chain.WSEndpoint = strings.TrimSpace(c.Chain.WSEndpoint)
	c.Chain.ContractAddress = strings.TrimSpace(c.Chain.ContractAddress)
	c.Chain.PrivateKey = strings.TrimPrefix(strings.TrimSpace(c.Chain.PrivateKey), "0x")
	if c.Chain.PollIntervalSeconds == 0 {
		c.Chain.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Chain.TimeoutSeconds == 0 {
		c.Chain.TimeoutSeconds = defaultTimeoutSeconds
	}
}

func (c *Config) normalizeDiscovery() {
	if c.Discovery.MaxProbes == 0 {
		c.Discovery.MaxProbes = defaultMaxProbes
	}
	if c.Discovery.Window == 0 {
		c.Discovery.Window = defaultWindow
	}
	if c.Discovery.DecodeConcurrency == 0 {
		c.Discovery.DecodeConcurrency = defaultDecodeConcurrency
	}
}

func (c *Config) normalizeCache() {
	c.Cache.PostgresDSN = strings.TrimSpace(c.Cache.PostgresDSN)
	c.Cache.ClickhouseDSN = strings.TrimSpace(c.Cache.ClickhouseDSN)
}

func (c *Config) normalizeExport() error {
	if strings.TrimSpace(c.Export.Dir) == "" {
		c.Export.Dir = defaultExportDir
	}
	var err error
	if c.Export.Dir, err = expandPath(c.Export.Dir); err != nil {
		return fmt.Errorf("export.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
