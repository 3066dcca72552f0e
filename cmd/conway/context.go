package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"conway-token-lab/internal/chain"
	"conway-token-lab/internal/chain/stub"
	"conway-token-lab/internal/config"
	"conway-token-lab/internal/gallery"
	"conway-token-lab/internal/logging"
	"conway-token-lab/internal/mint"
	"conway-token-lab/internal/ownership"
	chstore "conway-token-lab/internal/storage/clickhouse"
	"conway-token-lab/internal/storage/memory"
	pgstore "conway-token-lab/internal/storage/postgres"
)

// Well-known development accounts; the stub contract is seeded for them.
var (
	stubAccount  = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	stubAccount2 = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

type commandContext struct {
	configFlag   *string
	stubFlag     *bool
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	logger     *zap.Logger
	configErr  error

	stubOnce sync.Once
	stub     *stub.Contract

	closers []func()
}

func newCommandContext(configFlag *string, stubFlag *bool, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		stubFlag:     stubFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		level := cfg.Logging.Level
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			level = *c.logLevelFlag
		}
		logger, err := logging.New(level, cfg.Logging.Format)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

func (c *commandContext) log() *zap.Logger {
	if c.logger == nil {
		return zap.NewNop()
	}
	return c.logger
}

func (c *commandContext) stubMode() bool {
	return c.stubFlag != nil && *c.stubFlag
}

// stubContract returns the process-wide in-memory contract, seeded on first use.
func (c *commandContext) stubContract() (*stub.Contract, error) {
	var err error
	c.stubOnce.Do(func() {
		c.stub = stub.NewContract()
		seeds := []struct {
			to         common.Address
			lineLength int64
			cells      []int
		}{
			{stubAccount, 8, []int{255, 255, 255}},
			{stubAccount2, 8, []int{56, 68, 56}},
			{stubAccount, 3, []int{0, 24, 60}},
			{stubAccount, 8, []int{2, 1, 7}},
		}
		for _, s := range seeds {
			args, encErr := mint.Encode(s.lineLength, s.cells)
			if encErr != nil {
				err = encErr
				return
			}
			if _, mintErr := c.stub.SafeMint(context.Background(), s.to, args); mintErr != nil {
				err = mintErr
				return
			}
		}
	})
	return c.stub, err
}

func (c *commandContext) signer() (*chain.Signer, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Chain.PrivateKey == "" {
		return nil, nil
	}
	return chain.NewSigner(cfg.Chain.PrivateKey)
}

func (c *commandContext) provider() (chain.Provider, error) {
	if c.stubMode() {
		return c.stubContract()
	}

	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	rpc := chain.NewHTTPClient(cfg.Chain.RPCEndpoint,
		chain.WithTimeout(cfg.Timeout()),
		chain.WithMaxRetries(cfg.Chain.MaxRetries),
		chain.WithLogger(c.log().Named("rpc")),
	)

	opts := []chain.ContractOption{
		chain.WithConfirmations(cfg.Chain.Confirmations),
		chain.WithPollInterval(cfg.PollInterval()),
		chain.WithGasLimit(cfg.Chain.GasLimit),
		chain.WithContractLogger(c.log().Named("contract")),
	}
	signer, err := c.signer()
	if err != nil {
		return nil, err
	}
	if signer != nil {
		opts = append(opts, chain.WithSigner(signer))
	}

	return chain.NewContract(cfg.Contract(), rpc, opts...), nil
}

// service builds a gallery.Service with the caches the config enables. Stub
// mode keeps both caches in memory.
func (c *commandContext) service(ctx context.Context) (*gallery.Service, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	p, err := c.provider()
	if err != nil {
		return nil, err
	}

	logger := c.log()
	opts := []gallery.Option{
		gallery.WithLogger(logger.Named("gallery")),
		gallery.WithContract(cfg.Contract()),
		gallery.WithMinter(p),
		gallery.WithConcurrency(cfg.Discovery.DecodeConcurrency),
		gallery.WithEnumerator(&ownership.Enumerator{
			MaxProbes: cfg.Discovery.MaxProbes,
			Window:    cfg.Discovery.Window,
			Logger:    logger.Named("ownership"),
		}),
	}

	switch {
	case c.stubMode():
		opts = append(opts,
			gallery.WithTokenURICache(memory.NewTokenURIStore()),
			gallery.WithScanRecords(memory.NewScanRecordStore()))
	default:
		if cfg.Cache.Enabled {
			pool, err := pgstore.NewPool(ctx, cfg.Cache.PostgresDSN)
			if err != nil {
				return nil, fmt.Errorf("connect to postgres: %w", err)
			}
			c.closers = append(c.closers, pool.Close)
			opts = append(opts, gallery.WithTokenURICache(pgstore.NewTokenURIStore(pool)))
		}
		if cfg.Cache.RecordScans {
			conn, err := chstore.NewConn(ctx, cfg.Cache.ClickhouseDSN)
			if err != nil {
				return nil, fmt.Errorf("connect to clickhouse: %w", err)
			}
			c.closers = append(c.closers, func() { conn.Close() })
			opts = append(opts, gallery.WithScanRecords(chstore.NewScanRecordStore(conn)))
		}
	}

	return gallery.NewService(p, opts...), nil
}

// account resolves an optional address argument, defaulting to the signer.
func (c *commandContext) account(raw string) (common.Address, error) {
	if raw != "" {
		if !common.IsHexAddress(raw) {
			return common.Address{}, fmt.Errorf("invalid address %q", raw)
		}
		return common.HexToAddress(raw), nil
	}

	signer, err := c.signer()
	if err != nil {
		return common.Address{}, err
	}
	if signer != nil {
		return signer.Address(), nil
	}
	if c.stubMode() {
		return stubAccount, nil
	}
	return common.Address{}, errors.New("no address given and no private key configured")
}

func (c *commandContext) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
