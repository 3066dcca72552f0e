package config

const (
	defaultRPCEndpoint         = "http://127.0.0.1:8545"
	defaultContractAddress     = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	defaultConfirmations       = 1
	defaultPollIntervalSeconds = 2
	defaultTimeoutSeconds      = 30
	defaultMaxRetries          = 3
	defaultMaxProbes           = 10000
	defaultWindow              = 1
	defaultDecodeConcurrency   = 4
	defaultExportDir           = "."
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultServerBind          = "127.0.0.1:8645"
	maxWindow                  = 256
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Chain: Chain{
			RPCEndpoint:         defaultRPCEndpoint,
			ContractAddress:     defaultContractAddress,
			Confirmations:       defaultConfirmations,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			TimeoutSeconds:      defaultTimeoutSeconds,
			MaxRetries:          defaultMaxRetries,
		},
		Discovery: Discovery{
			MaxProbes:         defaultMaxProbes,
			Window:            defaultWindow,
			DecodeConcurrency: defaultDecodeConcurrency,
		},
		Export: Export{
			Dir: defaultExportDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Server: Server{
			Bind: defaultServerBind,
		},
	}
}
