package liquidation

// Default sweep parameters.
const (
	DefaultSlippageBps          = 100 // 1%
	DefaultPriorityFee          = 0.001
	DefaultMaxRetries           = 3
	DefaultPartialSellThreshold = 90 // percent

	// Emergency-exit presets: wider tolerance, fail fast.
	EmergencySlippageBps = 200
	EmergencyMaxRetries  = 1
	EmergencyPriorityFee = 0.01
)

// Config holds sweep parameters. Zero fields take defaults.
type Config struct {
	ExcludedWallets      []string // protected from liquidation (dev, treasury)
	SlippageBps          int
	PriorityFee          float64 // SOL
	MaxRetries           int     // per-position attempts
	PartialSellThreshold float64 // min % sold to count a partial as success
}

// DefaultConfig returns the default sweep configuration.
func DefaultConfig() Config {
	return Config{
		SlippageBps:          DefaultSlippageBps,
		PriorityFee:          DefaultPriorityFee,
		MaxRetries:           DefaultMaxRetries,
		PartialSellThreshold: DefaultPartialSellThreshold,
	}
}

// withDefaults fills zero fields from the package defaults.
func (cfg Config) withDefaults() Config {
	if cfg.SlippageBps == 0 {
		cfg.SlippageBps = DefaultSlippageBps
	}
	if cfg.PriorityFee == 0 {
		cfg.PriorityFee = DefaultPriorityFee
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PartialSellThreshold == 0 {
		cfg.PartialSellThreshold = DefaultPartialSellThreshold
	}
	return cfg
}
