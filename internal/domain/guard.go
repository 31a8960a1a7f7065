package domain

// GuardAction is the protective response emitted on threshold breach.
type GuardAction string

const (
	// ActionStopBuying halts further buying for the launch.
	ActionStopBuying GuardAction = "STOP_BUYING"
	// ActionEmergencyExit liquidates all positions immediately.
	ActionEmergencyExit GuardAction = "EMERGENCY_EXIT"
)

// GuardState is the lifecycle state of a monitoring session.
type GuardState string

const (
	// GuardArmed accepts buy events and accumulates external volume.
	GuardArmed GuardState = "ARMED"
	// GuardTriggered means the protective action already fired (one-shot).
	GuardTriggered GuardState = "TRIGGERED"
	// GuardStopped is terminal; no transition leaves it.
	GuardStopped GuardState = "STOPPED"
)

// LaunchPlan is the static description of a token launch.
// Wallets listed here form the guard whitelist and are exempt
// from external-volume accounting.
type LaunchPlan struct {
	TokenAddress  string   // token mint address
	SniperWallets []string // our sniper wallet addresses
	DevWallet     string   // dev wallet
	FunderWallet  string   // launch funder
	BotWallets    []string // known allowed bot wallets (optional)
}

// BuyEvent is an observed on-chain buy, produced by the chain watcher
// and consumed exactly once by the guard.
type BuyEvent struct {
	Wallet      string  // buyer wallet address
	SolAmount   float64 // SOL spent
	TokenAmount float64 // tokens received
	Timestamp   int64   // Unix timestamp in milliseconds
	TxSignature string  // transaction signature
}

// ExternalBuyAlert records a non-whitelisted buy. Immutable once appended
// to a session's alert log; carries enough context (wallet, amounts,
// timestamp) to be rendered without additional lookups.
type ExternalBuyAlert struct {
	Wallet                string
	SolAmount             float64
	CumulativeExternalSol float64 // running external total at time of event
	Threshold             float64
	PercentageOfThreshold float64
	Timestamp             int64 // Unix timestamp in milliseconds
	IsWhitelisted         bool  // always false when stored
}

// GuardStats is derived purely from a session's alert log.
type GuardStats struct {
	TotalAlerts   int
	LargestBuy    float64
	AvgBuySize    float64
	UniqueWallets int
}

// ThresholdCheck is the result of a manual threshold query.
type ThresholdCheck struct {
	Breached    bool
	ExternalSol float64
	Threshold   float64
}
