package domain

// Position is a holding to be liquidated. Supplied by the caller per
// sweep; never persisted by the engine.
type Position struct {
	Wallet            string  // owning wallet address
	TokenAddress      string  // token mint address
	TokenSymbol       string
	Balance           float64 // token balance to sell
	EstimatedSolValue float64
}

// SellResult is the outcome of liquidating one position.
type SellResult struct {
	Wallet         string
	Success        bool
	TxSignature    string // empty when no transaction landed
	SolReceived    float64
	Error          string // empty on success
	PartialSell    bool
	PercentageSold float64 // only meaningful when PartialSell
}

// SellAllSummary is the aggregate report of one liquidation sweep.
type SellAllSummary struct {
	TotalPositions   int // after exclusion filtering
	SoldCount        int // fully succeeded, not partial
	FailedCount      int
	PartialCount     int
	TotalSolReceived float64
	Results          []SellResult
	Failures         []SellResult
	DurationMs       int64
}
