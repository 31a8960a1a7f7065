package solana

// LamportsPerSol is the number of lamports in one SOL.
const LamportsPerSol = 1_000_000_000

// Transaction represents a confirmed Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata. Pre/post balances are
// indexed by account key position and are used to attribute SOL and
// token flows to wallets.
type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	PreBalances       []uint64 // lamports, per account key
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is an SPL token balance entry from transaction meta.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	UIAmount     float64
}

// TransactionMessage contains the parsed transaction message.
// AccountKeys[0] is the fee payer.
type TransactionMessage struct {
	AccountKeys []string
}
