package ledger

// Response shapes of the Solana JSON-RPC methods the client calls, trimmed to
// the fields it reads.

type signatureInfo struct {
	Signature          string      `json:"signature"`
	Slot               uint64      `json:"slot"`
	Err                interface{} `json:"err"`
	BlockTime          *int64      `json:"blockTime"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

type rpcTransaction struct {
	Slot        uint64         `json:"slot"`
	BlockTime   *int64         `json:"blockTime"`
	Meta        *txMeta        `json:"meta"`
	Transaction parsedEnvelope `json:"transaction"`
}

type txMeta struct {
	Err               interface{}    `json:"err"`
	Fee               uint64         `json:"fee"`
	PreBalances       []int64        `json:"preBalances"`
	PostBalances      []int64        `json:"postBalances"`
	PreTokenBalances  []tokenBalance `json:"preTokenBalances"`
	PostTokenBalances []tokenBalance `json:"postTokenBalances"`
}

type tokenBalance struct {
	AccountIndex  int         `json:"accountIndex"`
	Mint          string      `json:"mint"`
	Owner         string      `json:"owner"`
	UITokenAmount tokenAmount `json:"uiTokenAmount"`
}

type tokenAmount struct {
	Amount   string `json:"amount"` // raw integer units
	Decimals int32  `json:"decimals"`
}

type parsedEnvelope struct {
	Signatures []string      `json:"signatures"`
	Message    parsedMessage `json:"message"`
}

type parsedMessage struct {
	AccountKeys []accountKey `json:"accountKeys"`
}

type accountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}
