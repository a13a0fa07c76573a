package tracing

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CallFrame is one node of a callTracer result. Quantities are kept as the raw strings the
// node returned; Walk validates them.
type CallFrame struct {
	Type         string      `json:"type"`
	From         string      `json:"from"`
	To           string      `json:"to,omitempty"`
	Value        string      `json:"value,omitempty"`
	Gas          string      `json:"gas,omitempty"`
	GasUsed      string      `json:"gasUsed,omitempty"`
	Input        string      `json:"input,omitempty"`
	Output       string      `json:"output,omitempty"`
	Error        string      `json:"error,omitempty"`
	RevertReason string      `json:"revertReason,omitempty"`
	Calls        []CallFrame `json:"calls,omitempty"`
}

// Participant is a value-carrying call found below the transaction root.
type Participant struct {
	Address  common.Address `json:"address"`
	Value    *hexutil.Big   `json:"value"`
	Depth    int            `json:"depth"`
	MethodID string         `json:"methodId"`
}

// PaymentFlow is the flattened record of one traced transaction.
type PaymentFlow struct {
	TxHash       common.Hash    `json:"txHash"`
	Origin       common.Address `json:"origin"`
	CapturedAt   time.Time      `json:"capturedAt"`
	TotalValue   *hexutil.Big   `json:"totalValue"`
	Participants []Participant  `json:"participants"`
}
