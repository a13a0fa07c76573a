package tracing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/transparencyx/chaintrace/common/errs"
)

// DefaultMaxDepth matches the EVM call depth limit.
const DefaultMaxDepth = 1024

// NoMethodID marks a call without a 4-byte selector.
const NoMethodID = "0x"

const rootPath = "root"

type WalkOptions struct {
	// MaxDepth bounds the participant depth; a deeper node fails the walk.
	MaxDepth int
}

func (o WalkOptions) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// DecodeCallFrame decodes the callTracer result of one transaction.
func DecodeCallFrame(raw []byte) (*CallFrame, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errs.NewMalformedTrace(rootPath, "trace result is not a JSON object")
	}
	var frame CallFrame
	if err := json.Unmarshal(trimmed, &frame); err != nil {
		return nil, errs.Wrap(errs.TypeMalformedTrace, "cannot decode call frame", err).AddContext("path", rootPath)
	}
	if frame.Type == "" {
		return nil, errs.NewMalformedTrace(rootPath, "call frame has no type")
	}
	return &frame, nil
}

// Walk flattens the descendants of root in pre-order. Direct children of root have depth 0.
// A node is emitted when it is a CALL with a non-zero value; every node is descended into.
// The first malformed node aborts the walk.
func Walk(root *CallFrame, opts WalkOptions) ([]Participant, error) {
	w := walker{maxDepth: opts.maxDepth(), out: make([]Participant, 0)}
	for i := range root.Calls {
		if err := w.visit(&root.Calls[i], 0, strconv.Itoa(i)); err != nil {
			return nil, err
		}
	}
	return w.out, nil
}

type walker struct {
	maxDepth int
	out      []Participant
}

func (w *walker) visit(frame *CallFrame, depth int, path string) error {
	if depth >= w.maxDepth {
		return errs.NewMalformedTrace(path, fmt.Sprintf("call depth exceeds %d", w.maxDepth))
	}
	if frame.Type == "" {
		return errs.NewMalformedTrace(path, "call frame has no type")
	}
	value, err := parseQuantity(frame.Value)
	if err != nil {
		return errs.Wrap(errs.TypeMalformedTrace, "invalid value", err).AddContext("path", path)
	}
	if frame.Input != "" {
		if _, err := hexutil.Decode(frame.Input); err != nil {
			return errs.Wrap(errs.TypeMalformedTrace, "invalid input", err).AddContext("path", path)
		}
	}

	if strings.EqualFold(frame.Type, "CALL") && value != nil && value.Sign() > 0 {
		if !common.IsHexAddress(frame.To) {
			return errs.NewMalformedTrace(path, fmt.Sprintf("value transfer to invalid address %q", frame.To))
		}
		w.out = append(w.out, Participant{
			Address:  common.HexToAddress(frame.To),
			Value:    (*hexutil.Big)(value),
			Depth:    depth,
			MethodID: methodID(frame.Input),
		})
	}

	for i := range frame.Calls {
		if err := w.visit(&frame.Calls[i], depth+1, path+"."+strconv.Itoa(i)); err != nil {
			return err
		}
	}
	return nil
}

// parseQuantity accepts hex quantities with or without leading zeros. An empty string is
// an absent value and yields nil.
func parseQuantity(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("quantity %q lacks 0x prefix", s)
	}
	digits := s[2:]
	if digits == "" || strings.IndexFunc(digits, notHexDigit) >= 0 {
		return nil, fmt.Errorf("quantity %q is not hex", s)
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("quantity %q is not hex", s)
	}
	return v, nil
}

func notHexDigit(r rune) bool {
	return !('0' <= r && r <= '9' || 'a' <= r && r <= 'f' || 'A' <= r && r <= 'F')
}

func methodID(input string) string {
	if len(input) < 10 {
		return NoMethodID
	}
	return strings.ToLower(input[:10])
}

// TotalValue is the value sent by the transaction itself.
func TotalValue(root *CallFrame) (*big.Int, error) {
	v, err := parseQuantity(root.Value)
	if err != nil {
		return nil, errs.Wrap(errs.TypeMalformedTrace, "invalid value", err).AddContext("path", rootPath)
	}
	if v == nil {
		return new(big.Int), nil
	}
	return v, nil
}
