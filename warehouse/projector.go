package warehouse

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/transparencyx/chaintrace/common/errs"
	"github.com/transparencyx/chaintrace/metrics"
	"github.com/transparencyx/chaintrace/tracing"
)

// TraceRow is one transaction_traces row as read back from the warehouse.
type TraceRow struct {
	TxHash        string    `ch:"tx_hash" json:"txHash"`
	CapturedAt    time.Time `ch:"captured_at" json:"capturedAt"`
	OriginAddress string    `ch:"origin_address" json:"originAddress"`
	TotalValue    string    `ch:"total_value" json:"totalValue"`
	Addresses     []string  `ch:"addresses" json:"-"`
	Values        []string  `ch:"amounts" json:"-"`
	Depths        []uint32  `ch:"depths" json:"-"`
	MethodIDs     []string  `ch:"method_ids" json:"-"`
}

// AppendPaymentFlow writes flow as exactly one row. Nothing deduplicates: appending the same
// flow twice produces two rows.
func (w *Warehouse) AppendPaymentFlow(ctx context.Context, flow *tracing.PaymentFlow) error {
	if err := w.ensureSchema(ctx); err != nil {
		return err
	}

	n := len(flow.Participants)
	addresses := make([]string, 0, n)
	values := make([]string, 0, n)
	depths := make([]uint32, 0, n)
	methods := make([]string, 0, n)
	for _, p := range flow.Participants {
		addresses = append(addresses, lowerHex(p.Address))
		values = append(values, weiString(p.Value))
		depths = append(depths, uint32(p.Depth))
		methods = append(methods, p.MethodID)
	}

	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s (tx_hash, captured_at, origin_address, total_value, payment_chain.address, payment_chain.value, payment_chain.depth, payment_chain.method_id)",
		w.table(TableTransactionTraces)))
	if err != nil {
		return w.appendFailed(TableTransactionTraces, "prepare batch", err)
	}
	defer batch.Abort() //nolint:errcheck

	if err := batch.Append(
		flow.TxHash.Hex(),
		flow.CapturedAt.UTC(),
		lowerHex(flow.Origin),
		weiString(flow.TotalValue),
		addresses,
		values,
		depths,
		methods,
	); err != nil {
		return w.appendFailed(TableTransactionTraces, "append row", err)
	}
	if err := batch.Send(); err != nil {
		return w.appendFailed(TableTransactionTraces, "send batch", err)
	}

	metrics.WarehouseRowsTotal.WithLabelValues(TableTransactionTraces, "ok").Inc()
	log.Debug("appended payment flow", "tx", flow.TxHash, "participants", n)
	return nil
}

// PaymentFlowsByTx returns every stored record of txHash, oldest first. More than one is
// normal for a transaction traced more than once.
func (w *Warehouse) PaymentFlowsByTx(ctx context.Context, txHash common.Hash) ([]*tracing.PaymentFlow, error) {
	if err := w.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var rows []TraceRow
	query := fmt.Sprintf(`SELECT tx_hash, captured_at, origin_address, total_value,
    payment_chain.address AS addresses,
    payment_chain.value AS amounts,
    payment_chain.depth AS depths,
    payment_chain.method_id AS method_ids
FROM %s
WHERE tx_hash = ?
ORDER BY captured_at`, w.table(TableTransactionTraces))
	if err := w.conn.Select(ctx, &rows, query, txHash.Hex()); err != nil {
		return nil, errs.Wrap(errs.TypeWarehouse, "select payment flows", err).AddContext("tx", txHash.Hex())
	}

	flows := make([]*tracing.PaymentFlow, 0, len(rows))
	for i := range rows {
		flow, err := rows[i].toPaymentFlow()
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

func (r *TraceRow) toPaymentFlow() (*tracing.PaymentFlow, error) {
	if len(r.Values) != len(r.Addresses) || len(r.Depths) != len(r.Addresses) || len(r.MethodIDs) != len(r.Addresses) {
		return nil, errs.New(errs.TypeWarehouse, "payment_chain arrays differ in length").AddContext("tx", r.TxHash)
	}
	total, err := parseWei(r.TotalValue)
	if err != nil {
		return nil, err
	}
	participants := make([]tracing.Participant, 0, len(r.Addresses))
	for i, addr := range r.Addresses {
		value, err := parseWei(r.Values[i])
		if err != nil {
			return nil, err
		}
		participants = append(participants, tracing.Participant{
			Address:  common.HexToAddress(addr),
			Value:    value,
			Depth:    int(r.Depths[i]),
			MethodID: r.MethodIDs[i],
		})
	}
	return &tracing.PaymentFlow{
		TxHash:       common.HexToHash(r.TxHash),
		Origin:       common.HexToAddress(r.OriginAddress),
		CapturedAt:   r.CapturedAt.UTC(),
		TotalValue:   total,
		Participants: participants,
	}, nil
}

func (w *Warehouse) ensureSchema(ctx context.Context) error {
	if w.schemaReady.Load() {
		return nil
	}
	return w.EnsureSchema(ctx)
}

func (w *Warehouse) appendFailed(table, step string, err error) error {
	metrics.WarehouseRowsTotal.WithLabelValues(table, "failed").Inc()
	return errs.Wrap(errs.TypeWarehouse, step, err).AddContext("table", table)
}

func lowerHex(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func weiString(v *hexutil.Big) string {
	if v == nil {
		return "0"
	}
	return v.ToInt().String()
}

func parseWei(s string) (*hexutil.Big, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errs.New(errs.TypeWarehouse, "stored wei amount is not a decimal integer").AddContext("value", s)
	}
	return (*hexutil.Big)(v), nil
}
