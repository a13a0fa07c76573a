package tracing

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/transparencyx/chaintrace/common/errs"
	"github.com/transparencyx/chaintrace/metrics"
)

// TraceSource returns the raw callTracer output of a transaction. node.EthClient satisfies it.
type TraceSource interface {
	TraceCallPath(ctx context.Context, hash common.Hash) (json.RawMessage, error)
}

// FlowSink persists payment flow records.
type FlowSink interface {
	AppendPaymentFlow(ctx context.Context, flow *PaymentFlow) error
}

// RawArchive keeps the untouched tracer output.
type RawArchive interface {
	PutTrace(ctx context.Context, hash common.Hash, raw []byte) error
}

// JobLedger records every trace request and its outcome.
type JobLedger interface {
	StartTraceJob(txHash common.Hash, requestedBy string) (uuid.UUID, error)
	CompleteTraceJob(id uuid.UUID, participants int, totalValue *big.Int) error
	FailTraceJob(id uuid.UUID, reason string) error
}

type TracerConfig struct {
	MaxDepth int
	// Archive and Ledger are optional.
	Archive RawArchive
	Ledger  JobLedger
	Now     func() time.Time
}

// Tracer fetches, walks and projects payment chains. It holds no per-request state, so
// concurrent calls are independent.
type Tracer struct {
	source  TraceSource
	sink    FlowSink
	archive RawArchive
	ledger  JobLedger
	opts    WalkOptions
	now     func() time.Time
}

func NewTracer(source TraceSource, sink FlowSink, cfg TracerConfig) *Tracer {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Tracer{
		source:  source,
		sink:    sink,
		archive: cfg.Archive,
		ledger:  cfg.Ledger,
		opts:    WalkOptions{MaxDepth: cfg.MaxDepth},
		now:     now,
	}
}

// RawTrace returns the tracer output unchanged.
func (t *Tracer) RawTrace(ctx context.Context, txHash common.Hash) (json.RawMessage, error) {
	raw, err := t.source.TraceCallPath(ctx, txHash)
	if err != nil {
		return nil, classifyFetchError(txHash, err)
	}
	return raw, nil
}

// TracePaymentChain traces txHash, flattens its call tree and appends the record to the
// warehouse. requestedBy labels the ledger entry.
func (t *Tracer) TracePaymentChain(ctx context.Context, txHash common.Hash, requestedBy string) (*PaymentFlow, error) {
	start := time.Now()
	jobID := t.startJob(txHash, requestedBy)

	flow, err := t.trace(ctx, txHash)
	if err != nil {
		outcome := string(errs.TypeOf(err))
		if outcome == "" {
			outcome = "error"
		}
		metrics.TracesTotal.WithLabelValues(outcome).Inc()
		log.Error("trace payment chain failed", "tx", txHash, "requestedBy", requestedBy, "err", err)
		t.failJob(jobID, err)
		return nil, err
	}

	metrics.TracesTotal.WithLabelValues("success").Inc()
	metrics.TraceDuration.Observe(time.Since(start).Seconds())
	metrics.TraceParticipants.Observe(float64(len(flow.Participants)))
	log.Info("traced payment chain", "tx", txHash, "origin", flow.Origin, "participants", len(flow.Participants), "total", flow.TotalValue)
	t.completeJob(jobID, flow)
	return flow, nil
}

func (t *Tracer) trace(ctx context.Context, txHash common.Hash) (*PaymentFlow, error) {
	raw, err := t.source.TraceCallPath(ctx, txHash)
	if err != nil {
		return nil, classifyFetchError(txHash, err)
	}

	root, err := DecodeCallFrame(raw)
	if err != nil {
		return nil, err
	}
	participants, err := Walk(root, t.opts)
	if err != nil {
		return nil, err
	}
	total, err := TotalValue(root)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(root.From) {
		return nil, errs.NewMalformedTrace(rootPath, "transaction has no valid sender")
	}

	flow := &PaymentFlow{
		TxHash:       txHash,
		Origin:       common.HexToAddress(root.From),
		CapturedAt:   t.now().UTC(),
		TotalValue:   (*hexutil.Big)(total),
		Participants: participants,
	}

	if t.archive != nil {
		// the record is still useful without the raw copy
		if err := t.archive.PutTrace(ctx, txHash, raw); err != nil {
			metrics.ArchivedTracesTotal.WithLabelValues("failed").Inc()
			log.Warn("archive raw trace failed", "tx", txHash, "err", err)
		} else {
			metrics.ArchivedTracesTotal.WithLabelValues("stored").Inc()
		}
	}

	if err := t.sink.AppendPaymentFlow(ctx, flow); err != nil {
		if errs.TypeOf(err) == "" {
			err = errs.Wrap(errs.TypeWarehouse, "append payment flow", err)
		}
		return nil, err
	}
	return flow, nil
}

func classifyFetchError(txHash common.Hash, err error) error {
	if errors.Is(err, ethereum.NotFound) {
		return errs.Wrap(errs.TypeNotFound, "transaction not found", err).AddContext("tx", txHash.Hex())
	}
	return errs.Wrap(errs.TypeNetwork, "debug_traceTransaction failed", err).AddContext("tx", txHash.Hex())
}

func (t *Tracer) startJob(txHash common.Hash, requestedBy string) uuid.UUID {
	if t.ledger == nil {
		return uuid.Nil
	}
	id, err := t.ledger.StartTraceJob(txHash, requestedBy)
	if err != nil {
		log.Warn("record trace job failed", "tx", txHash, "err", err)
		return uuid.Nil
	}
	return id
}

func (t *Tracer) completeJob(id uuid.UUID, flow *PaymentFlow) {
	if t.ledger == nil || id == uuid.Nil {
		return
	}
	if err := t.ledger.CompleteTraceJob(id, len(flow.Participants), flow.TotalValue.ToInt()); err != nil {
		log.Warn("complete trace job failed", "job", id, "err", err)
	}
}

func (t *Tracer) failJob(id uuid.UUID, cause error) {
	if t.ledger == nil || id == uuid.Nil {
		return
	}
	if err := t.ledger.FailTraceJob(id, cause.Error()); err != nil {
		log.Warn("fail trace job failed", "job", id, "err", err)
	}
}
