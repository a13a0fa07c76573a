// Package mirror turns the procurement contract events stored by the synchronizer into
// warehouse rows and operational lookups, and schedules payment chain traces.
package mirror

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/transparencyx/chaintrace/bindings"
	"github.com/transparencyx/chaintrace/common/tasks"
	"github.com/transparencyx/chaintrace/database"
	common2 "github.com/transparencyx/chaintrace/database/common"
	"github.com/transparencyx/chaintrace/metrics"
	"github.com/transparencyx/chaintrace/tracing"
	"github.com/transparencyx/chaintrace/warehouse"
)

const (
	// CursorName is the event_cursors row owned by the mirror.
	CursorName = "mirror"

	// RequestedBy labels the trace jobs the mirror schedules.
	RequestedBy = "mirror"
)

// Warehouse receives the mirrored rows.
type Warehouse interface {
	InsertClaim(ctx context.Context, rows ...warehouse.ClaimRow) error
	InsertClaimEvent(ctx context.Context, rows ...warehouse.ClaimEventRow) error
	InsertSupplierPayment(ctx context.Context, rows ...warehouse.SupplierPaymentRow) error
	InsertSubSupplierPayment(ctx context.Context, rows ...warehouse.SubSupplierPaymentRow) error
	InsertChallenge(ctx context.Context, rows ...warehouse.ChallengeRow) error
	InsertBudgetEvent(ctx context.Context, rows ...warehouse.BudgetEventRow) error
	InsertRoleEvent(ctx context.Context, rows ...warehouse.RoleEventRow) error
	InsertPaymentHop(ctx context.Context, rows ...warehouse.PaymentHopRow) error
}

// ChainTracer traces the payment chain of a transaction.
type ChainTracer interface {
	TracePaymentChain(ctx context.Context, txHash common.Hash, requestedBy string) (*tracing.PaymentFlow, error)
}

// SenderSource resolves the wallet that sent a transaction.
type SenderSource interface {
	TxSenderByHash(ctx context.Context, hash common.Hash) (common.Address, error)
}

type MirrorConfig struct {
	ProcurementAddress common.Address
	EventLoopInterval  time.Duration
	StartHeight        *big.Int
	BlockSize          uint64
	TraceWorkers       int
}

type EventMirror struct {
	db        *database.DB
	warehouse Warehouse
	tracer    ChainTracer
	senders   SenderSource
	filterer  *bindings.ProcurementFilterer
	handlers  map[common.Hash]eventHandler
	conf      *MirrorConfig

	resourceCtx    context.Context
	resourceCancel context.CancelFunc
	tasks          tasks.Group
}

func NewEventMirror(db *database.DB, wh Warehouse, tracer ChainTracer, senders SenderSource, conf *MirrorConfig, shutdown context.CancelCauseFunc) (*EventMirror, error) {
	filterer, err := bindings.NewProcurementFilterer(conf.ProcurementAddress, nil)
	if err != nil {
		return nil, fmt.Errorf("bind procurement contract: %w", err)
	}
	if conf.BlockSize == 0 {
		return nil, fmt.Errorf("mirror block size must be positive")
	}
	if conf.TraceWorkers <= 0 {
		conf.TraceWorkers = 1
	}
	if conf.StartHeight == nil {
		conf.StartHeight = big.NewInt(0)
	}

	resCtx, resCancel := context.WithCancel(context.Background())
	m := &EventMirror{
		db:             db,
		warehouse:      wh,
		tracer:         tracer,
		senders:        senders,
		filterer:       filterer,
		conf:           conf,
		resourceCtx:    resCtx,
		resourceCancel: resCancel,
		tasks: tasks.Group{HandleCrit: func(err error) {
			shutdown(fmt.Errorf("critical error in event mirror: %w", err))
		}},
	}
	handlers, err := m.eventHandlers()
	if err != nil {
		resCancel()
		return nil, err
	}
	m.handlers = handlers
	return m, nil
}

func (m *EventMirror) Start() error {
	log.Info("starting event mirror", "interval", m.conf.EventLoopInterval, "blockSize", m.conf.BlockSize)
	tickerMirror := time.NewTicker(m.conf.EventLoopInterval)
	m.tasks.Go(func() error {
		defer tickerMirror.Stop()
		for {
			select {
			case <-m.resourceCtx.Done():
				return nil
			case <-tickerMirror.C:
			}
			if err := m.ProcessEvents(m.resourceCtx); err != nil {
				log.Error("process events failed", "err", err)
			}
		}
	})
	return nil
}

// ProcessEvents mirrors the events of at most BlockSize stored headers beyond the cursor.
// The cursor only moves once every event of the range is written, so a failed range is
// replayed and its warehouse rows may be appended again.
func (m *EventMirror) ProcessEvents(ctx context.Context) error {
	lastBlockNumber, err := m.lastProcessed()
	if err != nil {
		return err
	}

	latestHeaderScope := func(db *gorm.DB) *gorm.DB {
		newQuery := db.Session(&gorm.Session{NewDB: true})
		headers := newQuery.Model(common2.BlockHeader{}).Where("number > ?", lastBlockNumber.String())
		return db.Where("number = (?)", newQuery.Table("(?) as block_numbers", headers.Order("number ASC").Limit(int(m.conf.BlockSize))).Select("MAX(number)"))
	}
	latestBlockHeader, err := m.db.Blocks.BlockHeaderWithScope(latestHeaderScope)
	if err != nil {
		log.Error("get latest block header with scope fail", "err", err)
		return err
	} else if latestBlockHeader == nil {
		log.Debug("no new block for process event")
		return nil
	}

	fromHeight := new(big.Int).Add(lastBlockNumber, big.NewInt(1))
	toHeight := latestBlockHeader.Number
	events, err := m.db.ContractEvents.ContractEventsInRange(fromHeight, toHeight)
	if err != nil {
		log.Error("query contract events fail", "err", err)
		return err
	}
	log.Info("mirroring events", "from", fromHeight, "to", toHeight, "events", len(events))

	batch := newBatch()
	for i := range events {
		if err := m.handle(ctx, batch, &events[i]); err != nil {
			log.Error("mirror event failed", "tx", events[i].TransactionHash, "logIndex", events[i].LogIndex, "err", err)
			return err
		}
	}

	m.traceAll(ctx, batch.traces)

	if err := m.db.Cursors.AdvanceCursor(CursorName, toHeight); err != nil {
		log.Error("advance mirror cursor fail", "err", err)
		return err
	}
	metrics.MirrorHeight.Set(float64(toHeight.Uint64()))
	return nil
}

func (m *EventMirror) lastProcessed() (*big.Int, error) {
	cursor, err := m.db.Cursors.Cursor(CursorName)
	if err != nil {
		log.Error("query mirror cursor fail", "err", err)
		return nil, err
	}
	if cursor != nil {
		return cursor, nil
	}
	return new(big.Int).Sub(m.conf.StartHeight, big.NewInt(1)), nil
}

// traceAll runs the scheduled traces with at most TraceWorkers in flight. Failures are
// already logged and recorded in the job ledger by the tracer.
func (m *EventMirror) traceAll(ctx context.Context, hashes []common.Hash) {
	if m.tracer == nil || len(hashes) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, m.conf.TraceWorkers)
	for _, hash := range hashes {
		hash := hash
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			if _, err := m.tracer.TracePaymentChain(gctx, hash, RequestedBy); err != nil {
				log.Warn("scheduled trace failed", "tx", hash, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (m *EventMirror) Close() error {
	m.resourceCancel()
	return m.tasks.Wait()
}
