package mirror

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/transparencyx/chaintrace/bindings"
	"github.com/transparencyx/chaintrace/database"
	common2 "github.com/transparencyx/chaintrace/database/common"
	"github.com/transparencyx/chaintrace/session"
	"github.com/transparencyx/chaintrace/tracing"
	"github.com/transparencyx/chaintrace/warehouse"
)

var (
	procurement = common.HexToAddress("0x00000000000000000000000000000000000c1ea2")
	gov         = common.HexToAddress("0x000000000000000000000000000000000000a001")
	dept        = common.HexToAddress("0x000000000000000000000000000000000000d001")
	vendor      = common.HexToAddress("0x000000000000000000000000000000000000b001")
	supplier    = common.HexToAddress("0x000000000000000000000000000000000000c001")
	subSupplier = common.HexToAddress("0x000000000000000000000000000000000000e001")
	stateHead   = common.HexToAddress("0x000000000000000000000000000000000000f001")
	deputy      = common.HexToAddress("0x000000000000000000000000000000000000f002")
	staker      = common.HexToAddress("0x0000000000000000000000000000000000005001")
	invoice     = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
)

type fakeWarehouse struct {
	mu           sync.Mutex
	claims       []warehouse.ClaimRow
	claimEvents  []warehouse.ClaimEventRow
	supplierPays []warehouse.SupplierPaymentRow
	subPays      []warehouse.SubSupplierPaymentRow
	challenges   []warehouse.ChallengeRow
	budgets      []warehouse.BudgetEventRow
	roles        []warehouse.RoleEventRow
	hops         []warehouse.PaymentHopRow
	failHops     error
}

func (f *fakeWarehouse) InsertClaim(_ context.Context, rows ...warehouse.ClaimRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, rows...)
	return nil
}

func (f *fakeWarehouse) InsertClaimEvent(_ context.Context, rows ...warehouse.ClaimEventRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimEvents = append(f.claimEvents, rows...)
	return nil
}

func (f *fakeWarehouse) InsertSupplierPayment(_ context.Context, rows ...warehouse.SupplierPaymentRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.supplierPays = append(f.supplierPays, rows...)
	return nil
}

func (f *fakeWarehouse) InsertSubSupplierPayment(_ context.Context, rows ...warehouse.SubSupplierPaymentRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subPays = append(f.subPays, rows...)
	return nil
}

func (f *fakeWarehouse) InsertChallenge(_ context.Context, rows ...warehouse.ChallengeRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.challenges = append(f.challenges, rows...)
	return nil
}

func (f *fakeWarehouse) InsertBudgetEvent(_ context.Context, rows ...warehouse.BudgetEventRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.budgets = append(f.budgets, rows...)
	return nil
}

func (f *fakeWarehouse) InsertRoleEvent(_ context.Context, rows ...warehouse.RoleEventRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles = append(f.roles, rows...)
	return nil
}

func (f *fakeWarehouse) InsertPaymentHop(_ context.Context, rows ...warehouse.PaymentHopRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHops != nil {
		return f.failHops
	}
	f.hops = append(f.hops, rows...)
	return nil
}

type fakeTracer struct {
	mu     sync.Mutex
	traced []common.Hash
	by     []string
	err    error
}

func (f *fakeTracer) TracePaymentChain(_ context.Context, hash common.Hash, requestedBy string) (*tracing.PaymentFlow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traced = append(f.traced, hash)
	f.by = append(f.by, requestedBy)
	if f.err != nil {
		return nil, f.err
	}
	return &tracing.PaymentFlow{TxHash: hash, Participants: []tracing.Participant{}}, nil
}

type fakeSenders map[common.Hash]common.Address

func (f fakeSenders) TxSenderByHash(_ context.Context, hash common.Hash) (common.Address, error) {
	a, ok := f[hash]
	if !ok {
		return common.Address{}, errors.New("transaction not found")
	}
	return a, nil
}

type fixture struct {
	t       *testing.T
	db      *database.DB
	wh      *fakeWarehouse
	tracer  *fakeTracer
	senders fakeSenders
	txs     int
}

func newFixture(t *testing.T) *fixture {
	db, err := database.Open(sqlite.Open(filepath.Join(t.TempDir(), "mirror.db")))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return &fixture{t: t, db: db, wh: &fakeWarehouse{}, tracer: &fakeTracer{}, senders: fakeSenders{}}
}

func (f *fixture) mirror(blockSize uint64) *EventMirror {
	m, err := NewEventMirror(f.db, f.wh, f.tracer, f.senders, &MirrorConfig{
		ProcurementAddress: procurement,
		BlockSize:          blockSize,
		TraceWorkers:       2,
	}, func(error) {})
	require.NoError(f.t, err)
	return m
}

func (f *fixture) headers(upTo int64) {
	headers := make([]common2.BlockHeader, 0, upTo)
	for n := int64(1); n <= upTo; n++ {
		headers = append(headers, common2.BlockHeader{
			Hash:       blockHash(n),
			ParentHash: blockHash(n - 1),
			Number:     big.NewInt(n),
			Timestamp:  blockTime(n),
		})
	}
	require.NoError(f.t, f.db.Blocks.StoreBlockHeaders(headers))
}

func blockHash(n int64) common.Hash { return common.BigToHash(big.NewInt(1_000 + n)) }
func blockTime(n int64) uint64      { return uint64(1_700_000_000 + n*12) }

func topicOf(v interface{}) common.Hash {
	switch x := v.(type) {
	case common.Address:
		return common.BytesToHash(x.Bytes())
	case common.Hash:
		return x
	case int64:
		return common.BigToHash(big.NewInt(x))
	case *big.Int:
		return common.BigToHash(x)
	}
	panic("unsupported topic")
}

// emit stores one procurement log sent by from in block.
func (f *fixture) emit(block int64, from common.Address, name string, indexed []interface{}, data ...interface{}) common.Hash {
	parsed, err := bindings.ProcurementMetaData.GetAbi()
	require.NoError(f.t, err)
	ev := parsed.Events[name]
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(f.t, err)

	topics := []common.Hash{ev.ID}
	for _, v := range indexed {
		topics = append(topics, topicOf(v))
	}
	f.txs++
	tx := common.BigToHash(big.NewInt(int64(0xbeef00 + f.txs)))
	f.senders[tx] = from
	l := types.Log{
		Address:     procurement,
		Topics:      topics,
		Data:        packed,
		BlockNumber: uint64(block),
		BlockHash:   blockHash(block),
		TxHash:      tx,
		Index:       uint(f.txs),
	}
	require.NoError(f.t, f.db.ContractEvents.StoreContractEvents([]common2.ContractEvent{
		common2.ContractEventFromLog(&l, blockTime(block)),
	}))
	return tx
}

func wei(n int64) *big.Int { return big.NewInt(n) }

func lower(a common.Address) string { return strings.ToLower(a.Hex()) }

func TestProcessEventsMirrorsProcurementFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.headers(5)

	f.emit(1, dept, "VendorSelected", []interface{}{int64(1), int64(1), dept}, vendor)
	f.emit(2, vendor, "ClaimSubmitted", []interface{}{int64(1), vendor}, wei(1_000), [32]byte(invoice))
	f.emit(3, dept, "ClaimApproved", []interface{}{int64(1)}, false, "over budget")
	payout := f.emit(4, gov, "ClaimPaid", []interface{}{int64(1), vendor}, wei(1_000))
	supplierTx := f.emit(4, vendor, "SupplierPaid", []interface{}{int64(1), supplier}, wei(600), "INV-1")
	subTx := f.emit(4, supplier, "SubSupplierPaid", []interface{}{int64(1), int64(0), subSupplier}, wei(200), "INV-1-A")
	f.emit(5, staker, "ChallengeStaked", []interface{}{staker, invoice})
	f.emit(5, stateHead, "DeputyConfirmed", []interface{}{stateHead, deputy})
	f.emit(5, deputy, "BudgetAllocated", []interface{}{int64(7), deputy}, wei(5_000), "roads")

	m := f.mirror(100)
	require.NoError(t, m.ProcessEvents(ctx))

	require.Len(t, f.wh.claims, 1)
	claim := f.wh.claims[0]
	assert.Equal(t, uint64(1), claim.ClaimID)
	assert.Equal(t, lower(dept), claim.DepartmentAddress)
	assert.Equal(t, lower(vendor), claim.VendorAddress)
	assert.True(t, warehouse.WeiToEther(wei(1_000)).Equal(claim.Amount))
	assert.Equal(t, invoice.Hex(), claim.InvoiceHash)
	assert.Zero(t, claim.AnomalyScore)
	assert.Equal(t, int64(blockTime(2)), claim.BlockTimestamp.Unix())

	require.Len(t, f.wh.claimEvents, 3)
	assert.Equal(t, warehouse.ClaimStatusSubmitted, f.wh.claimEvents[0].Status)
	assert.Equal(t, warehouse.ClaimStatusFlagged, f.wh.claimEvents[1].Status)
	assert.Equal(t, "over budget", f.wh.claimEvents[1].FlagReason)
	assert.Equal(t, warehouse.ClaimStatusPaid, f.wh.claimEvents[2].Status)

	require.Len(t, f.wh.hops, 3)
	assert.Equal(t, warehouse.HopClaimPayout, f.wh.hops[0].Kind)
	assert.Equal(t, lower(gov), f.wh.hops[0].FromAddress)
	for i := 1; i < len(f.wh.hops); i++ {
		assert.Equal(t, f.wh.hops[i-1].ToAddress, f.wh.hops[i].FromAddress, "hop %d continues hop %d", i, i-1)
	}
	assert.Equal(t, lower(subSupplier), f.wh.hops[2].ToAddress)

	require.Len(t, f.wh.supplierPays, 1)
	assert.Equal(t, uint64(0), f.wh.supplierPays[0].PaymentID)
	assert.Equal(t, lower(vendor), f.wh.supplierPays[0].VendorAddress)
	assert.Equal(t, "INV-1", f.wh.supplierPays[0].Description)

	require.Len(t, f.wh.subPays, 1)
	assert.Equal(t, lower(supplier), f.wh.subPays[0].SupplierAddress)
	assert.Equal(t, subTx.Hex()+"-6", f.wh.subPays[0].SubPaymentID)

	require.Len(t, f.wh.challenges, 1)
	assert.Equal(t, uint64(1), f.wh.challenges[0].ClaimID)
	assert.Equal(t, warehouse.ChallengeStaked, f.wh.challenges[0].Kind)

	require.Len(t, f.wh.budgets, 1)
	assert.Equal(t, warehouse.ActorDeputy, f.wh.budgets[0].ActorRole)
	assert.Equal(t, "roads", f.wh.budgets[0].Purpose)

	require.Len(t, f.wh.roles, 2)
	assert.Equal(t, "VendorSelected", f.wh.roles[0].Event)
	assert.Equal(t, "DeputyConfirmed", f.wh.roles[1].Event)
	assert.Equal(t, lower(stateHead), f.wh.roles[1].SponsorAddress)

	role, err := f.db.Roles.RoleOf(deputy)
	require.NoError(t, err)
	assert.Equal(t, string(session.RoleDeputy), role)
	department, err := f.db.Vendors.DepartmentOfVendor(vendor)
	require.NoError(t, err)
	require.NotNil(t, department)
	assert.Equal(t, dept, *department)

	assert.ElementsMatch(t, []common.Hash{payout, supplierTx, subTx}, f.tracer.traced)
	for _, by := range f.tracer.by {
		assert.Equal(t, RequestedBy, by)
	}

	cursor, err := f.db.Cursors.Cursor(CursorName)
	require.NoError(t, err)
	assert.Equal(t, int64(5), cursor.Int64())

	// nothing new
	require.NoError(t, m.ProcessEvents(ctx))
	assert.Len(t, f.wh.claims, 1)
	assert.Len(t, f.tracer.traced, 3)
}

func TestProcessEventsScoresAgainstDepartmentHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.headers(2)

	f.emit(1, dept, "VendorSelected", []interface{}{int64(1), int64(1), dept}, vendor)
	for i, amount := range []int64{90, 110, 90, 110, 110} {
		f.emit(2, vendor, "ClaimSubmitted", []interface{}{int64(i + 1), vendor}, wei(amount), [32]byte(common.BigToHash(big.NewInt(int64(i)))))
	}

	require.NoError(t, f.mirror(10).ProcessEvents(ctx))
	require.Len(t, f.wh.claims, 5)
	for _, c := range f.wh.claims[:3] {
		assert.Zero(t, c.AnomalyScore)
	}
	// 110 against 90, 110, 90
	assert.InDelta(t, 70.71, f.wh.claims[3].AnomalyScore, 0.01)
	// 110 against 90, 110, 90, 110
	assert.InDelta(t, 50, f.wh.claims[4].AnomalyScore, 1e-9)
}

func TestProcessEventsRespectsBlockSize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.headers(5)
	f.emit(1, dept, "VendorSelected", []interface{}{int64(1), int64(1), dept}, vendor)
	f.emit(4, dept, "VendorRemoved", []interface{}{vendor})

	m := f.mirror(2)
	require.NoError(t, m.ProcessEvents(ctx))
	cursor, err := f.db.Cursors.Cursor(CursorName)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cursor.Int64())
	assert.Len(t, f.wh.roles, 1)

	require.NoError(t, m.ProcessEvents(ctx))
	cursor, err = f.db.Cursors.Cursor(CursorName)
	require.NoError(t, err)
	assert.Equal(t, int64(4), cursor.Int64())
	require.Len(t, f.wh.roles, 2)
	assert.Equal(t, "VendorRemoved", f.wh.roles[1].Event)

	department, err := f.db.Vendors.DepartmentOfVendor(vendor)
	require.NoError(t, err)
	assert.Nil(t, department)
}

func TestProcessEventsReplaysFailedRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.headers(1)
	f.emit(1, gov, "ClaimPaid", []interface{}{int64(9), vendor}, wei(10))
	f.wh.failHops = errors.New("warehouse unavailable")

	m := f.mirror(10)
	require.Error(t, m.ProcessEvents(ctx))
	cursor, err := f.db.Cursors.Cursor(CursorName)
	require.NoError(t, err)
	assert.Nil(t, cursor)
	assert.Empty(t, f.tracer.traced)

	f.wh.failHops = nil
	require.NoError(t, m.ProcessEvents(ctx))
	assert.Len(t, f.wh.hops, 1)
	// at-least-once: the claim event of the failed attempt is appended again
	assert.Len(t, f.wh.claimEvents, 2)
	assert.Len(t, f.tracer.traced, 1)
}

func TestTraceFailuresDoNotStopMirroring(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.headers(1)
	f.emit(1, gov, "ClaimPaid", []interface{}{int64(9), vendor}, wei(10))
	f.tracer.err = errors.New("debug_traceTransaction: method not found")

	require.NoError(t, f.mirror(10).ProcessEvents(ctx))
	cursor, err := f.db.Cursors.Cursor(CursorName)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cursor.Int64())
}

func TestUnknownAndUndecodableEventsAreSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.headers(1)

	foreign := types.Log{
		Address:     procurement,
		Topics:      []common.Hash{common.HexToHash("0xdead")},
		BlockNumber: 1,
		BlockHash:   blockHash(1),
		TxHash:      common.HexToHash("0x01"),
	}
	parsed, err := bindings.ProcurementMetaData.GetAbi()
	require.NoError(t, err)
	truncated := types.Log{
		Address:     procurement,
		Topics:      []common.Hash{parsed.Events["ClaimPaid"].ID, topicOf(int64(1)), topicOf(vendor)},
		Data:        []byte{0x01},
		BlockNumber: 1,
		BlockHash:   blockHash(1),
		TxHash:      common.HexToHash("0x02"),
		Index:       1,
	}
	require.NoError(t, f.db.ContractEvents.StoreContractEvents([]common2.ContractEvent{
		common2.ContractEventFromLog(&foreign, blockTime(1)),
		common2.ContractEventFromLog(&truncated, blockTime(1)),
	}))

	require.NoError(t, f.mirror(10).ProcessEvents(ctx))
	assert.Empty(t, f.wh.hops)
	assert.Empty(t, f.tracer.traced)
}

func TestOversizedIdsAreSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.headers(2)
	huge := new(big.Int).Lsh(big.NewInt(1), 64)

	f.emit(1, gov, "ClaimPaid", []interface{}{huge, vendor}, wei(10))
	f.emit(1, vendor, "SupplierPaid", []interface{}{huge, supplier}, wei(5), "INV-X")
	f.emit(1, supplier, "SubSupplierPaid", []interface{}{int64(1), huge, subSupplier}, wei(2), "INV-X-A")
	f.emit(2, gov, "BudgetLocked", []interface{}{huge}, wei(100), "schools")
	f.emit(2, gov, "ClaimPaid", []interface{}{new(big.Int).Sub(huge, big.NewInt(1)), vendor}, wei(10))

	require.NoError(t, f.mirror(10).ProcessEvents(ctx))
	assert.Empty(t, f.wh.supplierPays)
	assert.Empty(t, f.wh.subPays)
	assert.Empty(t, f.wh.budgets)
	require.Len(t, f.wh.hops, 1)
	assert.Equal(t, uint64(1<<64-1), f.wh.hops[0].ClaimID)
}

func TestActorRole(t *testing.T) {
	assert.Equal(t, warehouse.ActorStateHead, actorRole(string(session.RoleStateHead)))
	assert.Equal(t, warehouse.ActorDeputy, actorRole(string(session.RoleDeputy)))
	assert.Equal(t, warehouse.ActorMainGov, actorRole(""))
}
