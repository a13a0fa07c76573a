package mirror

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/shopspring/decimal"

	"github.com/transparencyx/chaintrace/bindings"
	"github.com/transparencyx/chaintrace/common/errs"
	common2 "github.com/transparencyx/chaintrace/database/common"
	"github.com/transparencyx/chaintrace/database/worker"
	"github.com/transparencyx/chaintrace/metrics"
	"github.com/transparencyx/chaintrace/session"
	"github.com/transparencyx/chaintrace/warehouse"
)

type eventMeta struct {
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint32
	Timestamp   time.Time
}

type eventHandler struct {
	name string
	fn   func(ctx context.Context, b *batch, l types.Log, meta eventMeta) error
}

// batch carries what one ProcessEvents run accumulates across events.
type batch struct {
	senders map[common.Hash]common.Address
	traces  []common.Hash
	traced  map[common.Hash]struct{}
}

func newBatch() *batch {
	return &batch{
		senders: make(map[common.Hash]common.Address),
		traced:  make(map[common.Hash]struct{}),
	}
}

func (b *batch) scheduleTrace(hash common.Hash) {
	if _, ok := b.traced[hash]; ok {
		return
	}
	b.traced[hash] = struct{}{}
	b.traces = append(b.traces, hash)
}

func (m *EventMirror) eventHandlers() (map[common.Hash]eventHandler, error) {
	parsed, err := bindings.ProcurementMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	byName := map[string]func(context.Context, *batch, types.Log, eventMeta) error{
		"ClaimSubmitted":     m.claimSubmitted,
		"ClaimApproved":      m.claimApproved,
		"ClaimPaid":          m.claimPaid,
		"SupplierPaid":       m.supplierPaid,
		"SubSupplierPaid":    m.subSupplierPaid,
		"BudgetLocked":       m.budgetLocked,
		"BudgetAllocated":    m.budgetAllocated,
		"VendorSelected":     m.vendorSelected,
		"VendorRemoved":      m.vendorRemoved,
		"StateHeadProposed":  m.stateHeadProposed,
		"StateHeadConfirmed": m.stateHeadConfirmed,
		"StateHeadRemoved":   m.stateHeadRemoved,
		"DeputyProposed":     m.deputyProposed,
		"DeputyConfirmed":    m.deputyConfirmed,
		"DeputyRemoved":      m.deputyRemoved,
		"ChallengeStaked":    m.challengeStaked,
		"ChallengeRewarded":  m.challengeRewarded,
	}
	handlers := make(map[common.Hash]eventHandler, len(byName))
	for name, fn := range byName {
		ev, ok := parsed.Events[name]
		if !ok {
			return nil, fmt.Errorf("procurement abi has no event %s", name)
		}
		handlers[ev.ID] = eventHandler{name: name, fn: fn}
	}
	return handlers, nil
}

func (m *EventMirror) handle(ctx context.Context, b *batch, ev *common2.ContractEvent) error {
	if ev.RLPLog == nil {
		log.Warn("stored event without log", "guid", ev.GUID)
		return nil
	}
	h, ok := m.handlers[ev.EventSignature]
	if !ok {
		log.Debug("skipping unknown event", "signature", ev.EventSignature, "tx", ev.TransactionHash)
		return nil
	}
	meta := eventMeta{
		TxHash:      ev.TransactionHash,
		BlockNumber: ev.BlockNumber.Uint64(),
		LogIndex:    uint32(ev.LogIndex),
		Timestamp:   time.Unix(int64(ev.Timestamp), 0).UTC(),
	}
	if err := h.fn(ctx, b, *ev.RLPLog, meta); err != nil {
		if errors.Is(err, errUndecodable) {
			return nil
		}
		return fmt.Errorf("%s: %w", h.name, err)
	}
	metrics.MirroredEventsTotal.WithLabelValues(h.name).Inc()
	return nil
}

var errUndecodable = errors.New("undecodable event")

// unparsable reports a log that matched a known signature but did not decode. handle skips
// it rather than failing the range, since a replay would fail the same way.
func unparsable(name string, l types.Log, err error) error {
	log.Error("skipping undecodable event", "event", name, "tx", l.TxHash, "logIndex", l.Index, "err", err)
	metrics.MirroredEventsTotal.WithLabelValues("undecodable").Inc()
	return errUndecodable
}

// requireUint64IDs rejects ids the warehouse UInt64 columns cannot hold.
func requireUint64IDs(name string, l types.Log, ids ...*big.Int) error {
	for _, id := range ids {
		if id == nil || !id.IsUint64() {
			return unparsable(name, l, fmt.Errorf("id %v out of uint64 range", id))
		}
	}
	return nil
}

func (m *EventMirror) sender(ctx context.Context, b *batch, tx common.Hash) (common.Address, error) {
	if a, ok := b.senders[tx]; ok {
		return a, nil
	}
	if m.senders == nil {
		return common.Address{}, errs.New(errs.TypeConfig, "no transaction sender source")
	}
	a, err := m.senders.TxSenderByHash(ctx, tx)
	if err != nil {
		return common.Address{}, errs.Wrap(errs.TypeNetwork, "resolve transaction sender", err).AddContext("tx", tx.Hex())
	}
	b.senders[tx] = a
	return a, nil
}

// Claims

func (m *EventMirror) claimSubmitted(ctx context.Context, _ *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseClaimSubmitted(l)
	if err != nil {
		return unparsable("ClaimSubmitted", l, err)
	}
	if err := requireUint64IDs("ClaimSubmitted", l, e.ClaimId); err != nil {
		return err
	}

	var department common.Address
	dept, err := m.db.Vendors.DepartmentOfVendor(e.Vendor)
	if err != nil {
		return err
	}
	if dept != nil {
		department = *dept
	} else {
		log.Warn("claim from a vendor without a department", "claim", e.ClaimId, "vendor", e.Vendor)
	}

	history, err := m.db.Claims.QueryDepartmentClaimAmounts(department, e.ClaimId)
	if err != nil {
		return err
	}
	score := AnomalyScore(e.Amount, history)
	invoice := common.Hash(e.InvoiceHash)

	err = m.db.Claims.StoreClaimRecord(worker.ClaimRecord{
		ClaimID:     e.ClaimId,
		InvoiceHash: invoice,
		Vendor:      e.Vendor,
		Department:  department,
		Amount:      e.Amount,
		BlockNumber: new(big.Int).SetUint64(meta.BlockNumber),
	})
	if err != nil {
		return err
	}

	err = m.warehouse.InsertClaim(ctx, warehouse.ClaimRow{
		ClaimID:           e.ClaimId.Uint64(),
		TxHash:            meta.TxHash.Hex(),
		BlockNumber:       meta.BlockNumber,
		BlockTimestamp:    meta.Timestamp,
		VendorAddress:     lowerHex(e.Vendor),
		DepartmentAddress: lowerHex(department),
		Amount:            warehouse.WeiToEther(e.Amount),
		InvoiceHash:       invoice.Hex(),
		AnomalyScore:      score,
		CreateTime:        meta.Timestamp,
	})
	if err != nil {
		return err
	}
	if score > warehouse.DefaultAnomalyThreshold {
		log.Warn("anomalous claim", "claim", e.ClaimId, "department", department, "score", score)
	}
	return m.claimEvent(ctx, e.ClaimId, warehouse.ClaimStatusSubmitted, "", meta)
}

func (m *EventMirror) claimApproved(ctx context.Context, _ *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseClaimApproved(l)
	if err != nil {
		return unparsable("ClaimApproved", l, err)
	}
	if err := requireUint64IDs("ClaimApproved", l, e.ClaimId); err != nil {
		return err
	}
	status := warehouse.ClaimStatusApproved
	if !e.Approved {
		status = warehouse.ClaimStatusFlagged
	}
	return m.claimEvent(ctx, e.ClaimId, status, e.FlagReason, meta)
}

func (m *EventMirror) claimEvent(ctx context.Context, claimID *big.Int, status, reason string, meta eventMeta) error {
	return m.warehouse.InsertClaimEvent(ctx, warehouse.ClaimEventRow{
		ClaimID:        claimID.Uint64(),
		Status:         status,
		FlagReason:     reason,
		TxHash:         meta.TxHash.Hex(),
		BlockNumber:    meta.BlockNumber,
		LogIndex:       meta.LogIndex,
		BlockTimestamp: meta.Timestamp,
	})
}

// Payments. Each hop runs from the paying wallet, the transaction sender, to the payee, so
// consecutive hops join on address continuity.

func (m *EventMirror) claimPaid(ctx context.Context, b *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseClaimPaid(l)
	if err != nil {
		return unparsable("ClaimPaid", l, err)
	}
	if err := requireUint64IDs("ClaimPaid", l, e.ClaimId); err != nil {
		return err
	}
	payer, err := m.sender(ctx, b, meta.TxHash)
	if err != nil {
		return err
	}
	if err := m.claimEvent(ctx, e.ClaimId, warehouse.ClaimStatusPaid, "", meta); err != nil {
		return err
	}
	if err := m.paymentHop(ctx, warehouse.HopClaimPayout, e.ClaimId, payer, e.Vendor, e.Amount, meta); err != nil {
		return err
	}
	b.scheduleTrace(meta.TxHash)
	return nil
}

func (m *EventMirror) supplierPaid(ctx context.Context, b *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseSupplierPaid(l)
	if err != nil {
		return unparsable("SupplierPaid", l, err)
	}
	if err := requireUint64IDs("SupplierPaid", l, e.ClaimId); err != nil {
		return err
	}
	vendor, err := m.sender(ctx, b, meta.TxHash)
	if err != nil {
		return err
	}

	var paymentID uint64
	record, err := m.db.Claims.QueryClaimRecord(e.ClaimId)
	if err != nil {
		return err
	}
	if record != nil {
		if paymentID, err = m.db.Claims.NextSupplierPaymentIndex(e.ClaimId); err != nil {
			return err
		}
	} else {
		log.Warn("supplier paid for an unknown claim", "claim", e.ClaimId, "tx", meta.TxHash)
	}

	err = m.warehouse.InsertSupplierPayment(ctx, warehouse.SupplierPaymentRow{
		PaymentID:       paymentID,
		ClaimID:         e.ClaimId.Uint64(),
		TxHash:          meta.TxHash.Hex(),
		BlockNumber:     meta.BlockNumber,
		BlockTimestamp:  meta.Timestamp,
		VendorAddress:   lowerHex(vendor),
		SupplierAddress: lowerHex(e.Supplier),
		Amount:          warehouse.WeiToEther(e.Amount),
		Description:     e.InvoiceHash,
		CreateTime:      meta.Timestamp,
	})
	if err != nil {
		return err
	}
	if err := m.paymentHop(ctx, warehouse.HopSupplierPayment, e.ClaimId, vendor, e.Supplier, e.Amount, meta); err != nil {
		return err
	}
	b.scheduleTrace(meta.TxHash)
	return nil
}

func (m *EventMirror) subSupplierPaid(ctx context.Context, b *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseSubSupplierPaid(l)
	if err != nil {
		return unparsable("SubSupplierPaid", l, err)
	}
	if err := requireUint64IDs("SubSupplierPaid", l, e.ClaimId, e.PaymentIndex); err != nil {
		return err
	}
	supplier, err := m.sender(ctx, b, meta.TxHash)
	if err != nil {
		return err
	}

	err = m.warehouse.InsertSubSupplierPayment(ctx, warehouse.SubSupplierPaymentRow{
		SubPaymentID:       eventID(meta),
		ClaimID:            e.ClaimId.Uint64(),
		SupplierPaymentID:  e.PaymentIndex.Uint64(),
		TxHash:             meta.TxHash.Hex(),
		BlockNumber:        meta.BlockNumber,
		BlockTimestamp:     meta.Timestamp,
		SupplierAddress:    lowerHex(supplier),
		SubSupplierAddress: lowerHex(e.SubSupplier),
		Amount:             warehouse.WeiToEther(e.Amount),
		Description:        e.InvoiceHash,
		CreateTime:         meta.Timestamp,
	})
	if err != nil {
		return err
	}
	if err := m.paymentHop(ctx, warehouse.HopSubSupplierPayment, e.ClaimId, supplier, e.SubSupplier, e.Amount, meta); err != nil {
		return err
	}
	b.scheduleTrace(meta.TxHash)
	return nil
}

func (m *EventMirror) paymentHop(ctx context.Context, kind string, claimID *big.Int, from, to common.Address, amount *big.Int, meta eventMeta) error {
	return m.warehouse.InsertPaymentHop(ctx, warehouse.PaymentHopRow{
		TxHash:         meta.TxHash.Hex(),
		LogIndex:       meta.LogIndex,
		Kind:           kind,
		ClaimID:        claimID.Uint64(),
		FromAddress:    lowerHex(from),
		ToAddress:      lowerHex(to),
		Amount:         warehouse.WeiToEther(amount),
		BlockNumber:    meta.BlockNumber,
		BlockTimestamp: meta.Timestamp,
	})
}

// Budgets

func (m *EventMirror) budgetLocked(ctx context.Context, b *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseBudgetLocked(l)
	if err != nil {
		return unparsable("BudgetLocked", l, err)
	}
	if err := requireUint64IDs("BudgetLocked", l, e.BudgetId); err != nil {
		return err
	}
	locker, err := m.sender(ctx, b, meta.TxHash)
	if err != nil {
		return err
	}
	return m.budgetEvent(ctx, e.BudgetId, warehouse.BudgetLocked, locker, warehouse.ActorMainGov, e.Amount, e.Purpose, meta)
}

func (m *EventMirror) budgetAllocated(ctx context.Context, _ *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseBudgetAllocated(l)
	if err != nil {
		return unparsable("BudgetAllocated", l, err)
	}
	if err := requireUint64IDs("BudgetAllocated", l, e.BudgetId); err != nil {
		return err
	}
	role, err := m.db.Roles.RoleOf(e.Allocator)
	if err != nil {
		return err
	}
	return m.budgetEvent(ctx, e.BudgetId, warehouse.BudgetAllocated, e.Allocator, actorRole(role), e.Amount, e.Area, meta)
}

func (m *EventMirror) budgetEvent(ctx context.Context, budgetID *big.Int, kind string, actor common.Address, role string, amount *big.Int, purpose string, meta eventMeta) error {
	return m.warehouse.InsertBudgetEvent(ctx, warehouse.BudgetEventRow{
		BudgetID:       budgetID.Uint64(),
		Kind:           kind,
		ActorAddress:   lowerHex(actor),
		ActorRole:      role,
		Amount:         warehouse.WeiToEther(amount),
		Purpose:        purpose,
		TxHash:         meta.TxHash.Hex(),
		BlockNumber:    meta.BlockNumber,
		BlockTimestamp: meta.Timestamp,
	})
}

// actorRole maps a confirmed role onto the budget_events actor role. Allocations by
// addresses without a confirmed role are attributed to the main government.
func actorRole(role string) string {
	switch session.Role(role) {
	case session.RoleStateHead:
		return warehouse.ActorStateHead
	case session.RoleDeputy:
		return warehouse.ActorDeputy
	default:
		return warehouse.ActorMainGov
	}
}

// Roles and vendors

func (m *EventMirror) vendorSelected(ctx context.Context, _ *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseVendorSelected(l)
	if err != nil {
		return unparsable("VendorSelected", l, err)
	}
	err = m.db.Vendors.StoreVendorAssignment(worker.VendorAssignment{
		Vendor:       e.Vendor,
		Department:   e.Selector,
		BudgetID:     e.BudgetId,
		AllocationID: e.AllocationId,
	})
	if err != nil {
		return err
	}
	if err := m.db.Roles.AssignRole(e.Vendor, string(session.RoleVendor), e.Selector); err != nil {
		return err
	}
	return m.roleEvent(ctx, "VendorSelected", session.RoleVendor, e.Vendor, e.Selector, meta)
}

func (m *EventMirror) vendorRemoved(ctx context.Context, b *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseVendorRemoved(l)
	if err != nil {
		return unparsable("VendorRemoved", l, err)
	}
	remover, err := m.sender(ctx, b, meta.TxHash)
	if err != nil {
		return err
	}
	if err := m.db.Vendors.RemoveVendor(e.Vendor); err != nil {
		return err
	}
	if err := m.db.Roles.RevokeRole(e.Vendor, string(session.RoleVendor)); err != nil {
		return err
	}
	return m.roleEvent(ctx, "VendorRemoved", session.RoleVendor, e.Vendor, remover, meta)
}

func (m *EventMirror) stateHeadProposed(ctx context.Context, b *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseStateHeadProposed(l)
	if err != nil {
		return unparsable("StateHeadProposed", l, err)
	}
	proposer, err := m.sender(ctx, b, meta.TxHash)
	if err != nil {
		return err
	}
	return m.roleEvent(ctx, "StateHeadProposed", session.RoleStateHead, e.StateHead, proposer, meta)
}

func (m *EventMirror) stateHeadConfirmed(ctx context.Context, b *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseStateHeadConfirmed(l)
	if err != nil {
		return unparsable("StateHeadConfirmed", l, err)
	}
	confirmer, err := m.sender(ctx, b, meta.TxHash)
	if err != nil {
		return err
	}
	if err := m.db.Roles.AssignRole(e.StateHead, string(session.RoleStateHead), confirmer); err != nil {
		return err
	}
	return m.roleEvent(ctx, "StateHeadConfirmed", session.RoleStateHead, e.StateHead, confirmer, meta)
}

func (m *EventMirror) stateHeadRemoved(ctx context.Context, b *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseStateHeadRemoved(l)
	if err != nil {
		return unparsable("StateHeadRemoved", l, err)
	}
	remover, err := m.sender(ctx, b, meta.TxHash)
	if err != nil {
		return err
	}
	if err := m.db.Roles.RevokeRole(e.StateHead, string(session.RoleStateHead)); err != nil {
		return err
	}
	return m.roleEvent(ctx, "StateHeadRemoved", session.RoleStateHead, e.StateHead, remover, meta)
}

func (m *EventMirror) deputyProposed(ctx context.Context, _ *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseDeputyProposed(l)
	if err != nil {
		return unparsable("DeputyProposed", l, err)
	}
	return m.roleEvent(ctx, "DeputyProposed", session.RoleDeputy, e.Deputy, e.StateHead, meta)
}

func (m *EventMirror) deputyConfirmed(ctx context.Context, _ *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseDeputyConfirmed(l)
	if err != nil {
		return unparsable("DeputyConfirmed", l, err)
	}
	if err := m.db.Roles.AssignRole(e.Deputy, string(session.RoleDeputy), e.StateHead); err != nil {
		return err
	}
	return m.roleEvent(ctx, "DeputyConfirmed", session.RoleDeputy, e.Deputy, e.StateHead, meta)
}

func (m *EventMirror) deputyRemoved(ctx context.Context, b *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseDeputyRemoved(l)
	if err != nil {
		return unparsable("DeputyRemoved", l, err)
	}
	remover, err := m.sender(ctx, b, meta.TxHash)
	if err != nil {
		return err
	}
	if err := m.db.Roles.RevokeRole(e.Deputy, string(session.RoleDeputy)); err != nil {
		return err
	}
	return m.roleEvent(ctx, "DeputyRemoved", session.RoleDeputy, e.Deputy, remover, meta)
}

func (m *EventMirror) roleEvent(ctx context.Context, event string, role session.Role, subject, sponsor common.Address, meta eventMeta) error {
	return m.warehouse.InsertRoleEvent(ctx, warehouse.RoleEventRow{
		Event:          event,
		Role:           string(role),
		SubjectAddress: lowerHex(subject),
		SponsorAddress: lowerHex(sponsor),
		TxHash:         meta.TxHash.Hex(),
		BlockNumber:    meta.BlockNumber,
		BlockTimestamp: meta.Timestamp,
	})
}

// Challenges

func (m *EventMirror) challengeStaked(ctx context.Context, _ *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseChallengeStaked(l)
	if err != nil {
		return unparsable("ChallengeStaked", l, err)
	}
	return m.challenge(ctx, warehouse.ChallengeStaked, e.Staker, common.Hash(e.InvoiceHash), decimal.Zero, meta)
}

func (m *EventMirror) challengeRewarded(ctx context.Context, _ *batch, l types.Log, meta eventMeta) error {
	e, err := m.filterer.ParseChallengeRewarded(l)
	if err != nil {
		return unparsable("ChallengeRewarded", l, err)
	}
	return m.challenge(ctx, warehouse.ChallengeRewarded, e.Staker, common.Hash(e.InvoiceHash), warehouse.WeiToEther(e.Reward), meta)
}

func (m *EventMirror) challenge(ctx context.Context, kind string, staker common.Address, invoice common.Hash, reward decimal.Decimal, meta eventMeta) error {
	var claimID uint64
	record, err := m.db.Claims.QueryClaimByInvoiceHash(invoice)
	if err != nil {
		return err
	}
	if record != nil {
		claimID = record.ClaimID.Uint64()
	}
	return m.warehouse.InsertChallenge(ctx, warehouse.ChallengeRow{
		ChallengeID:       eventID(meta),
		Kind:              kind,
		ClaimID:           claimID,
		InvoiceHash:       invoice.Hex(),
		ChallengerAddress: lowerHex(staker),
		Reward:            reward,
		TxHash:            meta.TxHash.Hex(),
		BlockNumber:       meta.BlockNumber,
		BlockTimestamp:    meta.Timestamp,
	})
}

// eventID identifies a log by transaction and position.
func eventID(meta eventMeta) string {
	return fmt.Sprintf("%s-%d", meta.TxHash.Hex(), meta.LogIndex)
}

func lowerHex(a common.Address) string {
	return strings.ToLower(a.Hex())
}
