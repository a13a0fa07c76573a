package warehouse

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/transparencyx/chaintrace/metrics"
)

// Claim statuses stored in claim_events.
const (
	ClaimStatusSubmitted = "Submitted"
	ClaimStatusApproved  = "Approved"
	ClaimStatusFlagged   = "Flagged"
	ClaimStatusPaid      = "Paid"
)

// Kinds shared by challenges, budget_events and payment_hops.
const (
	ChallengeStaked   = "Staked"
	ChallengeRewarded = "Rewarded"

	BudgetLocked    = "Locked"
	BudgetAllocated = "Allocated"

	HopClaimPayout        = "claim_payout"
	HopSupplierPayment    = "supplier_payment"
	HopSubSupplierPayment = "subsupplier_payment"
)

// Actor roles of budget_events, as summed by TransactionTrail.
const (
	ActorMainGov   = "mainGov"
	ActorStateHead = "stateHead"
	ActorDeputy    = "deputy"
)

// WeiToEther converts a wei amount into the Decimal(38, 18) ether amount the tables store.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}

type ClaimRow struct {
	ClaimID           uint64          `ch:"claim_id"`
	TxHash            string          `ch:"tx_hash"`
	BlockNumber       uint64          `ch:"block_number"`
	BlockTimestamp    time.Time       `ch:"block_timestamp"`
	VendorAddress     string          `ch:"vendor_address"`
	DepartmentAddress string          `ch:"department_address"`
	Amount            decimal.Decimal `ch:"amount"`
	InvoiceHash       string          `ch:"invoice_hash"`
	AnomalyScore      float64         `ch:"anomaly_score"`
	CreateTime        time.Time       `ch:"create_time"`
}

type ClaimEventRow struct {
	ClaimID        uint64    `ch:"claim_id"`
	Status         string    `ch:"status"`
	FlagReason     string    `ch:"flag_reason"`
	TxHash         string    `ch:"tx_hash"`
	BlockNumber    uint64    `ch:"block_number"`
	LogIndex       uint32    `ch:"log_index"`
	BlockTimestamp time.Time `ch:"block_timestamp"`
}

type SupplierPaymentRow struct {
	PaymentID       uint64          `ch:"payment_id"`
	ClaimID         uint64          `ch:"claim_id"`
	TxHash          string          `ch:"tx_hash"`
	BlockNumber     uint64          `ch:"block_number"`
	BlockTimestamp  time.Time       `ch:"block_timestamp"`
	VendorAddress   string          `ch:"vendor_address"`
	SupplierAddress string          `ch:"supplier_address"`
	Amount          decimal.Decimal `ch:"amount"`
	Description     string          `ch:"description"`
	CreateTime      time.Time       `ch:"create_time"`
}

type SubSupplierPaymentRow struct {
	SubPaymentID       string          `ch:"subpayment_id"`
	ClaimID            uint64          `ch:"claim_id"`
	SupplierPaymentID  uint64          `ch:"supplier_payment_id"`
	TxHash             string          `ch:"tx_hash"`
	BlockNumber        uint64          `ch:"block_number"`
	BlockTimestamp     time.Time       `ch:"block_timestamp"`
	SupplierAddress    string          `ch:"supplier_address"`
	SubSupplierAddress string          `ch:"subsupplier_address"`
	Amount             decimal.Decimal `ch:"amount"`
	Description        string          `ch:"description"`
	CreateTime         time.Time       `ch:"create_time"`
}

type ChallengeRow struct {
	ChallengeID       string          `ch:"challenge_id"`
	Kind              string          `ch:"kind"`
	ClaimID           uint64          `ch:"claim_id"`
	InvoiceHash       string          `ch:"invoice_hash"`
	ChallengerAddress string          `ch:"challenger_address"`
	Reward            decimal.Decimal `ch:"reward"`
	TxHash            string          `ch:"tx_hash"`
	BlockNumber       uint64          `ch:"block_number"`
	BlockTimestamp    time.Time       `ch:"block_timestamp"`
}

type BudgetEventRow struct {
	BudgetID       uint64          `ch:"budget_id"`
	Kind           string          `ch:"kind"`
	ActorAddress   string          `ch:"actor_address"`
	ActorRole      string          `ch:"actor_role"`
	Amount         decimal.Decimal `ch:"amount"`
	Purpose        string          `ch:"purpose"`
	TxHash         string          `ch:"tx_hash"`
	BlockNumber    uint64          `ch:"block_number"`
	BlockTimestamp time.Time       `ch:"block_timestamp"`
}

type RoleEventRow struct {
	Event          string    `ch:"event"`
	Role           string    `ch:"role"`
	SubjectAddress string    `ch:"subject_address"`
	SponsorAddress string    `ch:"sponsor_address"`
	TxHash         string    `ch:"tx_hash"`
	BlockNumber    uint64    `ch:"block_number"`
	BlockTimestamp time.Time `ch:"block_timestamp"`
}

type PaymentHopRow struct {
	TxHash         string          `ch:"tx_hash"`
	LogIndex       uint32          `ch:"log_index"`
	Kind           string          `ch:"kind"`
	ClaimID        uint64          `ch:"claim_id"`
	FromAddress    string          `ch:"from_address"`
	ToAddress      string          `ch:"to_address"`
	Amount         decimal.Decimal `ch:"amount"`
	BlockNumber    uint64          `ch:"block_number"`
	BlockTimestamp time.Time       `ch:"block_timestamp"`
}

func (w *Warehouse) InsertClaim(ctx context.Context, rows ...ClaimRow) error {
	return insertRows(ctx, w, TableClaims, rows)
}

func (w *Warehouse) InsertClaimEvent(ctx context.Context, rows ...ClaimEventRow) error {
	return insertRows(ctx, w, TableClaimEvents, rows)
}

func (w *Warehouse) InsertSupplierPayment(ctx context.Context, rows ...SupplierPaymentRow) error {
	return insertRows(ctx, w, TableSupplierPayments, rows)
}

func (w *Warehouse) InsertSubSupplierPayment(ctx context.Context, rows ...SubSupplierPaymentRow) error {
	return insertRows(ctx, w, TableSubSupplierPayments, rows)
}

func (w *Warehouse) InsertChallenge(ctx context.Context, rows ...ChallengeRow) error {
	return insertRows(ctx, w, TableChallenges, rows)
}

func (w *Warehouse) InsertBudgetEvent(ctx context.Context, rows ...BudgetEventRow) error {
	return insertRows(ctx, w, TableBudgetEvents, rows)
}

func (w *Warehouse) InsertRoleEvent(ctx context.Context, rows ...RoleEventRow) error {
	return insertRows(ctx, w, TableRoleEvents, rows)
}

func (w *Warehouse) InsertPaymentHop(ctx context.Context, rows ...PaymentHopRow) error {
	return insertRows(ctx, w, TablePaymentHops, rows)
}

func insertRows[T any](ctx context.Context, w *Warehouse, table string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	if err := w.ensureSchema(ctx); err != nil {
		return err
	}
	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", w.table(table)))
	if err != nil {
		return w.appendFailed(table, "prepare batch", err)
	}
	defer batch.Abort() //nolint:errcheck

	for i := range rows {
		if err := batch.AppendStruct(&rows[i]); err != nil {
			return w.appendFailed(table, "append row", err)
		}
	}
	if err := batch.Send(); err != nil {
		return w.appendFailed(table, "send batch", err)
	}
	metrics.WarehouseRowsTotal.WithLabelValues(table, "ok").Add(float64(len(rows)))
	return nil
}
