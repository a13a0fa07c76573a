package warehouse

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/transparencyx/chaintrace/common/errs"
	"github.com/transparencyx/chaintrace/metrics"
)

const (
	DefaultAnomalyThreshold = 50.0
	DefaultRetentionRatio   = 0.7
	DefaultMaxDelaySeconds  = 60.0
	DefaultDaysBack         = 30
	DefaultListLimit        = 5

	// used by FraudAlerts when no claim was filed in the last 30 days
	defaultMarketAverage = 10000.0

	maxDaysBack   = 3650
	maxListLimit  = 100
	retentionFlag = "High Vendor Retention"
	normalFlow    = "Normal Flow"
)

type SuspiciousDepartment struct {
	DepartmentAddress string          `ch:"department_address" json:"departmentAddress"`
	TotalClaims       uint64          `ch:"total_claims" json:"totalClaims"`
	AvgAnomalyScore   float64         `ch:"avg_anomaly_score" json:"avgAnomalyScore"`
	TotalAmount       decimal.Decimal `ch:"total_amount" json:"totalAmount"`
}

type ChainCompleteness struct {
	ClaimID             uint64          `ch:"claim_id" json:"claimId"`
	ClaimAmount         decimal.Decimal `ch:"claim_amount" json:"claimAmount"`
	SupplierPayments    decimal.Decimal `ch:"supplier_payments" json:"supplierPayments"`
	SubSupplierPayments decimal.Decimal `ch:"subsupplier_payments" json:"subSupplierPayments"`
	VendorKept          decimal.Decimal `ch:"vendor_kept" json:"vendorKept"`
	FlowClassification  string          `ch:"flow_classification" json:"flowClassification"`
}

type PaymentPattern struct {
	Vendor                 string  `ch:"vendor" json:"vendor"`
	SupplierCount          uint64  `ch:"supplier_count" json:"supplierCount"`
	SubSupplierCount       uint64  `ch:"subsupplier_count" json:"subSupplierCount"`
	AvgPaymentDelaySeconds float64 `ch:"avg_payment_delay_seconds" json:"avgPaymentDelaySeconds"`
}

type ChainLink struct {
	GovPaymentTx      string    `ch:"gov_payment_tx" json:"govPaymentTx"`
	Vendor            string    `ch:"vendor" json:"vendor"`
	VendorPaymentTx   string    `ch:"vendor_payment_tx" json:"vendorPaymentTx"`
	Supplier          string    `ch:"supplier" json:"supplier"`
	SupplierPaymentTx string    `ch:"supplier_payment_tx" json:"supplierPaymentTx"`
	SubSupplier       string    `ch:"subsupplier" json:"subSupplier"`
	PaidAt            time.Time `ch:"paid_at" json:"paidAt"`
}

type StatusCount struct {
	Status string `ch:"status" json:"status"`
	Count  uint64 `ch:"count" json:"count"`
}

type ChallengeSummary struct {
	ID          string          `ch:"id" json:"id"`
	InvoiceHash string          `ch:"invoice_hash" json:"invoiceHash"`
	Staker      string          `ch:"staker" json:"staker"`
	Amount      decimal.Decimal `ch:"amount" json:"amount"`
	ClaimID     uint64          `ch:"claim_id" json:"claimId"`
	Status      string          `ch:"status" json:"status"`
	Timestamp   time.Time       `ch:"timestamp" json:"timestamp"`
}

// TrailMonth sums the month's outflows per role.
type TrailMonth struct {
	Month     time.Time       `ch:"month" json:"month"`
	MainGov   decimal.Decimal `ch:"main_gov" json:"mainGov"`
	StateHead decimal.Decimal `ch:"state_head" json:"stateHead"`
	Deputy    decimal.Decimal `ch:"deputy" json:"deputy"`
	Vendor    decimal.Decimal `ch:"vendor" json:"vendor"`
}

type FraudAlert struct {
	ClaimID       uint64          `json:"claimId"`
	Vendor        string          `json:"vendor"`
	Amount        decimal.Decimal `json:"amount"`
	MarketAverage float64         `json:"marketAverage"`
	Message       string          `json:"message"`
	Time          time.Time       `json:"time"`
}

type DepartmentStats struct {
	DepartmentAddress string          `ch:"department_address" json:"departmentAddress"`
	TotalClaims       uint64          `ch:"total_claims" json:"totalClaims"`
	AvgAnomalyScore   float64         `ch:"avg_anomaly_score" json:"avgAnomalyScore"`
	TotalAmount       decimal.Decimal `ch:"total_amount" json:"totalAmount"`
	LastClaimAt       time.Time       `ch:"last_claim_at" json:"lastClaimAt"`
}

// SuspiciousDepartments lists departments whose mean claim anomaly score exceeds threshold
// (0-100), highest first.
func (w *Warehouse) SuspiciousDepartments(ctx context.Context, threshold float64) ([]SuspiciousDepartment, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 100 {
		return nil, errs.NewValidation("threshold", "must be between 0 and 100")
	}
	query := fmt.Sprintf(`SELECT
    department_address,
    count() AS total_claims,
    avg(anomaly_score) AS avg_anomaly_score,
    sum(amount) AS total_amount
FROM %s
GROUP BY department_address
HAVING avg_anomaly_score > ?
ORDER BY avg_anomaly_score DESC`, w.table(TableClaims))

	var rows []SuspiciousDepartment
	if err := w.selectRows(ctx, "suspicious_departments", &rows, query, threshold); err != nil {
		return nil, err
	}
	return rows, nil
}

// PaymentChainCompleteness compares every claim with what its vendor forwarded to suppliers.
// Payments are summed per claim before joining so a claim with many supplier and
// sub-supplier payments is not counted once per combination.
func (w *Warehouse) PaymentChainCompleteness(ctx context.Context, retentionRatio float64) ([]ChainCompleteness, error) {
	if math.IsNaN(retentionRatio) || retentionRatio <= 0 || retentionRatio > 1 {
		return nil, errs.NewValidation("ratio", "must be in (0, 1]")
	}
	query := fmt.Sprintf(`SELECT
    c.claim_id AS claim_id,
    c.amount AS claim_amount,
    sp.forwarded AS supplier_payments,
    ssp.forwarded AS subsupplier_payments,
    c.amount - sp.forwarded AS vendor_kept,
    if(toFloat64(sp.forwarded) < toFloat64(c.amount) * ?, ?, ?) AS flow_classification
FROM %s AS c
LEFT JOIN (
    SELECT claim_id, sum(amount) AS forwarded FROM %s GROUP BY claim_id
) AS sp ON c.claim_id = sp.claim_id
LEFT JOIN (
    SELECT claim_id, sum(amount) AS forwarded FROM %s GROUP BY claim_id
) AS ssp ON c.claim_id = ssp.claim_id
ORDER BY vendor_kept DESC`,
		w.table(TableClaims), w.table(TableSupplierPayments), w.table(TableSubSupplierPayments))

	var rows []ChainCompleteness
	if err := w.selectRows(ctx, "chain_completeness", &rows, query, retentionRatio, retentionFlag, normalFlow); err != nil {
		return nil, err
	}
	return rows, nil
}

// AnomalousPaymentPatterns follows three hops from origin and reports vendors that
// forwarded funds faster than maxDelaySeconds on average.
func (w *Warehouse) AnomalousPaymentPatterns(ctx context.Context, origin common.Address, maxDelaySeconds float64) ([]PaymentPattern, error) {
	if math.IsNaN(maxDelaySeconds) || maxDelaySeconds <= 0 {
		return nil, errs.NewValidation("maxDelay", "must be positive")
	}
	hops := w.table(TablePaymentHops)
	query := fmt.Sprintf(`SELECT
    vendor,
    uniqExact(supplier) AS supplier_count,
    uniqExact(subsupplier) AS subsupplier_count,
    avg(dateDiff('second', gov_payment_time, vendor_payment_time)) AS avg_payment_delay_seconds
FROM (
    SELECT
        t1.to_address AS vendor,
        t2.to_address AS supplier,
        t3.to_address AS subsupplier,
        t1.block_timestamp AS gov_payment_time,
        t2.block_timestamp AS vendor_payment_time
    FROM %s AS t1
    INNER JOIN %s AS t2 ON t1.to_address = t2.from_address
    INNER JOIN %s AS t3 ON t2.to_address = t3.from_address
    WHERE t1.from_address = ?
)
GROUP BY vendor
HAVING avg_payment_delay_seconds < ?
ORDER BY avg_payment_delay_seconds`, hops, hops, hops)

	var rows []PaymentPattern
	if err := w.selectRows(ctx, "anomalous_patterns", &rows, query, lowerHex(origin), maxDelaySeconds); err != nil {
		return nil, err
	}
	return rows, nil
}

// TracePaymentChain lists the three-hop chains that started at origin in the last daysBack days.
func (w *Warehouse) TracePaymentChain(ctx context.Context, origin common.Address, daysBack int) ([]ChainLink, error) {
	if daysBack <= 0 || daysBack > maxDaysBack {
		return nil, errs.NewValidation("days", fmt.Sprintf("must be between 1 and %d", maxDaysBack))
	}
	hops := w.table(TablePaymentHops)
	query := fmt.Sprintf(`SELECT
    t1.tx_hash AS gov_payment_tx,
    t1.to_address AS vendor,
    t2.tx_hash AS vendor_payment_tx,
    t2.to_address AS supplier,
    t3.tx_hash AS supplier_payment_tx,
    t3.to_address AS subsupplier,
    t1.block_timestamp AS paid_at
FROM %s AS t1
INNER JOIN %s AS t2 ON t1.to_address = t2.from_address
INNER JOIN %s AS t3 ON t2.to_address = t3.from_address
WHERE t1.from_address = ?
  AND t1.block_timestamp > now() - toIntervalDay(?)
ORDER BY t1.block_timestamp DESC`, hops, hops, hops)

	var rows []ChainLink
	if err := w.selectRows(ctx, "payment_chain", &rows, query, lowerHex(origin), daysBack); err != nil {
		return nil, err
	}
	return rows, nil
}

// ClaimStatusCounts counts claims by their latest status.
func (w *Warehouse) ClaimStatusCounts(ctx context.Context) ([]StatusCount, error) {
	query := fmt.Sprintf(`SELECT status, count() AS count
FROM (
    SELECT claim_id, argMax(status, (block_number, log_index)) AS status
    FROM %s
    GROUP BY claim_id
)
GROUP BY status
ORDER BY status`, w.table(TableClaimEvents))

	var rows []StatusCount
	if err := w.selectRows(ctx, "claim_status", &rows, query); err != nil {
		return nil, err
	}
	return rows, nil
}

// RecentChallenges returns the latest staked challenges with their reward, if any.
func (w *Warehouse) RecentChallenges(ctx context.Context, limit int) ([]ChallengeSummary, error) {
	if limit <= 0 || limit > maxListLimit {
		return nil, errs.NewValidation("limit", fmt.Sprintf("must be between 1 and %d", maxListLimit))
	}
	challenges := w.table(TableChallenges)
	query := fmt.Sprintf(`SELECT
    s.challenge_id AS id,
    s.invoice_hash AS invoice_hash,
    s.challenger_address AS staker,
    r.reward AS amount,
    s.claim_id AS claim_id,
    if(r.n > 0, ?, 'Pending') AS status,
    s.block_timestamp AS timestamp
FROM (
    SELECT challenge_id, invoice_hash, challenger_address, claim_id, block_timestamp
    FROM %s WHERE kind = ?
) AS s
LEFT JOIN (
    SELECT invoice_hash, challenger_address, sum(reward) AS reward, count() AS n
    FROM %s WHERE kind = ?
    GROUP BY invoice_hash, challenger_address
) AS r ON s.invoice_hash = r.invoice_hash AND s.challenger_address = r.challenger_address
ORDER BY s.block_timestamp DESC
LIMIT ?`, challenges, challenges)

	var rows []ChallengeSummary
	if err := w.selectRows(ctx, "recent_challenges", &rows, query, ChallengeRewarded, ChallengeStaked, ChallengeRewarded, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

// TransactionTrail sums budget movements and claim payouts per month and role.
func (w *Warehouse) TransactionTrail(ctx context.Context) ([]TrailMonth, error) {
	query := fmt.Sprintf(`SELECT
    toStartOfMonth(ts) AS month,
    sumIf(amount, role = 'mainGov') AS main_gov,
    sumIf(amount, role = 'stateHead') AS state_head,
    sumIf(amount, role = 'deputy') AS deputy,
    sumIf(amount, role = 'vendor') AS vendor
FROM (
    SELECT block_timestamp AS ts, actor_role AS role, amount FROM %s
    UNION ALL
    SELECT block_timestamp AS ts, 'vendor' AS role, amount FROM %s WHERE kind = ?
)
GROUP BY month
ORDER BY month`, w.table(TableBudgetEvents), w.table(TablePaymentHops))

	var rows []TrailMonth
	if err := w.selectRows(ctx, "transaction_trail", &rows, query, HopClaimPayout); err != nil {
		return nil, err
	}
	return rows, nil
}

// FraudAlerts flags claims above twice the 30 day average amount and every claim filed in
// the last hour, newest first.
func (w *Warehouse) FraudAlerts(ctx context.Context, limit int) ([]FraudAlert, error) {
	if limit <= 0 || limit > maxListLimit {
		return nil, errs.NewValidation("limit", fmt.Sprintf("must be between 1 and %d", maxListLimit))
	}
	claims := w.table(TableClaims)

	var avgRows []struct {
		Avg float64 `ch:"avg_amount"`
		N   uint64  `ch:"n"`
	}
	avgQuery := fmt.Sprintf(`SELECT avg(toFloat64(amount)) AS avg_amount, count() AS n
FROM %s
WHERE block_timestamp > now() - toIntervalDay(30)`, claims)
	if err := w.selectRows(ctx, "market_average", &avgRows, avgQuery); err != nil {
		return nil, err
	}
	marketAvg := defaultMarketAverage
	if len(avgRows) > 0 && avgRows[0].N > 0 && !math.IsNaN(avgRows[0].Avg) {
		marketAvg = avgRows[0].Avg
	}

	var rows []struct {
		ClaimID        uint64          `ch:"claim_id"`
		VendorAddress  string          `ch:"vendor_address"`
		Amount         decimal.Decimal `ch:"amount"`
		BlockTimestamp time.Time       `ch:"block_timestamp"`
	}
	query := fmt.Sprintf(`SELECT claim_id, vendor_address, amount, block_timestamp
FROM %s
WHERE toFloat64(amount) > ? OR block_timestamp > now() - toIntervalHour(1)
ORDER BY block_timestamp DESC
LIMIT ?`, claims)
	if err := w.selectRows(ctx, "fraud_alerts", &rows, query, marketAvg*2, limit); err != nil {
		return nil, err
	}

	alerts := make([]FraudAlert, 0, len(rows))
	for _, r := range rows {
		alerts = append(alerts, FraudAlert{
			ClaimID:       r.ClaimID,
			Vendor:        r.VendorAddress,
			Amount:        r.Amount,
			MarketAverage: marketAvg,
			Message: fmt.Sprintf("HIGH Suspicious Claim by %s: %s (>%s market avg) - Investigate",
				r.VendorAddress, r.Amount.String(), decimal.NewFromFloat(marketAvg*2).StringFixed(2)),
			Time: r.BlockTimestamp.UTC(),
		})
	}
	return alerts, nil
}

// DepartmentClaimStats aggregates the claims filed by one department.
func (w *Warehouse) DepartmentClaimStats(ctx context.Context, department common.Address) (*DepartmentStats, error) {
	query := fmt.Sprintf(`SELECT
    ? AS department_address,
    count() AS total_claims,
    if(count() = 0, 0, avg(anomaly_score)) AS avg_anomaly_score,
    sum(amount) AS total_amount,
    max(block_timestamp) AS last_claim_at
FROM %s
WHERE department_address = ?`, w.table(TableClaims))

	addr := lowerHex(department)
	var rows []DepartmentStats
	if err := w.selectRows(ctx, "department_stats", &rows, query, addr, addr); err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].TotalClaims == 0 {
		return nil, errs.New(errs.TypeNotFound, "department has no claims").AddContext("department", addr)
	}
	return &rows[0], nil
}

func (w *Warehouse) selectRows(ctx context.Context, name string, dest any, query string, args ...any) error {
	if err := w.ensureSchema(ctx); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()
	if err := w.conn.Select(ctx, dest, query, args...); err != nil {
		return errs.Wrap(errs.TypeWarehouse, "query failed", err).AddContext("query", name)
	}
	return nil
}
