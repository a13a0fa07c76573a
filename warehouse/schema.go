package warehouse

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/transparencyx/chaintrace/common/errs"
)

const (
	TableTransactionTraces   = "transaction_traces"
	TableClaims              = "claims"
	TableClaimEvents         = "claim_events"
	TableSupplierPayments    = "supplier_payments"
	TableSubSupplierPayments = "subsupplier_payments"
	TableChallenges          = "challenges"
	TableBudgetEvents        = "budget_events"
	TableRoleEvents          = "role_events"
	TablePaymentHops         = "payment_hops"
)

type tableDef struct {
	name string
	// ddl is formatted with the qualified table name
	ddl string
}

var tables = []tableDef{
	{TableTransactionTraces, `CREATE TABLE IF NOT EXISTS %s (
    tx_hash        String,
    captured_at    DateTime64(3, 'UTC'),
    origin_address String,
    total_value    String,
    payment_chain Nested (
        address   String,
        value     String,
        depth     UInt32,
        method_id String
    )
) ENGINE = MergeTree
ORDER BY (captured_at, tx_hash)`},

	{TableClaims, `CREATE TABLE IF NOT EXISTS %s (
    claim_id           UInt64,
    tx_hash            String,
    block_number       UInt64,
    block_timestamp    DateTime('UTC'),
    vendor_address     String,
    department_address String,
    amount             Decimal(38, 18),
    invoice_hash       String,
    anomaly_score      Float64,
    create_time        DateTime('UTC')
) ENGINE = MergeTree
ORDER BY (department_address, claim_id)`},

	{TableClaimEvents, `CREATE TABLE IF NOT EXISTS %s (
    claim_id        UInt64,
    status          LowCardinality(String),
    flag_reason     String,
    tx_hash         String,
    block_number    UInt64,
    log_index       UInt32,
    block_timestamp DateTime('UTC')
) ENGINE = MergeTree
ORDER BY (claim_id, block_number, log_index)`},

	{TableSupplierPayments, `CREATE TABLE IF NOT EXISTS %s (
    payment_id       UInt64,
    claim_id         UInt64,
    tx_hash          String,
    block_number     UInt64,
    block_timestamp  DateTime('UTC'),
    vendor_address   String,
    supplier_address String,
    amount           Decimal(38, 18),
    description      String,
    create_time      DateTime('UTC')
) ENGINE = MergeTree
ORDER BY (claim_id, payment_id)`},

	{TableSubSupplierPayments, `CREATE TABLE IF NOT EXISTS %s (
    subpayment_id       String,
    claim_id            UInt64,
    supplier_payment_id UInt64,
    tx_hash             String,
    block_number        UInt64,
    block_timestamp     DateTime('UTC'),
    supplier_address    String,
    subsupplier_address String,
    amount              Decimal(38, 18),
    description         String,
    create_time         DateTime('UTC')
) ENGINE = MergeTree
ORDER BY (claim_id, supplier_payment_id)`},

	{TableChallenges, `CREATE TABLE IF NOT EXISTS %s (
    challenge_id       String,
    kind               LowCardinality(String),
    claim_id           UInt64,
    invoice_hash       String,
    challenger_address String,
    reward             Decimal(38, 18),
    tx_hash            String,
    block_number       UInt64,
    block_timestamp    DateTime('UTC')
) ENGINE = MergeTree
ORDER BY (block_timestamp, challenge_id)`},

	{TableBudgetEvents, `CREATE TABLE IF NOT EXISTS %s (
    budget_id       UInt64,
    kind            LowCardinality(String),
    actor_address   String,
    actor_role      LowCardinality(String),
    amount          Decimal(38, 18),
    purpose         String,
    tx_hash         String,
    block_number    UInt64,
    block_timestamp DateTime('UTC')
) ENGINE = MergeTree
ORDER BY (block_timestamp, budget_id)`},

	{TableRoleEvents, `CREATE TABLE IF NOT EXISTS %s (
    event           LowCardinality(String),
    role            LowCardinality(String),
    subject_address String,
    sponsor_address String,
    tx_hash         String,
    block_number    UInt64,
    block_timestamp DateTime('UTC')
) ENGINE = MergeTree
ORDER BY (block_timestamp, subject_address)`},

	{TablePaymentHops, `CREATE TABLE IF NOT EXISTS %s (
    tx_hash         String,
    log_index       UInt32,
    kind            LowCardinality(String),
    claim_id        UInt64,
    from_address    String,
    to_address      String,
    amount          Decimal(38, 18),
    block_number    UInt64,
    block_timestamp DateTime('UTC')
) ENGINE = MergeTree
ORDER BY (from_address, block_timestamp)`},
}

// EnsureSchema creates the database and every missing table. It is idempotent but not
// atomic: concurrent first calls may both issue CREATE ... IF NOT EXISTS, which is harmless.
func (w *Warehouse) EnsureSchema(ctx context.Context) error {
	if w.schemaReady.Load() {
		return nil
	}
	if err := w.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", w.database)); err != nil {
		return errs.Wrap(errs.TypeWarehouse, "create database", err).AddContext("database", w.database)
	}
	for _, t := range tables {
		exists, err := w.tableExists(ctx, t.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := w.conn.Exec(ctx, fmt.Sprintf(t.ddl, w.table(t.name))); err != nil {
			return errs.Wrap(errs.TypeWarehouse, "create table", err).AddContext("table", t.name)
		}
		log.Info("created warehouse table", "database", w.database, "table", t.name)
	}
	w.schemaReady.Store(true)
	return nil
}

func (w *Warehouse) tableExists(ctx context.Context, name string) (bool, error) {
	var rows []struct {
		N uint64 `ch:"n"`
	}
	err := w.conn.Select(ctx, &rows, "SELECT count() AS n FROM system.tables WHERE database = ? AND name = ?", w.database, name)
	if err != nil {
		return false, errs.Wrap(errs.TypeWarehouse, "check table", err).AddContext("table", name)
	}
	return len(rows) > 0 && rows[0].N > 0, nil
}
