package warehouse

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transparencyx/chaintrace/common/errs"
	"github.com/transparencyx/chaintrace/tracing"
)

type call struct {
	query string
	args  []any
}

type fakeBatch struct {
	query   string
	rows    [][]any
	structs []any
	sent    bool
	sendErr error
}

func (b *fakeBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) AppendStruct(v any) error {
	b.structs = append(b.structs, v)
	return nil
}

func (b *fakeBatch) Send() error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = true
	return nil
}

func (b *fakeBatch) Abort() error { return nil }

type fakeConn struct {
	mu       sync.Mutex
	execs    []call
	selects  []call
	batches  []*fakeBatch
	onSelect func(dest any, query string, args []any) error
	sendErr  error
}

func (c *fakeConn) Ping(context.Context) error { return nil }

func (c *fakeConn) Exec(_ context.Context, query string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, call{query, args})
	return nil
}

func (c *fakeConn) Select(_ context.Context, dest any, query string, args ...any) error {
	c.mu.Lock()
	c.selects = append(c.selects, call{query, args})
	hook := c.onSelect
	c.mu.Unlock()
	if hook != nil {
		return hook(dest, query, args)
	}
	return nil
}

func (c *fakeConn) PrepareBatch(_ context.Context, query string) (Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := &fakeBatch{query: query, sendErr: c.sendErr}
	c.batches = append(c.batches, b)
	return b, nil
}

func (c *fakeConn) Close() error { return nil }

// lastSelect skips the schema probes against system.tables.
func (c *fakeConn) lastSelect(t *testing.T) call {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.selects) - 1; i >= 0; i-- {
		if !strings.Contains(c.selects[i].query, "system.tables") {
			return c.selects[i]
		}
	}
	t.Fatal("no analytics query issued")
	return call{}
}

func newTestWarehouse(t *testing.T) (*Warehouse, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	w, err := New(conn, "procurement")
	require.NoError(t, err)
	return w, conn
}

func testFlow() *tracing.PaymentFlow {
	return &tracing.PaymentFlow{
		TxHash:     common.HexToHash("0xabc"),
		Origin:     common.HexToAddress("0x00000000000000000000000000000000000000Ee"),
		CapturedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		TotalValue: (*hexutil.Big)(big.NewInt(1000)),
		Participants: []tracing.Participant{
			{Address: common.HexToAddress("0x00000000000000000000000000000000000000aA"), Value: (*hexutil.Big)(big.NewInt(600)), Depth: 0, MethodID: "0xa9059cbb"},
			{Address: common.HexToAddress("0x00000000000000000000000000000000000000bB"), Value: (*hexutil.Big)(big.NewInt(400)), Depth: 2, MethodID: tracing.NoMethodID},
		},
	}
}

func TestNewRejectsUnsafeDatabase(t *testing.T) {
	for _, name := range []string{"", "procurement; DROP TABLE claims", "a.b", "1db", "db`"} {
		_, err := New(&fakeConn{}, name)
		assert.Equal(t, errs.TypeValidation, errs.TypeOf(err), name)
	}
}

func TestEnsureSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesEverythingOnce", func(t *testing.T) {
		w, conn := newTestWarehouse(t)
		require.NoError(t, w.EnsureSchema(ctx))
		require.Len(t, conn.execs, len(tables)+1)
		assert.Equal(t, "CREATE DATABASE IF NOT EXISTS procurement", conn.execs[0].query)
		assert.Contains(t, conn.execs[1].query, "CREATE TABLE IF NOT EXISTS procurement.transaction_traces")
		assert.Contains(t, conn.execs[1].query, "payment_chain Nested")

		for _, s := range conn.selects {
			assert.Equal(t, "procurement", s.args[0])
		}

		require.NoError(t, w.EnsureSchema(ctx))
		assert.Len(t, conn.execs, len(tables)+1)
	})

	t.Run("SkipsExistingTables", func(t *testing.T) {
		w, conn := newTestWarehouse(t)
		conn.onSelect = func(dest any, _ string, _ []any) error {
			v := reflect.ValueOf(dest).Elem()
			row := reflect.New(v.Type().Elem()).Elem()
			row.Field(0).SetUint(1)
			v.Set(reflect.Append(v, row))
			return nil
		}
		require.NoError(t, w.EnsureSchema(ctx))
		assert.Len(t, conn.execs, 1)
	})

	t.Run("ProbeFailure", func(t *testing.T) {
		w, conn := newTestWarehouse(t)
		conn.onSelect = func(any, string, []any) error { return errors.New("code: 516, authentication failed") }
		err := w.EnsureSchema(ctx)
		assert.Equal(t, errs.TypeWarehouse, errs.TypeOf(err))
		assert.False(t, w.schemaReady.Load())
	})
}

func TestAppendPaymentFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("OneRowPerFlow", func(t *testing.T) {
		w, conn := newTestWarehouse(t)
		require.NoError(t, w.AppendPaymentFlow(ctx, testFlow()))

		require.Len(t, conn.batches, 1)
		b := conn.batches[0]
		assert.True(t, b.sent)
		assert.Contains(t, b.query, "INSERT INTO procurement.transaction_traces")
		require.Len(t, b.rows, 1)

		row := b.rows[0]
		assert.Equal(t, common.HexToHash("0xabc").Hex(), row[0])
		assert.Equal(t, "0x00000000000000000000000000000000000000ee", row[2])
		assert.Equal(t, "1000", row[3])
		assert.Equal(t, []string{"0x00000000000000000000000000000000000000aa", "0x00000000000000000000000000000000000000bb"}, row[4])
		assert.Equal(t, []string{"600", "400"}, row[5])
		assert.Equal(t, []uint32{0, 2}, row[6])
		assert.Equal(t, []string{"0xa9059cbb", "0x"}, row[7])
	})

	t.Run("DuplicatesAreKept", func(t *testing.T) {
		w, conn := newTestWarehouse(t)
		flow := testFlow()
		require.NoError(t, w.AppendPaymentFlow(ctx, flow))
		require.NoError(t, w.AppendPaymentFlow(ctx, flow))
		require.Len(t, conn.batches, 2)
		assert.Equal(t, conn.batches[0].rows, conn.batches[1].rows)
	})

	t.Run("EmptyParticipants", func(t *testing.T) {
		w, conn := newTestWarehouse(t)
		flow := testFlow()
		flow.Participants = []tracing.Participant{}
		require.NoError(t, w.AppendPaymentFlow(ctx, flow))
		row := conn.batches[0].rows[0]
		assert.Empty(t, row[4])
		assert.NotNil(t, row[4])
	})

	t.Run("SendFailure", func(t *testing.T) {
		w, conn := newTestWarehouse(t)
		conn.sendErr = errors.New("code: 241, memory limit exceeded")
		err := w.AppendPaymentFlow(ctx, testFlow())
		assert.Equal(t, errs.TypeWarehouse, errs.TypeOf(err))
		assert.ErrorContains(t, err, "memory limit exceeded")
	})
}

func TestPaymentFlowsByTx(t *testing.T) {
	w, conn := newTestWarehouse(t)
	conn.onSelect = func(dest any, query string, _ []any) error {
		rows, ok := dest.(*[]TraceRow)
		if !ok {
			return nil
		}
		*rows = append(*rows, TraceRow{
			TxHash:        common.HexToHash("0xabc").Hex(),
			CapturedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			OriginAddress: "0x00000000000000000000000000000000000000ee",
			TotalValue:    "1000",
			Addresses:     []string{"0x00000000000000000000000000000000000000aa"},
			Values:        []string{"600"},
			Depths:        []uint32{3},
			MethodIDs:     []string{"0x"},
		})
		return nil
	}

	flows, err := w.PaymentFlowsByTx(context.Background(), common.HexToHash("0xabc"))
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.EqualValues(t, 1000, flows[0].TotalValue.ToInt().Int64())
	require.Len(t, flows[0].Participants, 1)
	assert.Equal(t, 3, flows[0].Participants[0].Depth)
	assert.EqualValues(t, 600, flows[0].Participants[0].Value.ToInt().Int64())

	q := conn.lastSelect(t)
	assert.Equal(t, []any{common.HexToHash("0xabc").Hex()}, q.args)
}

func TestInsertRows(t *testing.T) {
	w, conn := newTestWarehouse(t)
	require.NoError(t, w.InsertClaim(context.Background()))
	assert.Empty(t, conn.batches)

	rows := []ClaimRow{
		{ClaimID: 1, Amount: WeiToEther(big.NewInt(1e18))},
		{ClaimID: 2, Amount: WeiToEther(big.NewInt(5e17))},
	}
	require.NoError(t, w.InsertClaim(context.Background(), rows...))
	require.Len(t, conn.batches, 1)
	assert.Equal(t, "INSERT INTO procurement.claims", conn.batches[0].query)
	assert.Len(t, conn.batches[0].structs, 2)
	assert.True(t, conn.batches[0].sent)
}

func TestWeiToEther(t *testing.T) {
	wei, _ := new(big.Int).SetString("1234500000000000000000", 10)
	assert.True(t, decimal.RequireFromString("1234.5").Equal(WeiToEther(wei)))
	assert.True(t, decimal.Zero.Equal(WeiToEther(nil)))
}

// probe is an address whose hex digits never occur in a query template.
var probe = common.HexToAddress("0x00000000000000000000000000000000deadbeef")

func TestQueriesBindCallerValues(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		run  func(w *Warehouse) error
		args []any
	}{
		{"SuspiciousDepartments", func(w *Warehouse) error {
			_, err := w.SuspiciousDepartments(ctx, 42.5)
			return err
		}, []any{42.5}},
		{"PaymentChainCompleteness", func(w *Warehouse) error {
			_, err := w.PaymentChainCompleteness(ctx, 0.65)
			return err
		}, []any{0.65, retentionFlag, normalFlow}},
		{"AnomalousPaymentPatterns", func(w *Warehouse) error {
			_, err := w.AnomalousPaymentPatterns(ctx, probe, 17)
			return err
		}, []any{"0x00000000000000000000000000000000deadbeef", 17.0}},
		{"TracePaymentChain", func(w *Warehouse) error {
			_, err := w.TracePaymentChain(ctx, probe, 9)
			return err
		}, []any{"0x00000000000000000000000000000000deadbeef", 9}},
		{"RecentChallenges", func(w *Warehouse) error {
			_, err := w.RecentChallenges(ctx, 7)
			return err
		}, []any{ChallengeRewarded, ChallengeStaked, ChallengeRewarded, 7}},
		{"FraudAlerts", func(w *Warehouse) error {
			_, err := w.FraudAlerts(ctx, 3)
			return err
		}, []any{defaultMarketAverage * 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, conn := newTestWarehouse(t)
			require.NoError(t, tt.run(w))
			q := conn.lastSelect(t)
			assert.Equal(t, tt.args, q.args)
			for _, arg := range tt.args {
				assert.NotContains(t, q.query, fmt.Sprint(arg))
			}
			assert.NotContains(t, q.query, "deadbeef")
		})
	}
}

func TestDepartmentClaimStats(t *testing.T) {
	w, conn := newTestWarehouse(t)
	_, err := w.DepartmentClaimStats(context.Background(), probe)
	assert.Equal(t, errs.TypeNotFound, errs.TypeOf(err))

	conn.onSelect = func(dest any, _ string, args []any) error {
		if rows, ok := dest.(*[]DepartmentStats); ok {
			*rows = append(*rows, DepartmentStats{DepartmentAddress: args[0].(string), TotalClaims: 4, AvgAnomalyScore: 12})
		}
		return nil
	}
	stats, err := w.DepartmentClaimStats(context.Background(), probe)
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.TotalClaims)
	assert.Equal(t, "0x00000000000000000000000000000000deadbeef", stats.DepartmentAddress)
}

func TestFraudAlertsUsesMarketAverage(t *testing.T) {
	w, conn := newTestWarehouse(t)
	conn.onSelect = func(dest any, query string, _ []any) error {
		v := reflect.ValueOf(dest).Elem()
		if v.Type().Elem().NumField() != 2 || strings.Contains(query, "system.tables") {
			if strings.Contains(query, "vendor_address") {
				row := reflect.New(v.Type().Elem()).Elem()
				row.FieldByName("ClaimID").SetUint(9)
				row.FieldByName("VendorAddress").SetString("0x00000000000000000000000000000000000000aa")
				row.FieldByName("Amount").Set(reflect.ValueOf(decimal.NewFromInt(500)))
				v.Set(reflect.Append(v, row))
			}
			return nil
		}
		row := reflect.New(v.Type().Elem()).Elem()
		row.FieldByName("Avg").SetFloat(200)
		row.FieldByName("N").SetUint(3)
		v.Set(reflect.Append(v, row))
		return nil
	}

	alerts, err := w.FraudAlerts(context.Background(), DefaultListLimit)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 200.0, alerts[0].MarketAverage)
	assert.Equal(t, "HIGH Suspicious Claim by 0x00000000000000000000000000000000000000aa: 500 (>400.00 market avg) - Investigate", alerts[0].Message)
	assert.Equal(t, []any{400.0, DefaultListLimit}, conn.lastSelect(t).args)
}

func TestQueryValidation(t *testing.T) {
	w, conn := newTestWarehouse(t)
	ctx := context.Background()

	_, err := w.SuspiciousDepartments(ctx, 101)
	assert.Equal(t, errs.TypeValidation, errs.TypeOf(err))
	_, err = w.PaymentChainCompleteness(ctx, 0)
	assert.Equal(t, errs.TypeValidation, errs.TypeOf(err))
	_, err = w.AnomalousPaymentPatterns(ctx, probe, -1)
	assert.Equal(t, errs.TypeValidation, errs.TypeOf(err))
	_, err = w.TracePaymentChain(ctx, probe, 0)
	assert.Equal(t, errs.TypeValidation, errs.TypeOf(err))
	_, err = w.RecentChallenges(ctx, 1000)
	assert.Equal(t, errs.TypeValidation, errs.TypeOf(err))

	assert.Empty(t, conn.selects)
}

func TestQueryFailureIsTyped(t *testing.T) {
	w, conn := newTestWarehouse(t)
	require.NoError(t, w.EnsureSchema(context.Background()))
	conn.onSelect = func(any, string, []any) error { return errors.New("code: 60, table does not exist") }
	_, err := w.ClaimStatusCounts(context.Background())
	assert.Equal(t, errs.TypeWarehouse, errs.TypeOf(err))
}
