package warehouse

import (
	"context"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/ethereum/go-ethereum/log"

	"github.com/transparencyx/chaintrace/common/errs"
	"github.com/transparencyx/chaintrace/config"
)

// Batch is the slice of driver.Batch the warehouse uses.
type Batch interface {
	Append(v ...any) error
	AppendStruct(v any) error
	Send() error
	Abort() error
}

// Conn is the slice of a ClickHouse connection the warehouse uses.
type Conn interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, query string, args ...any) error
	Select(ctx context.Context, dest any, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string) (Batch, error)
	Close() error
}

type nativeConn struct {
	driver.Conn
}

func (c nativeConn) PrepareBatch(ctx context.Context, query string) (Batch, error) {
	batch, err := c.Conn.PrepareBatch(ctx, query)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Warehouse owns the analytical tables. Every table is qualified with the configured
// database; caller values only ever travel as bind parameters.
type Warehouse struct {
	conn     Conn
	database string

	schemaReady atomic.Bool
}

// Open dials ClickHouse and pings it.
func Open(ctx context.Context, cfg config.WarehouseConfig) (*Warehouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			// the target database may not exist yet; EnsureSchema creates it
			Database: "default",
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Settings: clickhouse.Settings{
			"flatten_nested": 1,
		},
	})
	if err != nil {
		return nil, errs.Wrap(errs.TypeWarehouse, "open clickhouse", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, errs.Wrap(errs.TypeWarehouse, "clickhouse ping failed", err).AddContext("addr", cfg.Addr)
	}
	log.Info("connected to clickhouse", "addr", cfg.Addr, "database", cfg.Database)
	return New(nativeConn{conn}, cfg.Database)
}

// New wraps an existing connection.
func New(conn Conn, database string) (*Warehouse, error) {
	if !identifier.MatchString(database) {
		return nil, errs.NewValidation("database", fmt.Sprintf("invalid warehouse database name %q", database))
	}
	return &Warehouse{conn: conn, database: database}, nil
}

func (w *Warehouse) Database() string {
	return w.database
}

func (w *Warehouse) table(name string) string {
	return w.database + "." + name
}

func (w *Warehouse) Ping(ctx context.Context) error {
	if err := w.conn.Ping(ctx); err != nil {
		return errs.Wrap(errs.TypeWarehouse, "clickhouse ping failed", err)
	}
	return nil
}

func (w *Warehouse) Close() error {
	return w.conn.Close()
}
