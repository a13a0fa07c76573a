// Package api serves the transparency dashboard: wallet sessions, payment chain traces and
// the warehouse analytics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/transparencyx/chaintrace/config"
	"github.com/transparencyx/chaintrace/database/worker"
	"github.com/transparencyx/chaintrace/session"
	"github.com/transparencyx/chaintrace/tracing"
	"github.com/transparencyx/chaintrace/warehouse"
)

const (
	readHeaderTimeout = 10 * time.Second
	// traces of deep calls can take a while on a busy archive node
	writeTimeout = 2 * time.Minute
)

// Tracer runs payment chain traces on demand.
type Tracer interface {
	TracePaymentChain(ctx context.Context, txHash common.Hash, requestedBy string) (*tracing.PaymentFlow, error)
	RawTrace(ctx context.Context, txHash common.Hash) (json.RawMessage, error)
}

// Analytics is the read side of the warehouse.
type Analytics interface {
	SuspiciousDepartments(ctx context.Context, threshold float64) ([]warehouse.SuspiciousDepartment, error)
	PaymentChainCompleteness(ctx context.Context, retentionRatio float64) ([]warehouse.ChainCompleteness, error)
	AnomalousPaymentPatterns(ctx context.Context, origin common.Address, maxDelaySeconds float64) ([]warehouse.PaymentPattern, error)
	TracePaymentChain(ctx context.Context, origin common.Address, daysBack int) ([]warehouse.ChainLink, error)
	ClaimStatusCounts(ctx context.Context) ([]warehouse.StatusCount, error)
	RecentChallenges(ctx context.Context, limit int) ([]warehouse.ChallengeSummary, error)
	TransactionTrail(ctx context.Context) ([]warehouse.TrailMonth, error)
	FraudAlerts(ctx context.Context, limit int) ([]warehouse.FraudAlert, error)
	DepartmentClaimStats(ctx context.Context, department common.Address) (*warehouse.DepartmentStats, error)
}

// Sessions stores wallet sessions.
type Sessions interface {
	Create(ctx context.Context, address common.Address, role session.Role) (*session.Session, error)
	Get(ctx context.Context, token string) (*session.Session, error)
	Delete(ctx context.Context, token string) error
}

// TraceJobs lists the ledger entries of a transaction.
type TraceJobs interface {
	QueryTraceJobsByTx(txHash common.Hash, limit int) ([]worker.TraceJob, error)
}

// FlowHistory returns the payment flow records already appended for a transaction.
type FlowHistory interface {
	PaymentFlowsByTx(ctx context.Context, txHash common.Hash) ([]*tracing.PaymentFlow, error)
}

// ArchivedTraces reads raw traces back from the archive.
type ArchivedTraces interface {
	GetTrace(ctx context.Context, hash common.Hash) ([]byte, error)
}

// Roles resolves the on-chain role mirrored for an address.
type Roles interface {
	RoleOf(address common.Address) (string, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the services behind the routes. Only Tracer, Analytics and Sessions are
// required.
type Deps struct {
	Tracer    Tracer
	Analytics Analytics
	Sessions  Sessions
	Flows     FlowHistory
	Archive   ArchivedTraces
	Jobs      TraceJobs
	Roles     Roles
	Checks    map[string]HealthCheck
}

type API struct {
	deps    Deps
	router  *mux.Router
	handler http.Handler
	server  *http.Server
	stopped atomic.Bool
}

func NewApi(cfg config.HTTPConfig, deps Deps) (*API, error) {
	if deps.Tracer == nil || deps.Analytics == nil || deps.Sessions == nil {
		return nil, errors.New("api requires a tracer, the warehouse analytics and a session store")
	}
	a := &API{deps: deps, router: mux.NewRouter()}
	a.routes()

	origins := cfg.CorsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowCredentials: true,
	})
	a.handler = c.Handler(a.router)
	a.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}
	return a, nil
}

func (a *API) routes() {
	r := a.router
	r.Use(a.instrument, a.resolveSession)

	r.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/session", a.createSession).Methods(http.MethodPost)
	r.HandleFunc("/api/session", a.requireSession(a.currentSession)).Methods(http.MethodGet)
	r.HandleFunc("/api/session", a.requireSession(a.deleteSession)).Methods(http.MethodDelete)

	r.HandleFunc("/api/trace/{txHash}", a.requireSession(a.tracePaymentChain)).Methods(http.MethodGet)
	r.HandleFunc("/api/trace/{txHash}/raw", a.requireSession(a.rawTrace)).Methods(http.MethodGet)
	r.HandleFunc("/api/trace/{txHash}/jobs", a.traceJobs).Methods(http.MethodGet)
	r.HandleFunc("/api/trace/{txHash}/flows", a.storedFlows).Methods(http.MethodGet)
	r.HandleFunc("/api/trace/{txHash}/archived", a.requireSession(a.archivedTrace)).Methods(http.MethodGet)

	r.HandleFunc("/api/analytics/suspicious-departments", a.suspiciousDepartments).Methods(http.MethodGet)
	r.HandleFunc("/api/analytics/chain-completeness", a.chainCompleteness).Methods(http.MethodGet)
	r.HandleFunc("/api/analytics/anomalous-patterns", a.anomalousPatterns).Methods(http.MethodGet)
	r.HandleFunc("/api/analytics/payment-chain", a.paymentChain).Methods(http.MethodGet)
	r.HandleFunc("/api/departments/{address}/stats", a.departmentStats).Methods(http.MethodGet)

	r.HandleFunc("/api/claims/status", a.claimStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/challenges", a.challenges).Methods(http.MethodGet)
	r.HandleFunc("/api/trail", a.trail).Methods(http.MethodGet)
	r.HandleFunc("/api/fraud-alerts", a.fraudAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/log", a.activityLog)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})
}

// Handler is the full middleware chain, cors included.
func (a *API) Handler() http.Handler {
	return a.handler
}

// Start binds the listen address before returning, so a taken port fails the start.
func (a *API) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}
	log.Info("api server listening", "addr", listener.Addr())
	go func() {
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api server stopped", "err", err)
		}
	}()
	return nil
}

func (a *API) Stop(ctx context.Context) error {
	defer a.stopped.Store(true)
	if err := a.server.Shutdown(ctx); err != nil {
		log.Error("api server shutdown", "err", err)
		return err
	}
	log.Info("api server stopped")
	return nil
}

func (a *API) Stopped() bool {
	return a.stopped.Load()
}
