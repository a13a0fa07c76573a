package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"

	"github.com/transparencyx/chaintrace/common/errs"
	"github.com/transparencyx/chaintrace/database/worker"
	"github.com/transparencyx/chaintrace/session"
	"github.com/transparencyx/chaintrace/warehouse"
)

const (
	defaultJobLimit = 20
	maxJobLimit     = 100
	maxBodyBytes    = 1 << 16
	healthTimeout   = 3 * time.Second
)

type successBody struct {
	Success bool `json:"success"`
}

type traceJobView struct {
	worker.TraceJob
	Status string `json:"status"`
}

type sessionRequest struct {
	Address string `json:"address"`
	Role    string `json:"role"`
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	result := make(map[string]string, len(a.deps.Checks))
	for name, check := range a.deps.Checks {
		if err := check(ctx); err != nil {
			log.Warn("health check failed", "check", name, "err", err)
			result[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		result[name] = "ok"
	}
	writeJSON(w, status, result)
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, errs.NewValidation("body", "invalid session request"))
		return
	}
	if !common.IsHexAddress(req.Address) {
		writeError(w, r, errs.NewValidation("address", "not a wallet address"))
		return
	}
	role, err := session.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	address := common.HexToAddress(req.Address)
	if err := a.confirmRole(address, role); err != nil {
		writeError(w, r, err)
		return
	}

	sess, err := a.deps.Sessions.Create(r.Context(), address, role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.Info("session created", "address", address, "role", role)
	writeJSON(w, http.StatusCreated, sess)
}

// confirmRole checks roles the contract grants against the mirrored role assignments.
// Other roles are self-declared.
func (a *API) confirmRole(address common.Address, role session.Role) error {
	if a.deps.Roles == nil {
		return nil
	}
	switch role {
	case session.RoleStateHead, session.RoleDeputy, session.RoleVendor:
	default:
		return nil
	}
	onChain, err := a.deps.Roles.RoleOf(address)
	if err != nil {
		return errs.Wrap(errs.TypeDatabase, "lookup role", err)
	}
	if onChain != string(role) {
		return errs.New(errs.TypeUnauthenticated, "role "+string(role)+" is not held by this wallet")
	}
	return nil
}

func (a *API) currentSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, session.FromContext(r.Context()))
}

func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if err := a.deps.Sessions.Delete(r.Context(), sess.Token); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

func (a *API) tracePaymentChain(w http.ResponseWriter, r *http.Request) {
	hash, err := txHashVar(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess := session.FromContext(r.Context())
	flow, err := a.deps.Tracer.TracePaymentChain(r.Context(), hash, sess.Address.Hex())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (a *API) rawTrace(w http.ResponseWriter, r *http.Request) {
	hash, err := txHashVar(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	raw, err := a.deps.Tracer.RawTrace(r.Context(), hash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (a *API) storedFlows(w http.ResponseWriter, r *http.Request) {
	hash, err := txHashVar(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if a.deps.Flows == nil {
		writeError(w, r, errs.New(errs.TypeNotFound, "payment flow history is not enabled"))
		return
	}
	flows, err := a.deps.Flows.PaymentFlowsByTx(r.Context(), hash)
	respond(w, r, flows, err)
}

func (a *API) archivedTrace(w http.ResponseWriter, r *http.Request) {
	hash, err := txHashVar(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if a.deps.Archive == nil {
		writeError(w, r, errs.New(errs.TypeNotFound, "trace archive is not enabled"))
		return
	}
	raw, err := a.deps.Archive.GetTrace(r.Context(), hash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (a *API) traceJobs(w http.ResponseWriter, r *http.Request) {
	hash, err := txHashVar(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if a.deps.Jobs == nil {
		writeError(w, r, errs.New(errs.TypeNotFound, "trace job ledger is not enabled"))
		return
	}
	limit, err := intParam(r, "limit", defaultJobLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit <= 0 || limit > maxJobLimit {
		writeError(w, r, errs.NewValidation("limit", "must be between 1 and "+strconv.Itoa(maxJobLimit)))
		return
	}
	jobs, err := a.deps.Jobs.QueryTraceJobsByTx(hash, limit)
	if err != nil {
		writeError(w, r, errs.Wrap(errs.TypeDatabase, "query trace jobs", err))
		return
	}
	views := make([]traceJobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, traceJobView{TraceJob: job, Status: job.StatusName()})
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) suspiciousDepartments(w http.ResponseWriter, r *http.Request) {
	threshold, err := floatParam(r, "threshold", warehouse.DefaultAnomalyThreshold)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := a.deps.Analytics.SuspiciousDepartments(r.Context(), threshold)
	respond(w, r, rows, err)
}

func (a *API) chainCompleteness(w http.ResponseWriter, r *http.Request) {
	ratio, err := floatParam(r, "ratio", warehouse.DefaultRetentionRatio)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := a.deps.Analytics.PaymentChainCompleteness(r.Context(), ratio)
	respond(w, r, rows, err)
}

func (a *API) anomalousPatterns(w http.ResponseWriter, r *http.Request) {
	origin, err := addressParam(r.URL.Query().Get("origin"), "origin")
	if err != nil {
		writeError(w, r, err)
		return
	}
	maxDelay, err := floatParam(r, "maxDelay", warehouse.DefaultMaxDelaySeconds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := a.deps.Analytics.AnomalousPaymentPatterns(r.Context(), origin, maxDelay)
	respond(w, r, rows, err)
}

func (a *API) paymentChain(w http.ResponseWriter, r *http.Request) {
	origin, err := addressParam(r.URL.Query().Get("origin"), "origin")
	if err != nil {
		writeError(w, r, err)
		return
	}
	days, err := intParam(r, "days", warehouse.DefaultDaysBack)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := a.deps.Analytics.TracePaymentChain(r.Context(), origin, days)
	respond(w, r, rows, err)
}

func (a *API) departmentStats(w http.ResponseWriter, r *http.Request) {
	department, err := addressParam(mux.Vars(r)["address"], "address")
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := a.deps.Analytics.DepartmentClaimStats(r.Context(), department)
	respond(w, r, stats, err)
}

func (a *API) claimStatus(w http.ResponseWriter, r *http.Request) {
	rows, err := a.deps.Analytics.ClaimStatusCounts(r.Context())
	respond(w, r, rows, err)
}

func (a *API) challenges(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", warehouse.DefaultListLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := a.deps.Analytics.RecentChallenges(r.Context(), limit)
	respond(w, r, rows, err)
}

func (a *API) trail(w http.ResponseWriter, r *http.Request) {
	rows, err := a.deps.Analytics.TransactionTrail(r.Context())
	respond(w, r, rows, err)
}

func (a *API) fraudAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", warehouse.DefaultListLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := a.deps.Analytics.FraudAlerts(r.Context(), limit)
	respond(w, r, rows, err)
}

// activityLog records dashboard activity in the server log.
func (a *API) activityLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
		return
	}
	var entry map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&entry); err != nil {
		writeError(w, r, errs.NewValidation("body", "invalid log entry"))
		return
	}
	fields := []any{"entry", entry}
	if sess := session.FromContext(r.Context()); sess != nil {
		fields = append(fields, "address", sess.Address, "role", sess.Role)
	}
	log.Info("dashboard activity", fields...)
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

// respond writes rows, or the error. Empty results are answered with [] rather than null.
func respond[T any](w http.ResponseWriter, r *http.Request, rows T, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body any = rows
	if v := reflect.ValueOf(rows); v.Kind() == reflect.Slice && v.IsNil() {
		body = []struct{}{}
	}
	writeJSON(w, http.StatusOK, body)
}

func txHashVar(r *http.Request) (common.Hash, error) {
	raw := mux.Vars(r)["txHash"]
	if raw == "" {
		return common.Hash{}, errs.NewValidation("txHash", "No transaction hash provided")
	}
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, errs.NewValidation("txHash", "not a 32 byte 0x-prefixed hash")
	}
	return common.BytesToHash(b), nil
}

func addressParam(raw string, name string) (common.Address, error) {
	if raw == "" {
		return common.Address{}, errs.NewValidation(name, "is required")
	}
	if !common.IsHexAddress(raw) || !strings.HasPrefix(raw, "0x") {
		return common.Address{}, errs.NewValidation(name, "not a 0x-prefixed address")
	}
	return common.HexToAddress(raw), nil
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errs.NewValidation(name, "not a number")
	}
	return v, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.NewValidation(name, "not an integer")
	}
	return v, nil
}
