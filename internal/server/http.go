package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"RugShield/internal/engine"
	"RugShield/internal/ledger"
	"RugShield/internal/math"
	"RugShield/internal/observability"
	"RugShield/internal/oracle"
	"RugShield/internal/protocol"
	"RugShield/internal/query"
	"RugShield/internal/state"
)

// Server is the JSON HTTP surface over the engine. Writes dispatch to
// engine operations; reads come from engine views and the audit-log
// query service.
type Server struct {
	engine  *engine.Engine
	queries *query.Service
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
}

func New(
	eng *engine.Engine,
	queries *query.Service,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Server {
	return &Server{
		engine:  eng,
		queries: queries,
		health:  health,
		metrics: metrics,
		log:     log,
	}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID, s.instrument)

	r.HandleFunc("/healthz", s.health.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.health.ReadinessHandler).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	// Insurance
	v1.HandleFunc("/insurance", s.handleBuyInsurance).Methods(http.MethodPost)
	v1.HandleFunc("/insurance/{id:[0-9]+}/cancel", s.handleCancelInsurance).Methods(http.MethodPost)
	v1.HandleFunc("/insurance/{id:[0-9]+}/claims", s.handleFileClaim).Methods(http.MethodPost)
	v1.HandleFunc("/claims/{id:[0-9]+}/process", s.handleProcessClaim).Methods(http.MethodPost)
	v1.HandleFunc("/claims/{id:[0-9]+}", s.handleGetClaim).Methods(http.MethodGet)

	// Staking
	v1.HandleFunc("/staking/stake", s.handleStake).Methods(http.MethodPost)
	v1.HandleFunc("/staking/rewards", s.handleClaimRewards).Methods(http.MethodPost)
	v1.HandleFunc("/staking/{owner}", s.handleGetStakingAccount).Methods(http.MethodGet)

	// Migration
	v1.HandleFunc("/migration/migrate", s.handleMigrate).Methods(http.MethodPost)
	v1.HandleFunc("/migration", s.handleGetMigration).Methods(http.MethodGet)

	// Governance
	v1.HandleFunc("/governance/lottery", s.handleProposeLottery).Methods(http.MethodPost)
	v1.HandleFunc("/governance/parameters", s.handleProposeParameterChange).Methods(http.MethodPost)
	v1.HandleFunc("/governance/votes/{id:[0-9]+}", s.handleCastVote).Methods(http.MethodPost)
	v1.HandleFunc("/governance/votes/{id:[0-9]+}/execute", s.handleExecuteProposal).Methods(http.MethodPost)

	// Buyback, risk, price
	v1.HandleFunc("/buyback", s.handleExecuteBuyback).Methods(http.MethodPost)
	v1.HandleFunc("/tokens/{token}/risk", s.handleAnalyzeToken).Methods(http.MethodGet)
	v1.HandleFunc("/price/update", s.handleUpdatePrice).Methods(http.MethodPost)

	// Reads
	v1.HandleFunc("/protocol", s.handleGetProtocol).Methods(http.MethodGet)
	v1.HandleFunc("/policies", s.handleListPolicies).Methods(http.MethodGet)
	v1.HandleFunc("/policies/{id:[0-9]+}", s.handleGetPolicy).Methods(http.MethodGet)
	v1.HandleFunc("/proposals", s.handleListProposals).Methods(http.MethodGet)
	v1.HandleFunc("/proposals/{id:[0-9]+}", s.handleGetProposal).Methods(http.MethodGet)
	v1.HandleFunc("/events", s.handleListEvents).Methods(http.MethodGet)
	v1.HandleFunc("/events/status", s.handleEventStatus).Methods(http.MethodGet)
	v1.HandleFunc("/actors/{actor}/events", s.handleActorEvents).Methods(http.MethodGet)

	return r
}

// requestID tags every request so log lines and client errors can be
// correlated. Honors an inbound X-Request-ID from upstream proxies.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// instrument records request counts and latency per route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		if s.metrics == nil {
			return
		}
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}
		s.metrics.HTTPRequests.WithLabelValues(endpoint, strconv.Itoa(sw.status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// --- insurance ---

type buyInsuranceRequest struct {
	Buyer        string `json:"buyer"`
	Token        string `json:"token"`
	Coverage     uint64 `json:"coverage"`
	CoverageDays uint64 `json:"coverage_days"`
}

func (s *Server) handleBuyInsurance(w http.ResponseWriter, r *http.Request) {
	var req buyInsuranceRequest
	if !s.decode(w, r, &req) {
		return
	}
	policy, err := s.engine.BuyInsurance(req.Buyer, req.Token, req.Coverage, req.CoverageDays)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, policy)
}

type callerRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleCancelInsurance(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if !s.decode(w, r, &req) {
		return
	}
	refund, err := s.engine.CancelInsurance(req.Caller, pathID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"refund": refund})
}

type fileClaimRequest struct {
	Caller   string `json:"caller"`
	Amount   uint64 `json:"amount"`
	Evidence string `json:"evidence"`
}

func (s *Server) handleFileClaim(w http.ResponseWriter, r *http.Request) {
	var req fileClaimRequest
	if !s.decode(w, r, &req) {
		return
	}
	claim, err := s.engine.FileClaim(req.Caller, pathID(r), req.Amount, req.Evidence)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, claim)
}

func (s *Server) handleProcessClaim(w http.ResponseWriter, r *http.Request) {
	payout, err := s.engine.ProcessClaim(pathID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"payout": payout})
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := s.engine.Claim(pathID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, claim)
}

// --- staking ---

type stakeRequest struct {
	Caller string `json:"caller"`
	Amount uint64 `json:"amount"`
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if !s.decode(w, r, &req) {
		return
	}
	account, err := s.engine.Stake(req.Caller, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleClaimRewards(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if !s.decode(w, r, &req) {
		return
	}
	reward, err := s.engine.ClaimRewards(req.Caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"reward": reward})
}

func (s *Server) handleGetStakingAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.engine.StakingAccount(mux.Vars(r)["owner"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

// --- migration ---

type migrateRequest struct {
	Caller string `json:"caller"`
	Amount uint64 `json:"amount"`
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if !s.decode(w, r, &req) {
		return
	}
	newAmount, err := s.engine.Migrate(req.Caller, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"new_amount": newAmount})
}

func (s *Server) handleGetMigration(w http.ResponseWriter, r *http.Request) {
	view, ok := s.engine.MigrationState()
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no migration configured"})
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// --- governance ---

type proposerRequest struct {
	Proposer string `json:"proposer"`
}

func (s *Server) handleProposeLottery(w http.ResponseWriter, r *http.Request) {
	var req proposerRequest
	if !s.decode(w, r, &req) {
		return
	}
	vote, err := s.engine.ProposeLottery(req.Proposer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, vote)
}

type parameterChangeRequest struct {
	Proposer string                 `json:"proposer"`
	Field    string                 `json:"field"`
	Value    uint64                 `json:"value"`
	Percents *protocol.PoolPercents `json:"percents,omitempty"`
}

func (s *Server) handleProposeParameterChange(w http.ResponseWriter, r *http.Request) {
	var req parameterChangeRequest
	if !s.decode(w, r, &req) {
		return
	}
	field, ok := parseParamField(req.Field)
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown parameter field"})
		return
	}
	change := state.ParamChange{Field: field, Value: req.Value}
	if req.Percents != nil {
		change.Pcts = *req.Percents
	}
	vote, err := s.engine.ProposeParameterChange(req.Proposer, change)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, vote)
}

func parseParamField(name string) (state.ParamField, bool) {
	switch name {
	case "pool_percents":
		return state.FieldPoolPercents, true
	case "min_coverage":
		return state.FieldMinCoverage, true
	case "min_stake":
		return state.FieldMinStake, true
	case "min_vote_stake":
		return state.FieldMinVoteStake, true
	case "min_lottery_prize":
		return state.FieldMinLotteryPrize, true
	case "min_lottery_premium":
		return state.FieldMinLotteryPremium, true
	default:
		return 0, false
	}
}

type castVoteRequest struct {
	Voter   string `json:"voter"`
	Approve bool   `json:"approve"`
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req castVoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.CastVote(req.Voter, pathID(r), req.Approve); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleExecuteProposal(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.ExecuteProposal(req.Caller, pathID(r)); err != nil {
		s.writeError(w, err)
		return
	}
	vote, err := s.engine.Proposal(pathID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, vote)
}

// --- buyback, risk, price ---

type buybackRequest struct {
	Caller string `json:"caller"`
	Amount uint64 `json:"amount"`
}

func (s *Server) handleExecuteBuyback(w http.ResponseWriter, r *http.Request) {
	var req buybackRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.ExecuteBuyback(req.Caller, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "burned"})
}

func (s *Server) handleAnalyzeToken(w http.ResponseWriter, r *http.Request) {
	caller := r.URL.Query().Get("caller")
	if caller == "" {
		caller = "api"
	}
	report, err := s.engine.AnalyzeToken(caller, mux.Vars(r)["token"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.UpdatePrice(req.Caller); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// --- reads ---

func (s *Server) handleGetProtocol(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.ProtocolState())
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Policies())
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := s.engine.Policy(pathID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, policy)
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Proposals())
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	vote, err := s.engine.Proposal(pathID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, vote)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.queries == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "audit log unavailable"})
		return
	}
	q := r.URL.Query()
	after, _ := strconv.ParseUint(q.Get("after"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	events, err := s.queries.Events(r.Context(), query.EventFilter{
		Kind:          q.Get("kind"),
		Actor:         q.Get("actor"),
		AfterSequence: after,
		Limit:         limit,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

// handleEventStatus reports the engine's live sequence against the
// highest persisted one, so callers can see the durability lag.
func (s *Server) handleEventStatus(w http.ResponseWriter, r *http.Request) {
	if s.queries == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "audit log unavailable"})
		return
	}
	persisted, err := s.queries.LastSequence(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{
		"engine_sequence":    s.engine.Sequence(),
		"persisted_sequence": persisted,
	})
}

func (s *Server) handleActorEvents(w http.ResponseWriter, r *http.Request) {
	if s.queries == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "audit log unavailable"})
		return
	}
	q := r.URL.Query()
	after, _ := strconv.ParseUint(q.Get("after"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	events, err := s.queries.ActorHistory(r.Context(), mux.Vars(r)["actor"], limit, after)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

// --- plumbing ---

func pathID(r *http.Request) uint64 {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return id
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("response encode failed")
	}
}

// writeError maps engine error kinds to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, protocol.ErrPolicyNotFound),
		errors.Is(err, protocol.ErrClaimNotFound),
		errors.Is(err, protocol.ErrVoteNotFound),
		errors.Is(err, protocol.ErrStakeNotFound):
		return http.StatusNotFound

	case errors.Is(err, protocol.ErrInvalidAmount),
		errors.Is(err, protocol.ErrInvalidDuration),
		errors.Is(err, protocol.ErrInvalidPercentages),
		errors.Is(err, protocol.ErrInvalidIndex),
		errors.Is(err, protocol.ErrCoverageTooSmall),
		errors.Is(err, protocol.ErrStakeTooSmall),
		errors.Is(err, math.ErrOverflow),
		errors.Is(err, math.ErrUnderflow),
		errors.Is(err, math.ErrDivByZero):
		return http.StatusBadRequest

	case errors.Is(err, protocol.ErrInsufficientPool),
		errors.Is(err, protocol.ErrZeroReward),
		errors.Is(err, protocol.ErrZeroPayout),
		errors.Is(err, protocol.ErrLotteryTooSmall),
		errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity

	case errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrInvalidExponent),
		errors.Is(err, oracle.ErrNonPositivePrice),
		errors.Is(err, oracle.ErrInvalidRandomness),
		errors.Is(err, oracle.ErrRiskScoreRange):
		return http.StatusBadGateway

	default:
		// State errors (inactive, expired, already voted, cooldown).
		return http.StatusConflict
	}
}
