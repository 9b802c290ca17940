package rpc

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lienchain/native/conversion"
	"lienchain/native/mortgage"
)

// Server exposes the read accessors of the position ledger and settlement
// queues for operational tooling. All endpoints are read-only; mutations flow
// through the orchestration layer, never over HTTP.
type Server struct {
	ledger   *mortgage.Ledger
	registry *conversion.Registry
	params   mortgage.Config
	logger   *slog.Logger
}

// NewServer wires the read API to the ledger, queue registry and the
// protocol parameters orchestration runs with.
func NewServer(ledger *mortgage.Ledger, registry *conversion.Registry, params mortgage.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	params.EnsureDefaults()
	return &Server{ledger: ledger, registry: registry, params: params.Clone(), logger: logger}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/params", s.handleParams)
		r.Get("/positions", s.handlePositionCount)
		r.Get("/positions/{id}", s.handlePosition)
		r.Get("/queues", s.handleQueues)
		r.Get("/queues/{collateral}", s.handleQueue)
		r.Get("/queues/{collateral}/deliverable", s.handleDeliverable)
	})
	return r
}

type positionView struct {
	ID                  string `json:"id"`
	Collateral          string `json:"collateral"`
	CollateralDecimals  uint8  `json:"collateralDecimals"`
	CollateralAmount    string `json:"collateralAmount"`
	CollateralConverted string `json:"collateralConverted"`
	RateBps             uint64 `json:"rateBps"`
	PremiumBps          uint64 `json:"premiumBps"`
	Originated          int64  `json:"originated"`
	TermOriginated      int64  `json:"termOriginated"`
	TermBalance         string `json:"termBalance"`
	AmountBorrowed      string `json:"amountBorrowed"`
	AmountPrior         string `json:"amountPrior"`
	TermPaid            string `json:"termPaid"`
	TermConverted       string `json:"termConverted"`
	PenaltyAccrued      string `json:"penaltyAccrued"`
	PenaltyPaid         string `json:"penaltyPaid"`
	PaymentsMissed      uint64 `json:"paymentsMissed"`
	PeriodDuration      int64  `json:"periodDuration"`
	TotalPeriods        uint64 `json:"totalPeriods"`
	HasPaymentPlan      bool   `json:"hasPaymentPlan"`
	Status              string `json:"status"`
	PrincipalRemaining  string `json:"principalRemaining"`
	TriggerPrice        string `json:"triggerPrice"`
}

type queueView struct {
	Collateral string            `json:"collateral"`
	SupplyLen  int               `json:"supplyLen"`
	DemandLen  int               `json:"demandLen"`
	FeeEscrow  string            `json:"feeEscrow"`
	Supply     []supplyEntryView `json:"supply"`
	Demand     []demandEntryView `json:"demand"`
}

type supplyEntryView struct {
	PositionID   string `json:"positionId"`
	TriggerPrice string `json:"triggerPrice"`
}

type demandEntryView struct {
	ID          string `json:"id"`
	Requester   string `json:"requester"`
	Amount      string `json:"amount"`
	Filled      string `json:"filled"`
	RequestedAt int64  `json:"requestedAt"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePositionCount(w http.ResponseWriter, _ *http.Request) {
	count, err := s.ledger.Count()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != 32 {
		s.writeError(w, http.StatusBadRequest, errInvalidPositionID)
		return
	}
	var id [32]byte
	copy(id[:], decoded)
	position, ok, err := s.ledger.Get(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, toPositionView(position))
}

func (s *Server) handleQueues(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"collaterals": s.registry.Collaterals()})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.registry.Get(chi.URLParam(r, "collateral"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	view := queueView{
		Collateral: engine.Collateral(),
		SupplyLen:  engine.SupplyLen(),
		DemandLen:  engine.DemandLen(),
		FeeEscrow:  engine.FeeEscrow().String(),
	}
	for _, entry := range engine.SupplyEntries() {
		view.Supply = append(view.Supply, supplyEntryView{
			PositionID:   hex.EncodeToString(entry.PositionID[:]),
			TriggerPrice: entry.TriggerPrice.String(),
		})
	}
	for _, request := range engine.DemandRequests() {
		view.Demand = append(view.Demand, demandEntryView{
			ID:          request.ID,
			Requester:   request.Requester.String(),
			Amount:      request.Amount.String(),
			Filled:      request.Filled.String(),
			RequestedAt: request.RequestedAt,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

type paramsView struct {
	MinimumPrincipalWei string `json:"minimumPrincipalWei"`
	PenaltyRateBps      uint64 `json:"penaltyRateBps"`
	RefinanceRateBps    uint64 `json:"refinanceRateBps"`
	GraceWindowSeconds  int64  `json:"graceWindowSeconds"`
	MaxMissedPayments   uint64 `json:"maxMissedPayments"`
}

// handleParams publishes the lifecycle parameters so keepers and
// orchestration agree on penalty, refinance and foreclosure settings.
func (s *Server) handleParams(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, paramsView{
		MinimumPrincipalWei: bigString(s.params.MinimumPrincipalWei),
		PenaltyRateBps:      s.params.PenaltyRateBps,
		RefinanceRateBps:    s.params.RefinanceRateBps,
		GraceWindowSeconds:  s.params.GraceWindowSeconds,
		MaxMissedPayments:   s.params.MaxMissedPayments,
	})
}

func (s *Server) handleDeliverable(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.registry.Get(chi.URLParam(r, "collateral"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	limit := uint64(64)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		limit = parsed
	}
	deliverable, err := engine.Deliverable(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"deliverable": deliverable})
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Error("rpc request failed", "status", status, "err", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var errInvalidPositionID = jsonError("position id must be 32 hex-encoded bytes")

type jsonError string

func (e jsonError) Error() string { return string(e) }

func toPositionView(p *mortgage.Position) positionView {
	return positionView{
		ID:                  hex.EncodeToString(p.ID[:]),
		Collateral:          p.Collateral,
		CollateralDecimals:  p.CollateralDecimals,
		CollateralAmount:    bigString(p.CollateralAmount),
		CollateralConverted: bigString(p.CollateralConverted),
		RateBps:             p.RateBps,
		PremiumBps:          p.PremiumBps,
		Originated:          p.Originated,
		TermOriginated:      p.TermOriginated,
		TermBalance:         bigString(p.TermBalance),
		AmountBorrowed:      bigString(p.AmountBorrowed),
		AmountPrior:         bigString(p.AmountPrior),
		TermPaid:            bigString(p.TermPaid),
		TermConverted:       bigString(p.TermConverted),
		PenaltyAccrued:      bigString(p.PenaltyAccrued),
		PenaltyPaid:         bigString(p.PenaltyPaid),
		PaymentsMissed:      p.PaymentsMissed,
		PeriodDuration:      p.PeriodDuration,
		TotalPeriods:        p.TotalPeriods,
		HasPaymentPlan:      p.HasPaymentPlan,
		Status:              p.Status.String(),
		PrincipalRemaining:  p.PrincipalRemaining().String(),
		TriggerPrice:        p.TriggerPrice().String(),
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
