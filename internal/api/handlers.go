package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/turf/internal/claim"
	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/proximity"
	"github.com/onnwee/turf/internal/session"
	"github.com/onnwee/turf/internal/territory"
)

// SessionStore persists finished sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, sess *session.Session) error
	ListSessions(ctx context.Context, eligibleOnly bool) ([]session.Session, error)
}

// Server bundles the handlers for the territory service API.
type Server struct {
	recorder     *session.Recorder
	synthesizer  *territory.Synthesizer
	orchestrator *claim.Orchestrator
	monitor      *proximity.Monitor
	repo         territory.Repository
	sessions     SessionStore
	logger       *slog.Logger
}

func NewServer(
	recorder *session.Recorder,
	synthesizer *territory.Synthesizer,
	orchestrator *claim.Orchestrator,
	monitor *proximity.Monitor,
	repo territory.Repository,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		recorder:     recorder,
		synthesizer:  synthesizer,
		orchestrator: orchestrator,
		monitor:      monitor,
		repo:         repo,
		logger:       logger,
	}
}

// SetSessionStore enables persistence of finished sessions. When unset,
// sessions live only in memory.
func (s *Server) SetSessionStore(store SessionStore) {
	s.sessions = store
}

// Routes registers all API routes on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", s.handleStartSession)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/current", s.handleCurrentSession)
	mux.HandleFunc("POST /sessions/samples", s.handleIngestSample)
	mux.HandleFunc("POST /sessions/pause", s.handlePauseSession)
	mux.HandleFunc("POST /sessions/resume", s.handleResumeSession)
	mux.HandleFunc("POST /sessions/complete", s.handleCompleteSession)
	mux.HandleFunc("POST /sessions/cancel", s.handleCancelSession)

	mux.HandleFunc("GET /territories", s.handleListTerritories)
	mux.HandleFunc("GET /territories/{id}", s.handleGetTerritory)
	mux.HandleFunc("GET /territories/{id}/cost", s.handleEstimateCost)
	mux.HandleFunc("POST /territories/{id}/claim", s.handleSubmitClaim)

	mux.HandleFunc("GET /claims/{handle}", s.handleGetClaim)
	mux.HandleFunc("POST /claims/{handle}", s.handleClaimCallback)

	mux.HandleFunc("POST /proximity", s.handleProximity)

	return mux
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var initial session.Sample
	if err := json.NewDecoder(r.Body).Decode(&initial); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid sample payload")
		return
	}
	if initial.Lat < -90 || initial.Lat > 90 || initial.Lng < -180 || initial.Lng > 180 {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "Coordinates out of range")
		return
	}

	sess, err := s.recorder.Start(initial)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyRecording) {
			WriteError(w, r.Context(), http.StatusConflict, ErrCodeSessionActive, "A recording session is already in progress")
			return
		}
		s.internalError(w, r, "failed to start session", err)
		return
	}
	WriteJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		WriteJSON(w, http.StatusOK, []session.Session{})
		return
	}
	eligibleOnly := r.URL.Query().Get("eligible") == "true"
	list, err := s.sessions.ListSessions(r.Context(), eligibleOnly)
	if err != nil {
		s.internalError(w, r, "failed to list sessions", err)
		return
	}
	if list == nil {
		list = []session.Session{}
	}
	WriteJSON(w, http.StatusOK, list)
}

func (s *Server) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.recorder.Active()
	if !ok {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNoSession, "No recording session in progress")
		return
	}
	WriteJSON(w, http.StatusOK, sess)
}

func (s *Server) handleIngestSample(w http.ResponseWriter, r *http.Request) {
	var sample session.Sample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid sample payload")
		return
	}
	if sample.Lat < -90 || sample.Lat > 90 || sample.Lng < -180 || sample.Lng > 180 {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "Coordinates out of range")
		return
	}

	if _, ok := s.recorder.Active(); !ok {
		WriteError(w, r.Context(), http.StatusConflict, ErrCodeNoSession, "No recording session in progress")
		return
	}

	accepted := s.recorder.Ingest(sample)
	WriteJSON(w, http.StatusAccepted, map[string]bool{"accepted": accepted})
}

func (s *Server) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	s.recorder.Pause()
	s.writeSessionState(w, r)
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	s.recorder.Resume()
	s.writeSessionState(w, r)
}

func (s *Server) writeSessionState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.recorder.Active()
	if !ok {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNoSession, "No recording session in progress")
		return
	}
	WriteJSON(w, http.StatusOK, sess)
}

// completeResponse carries the finished session and, when the session
// qualified and synthesis succeeded, the resulting territory.
type completeResponse struct {
	Session   session.Session      `json:"session"`
	Territory *territory.Territory `json:"territory,omitempty"`
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.recorder.Complete()
	if err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			WriteError(w, r.Context(), http.StatusConflict, ErrCodeNoSession, "No recording session in progress")
			return
		}
		s.internalError(w, r, "failed to complete session", err)
		return
	}

	if s.sessions != nil {
		if err := s.sessions.SaveSession(r.Context(), &sess); err != nil {
			s.logger.Error("failed to persist session", "session_id", sess.ID, "error", err)
		}
	}

	resp := completeResponse{Session: sess}
	if sess.TerritoryEligible {
		t, err := s.synthesizer.Synthesize(r.Context(), sess)
		switch {
		case err == nil:
			resp.Territory = &t
		case errors.Is(err, territory.ErrTerritoryConflict):
			WriteError(w, r.Context(), http.StatusConflict, ErrCodeTerritoryConflict, "Route overlaps an existing territory")
			return
		default:
			s.internalError(w, r, "failed to synthesize territory", err)
			return
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	s.recorder.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTerritories(w http.ResponseWriter, r *http.Request) {
	territories := s.repo.Snapshot()

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := territories[:0]
		for _, t := range territories {
			if string(t.Status) == status {
				filtered = append(filtered, t)
			}
		}
		territories = filtered
	}
	if territories == nil {
		territories = []territory.Territory{}
	}
	WriteJSON(w, http.StatusOK, territories)
}

func (s *Server) handleGetTerritory(w http.ResponseWriter, r *http.Request) {
	t, err := s.repo.Get(r.PathValue("id"))
	if err != nil {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Territory not found")
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

func (s *Server) handleEstimateCost(w http.ResponseWriter, r *http.Request) {
	t, err := s.repo.Get(r.PathValue("id"))
	if err != nil {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Territory not found")
		return
	}

	networkID := r.URL.Query().Get("network")
	if networkID == "" {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "Query parameter network is required")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"territory_id": t.ID,
		"network_id":   networkID,
		"cost":         s.orchestrator.EstimateCost(networkID, t.Metadata),
	})
}

type claimRequest struct {
	NetworkID string `json:"network_id"`
}

func (s *Server) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NetworkID == "" {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "network_id is required")
		return
	}

	tx, err := s.orchestrator.SubmitClaim(r.Context(), r.PathValue("id"), req.NetworkID)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusAccepted, tx)
	case errors.Is(err, territory.ErrTerritoryNotFound):
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Territory not found")
	case errors.Is(err, claim.ErrClaimInProgress):
		WriteError(w, r.Context(), http.StatusConflict, ErrCodeClaimInProgress, "Territory already has a pending claim")
	case errors.Is(err, claim.ErrTerritoryNotClaimable):
		WriteError(w, r.Context(), http.StatusConflict, ErrCodeNotClaimable, "Territory is not claimable")
	case errors.Is(err, claim.ErrSettlementUnavailable):
		WriteError(w, r.Context(), http.StatusServiceUnavailable, ErrCodeSettlementUnavailable, "Settlement ledger is unavailable")
	case errors.Is(err, claim.ErrNetworkSwitchRejected):
		WriteError(w, r.Context(), http.StatusBadGateway, ErrCodeSwitchRejected, "Wallet rejected the network switch")
	case errors.Is(err, territory.ErrTerritoryConflict):
		WriteError(w, r.Context(), http.StatusConflict, ErrCodeTerritoryConflict, "Territory conflicts with an existing claim")
	default:
		s.internalError(w, r, "failed to submit claim", err)
	}
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.orchestrator.Transaction(r.PathValue("handle"))
	if !ok {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Transaction not found")
		return
	}
	WriteJSON(w, http.StatusOK, tx)
}

// claimCallback is the settlement notification payload. Status must be
// confirmed or failed.
type claimCallback struct {
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func (s *Server) handleClaimCallback(w http.ResponseWriter, r *http.Request) {
	var cb claimCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid callback payload")
		return
	}

	handle := r.PathValue("handle")
	switch cb.Status {
	case string(claim.TxConfirmed):
		s.orchestrator.OnConfirmed(handle)
	case string(claim.TxFailed):
		s.orchestrator.OnFailed(handle, cb.ErrorKind)
	default:
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "status must be confirmed or failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type proximityRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (s *Server) handleProximity(w http.ResponseWriter, r *http.Request) {
	var req proximityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid position payload")
		return
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "Coordinates out of range")
		return
	}

	nearby := s.monitor.Update(geo.Point{Lat: req.Lat, Lng: req.Lng})
	if nearby == nil {
		nearby = []proximity.Nearby{}
	}
	WriteJSON(w, http.StatusOK, nearby)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg, "error", err, "path", r.URL.Path)
	WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
}
