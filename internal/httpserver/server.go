package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/talentlink/caseflow/internal/archive"
	"github.com/talentlink/caseflow/internal/config"
	"github.com/talentlink/caseflow/internal/engine"
	"github.com/talentlink/caseflow/internal/events"
	"github.com/talentlink/caseflow/internal/store"
)

// Server is the thin controller layer over the transition engine. Publisher
// and archiver are optional collaborators; when nil the corresponding
// fan-out is skipped.
type Server struct {
	cfg       config.Config
	engine    *engine.Engine
	store     store.Store
	publisher events.Publisher
	archiver  archive.Archiver
}

func New(cfg config.Config, eng *engine.Engine, st store.Store, pub events.Publisher, arch archive.Archiver) *Server {
	return &Server{cfg: cfg, engine: eng, store: st, publisher: pub, archiver: arch}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/cases", func(r chi.Router) {
		r.Get("/{id}/history", s.handleHistory)
		r.Group(func(r chi.Router) {
			r.Use(s.writeAuth)
			r.Post("/status/check", s.handleStatusCheck)
			r.Post("/status/change", s.handleStatusChange)
			r.Post("/invalid-batch", s.handleInvalidBatch)
			r.Post("/history/remark", s.handleRemarkUpdate)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if err := s.store.Ping(ctx); err != nil {
		status["ok"] = false
		status["db"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

type statusCheckRequest struct {
	CaseID       int64  `json:"caseId"`
	BeforeStatus string `json:"beforeStatus"`
	AfterStatus  string `json:"afterStatus"`
}

func (s *Server) handleStatusCheck(w http.ResponseWriter, r *http.Request) {
	var req statusCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	check, err := s.engine.PreflightCheck(r.Context(), req.CaseID, req.BeforeStatus, req.AfterStatus)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if check.Suggestions == nil {
		check.Suggestions = []string{}
	}
	respondJSON(w, http.StatusOK, check)
}

type statusChangeRequest struct {
	CaseID       int64  `json:"caseId"`
	BeforeStatus string `json:"beforeStatus"`
	AfterStatus  string `json:"afterStatus"`
}

func (s *Server) handleStatusChange(w http.ResponseWriter, r *http.Request) {
	var req statusChangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.engine.ApplyTransition(r.Context(), req.CaseID, req.BeforeStatus, req.AfterStatus)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	s.fanOut(r.Context(), req, result)
	if result.ClosedCaseIDs == nil {
		result.ClosedCaseIDs = []int64{}
	}
	respondJSON(w, http.StatusOK, result)
}

// fanOut emits the committed transition to the optional collaborators. The
// transition itself has already been persisted, so failures here are logged
// and swallowed.
func (s *Server) fanOut(ctx context.Context, req statusChangeRequest, result engine.TransitionResult) {
	if s.publisher == nil && s.archiver == nil {
		return
	}
	c, err := s.store.GetCase(ctx, req.CaseID)
	if err != nil {
		log.Printf("[fanout] load case %d: %v", req.CaseID, err)
		return
	}
	now := time.Now().UTC()
	if s.publisher != nil {
		ev := events.StatusChanged{
			CaseID:        c.ID,
			SupplyID:      c.SupplyID,
			Before:        req.BeforeStatus,
			After:         req.AfterStatus,
			ClosedCaseIDs: result.ClosedCaseIDs,
			OccurredAt:    now,
		}
		if err := s.publisher.PublishStatusChanged(ctx, ev); err != nil {
			log.Printf("[fanout] publish status change for case %d: %v", c.ID, err)
		}
	}
	if s.archiver != nil {
		rec := archive.TransitionRecord{
			CaseID:        c.ID,
			SupplyID:      c.SupplyID,
			Before:        req.BeforeStatus,
			After:         req.AfterStatus,
			HistoryID:     result.HistoryID,
			ClosedCaseIDs: result.ClosedCaseIDs,
			Message:       result.Message,
			OccurredAt:    now,
		}
		if err := s.archiver.ArchiveTransition(ctx, rec); err != nil {
			log.Printf("[fanout] archive transition for case %d: %v", c.ID, err)
		}
	}
}

type invalidBatchRequest struct {
	CaseIDs    []int64 `json:"caseIds"`
	OwnerID    int64   `json:"ownerId"`
	OwnerTable string  `json:"ownerTable"`
}

func (s *Server) handleInvalidBatch(w http.ResponseWriter, r *http.Request) {
	var req invalidBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.CaseInvalidBatch(r.Context(), req.CaseIDs, req.OwnerID, req.OwnerTable); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type remarkUpdateRequest struct {
	CaseID    int64  `json:"caseId"`
	HistoryID int64  `json:"historyId"`
	Remark    string `json:"remark"`
}

func (s *Server) handleRemarkUpdate(w http.ResponseWriter, r *http.Request) {
	var req remarkUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.UpdateHistoryRemark(r.Context(), req.CaseID, req.HistoryID, req.Remark); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid case id")
		return
	}
	activeOnly := r.URL.Query().Get("activeOnly") == "true"
	entries, err := s.store.ListHistory(r.Context(), id, activeOnly)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// respondEngineError maps the engine's error taxonomy onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	var (
		validationErr *engine.ValidationError
		conflictErr   *engine.ConflictError
		notFoundErr   *engine.NotFoundError
		inputErr      *engine.InputError
	)
	switch {
	case errors.As(err, &validationErr):
		suggestions := validationErr.Suggestions
		if suggestions == nil {
			suggestions = []string{}
		}
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":       validationErr.Reason,
			"suggestions": suggestions,
		})
	case errors.As(err, &conflictErr):
		respondError(w, http.StatusConflict, conflictErr.Message)
	case errors.As(err, &notFoundErr):
		respondError(w, http.StatusNotFound, notFoundErr.Message)
	case errors.As(err, &inputErr):
		respondError(w, http.StatusBadRequest, inputErr.Message)
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
