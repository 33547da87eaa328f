package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Naser58164/praxis-medius/internal/archive"
	"github.com/Naser58164/praxis-medius/internal/domain"
	"github.com/Naser58164/praxis-medius/internal/registry"
	"github.com/Naser58164/praxis-medius/internal/scenario"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ResultsArchive 已清理会话的结果查询（由 archive.Archiver 实现）
type ResultsArchive interface {
	Get(ctx context.Context, sessionID string) (*archive.Record, error)
}

// SessionHandler 会话引导接口；实时交互走 /ws
type SessionHandler struct {
	registry *registry.Registry
	catalog  *scenario.Catalog
	archive  ResultsArchive
	logger   *zap.Logger
}

// NewSessionHandler archive 可为 nil
func NewSessionHandler(reg *registry.Registry, catalog *scenario.Catalog, archiver ResultsArchive, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{registry: reg, catalog: catalog, archive: archiver, logger: logger}
}

// CreateSessionRequest POST /api/sessions 请求体
type CreateSessionRequest struct {
	ScenarioID string `json:"scenarioId"`
	Version    int    `json:"version,omitempty"`
}

// CreateSessionResponse 新会话
type CreateSessionResponse struct {
	SessionID       string `json:"sessionId"`
	JoinCode        string `json:"joinCode"`
	ScenarioID      string `json:"scenarioId"`
	ScenarioVersion int    `json:"scenarioVersion"`
}

// ResultsResponse 会话结果；Archived 表示来自归档
type ResultsResponse struct {
	SessionID string        `json:"sessionId"`
	Status    domain.Status `json:"status"`
	Archived  bool          `json:"archived"`
	Results   any           `json:"results"`
}

// Create POST /api/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, err)
		return
	}
	req.ScenarioID = strings.TrimSpace(req.ScenarioID)
	if req.ScenarioID == "" {
		writeError(w, fmt.Errorf("%w: scenarioId is required", domain.ErrValidation))
		return
	}

	var (
		sc  *domain.Scenario
		err error
	)
	if req.Version > 0 {
		sc, err = h.catalog.GetVersion(r.Context(), req.ScenarioID, req.Version)
	} else {
		sc, err = h.catalog.Get(r.Context(), req.ScenarioID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	s, err := h.registry.CreateSession(sc)
	if err != nil {
		h.logger.Error("Failed to create session", zap.String("scenario_id", sc.ID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(CreateSessionResponse{
		SessionID:       s.ID(),
		JoinCode:        s.JoinCode(),
		ScenarioID:      sc.ID,
		ScenarioVersion: sc.Version,
	}))
}

// List GET /api/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.registry.ListSessions()))
}

// Get GET /api/sessions/{id}，id 可以是加入码；返回考生视角的快照
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := s.Snapshot(domain.RoleExaminee)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(snap))
}

// Results GET /api/sessions/{id}/results，会话已被清理时查归档
func (h *SessionHandler) Results(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.registry.Lookup(id)
	if err == nil {
		res := s.Results()
		writeJSON(w, http.StatusOK, Ok(ResultsResponse{
			SessionID: s.ID(),
			Status:    s.Status(),
			Results:   &res,
		}))
		return
	}
	if !errors.Is(err, domain.ErrNotFound) || h.archive == nil {
		writeError(w, err)
		return
	}

	rec, aerr := h.archive.Get(r.Context(), id)
	if aerr != nil {
		writeError(w, aerr)
		return
	}
	writeJSON(w, http.StatusOK, Ok(ResultsResponse{
		SessionID: rec.SessionID,
		Status:    domain.StatusCompleted,
		Archived:  true,
		Results:   rec.Results,
	}))
}

// Delete DELETE /api/sessions/{id}，幂等
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s, err := h.registry.Lookup(id); err == nil {
		id = s.ID()
	}
	h.registry.DeleteSession(id)
	writeJSON(w, http.StatusOK, Ok[any](nil))
}
