package httpapi

import (
	"net/http"

	"github.com/Naser58164/praxis-medius/internal/domain"
	"github.com/Naser58164/praxis-medius/internal/scenario"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ScenarioHandler 场景库接口
type ScenarioHandler struct {
	catalog *scenario.Catalog
	logger  *zap.Logger
}

func NewScenarioHandler(catalog *scenario.Catalog, logger *zap.Logger) *ScenarioHandler {
	return &ScenarioHandler{catalog: catalog, logger: logger}
}

// List GET /api/scenarios
func (h *ScenarioHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list scenarios", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(list))
}

// Get GET /api/scenarios/{id}[?version=N]
func (h *ScenarioHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var (
		sc  *domain.Scenario
		err error
	)
	if version := parseInt(r.URL.Query().Get("version"), 0); version > 0 {
		sc, err = h.catalog.GetVersion(r.Context(), id, version)
	} else {
		sc, err = h.catalog.Get(r.Context(), id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(sc))
}

// Create POST /api/scenarios
func (h *ScenarioHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.Scenario
	if err := readBodyJSON(r, maxBodyBytes, &in); err != nil {
		writeError(w, err)
		return
	}
	sc, err := h.catalog.Create(r.Context(), &in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(sc))
}

// Update PUT /api/scenarios/{id}，保存为新版本
func (h *ScenarioHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in domain.Scenario
	if err := readBodyJSON(r, maxBodyBytes, &in); err != nil {
		writeError(w, err)
		return
	}
	sc, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), &in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(sc))
}

// Delete DELETE /api/scenarios/{id}
func (h *ScenarioHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}
