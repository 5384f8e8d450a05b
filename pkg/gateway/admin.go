package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/maiserv/llamagate/pkg/llamacpp"
)

// handleAdminState serves the current process state.
func (h *Handler) handleAdminState(w http.ResponseWriter, r *http.Request) {
	state, err := h.controller.State(r.Context())
	if err != nil {
		http.Error(w, "backend unavailable", http.StatusInternalServerError)
		return
	}
	h.writeState(w, state)
}

// handleAdminStart launches (or swaps to) the posted run configuration and
// replies with the observed state.
func (h *Handler) handleAdminStart(w http.ResponseWriter, r *http.Request) {
	var dto llamacpp.RunConfigDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, "invalid run configuration", http.StatusUnprocessableEntity)
		return
	}

	config, err := dto.ToRunConfig(h.settings.APIKey())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if err := h.controller.Start(r.Context(), config); err != nil {
		http.Error(w, "backend unavailable", http.StatusInternalServerError)
		return
	}

	state, err := h.controller.State(r.Context())
	if err != nil {
		http.Error(w, "backend unavailable", http.StatusInternalServerError)
		return
	}
	h.writeState(w, state)
}

// handleAdminStop stops the backend process.
func (h *Handler) handleAdminStop(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Stop(r.Context()); err != nil {
		http.Error(w, "backend unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeState(w http.ResponseWriter, state llamacpp.State) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(llamacpp.StateDTO{State: state}); err != nil {
		h.log.Errorf("failed to encode process state: %v", err)
	}
}
