package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/hotspot/internal/model"
)

// eventRequest is the body of POST /pages/{id}/events. Type selects which of
// the remaining fields are required.
type eventRequest struct {
	Type  string       `json:"type"`
	Event string       `json:"event"`
	Point *model.Point `json:"point"`
	From  string       `json:"from"`
}

func (h *Handler) postEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")

	switch req.Type {
	case "track":
		if req.Event == "" || req.Point == nil {
			badRequest(w, "event and point are required")
			return
		}
		cat, err := model.ParseCategory(req.Event)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		done, err := h.svc.TrackEvent(r.Context(), id, cat, *req.Point)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"done": done})
	case "lead":
		if req.From == "" {
			badRequest(w, "from is required")
			return
		}
		weight, err := h.svc.RecordLead(r.Context(), id, req.From)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"weight": weight})
	default:
		badRequest(w, "type must be track or lead")
	}
}
