package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/hotspot/internal/model"
	"github.com/sells-group/hotspot/internal/store"
)

type addPageRequest struct {
	URL    string            `json:"url"`
	Config *model.PageConfig `json:"config,omitempty"`
}

type funnelQuery struct {
	MaxDepth *int `schema:"max_depth"`
}

type viewQuery struct {
	NoCache bool `schema:"nocache"`
}

type funnelResponse struct {
	ID   string              `json:"id"`
	Path []model.PageSummary `json:"path"`
}

type hotspotResponse struct {
	Category   string      `json:"category"`
	Tracked    bool        `json:"tracked"`
	Activation [][]float64 `json:"activation"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"live":   h.svc.LiveCount(),
	})
}

func (h *Handler) listPages(w http.ResponseWriter, r *http.Request) {
	var filter store.ListFilter
	if err := h.queries.Decode(&filter, r.URL.Query()); err != nil {
		badRequest(w, "invalid query: "+err.Error())
		return
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		badRequest(w, "limit and offset must not be negative")
		return
	}
	pages, err := h.svc.ListPages(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if pages == nil {
		pages = []model.PageSummary{}
	}
	writeJSON(w, http.StatusOK, pages)
}

func (h *Handler) addPage(w http.ResponseWriter, r *http.Request) {
	var req addPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.URL == "" {
		badRequest(w, "url is required")
		return
	}
	p, err := h.svc.AddPage(r.Context(), req.URL, req.Config)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) getPage(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) removePage(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.RemovePage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) funnel(w http.ResponseWriter, r *http.Request) {
	var q funnelQuery
	if err := h.queries.Decode(&q, r.URL.Query()); err != nil {
		badRequest(w, "invalid query: "+err.Error())
		return
	}
	depth := -1
	if q.MaxDepth != nil {
		depth = *q.MaxDepth
	}
	id := chi.URLParam(r, "id")
	path, err := h.svc.GetFunnel(r.Context(), id, depth)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := funnelResponse{ID: id, Path: make([]model.PageSummary, len(path))}
	for i, p := range path {
		resp.Path[i] = p.Summary()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) hotspot(w http.ResponseWriter, r *http.Request) {
	cat, err := model.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	act, ok, err := h.svc.GetActivation(r.Context(), chi.URLParam(r, "id"), cat)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hotspotResponse{Category: cat.String(), Tracked: ok, Activation: act})
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) {
	var q viewQuery
	if err := h.queries.Decode(&q, r.URL.Query()); err != nil {
		badRequest(w, "invalid query: "+err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	p, err := h.svc.GetPage(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	img, err := h.svc.View(r.Context(), id, q.NoCache)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p.Config.View.Encoding == model.EncodingBase64 {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "image/jpeg")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}
