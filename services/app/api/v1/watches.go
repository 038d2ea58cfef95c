package v1

import (
	"github.com/forbiddencoding/deal-notifier/services/app/watches"
	"github.com/go-chi/chi/v5"
	"net/http"
)

type WatchHandler struct {
	watchService watches.Servicer
}

func NewWatchHandler(watchService watches.Servicer) *WatchHandler {
	return &WatchHandler{watchService: watchService}
}

func (h *WatchHandler) UpsertWatchPost() http.HandlerFunc {
	type request struct {
		OwnerID  int64    `json:"owner_id,string"`
		Query    string   `json:"query"`
		MaxPrice *float64 `json:"max_price"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if !decode(w, r, &req) {
			return
		}

		res, err := h.watchService.UpsertWatch(r.Context(), &watches.UpsertWatchInput{
			OwnerID:  req.OwnerID,
			Query:    req.Query,
			MaxPrice: req.MaxPrice,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, res)
	}
}

func (h *WatchHandler) ListWatchesGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := parseID(w, chi.URLParam(r, "ownerID"), "owner id")
		if !ok {
			return
		}

		res, err := h.watchService.ListWatches(r.Context(), &watches.ListWatchesInput{OwnerID: ownerID})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

// DeleteWatchDelete removes the watch named by the "query" URL parameter.
func (h *WatchHandler) DeleteWatchDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := parseID(w, chi.URLParam(r, "ownerID"), "owner id")
		if !ok {
			return
		}

		if _, err := h.watchService.DeleteWatch(r.Context(), &watches.DeleteWatchInput{
			OwnerID: ownerID,
			Query:   r.URL.Query().Get("query"),
		}); err != nil {
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
