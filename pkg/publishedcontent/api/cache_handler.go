package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/published-content/pkg/publishedcontent"
	"github.com/tendant/published-content/pkg/publishedcontent/warmup"
)

// InvalidateRequest is the request body for POST /cache/invalidate. An empty id list clears
// the process and snapshot tiers.
type InvalidateRequest struct {
	IDs []int `json:"ids"`
}

// InvalidateResponse reports how many cache entries were dropped
type InvalidateResponse struct {
	Entries int `json:"entries"`
}

// WarmResponse is the response body for POST /cache/warm
type WarmResponse struct {
	Preview        bool  `json:"preview"`
	TotalFound     int64 `json:"total_found"`
	TotalProcessed int64 `json:"total_processed"`
	TotalFailed    int64 `json:"total_failed"`
	FailedIDs      []int `json:"failed_ids,omitempty"`
}

// CacheHandler exposes cache administration.
type CacheHandler struct {
	cache  *publishedcontent.Cache
	logger *slog.Logger
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(cache *publishedcontent.Cache, logger *slog.Logger) *CacheHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheHandler{cache: cache, logger: logger}
}

// Routes returns the routes for cache administration
func (h *CacheHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/reload", h.Reload)
	r.Post("/invalidate", h.Invalidate)
	r.Post("/warm", h.Warm)
	r.Get("/stats", h.Stats)

	return r
}

// Reload handles POST /cache/reload
func (h *CacheHandler) Reload(w http.ResponseWriter, r *http.Request) {
	result, err := h.cache.Reload(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to reload cache", "err", err)
		http.Error(w, "Failed to reload cache: "+err.Error(), statusFor(err))
		return
	}
	render.JSON(w, r, result)
}

// Invalidate handles POST /cache/invalidate
func (h *CacheHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	var n int
	if len(req.IDs) == 0 {
		n = h.cache.InvalidateAll(r.Context())
	} else {
		n = h.cache.Invalidate(r.Context(), req.IDs...)
	}
	render.JSON(w, r, InvalidateResponse{Entries: n})
}

// Warm handles POST /cache/warm. It converts every property of the current snapshot.
func (h *CacheHandler) Warm(w http.ResponseWriter, r *http.Request) {
	preview := previewRequested(r)
	result, err := warmup.Warm(r.Context(), h.cache, preview, h.logger)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to warm cache", "err", err)
		http.Error(w, "Failed to warm cache: "+err.Error(), statusFor(err))
		return
	}
	render.JSON(w, r, WarmResponse{
		Preview:        preview,
		TotalFound:     result.TotalFound,
		TotalProcessed: result.TotalProcessed,
		TotalFailed:    result.TotalFailed,
		FailedIDs:      result.FailedIDs,
	})
}

// Stats handles GET /cache/stats
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.cache.Stats())
}
