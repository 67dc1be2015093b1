package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

const maxContentsPerRequest = 100

// ContentResponse is the response body for a content item
type ContentResponse struct {
	ID          int            `json:"id"`
	Key         string         `json:"key,omitempty"`
	ParentID    int            `json:"parent_id"`
	Level       int            `json:"level"`
	SortOrder   int            `json:"sort_order"`
	Name        string         `json:"name"`
	ContentType string         `json:"content_type"`
	Path        string         `json:"path"`
	CreateDate  time.Time      `json:"create_date"`
	UpdateDate  time.Time      `json:"update_date"`
	Preview     bool           `json:"preview"`
	Properties  map[string]any `json:"properties"`
}

// PropertyResponse is the response body for a single property
type PropertyResponse struct {
	ContentID  int    `json:"content_id"`
	Alias      string `json:"alias"`
	Editor     string `json:"editor"`
	CacheLevel string `json:"cache_level"`
	HasValue   bool   `json:"has_value"`
	Source     string `json:"source"`
	Value      any    `json:"value"`
}

// RawValueResponse is the response body for a raw value read
type RawValueResponse struct {
	ContentID int    `json:"content_id"`
	Alias     string `json:"alias"`
	Preview   bool   `json:"preview"`
	Value     string `json:"value"`
}

func toContentResponse(c *publishedcontent.Content) ContentResponse {
	resp := ContentResponse{
		ID:          c.ID(),
		ParentID:    c.ParentID(),
		Level:       c.Level(),
		SortOrder:   c.SortOrder(),
		Name:        c.Name(),
		ContentType: c.ContentTypeAlias(),
		Path:        c.Path(),
		CreateDate:  c.CreateDate(),
		UpdateDate:  c.UpdateDate(),
		Preview:     c.Preview(),
		Properties:  make(map[string]any),
	}
	if c.Key() != uuid.Nil {
		resp.Key = c.Key().String()
	}
	for _, p := range c.Properties() {
		resp.Properties[p.Alias()] = p.Value()
	}
	return resp
}

func toContentResponses(list []*publishedcontent.Content) []ContentResponse {
	resp := make([]ContentResponse, 0, len(list))
	for _, c := range list {
		resp = append(resp, toContentResponse(c))
	}
	return resp
}

// ContentHandler serves published content through the view of the request.
type ContentHandler struct {
	cache  *publishedcontent.Cache
	logger *slog.Logger
}

// NewContentHandler creates a new content handler
func NewContentHandler(cache *publishedcontent.Cache, logger *slog.Logger) *ContentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentHandler{cache: cache, logger: logger}
}

// Routes returns the routes for content. They expect ViewMiddleware upstream.
func (h *ContentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.GetContents)
	r.Get("/root", h.GetRoot)
	r.Get("/{id}", h.GetContent)
	r.Get("/{id}/children", h.GetChildren)
	r.Get("/{id}/properties/{alias}", h.GetProperty)

	return r
}

// RawRoutes returns the raw value routes
func (h *ContentHandler) RawRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}/{alias}", h.GetRawValue)
	return r
}

// GetContent handles GET /content/{id}. The id is a numeric id or a content key.
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	view, ok := viewFrom(w, r)
	if !ok {
		return
	}

	idParam := chi.URLParam(r, "id")
	var (
		content *publishedcontent.Content
		err     error
	)
	if id, convErr := strconv.Atoi(idParam); convErr == nil {
		content, err = view.Content(id)
	} else if key, parseErr := uuid.Parse(idParam); parseErr == nil {
		content, err = view.ContentByKey(key)
	} else {
		http.Error(w, "Invalid content ID", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeError(w, r, "Failed to get content", err)
		return
	}

	render.JSON(w, r, toContentResponse(content))
}

// GetContents handles GET /content?id=1,2&id=3. Missing ids are skipped.
func (h *ContentHandler) GetContents(w http.ResponseWriter, r *http.Request) {
	view, ok := viewFrom(w, r)
	if !ok {
		return
	}

	var ids []int
	for _, param := range r.URL.Query()["id"] {
		for _, s := range strings.Split(param, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			id, err := strconv.Atoi(s)
			if err != nil {
				http.Error(w, "Invalid content ID: "+s, http.StatusBadRequest)
				return
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		http.Error(w, "At least one id is required", http.StatusBadRequest)
		return
	}
	if len(ids) > maxContentsPerRequest {
		http.Error(w, "Too many ids, maximum is "+strconv.Itoa(maxContentsPerRequest), http.StatusBadRequest)
		return
	}

	list, err := view.ContentMany(ids...)
	if err != nil {
		h.writeError(w, r, "Failed to get contents", err)
		return
	}
	render.JSON(w, r, toContentResponses(list))
}

// GetRoot handles GET /content/root
func (h *ContentHandler) GetRoot(w http.ResponseWriter, r *http.Request) {
	view, ok := viewFrom(w, r)
	if !ok {
		return
	}
	list, err := view.ContentAtRoot()
	if err != nil {
		h.writeError(w, r, "Failed to get root content", err)
		return
	}
	render.JSON(w, r, toContentResponses(list))
}

// GetChildren handles GET /content/{id}/children
func (h *ContentHandler) GetChildren(w http.ResponseWriter, r *http.Request) {
	view, ok := viewFrom(w, r)
	if !ok {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid content ID", http.StatusBadRequest)
		return
	}
	list, err := view.Children(id)
	if err != nil {
		h.writeError(w, r, "Failed to get children", err)
		return
	}
	render.JSON(w, r, toContentResponses(list))
}

// GetProperty handles GET /content/{id}/properties/{alias}
func (h *ContentHandler) GetProperty(w http.ResponseWriter, r *http.Request) {
	view, ok := viewFrom(w, r)
	if !ok {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid content ID", http.StatusBadRequest)
		return
	}
	alias := chi.URLParam(r, "alias")

	p, err := view.Property(id, alias)
	if err != nil {
		h.writeError(w, r, "Failed to get property", err)
		return
	}

	pt := p.PropertyType()
	render.JSON(w, r, PropertyResponse{
		ContentID:  id,
		Alias:      p.Alias(),
		Editor:     pt.EditorAlias(),
		CacheLevel: pt.CacheLevel().String(),
		HasValue:   p.HasValue(),
		Source:     p.SourceValue(),
		Value:      p.Value(),
	})
}

// GetRawValue handles GET /raw/{id}/{alias}
func (h *ContentHandler) GetRawValue(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid content ID", http.StatusBadRequest)
		return
	}
	alias := chi.URLParam(r, "alias")
	preview := previewRequested(r)

	value, err := h.cache.GetRawValue(r.Context(), id, alias, preview)
	if err != nil {
		h.writeError(w, r, "Failed to get raw value", err)
		return
	}
	render.JSON(w, r, RawValueResponse{ContentID: id, Alias: alias, Preview: preview, Value: value})
}

// writeError maps pipeline errors to status codes.
func (h *ContentHandler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), msg, "err", err)
	}
	http.Error(w, msg+": "+err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, publishedcontent.ErrContentNotFound),
		errors.Is(err, publishedcontent.ErrRawValueNotFound):
		return http.StatusNotFound
	case errors.Is(err, publishedcontent.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, publishedcontent.ErrSnapshotNotLoaded),
		errors.Is(err, publishedcontent.ErrCacheClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
