// Package mcp exposes the published content cache as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

// Handler implements the content MCP tools over a cache.
type Handler struct {
	cache  *publishedcontent.Cache
	logger *slog.Logger
}

// NewHandler creates a new instance of Handler
func NewHandler(cache *publishedcontent.Cache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cache: cache, logger: logger}
}

// RegisterTools registers the content tools with the MCP server
func (h *Handler) RegisterTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool(
		"content_get",
		mcp.WithDescription("Get a published content item with all of its converted property values."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Content id")),
		mcp.WithBoolean("preview", mcp.Description("Read the draft version instead of the published one")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	), h.handleContentGet)

	s.AddTool(mcp.NewTool(
		"content_property",
		mcp.WithDescription("Get one property of a content item: its raw source, whether it has a value, and the converted value."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Content id")),
		mcp.WithString("alias", mcp.Required(), mcp.Description("Property alias, e.g. 'title'")),
		mcp.WithBoolean("preview", mcp.Description("Read the draft version instead of the published one")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	), h.handleContentProperty)

	s.AddTool(mcp.NewTool(
		"cache_reload",
		mcp.WithDescription("Reload content from the backend and report which content ids changed."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	), h.handleCacheReload)
}

type contentResult struct {
	ID          int            `json:"id"`
	ParentID    int            `json:"parent_id"`
	Name        string         `json:"name"`
	ContentType string         `json:"content_type"`
	Path        string         `json:"path"`
	Preview     bool           `json:"preview"`
	Properties  map[string]any `json:"properties"`
}

type propertyResult struct {
	ContentID  int    `json:"content_id"`
	Alias      string `json:"alias"`
	CacheLevel string `json:"cache_level"`
	HasValue   bool   `json:"has_value"`
	Source     string `json:"source"`
	Value      any    `json:"value"`
}

func (h *Handler) handleContentGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	preview := request.GetBool("preview", false)

	view, err := h.cache.OpenView(preview)
	if err != nil {
		return h.errorResult(ctx, "content_get", err), nil
	}
	defer view.Close()

	c, err := view.Content(id)
	if err != nil {
		return h.errorResult(ctx, "content_get", err), nil
	}

	result := contentResult{
		ID:          c.ID(),
		ParentID:    c.ParentID(),
		Name:        c.Name(),
		ContentType: c.ContentTypeAlias(),
		Path:        c.Path(),
		Preview:     c.Preview(),
		Properties:  make(map[string]any),
	}
	for _, p := range c.Properties() {
		result.Properties[p.Alias()] = p.Value()
	}
	return jsonResult(result)
}

func (h *Handler) handleContentProperty(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	alias, err := request.RequireString("alias")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	preview := request.GetBool("preview", false)

	view, err := h.cache.OpenView(preview)
	if err != nil {
		return h.errorResult(ctx, "content_property", err), nil
	}
	defer view.Close()

	p, err := view.Property(id, alias)
	if err != nil {
		return h.errorResult(ctx, "content_property", err), nil
	}
	return jsonResult(propertyResult{
		ContentID:  id,
		Alias:      p.Alias(),
		CacheLevel: p.PropertyType().CacheLevel().String(),
		HasValue:   p.HasValue(),
		Source:     p.SourceValue(),
		Value:      p.Value(),
	})
}

func (h *Handler) handleCacheReload(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.cache.Reload(ctx)
	if err != nil {
		return h.errorResult(ctx, "cache_reload", err), nil
	}
	return jsonResult(result)
}

// errorResult reports err to the model. Missing content is an expected outcome and is not logged.
func (h *Handler) errorResult(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	if !errors.Is(err, publishedcontent.ErrContentNotFound) {
		h.logger.ErrorContext(ctx, "MCP tool failed", "tool", tool, "err", err)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", tool, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
