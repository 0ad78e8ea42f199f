// Package api exposes the gallery, display profiles, and the render
// pipeline over HTTP, plus an MCP server for agent access.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/inkframe/internal/display"
	"github.com/kalambet/inkframe/internal/gallery"
	"github.com/kalambet/inkframe/internal/render"
	"github.com/kalambet/inkframe/internal/storage"
)

const maxUploadSize = 50 << 20 // 50MB
const maxRequestBodySize = 1 << 20

// Renderer abstracts the render pool so handlers (and tests) do not care
// how the pixel work is scheduled.
type Renderer interface {
	Render(ctx context.Context, src []byte, profile display.Profile, opts render.Options) ([]byte, error)
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Gallery  *gallery.Gallery
	Displays *display.Store
	Meta     *storage.Store
	Renderer Renderer
	// Token enables bearer auth on mutating routes when non-empty.
	Token string
	// Dither is the default dithering mode; clients may override per request.
	Dither bool
}

// NewHandler builds the full HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/api/status", handleStatus(deps))

	// Read-only routes.
	r.Group(func(r chi.Router) {
		r.Get("/api/images", handleListImages(deps))
		r.Get("/api/images/eink/random", handleEinkRandom(deps))
		r.Get("/api/images/eink/next", handleEinkNext(deps))
		r.Get("/api/images/eink/{filename}", handleEinkImage(deps))
		r.Get("/api/images/{filename}", handleGetImage(deps))
		r.Get("/api/metadata/{filename}", handleGetMetadata(deps))
		r.Get("/api/tags", handleListTags(deps))
		r.Get("/api/displays", handleListDisplays(deps))
		r.Get("/api/displays/{name}/config", handleGetDisplayConfig(deps))
		r.Get("/api/displays/{name}/export", handleExportDisplay(deps))
	})

	// Mutating routes, optionally gated by bearer auth.
	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/api/images/upload", handleUploadImage(deps))
		r.Delete("/api/images/{filename}", handleDeleteImage(deps))
		r.Put("/api/metadata/{filename}", handlePutMetadata(deps))
		r.Post("/api/metadata/{filename}/tags", handleAddTag(deps))
		r.Delete("/api/metadata/{filename}/tags/{tag}", handleRemoveTag(deps))
		r.Put("/api/displays/{name}/config", handlePutDisplayConfig(deps))
		r.Post("/api/displays/{name}/reset", handleResetDisplay(deps))
		r.Post("/api/displays/{name}/duplicate", handleDuplicateDisplay(deps))
		r.Delete("/api/displays/{name}", handleDeleteDisplay(deps))
		r.Post("/api/displays/import", handleImportDisplay(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		images, err := deps.Gallery.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list images: %v", err)
			return
		}
		displays, err := deps.Displays.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list displays: %v", err)
			return
		}

		writeJSON(w, map[string]any{
			"status":   "ok",
			"images":   len(images),
			"displays": len(displays),
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// unknownDisplay writes a not_found error listing the names a client could
// have asked for instead.
func unknownDisplay(w http.ResponseWriter, deps Deps, name string) {
	available, err := deps.Displays.Names()
	if err != nil {
		available = nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message":            fmt.Sprintf("unknown display %q", name),
			"type":               "not_found",
			"available_displays": available,
		},
	})
}
