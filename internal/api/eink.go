package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/inkframe/internal/display"
	"github.com/kalambet/inkframe/internal/gallery"
	"github.com/kalambet/inkframe/internal/render"
	"github.com/kalambet/inkframe/internal/storage"
)

// resolveDisplay loads the profile named by the ?display= query parameter.
func resolveDisplay(w http.ResponseWriter, r *http.Request, deps Deps) (display.Profile, bool) {
	name := r.URL.Query().Get("display")
	if name == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "display query parameter is required")
		return display.Profile{}, false
	}
	profile, err := deps.Displays.Load(name)
	if err != nil {
		displayError(w, deps, name, err)
		return display.Profile{}, false
	}
	return profile, true
}

// renderOptions derives pipeline options from query parameters, falling
// back to the configured defaults. crop=false selects letterboxing.
func renderOptions(r *http.Request, deps Deps) render.Options {
	opts := render.Options{Dither: deps.Dither, Resize: true, Crop: true}
	if v := r.URL.Query().Get("crop"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.Crop = b
		}
	}
	if v := r.URL.Query().Get("dither"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.Dither = b
		}
	}
	return opts
}

func queryTags(r *http.Request) []string {
	raw := r.URL.Query().Get("tags")
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// serveRendered runs the pipeline for one image and writes the indexed
// PNG along with the selection headers.
func serveRendered(w http.ResponseWriter, r *http.Request, deps Deps, profile display.Profile, filename string) {
	src, err := deps.Gallery.Get(filename)
	if errors.Is(err, gallery.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to read image: %v", err)
		return
	}

	out, err := deps.Renderer.Render(r.Context(), src, profile, renderOptions(r, deps))
	if errors.Is(err, render.ErrDecode) {
		httpError(w, http.StatusUnprocessableEntity, "render_error", "%v", err)
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "render failed: %v", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Selected-Image", filename)
	w.Write(out)
}

func handleEinkImage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, ok := resolveDisplay(w, r, deps)
		if !ok {
			return
		}

		filename, err := deps.Gallery.FindByBasename(chi.URLParam(r, "filename"))
		if errors.Is(err, gallery.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "image not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to resolve image: %v", err)
			return
		}

		serveRendered(w, r, deps, profile, filename)
	}
}

func handleEinkRandom(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, ok := resolveDisplay(w, r, deps)
		if !ok {
			return
		}

		images, err := deps.Gallery.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list images: %v", err)
			return
		}

		img, err := gallery.Random(images, queryTags(r))
		if errors.Is(err, gallery.ErrNoMatch) {
			httpError(w, http.StatusNotFound, "not_found", "no matching images")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "selection failed: %v", err)
			return
		}

		serveRendered(w, r, deps, profile, img.Filename)
	}
}

func handleEinkNext(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, ok := resolveDisplay(w, r, deps)
		if !ok {
			return
		}

		raw := r.URL.Query().Get("current_index")
		if raw == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "current_index query parameter is required")
			return
		}
		current, err := strconv.Atoi(raw)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid current_index: %v", err)
			return
		}

		images, err := deps.Gallery.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list images: %v", err)
			return
		}

		var img storage.ImageMeta
		var idx int
		img, idx, err = gallery.Next(images, queryTags(r), current)
		if errors.Is(err, gallery.ErrNoMatch) {
			httpError(w, http.StatusNotFound, "not_found", "no matching images")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "selection failed: %v", err)
			return
		}

		w.Header().Set("X-Image-Index", strconv.Itoa(idx))
		serveRendered(w, r, deps, profile, img.Filename)
	}
}
