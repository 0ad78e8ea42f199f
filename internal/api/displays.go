package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/inkframe/internal/display"
)

const yamlContentType = "application/yaml"

// displayError maps display store sentinels onto HTTP responses.
func displayError(w http.ResponseWriter, deps Deps, name string, err error) {
	var cfgErr *display.InvalidConfigError
	switch {
	case errors.Is(err, display.ErrNotFound):
		unknownDisplay(w, deps, name)
	case errors.Is(err, display.ErrExists):
		httpError(w, http.StatusConflict, "conflict", "%v", err)
	case errors.Is(err, display.ErrInvalidName):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.As(err, &cfgErr):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "display store error: %v", err)
	}
}

func handleListDisplays(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := deps.Displays.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list displays: %v", err)
			return
		}
		if records == nil {
			records = []display.Record{}
		}
		writeJSON(w, records)
	}
}

func handleGetDisplayConfig(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		content, err := deps.Displays.Raw(name)
		if err != nil {
			displayError(w, deps, name, err)
			return
		}
		w.Header().Set("Content-Type", yamlContentType)
		w.Write(content)
	}
}

func handlePutDisplayConfig(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading request body: %v", err)
			return
		}

		rec, err := deps.Displays.Save(name, content)
		if err != nil {
			displayError(w, deps, name, err)
			return
		}
		writeJSON(w, rec)
	}
}

func handleResetDisplay(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		if err := deps.Displays.Reset(name); err != nil {
			displayError(w, deps, name, err)
			return
		}
		writeJSON(w, map[string]string{"status": "reset"})
	}
}

func handleDuplicateDisplay(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			NewName string `json:"new_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.NewName == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "new_name is required")
			return
		}

		rec, err := deps.Displays.Duplicate(name, req.NewName)
		if err != nil {
			displayError(w, deps, name, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, rec)
	}
}

func handleDeleteDisplay(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		if err := deps.Displays.Delete(name); err != nil {
			displayError(w, deps, name, err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleExportDisplay(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		filename, content, err := deps.Displays.Export(name)
		if err != nil {
			displayError(w, deps, name, err)
			return
		}
		w.Header().Set("Content-Type", yamlContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.Write(content)
	}
}

func handleImportDisplay(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing file field: %v", err)
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}

		overwrite, _ := strconv.ParseBool(r.URL.Query().Get("overwrite"))

		rec, err := deps.Displays.Import(header.Filename, content, overwrite)
		if err != nil {
			displayError(w, deps, header.Filename, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, rec)
	}
}
