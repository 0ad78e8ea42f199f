package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/kalambet/inkframe/internal/display"
	"github.com/kalambet/inkframe/internal/gallery"
	"github.com/kalambet/inkframe/internal/render"
	"github.com/kalambet/inkframe/internal/storage"
)

const monoYAML = `resolution:
  width: 100
  height: 100
color_mapping:
  palette:
    - [0, 0, 0]
    - [255, 255, 255]
`

// syncRenderer runs the pipeline inline; tests have no pool to schedule on.
type syncRenderer struct{}

func (syncRenderer) Render(ctx context.Context, src []byte, profile display.Profile, opts render.Options) ([]byte, error) {
	return render.Transform(src, profile, opts)
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()

	meta, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening metadata store: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	g, err := gallery.New(t.TempDir(), meta)
	if err != nil {
		t.Fatalf("creating gallery: %v", err)
	}

	defaults := fstest.MapFS{
		"mono.yaml": {Data: []byte(monoYAML)},
	}
	displays := display.NewStoreWithDefaults(defaults, t.TempDir())

	return Deps{
		Gallery:  g,
		Displays: displays,
		Meta:     meta,
		Renderer: syncRenderer{},
		Dither:   true,
	}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func doRequest(h http.Handler, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func uploadImage(t *testing.T, h http.Handler, filename string, data []byte) string {
	t.Helper()
	body, ct := multipartBody(t, filename, data)
	rec := doRequest(h, http.MethodPost, "/api/images/upload", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload %s: status %d: %s", filename, rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding upload response: %v", err)
	}
	return resp["filename"]
}

func TestHealth(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	rec := doRequest(h, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestImageLifecycle(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	data := testPNG(t)

	stored := uploadImage(t, h, "photo.png", data)
	if stored != "photo.png" {
		t.Errorf("stored as %q", stored)
	}

	// Listed.
	rec := doRequest(h, http.MethodGet, "/api/images", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var images []storage.ImageMeta
	if err := json.Unmarshal(rec.Body.Bytes(), &images); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(images) != 1 || images[0].Filename != "photo.png" {
		t.Errorf("unexpected listing: %+v", images)
	}

	// Retrievable.
	rec = doRequest(h, http.MethodGet, "/api/images/photo.png", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Error("retrieved bytes differ from upload")
	}

	// Deletable; a second delete is a 404.
	rec = doRequest(h, http.MethodDelete, "/api/images/photo.png", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = doRequest(h, http.MethodDelete, "/api/images/photo.png", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status %d, want 404", rec.Code)
	}
}

func TestUploadRejectsUnsupported(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	body, ct := multipartBody(t, "notes.txt", []byte("plain text"))
	rec := doRequest(h, http.MethodPost, "/api/images/upload", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}

func TestMetadataAndTags(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	uploadImage(t, h, "photo.png", testPNG(t))

	// Update title.
	body := bytes.NewBufferString(`{"title":"Sunset"}`)
	rec := doRequest(h, http.MethodPut, "/api/metadata/photo.png", body, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("put metadata: status %d: %s", rec.Code, rec.Body.String())
	}

	// Tag it; tags are lowercased.
	body = bytes.NewBufferString(`{"tag":"Beach"}`)
	rec = doRequest(h, http.MethodPost, "/api/metadata/photo.png/tags", body, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("add tag: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(h, http.MethodGet, "/api/metadata/photo.png", nil, "")
	var meta storage.ImageMeta
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("decoding metadata: %v", err)
	}
	if meta.Title != "Sunset" {
		t.Errorf("Title = %q", meta.Title)
	}
	if len(meta.Tags) != 1 || meta.Tags[0] != "beach" {
		t.Errorf("Tags = %v", meta.Tags)
	}

	// Tag counts.
	rec = doRequest(h, http.MethodGet, "/api/tags", nil, "")
	var tags []storage.TagCount
	if err := json.Unmarshal(rec.Body.Bytes(), &tags); err != nil {
		t.Fatalf("decoding tags: %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "beach" || tags[0].Count != 1 {
		t.Errorf("tags = %+v", tags)
	}

	// Remove; removing again is a 404.
	rec = doRequest(h, http.MethodDelete, "/api/metadata/photo.png/tags/beach", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("remove tag: status %d", rec.Code)
	}
	rec = doRequest(h, http.MethodDelete, "/api/metadata/photo.png/tags/beach", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second remove: status %d, want 404", rec.Code)
	}
}

func TestMetadataUnknownImage(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	rec := doRequest(h, http.MethodGet, "/api/metadata/missing.png", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", rec.Code)
	}
}

func TestDisplayConfigRoundTrip(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	rec := doRequest(h, http.MethodGet, "/api/displays/mono/config", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get config: status %d", rec.Code)
	}
	if rec.Body.String() != monoYAML {
		t.Errorf("unexpected config body: %s", rec.Body.String())
	}

	// Save an override and read it back through the list.
	override := strings.Replace(monoYAML, "width: 100", "width: 200", 1)
	rec = doRequest(h, http.MethodPut, "/api/displays/mono/config", bytes.NewBufferString(override), yamlContentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("put config: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(h, http.MethodGet, "/api/displays", nil, "")
	var records []display.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decoding displays: %v", err)
	}
	if len(records) != 1 || !records[0].IsCustom {
		t.Errorf("unexpected records: %+v", records)
	}

	// Reset restores the default tier.
	rec = doRequest(h, http.MethodPost, "/api/displays/mono/reset", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: status %d", rec.Code)
	}
	rec = doRequest(h, http.MethodGet, "/api/displays/mono/config", nil, "")
	if rec.Body.String() != monoYAML {
		t.Error("reset did not restore the default config")
	}
}

func TestDisplayConfigRejectsInvalid(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	rec := doRequest(h, http.MethodPut, "/api/displays/mono/config", bytes.NewBufferString("resolution: {width: 0, height: 0}"), yamlContentType)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestDisplayDuplicateAndDelete(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	rec := doRequest(h, http.MethodPost, "/api/displays/mono/duplicate", bytes.NewBufferString(`{"new_name":"mono-copy"}`), "application/json")
	if rec.Code != http.StatusCreated {
		t.Fatalf("duplicate: status %d: %s", rec.Code, rec.Body.String())
	}

	// Duplicating onto an existing name conflicts.
	rec = doRequest(h, http.MethodPost, "/api/displays/mono/duplicate", bytes.NewBufferString(`{"new_name":"mono-copy"}`), "application/json")
	if rec.Code != http.StatusConflict {
		t.Errorf("second duplicate: status %d, want 409", rec.Code)
	}

	rec = doRequest(h, http.MethodDelete, "/api/displays/mono-copy", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	// Defaults cannot be deleted.
	rec = doRequest(h, http.MethodDelete, "/api/displays/mono", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete default: status %d, want 404", rec.Code)
	}
}

func TestUnknownDisplayListsAvailable(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	rec := doRequest(h, http.MethodGet, "/api/displays/epd999/config", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}

	var resp struct {
		Error struct {
			Type              string   `json:"type"`
			AvailableDisplays []string `json:"available_displays"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Error.Type != "not_found" {
		t.Errorf("error type = %q", resp.Error.Type)
	}
	if len(resp.Error.AvailableDisplays) != 1 || resp.Error.AvailableDisplays[0] != "mono" {
		t.Errorf("available_displays = %v", resp.Error.AvailableDisplays)
	}
}

func TestDisplayExportAndImport(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	rec := doRequest(h, http.MethodGet, "/api/displays/mono/export", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "mono.yaml") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	body, ct := multipartBody(t, "imported.yaml", []byte(monoYAML))
	rec = doRequest(h, http.MethodPost, "/api/displays/import", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("import: status %d: %s", rec.Code, rec.Body.String())
	}

	// Same name again without overwrite conflicts.
	body, ct = multipartBody(t, "imported.yaml", []byte(monoYAML))
	rec = doRequest(h, http.MethodPost, "/api/displays/import", body, ct)
	if rec.Code != http.StatusConflict {
		t.Errorf("re-import: status %d, want 409", rec.Code)
	}

	// With overwrite it succeeds.
	body, ct = multipartBody(t, "imported.yaml", []byte(monoYAML))
	rec = doRequest(h, http.MethodPost, "/api/displays/import?overwrite=true", body, ct)
	if rec.Code != http.StatusCreated {
		t.Errorf("overwrite import: status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBearerAuthGatesMutations(t *testing.T) {
	deps := newTestDeps(t)
	deps.Token = "sekrit"
	h := NewHandler(deps)

	// Reads stay open.
	rec := doRequest(h, http.MethodGet, "/api/images", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("unauthenticated read: status %d", rec.Code)
	}

	// Mutations require the token.
	body, ct := multipartBody(t, "photo.png", testPNG(t))
	rec = doRequest(h, http.MethodPost, "/api/images/upload", body, ct)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated upload: status %d, want 401", rec.Code)
	}

	body, ct = multipartBody(t, "photo.png", testPNG(t))
	req := httptest.NewRequest(http.MethodPost, "/api/images/upload", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer sekrit")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Errorf("authenticated upload: status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestBearerAuthRejectsMalformedHeader(t *testing.T) {
	deps := newTestDeps(t)
	deps.Token = "sekrit"
	h := NewHandler(deps)

	req := httptest.NewRequest(http.MethodPost, "/api/displays/mono/reset", nil)
	req.Header.Set("Authorization", "Token sekrit")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); !strings.Contains(got, "Bearer") {
		t.Errorf("WWW-Authenticate = %q, want a Bearer challenge", got)
	}
}
