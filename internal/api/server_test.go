package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docoutline/internal/config"
	"github.com/dgallion1/docoutline/internal/mover"
	"github.com/dgallion1/docoutline/internal/provider"
	"github.com/dgallion1/docoutline/internal/workspace"
)

const apiKey = "test-key"

const guide = "# A\na1\na2\na3\na4\n## B\nb1\nb2\nb3\nb4\n### C\nc1\nc2\nc3\nc4\n# D\nd1\nd2\nd3\nd4\n"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Defaults()
	cfg.APIKey = apiKey
	ws := workspace.New(provider.DefaultRegistry(provider.RegistryOptions{Logger: log}), workspace.Options{}, log)
	t.Cleanup(ws.Stop)
	srv := httptest.NewServer(NewServer(ws, log, cfg))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return send(t, req)
}

func send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func createGuide(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := do(t, srv, http.MethodPost, "/api/documents", map[string]string{"filename": "guide.md", "text": guide})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	id, _ := body["doc_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func rootLabels(t *testing.T, outline any) []string {
	t.Helper()
	tree, ok := outline.(map[string]any)
	require.True(t, ok)
	children, _ := tree["children"].([]any)
	var out []string
	for _, c := range children {
		out = append(out, c.(map[string]any)["label"].(string))
	}
	return out
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	resp, body := send(t, mustRequest(t, http.MethodGet, srv.URL+"/health"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	resp, body := send(t, mustRequest(t, http.MethodGet, srv.URL+"/api/documents"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing authorization", body["error"])

	req := mustRequest(t, http.MethodGet, srv.URL+"/api/documents")
	req.Header.Set("Authorization", "Bearer wrong")
	resp, _ = send(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDocumentLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id := createGuide(t, srv)

	resp, body := do(t, srv, http.MethodGet, "/api/documents", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["documents"], 1)

	resp, body = do(t, srv, http.MethodGet, "/api/documents/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, guide, body["text"])

	resp, body = do(t, srv, http.MethodPut, "/api/documents/"+id, map[string]string{"text": "# Only\n"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["sections"])

	resp, _ = do(t, srv, http.MethodDelete, "/api/documents/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, srv, http.MethodGet, "/api/documents/"+id+"/outline", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "document not found")
}

func TestCreateRejectsUnsupportedType(t *testing.T) {
	srv := newTestServer(t)
	resp, body := do(t, srv, http.MethodPost, "/api/documents", map[string]string{"filename": "data.bin", "text": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], ".bin")
}

func TestMultipartUpload(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "../../notes.md")
	require.NoError(t, err)
	_, err = fw.Write([]byte("# Uploaded\ntext\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/documents", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, body := send(t, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "notes.md", body["filename"])
	assert.Equal(t, "markdown", body["type"])
	assert.Equal(t, float64(1), body["sections"])
}

func TestOutlineAndLocate(t *testing.T) {
	srv := newTestServer(t)
	id := createGuide(t, srv)

	resp, body := do(t, srv, http.MethodGet, "/api/documents/"+id+"/outline", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"A", "D"}, rootLabels(t, body["outline"]))
	assert.Equal(t, float64(20), body["end_insertion"])

	resp, body = do(t, srv, http.MethodGet, "/api/documents/"+id+"/locate?line=12", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["found"])
	assert.Equal(t, "C", body["label"])
	assert.Equal(t, []any{"A", "B", "C"}, body["breadcrumb"])

	_, body = do(t, srv, http.MethodGet, "/api/documents/"+id+"/locate?line=25", nil)
	assert.Equal(t, false, body["found"])

	resp, _ = do(t, srv, http.MethodGet, "/api/documents/"+id+"/locate?line=x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMove(t *testing.T) {
	srv := newTestServer(t)
	id := createGuide(t, srv)

	resp, body := do(t, srv, http.MethodPost, "/api/documents/"+id+"/move", map[string]int{"source": 5, "target": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, []string{"B", "A", "D"}, rootLabels(t, body["outline"]))

	_, body = do(t, srv, http.MethodGet, "/api/documents/"+id, nil)
	assert.True(t, strings.HasPrefix(body["text"].(string), "## B\n"))
}

func TestMoveRejections(t *testing.T) {
	srv := newTestServer(t)
	id := createGuide(t, srv)
	path := "/api/documents/" + id + "/move"

	resp, body := do(t, srv, http.MethodPost, path, map[string]int{"source": 0, "target": 10})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["error"], "inside the moved section")

	resp, _ = do(t, srv, http.MethodPost, path, map[string]int{"source": 3, "target": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, path, map[string]int{"source": 5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = do(t, srv, http.MethodGet, "/api/documents/"+id, nil)
	assert.Equal(t, guide, body["text"])
}

func TestRefreshStats(t *testing.T) {
	srv := newTestServer(t)
	createGuide(t, srv)

	resp, body := do(t, srv, http.MethodGet, "/api/stats/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["documents"])
	stats := body["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["count"])

	resp, body = do(t, srv, http.MethodGet, "/api/types", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["types"], "markdown")
}

func TestMoveStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, moveStatus(fmt.Errorf("doc: %w", mover.ErrMoveInProgress)))
	assert.Equal(t, http.StatusConflict, moveStatus(mover.ErrStaleTree))
	assert.Equal(t, http.StatusUnprocessableEntity, moveStatus(mover.ErrSelfNested))
	assert.Equal(t, http.StatusInternalServerError, moveStatus(mover.ErrApply))
	assert.Equal(t, http.StatusInternalServerError, moveStatus(io.ErrUnexpectedEOF))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "notes.md", sanitizeFilename("../../notes.md"))
	assert.Equal(t, "unnamed", sanitizeFilename(""))
}

func mustRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	return req
}
