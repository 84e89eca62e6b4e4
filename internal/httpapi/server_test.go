package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	return w
}

func TestHealthBeforeCheckout(t *testing.T) {
	s := New("test", nil)
	w := doJSON(t, s, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.WatchDir != "" {
		t.Fatalf("expected no watch_dir before checkout, got %q", resp.WatchDir)
	}
}

func TestEndpointsRequireCheckoutFirst(t *testing.T) {
	s := New("test", nil)
	w := doJSON(t, s, http.MethodGet, "/api/files", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func checkedOutServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	s := New("test", nil)
	w := doJSON(t, s, http.MethodPost, "/api/checkout", checkoutRequest{Directory: dir})
	if w.Code != http.StatusOK {
		t.Fatalf("checkout status = %d body=%s", w.Code, w.Body.String())
	}
	t.Cleanup(func() {
		if e := s.Engine(); e != nil {
			e.Stop()
		}
	})
	return s, dir
}

func TestCheckoutTwiceConflicts(t *testing.T) {
	s, dir := checkedOutServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/checkout", checkoutRequest{Directory: dir})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestCheckoutThenScanThenFiles(t *testing.T) {
	s, dir := checkedOutServer(t)

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, s, http.MethodPost, "/api/scan", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("scan status = %d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/api/files", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("files status = %d", w.Code)
	}
	var nodes []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &nodes); err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0]["name"] != "a.txt" {
		t.Fatalf("expected one tracked file a.txt, got %+v", nodes)
	}
}

func TestHistoryRequiresFileParam(t *testing.T) {
	s, _ := checkedOutServer(t)
	w := doJSON(t, s, http.MethodGet, "/api/history", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestRestoreUnknownChecksumIsNotFound(t *testing.T) {
	s, _ := checkedOutServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/restore", restoreRequest{File: "missing.txt", Checksum: "deadbeef"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body=%s", w.Code, w.Body.String())
	}
}

func TestConfigGetSetRoundTrip(t *testing.T) {
	s, _ := checkedOutServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/config", configSetRequest{Key: "settings.max_history", Value: "42"})
	if w.Code != http.StatusOK {
		t.Fatalf("config set status = %d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/api/config?key=settings.max_history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("config get status = %d", w.Code)
	}
	var resp configResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Value.(float64) != 42 {
		t.Fatalf("expected 42, got %v", resp.Value)
	}
}

func TestLogsListsRotatedFiles(t *testing.T) {
	s, dir := checkedOutServer(t)
	logDir := filepath.Join(dir, ".ftm", "logs")
	if err := os.WriteFile(filepath.Join(logDir, "20260101-000000.000.log"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, s, http.MethodGet, "/api/logs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp logsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Files) != 1 || resp.Files[0].Name != "20260101-000000.000.log" {
		t.Fatalf("expected the one log file, got %+v", resp.Files)
	}
}

func TestShutdownClosesSignalChannel(t *testing.T) {
	s, _ := checkedOutServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/shutdown", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	select {
	case <-s.ShutdownRequested():
	case <-time.After(time.Second):
		t.Fatal("expected the shutdown channel to close")
	}
}
