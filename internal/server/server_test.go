package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestHandleConfig(t *testing.T) {
	srv := &Server{
		opts: Options{
			ConfigFn: func() map[string]any {
				return map[string]any{
					"display_width":  1280,
					"display_height": 720,
					"fit":            "cover",
					"port":           9999,
				}
			},
		},
	}

	req := httptest.NewRequest("GET", "/config", nil)
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if payload["display_width"].(float64) != 1280 {
		t.Fatalf("unexpected display_width: %v", payload["display_width"])
	}
	if payload["fit"].(string) != "cover" {
		t.Fatalf("unexpected fit: %v", payload["fit"])
	}
	if payload["port"].(float64) != 9999 {
		t.Fatalf("unexpected port: %v", payload["port"])
	}
}

func TestHandleStatusIncludesClientCount(t *testing.T) {
	srv := &Server{
		opts: Options{
			StatusFn: func() map[string]any {
				return map[string]any{"backend": "connected"}
			},
		},
	}

	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest("GET", "/status", nil))

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["backend"].(string) != "connected" {
		t.Fatalf("unexpected backend: %v", payload["backend"])
	}
	if payload["ws_clients"].(float64) != 0 {
		t.Fatalf("unexpected ws_clients: %v", payload["ws_clients"])
	}
}

func TestHandlePreview(t *testing.T) {
	srv := &Server{opts: Options{PreviewFn: func() []byte { return []byte{0xff, 0xd8, 0xff} }}}

	rec := httptest.NewRecorder()
	srv.handlePreview(rec, httptest.NewRequest("GET", "/preview.jpg", nil))
	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	empty := &Server{opts: Options{PreviewFn: func() []byte { return nil }}}
	rec = httptest.NewRecorder()
	empty.handlePreview(rec, httptest.NewRequest("GET", "/preview.jpg", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404 before first frame, got %d", rec.Code)
	}
}
