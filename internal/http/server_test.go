package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cassa/internal/services"
	"cassa/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "cassa-http-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	repo, err := storage.NewSQLiteRepository(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	recorder := services.NewRecorder(repo, nil)
	query := services.NewQuery(repo)

	srv := NewServer(":0", recorder, query, filepath.Join(tempDir, "uploads"), 1<<20)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv
}

func postJSON(t *testing.T, srv *Server, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func getJSON(t *testing.T, srv *Server, path string, into any) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Handler.ServeHTTP(rr, req)
	if into != nil && rr.Code == http.StatusOK {
		if err := json.Unmarshal(rr.Body.Bytes(), into); err != nil {
			t.Fatalf("Failed to decode %s response: %v", path, err)
		}
	}
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return body
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/api/health"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("%s status=%d", path, rr.Code)
		}
	}
}

func TestLedgerAPIFlow(t *testing.T) {
	srv := newTestServer(t)

	t.Run("daily closing computes total in dollars", func(t *testing.T) {
		rr := postJSON(t, srv, "/api/daily-closing", map[string]any{
			"personName":    "Morgan",
			"photoPath":     "photo-1.jpg",
			"bills_20":      2,
			"coins_loonies": 3,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		body := decodeBody(t, rr)
		if body["totalAmount"] != 43.0 {
			t.Errorf("expected totalAmount 43, got %v", body["totalAmount"])
		}
		if body["transactionId"] == "" {
			t.Error("expected a transaction id")
		}
	})

	t.Run("cash balance reflects the closing", func(t *testing.T) {
		var body map[string]any
		if rr := getJSON(t, srv, "/api/cash-balance", &body); rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
		if body["total_till_cash"] != 43.0 {
			t.Errorf("expected till 43, got %v", body["total_till_cash"])
		}
	})

	t.Run("withdrawal creates the recipient", func(t *testing.T) {
		rr := postJSON(t, srv, "/api/cash-withdrawal", map[string]any{
			"recipientName": "Alex",
			"amount":        20.50,
			"reason":        "supplier run",
			"photoPath":     "photo-2.jpg",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		body := decodeBody(t, rr)
		msg, _ := body["message"].(string)
		if !strings.Contains(msg, "Alex") {
			t.Errorf("message should name the recipient: %q", msg)
		}

		var users []map[string]any
		if rr := getJSON(t, srv, "/api/user-balances", &users); rr.Code != http.StatusOK {
			t.Fatalf("user-balances status=%d", rr.Code)
		}
		if len(users) != 1 || users[0]["name"] != "Alex" || users[0]["total_cash"] != 20.5 {
			t.Errorf("unexpected user balances: %v", users)
		}
	})

	t.Run("spending returns the new balance", func(t *testing.T) {
		rr := postJSON(t, srv, "/api/cash-spending", map[string]any{
			"userName":    "Alex",
			"amount":      5.25,
			"description": "stamps",
			"photoPath":   "photo-3.jpg",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		body := decodeBody(t, rr)
		if body["newBalance"] != 15.25 {
			t.Errorf("expected newBalance 15.25, got %v", body["newBalance"])
		}
	})

	t.Run("transactions come newest first with wire names", func(t *testing.T) {
		var txns []map[string]any
		if rr := getJSON(t, srv, "/api/transactions?limit=10", &txns); rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
		if len(txns) != 3 {
			t.Fatalf("expected 3 transactions, got %d", len(txns))
		}
		if txns[0]["type"] != "cash_spending" || txns[2]["type"] != "daily_closing" {
			t.Errorf("unexpected ordering: %v, %v", txns[0]["type"], txns[2]["type"])
		}
		// Denomination counts only appear on closings.
		if _, ok := txns[0]["bills_20"]; ok {
			t.Error("spending should not carry denomination counts")
		}
		if txns[2]["bills_20"] != 2.0 {
			t.Errorf("closing should carry its counts, got %v", txns[2]["bills_20"])
		}
	})

	t.Run("overspending is a 400 with the available balance", func(t *testing.T) {
		rr := postJSON(t, srv, "/api/cash-spending", map[string]any{
			"userName":    "Alex",
			"amount":      999.0,
			"description": "too much",
			"photoPath":   "photo-4.jpg",
		})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		body := decodeBody(t, rr)
		if body["available"] != 15.25 {
			t.Errorf("expected available 15.25, got %v", body["available"])
		}
	})

	t.Run("unknown person is a 404", func(t *testing.T) {
		rr := postJSON(t, srv, "/api/cash-spending", map[string]any{
			"userName":    "Sam",
			"amount":      1.0,
			"description": "never withdrew",
			"photoPath":   "photo-5.jpg",
		})
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("missing fields are a 400", func(t *testing.T) {
		rr := postJSON(t, srv, "/api/cash-withdrawal", map[string]any{
			"recipientName": "Alex",
			"amount":        5.0,
			"photoPath":     "photo-6.jpg",
			// missing reason
		})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
		}
	})

	t.Run("mutations require POST", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/daily-closing", nil)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rr.Code)
		}
	})

	t.Run("reconcile reports zero drift", func(t *testing.T) {
		rr := postJSON(t, srv, "/api/reconcile", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		body := decodeBody(t, rr)
		if body["drift"] != 0.0 {
			t.Errorf("expected zero drift, got %v", body["drift"])
		}
	})
}

func TestUploadPhoto(t *testing.T) {
	srv := newTestServer(t)

	// Minimal PNG header so content sniffing sees an image.
	pngBytes := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

	buildUpload := func(field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("Failed to write form file: %v", err)
		}
		mw.Close()
		return &buf, mw.FormDataContentType()
	}

	t.Run("stores an image and returns its reference", func(t *testing.T) {
		buf, contentType := buildUpload("photo", "till.png", "image/png", pngBytes)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/upload-photo", buf)
		req.Header.Set("Content-Type", contentType)
		srv.Handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		body := decodeBody(t, rr)
		photoPath, _ := body["photoPath"].(string)
		if !strings.HasPrefix(photoPath, "photo-") || !strings.HasSuffix(photoPath, ".png") {
			t.Errorf("unexpected photoPath %q", photoPath)
		}
		if body["sessionId"] == "" {
			t.Error("expected a session id")
		}

		if _, err := os.Stat(filepath.Join(srv.uploadsDir, photoPath)); err != nil {
			t.Errorf("stored file missing: %v", err)
		}
	})

	t.Run("rejects non-image uploads", func(t *testing.T) {
		buf, contentType := buildUpload("photo", "notes.txt", "text/plain", []byte("just text"))
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/upload-photo", buf)
		req.Header.Set("Content-Type", contentType)
		srv.Handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("rejects uploads without a photo field", func(t *testing.T) {
		buf, contentType := buildUpload("attachment", "till.png", "image/png", pngBytes)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/upload-photo", buf)
		req.Header.Set("Content-Type", contentType)
		srv.Handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})
}
