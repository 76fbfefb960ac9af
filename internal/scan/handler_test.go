package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/subtrack/nativebridge/internal/bridge"
	apierrors "github.com/subtrack/nativebridge/internal/errors"
	"github.com/subtrack/nativebridge/internal/logger"
)

func uploadRequest(t *testing.T, names ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range names {
		fw, err := mw.CreateFormFile("pages", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write([]byte(name))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/scan/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newUploadRouter(rec Recognizer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(newPipeline(UnavailableScanner{}, rec, Options{}), logger.Nop())
	h.RegisterRoutes(r.Group(""))
	return r
}

func TestUploadRecognizesPagesInOrder(t *testing.T) {
	rec := &fakeRecognizer{fail: map[int]bool{1: true}}
	w := httptest.NewRecorder()
	newUploadRouter(rec).ServeHTTP(w, uploadRequest(t, "one.png", "two.png", "three.png"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Pages != 3 {
		t.Errorf("expected 3 pages, got %d", resp.Pages)
	}
	if !reflect.DeepEqual(resp.Texts, []string{"one.png", "three.png"}) {
		t.Errorf("unexpected texts %v", resp.Texts)
	}
}

func TestUploadRequiresPages(t *testing.T) {
	w := httptest.NewRecorder()
	newUploadRouter(&fakeRecognizer{}).ServeHTTP(w, uploadRequest(t))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func newDocumentRouter(p *Pipeline) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(p, logger.Nop()).RegisterRoutes(r.Group(""))
	return r
}

func postDocument(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scan/document", nil))
	return w
}

func TestDocumentRoute(t *testing.T) {
	tests := []struct {
		name       string
		scanner    *fakeScanner
		wantStatus int
		wantCode   string
	}{
		{"success", &fakeScanner{available: true, capture: Capture{Pages: pagesNamed("p1", "p2")}}, http.StatusOK, ""},
		{"unavailable", &fakeScanner{available: false}, http.StatusServiceUnavailable, bridge.CodeUnavailable},
		{"failed", &fakeScanner{available: true, err: errors.New("paper jam")}, http.StatusUnprocessableEntity, bridge.CodeScanFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postDocument(newDocumentRouter(newPipeline(tt.scanner, &fakeRecognizer{}, Options{})))
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantCode == "" {
				var resp DocumentResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("decode response: %v", err)
				}
				if !reflect.DeepEqual(resp.Texts, []string{"p1", "p2"}) {
					t.Errorf("unexpected texts %v", resp.Texts)
				}
				return
			}
			var body apierrors.APIError
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("expected code %s, got %q", tt.wantCode, body.Code)
			}
		})
	}
}

func TestDocumentRouteConflictWhileScanning(t *testing.T) {
	block := make(chan struct{})
	scanner := &fakeScanner{available: true, capture: Capture{Pages: pagesNamed("p1")}, block: block}
	p := newPipeline(scanner, &fakeRecognizer{}, Options{})
	r := newDocumentRouter(p)

	first := make(chan error, 1)
	go func() {
		_, err := p.ScanDocument(context.Background())
		first <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !p.busy.Load() {
		if time.Now().After(deadline) {
			t.Fatal("first scan never started")
		}
		time.Sleep(time.Millisecond)
	}

	w := postDocument(r)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	var body apierrors.APIError
	if err := json.Unmarshal(w.Body.Bytes(), &body); err == nil && body.Code != bridge.CodeScanInProgress {
		t.Errorf("expected code %s, got %q", bridge.CodeScanInProgress, body.Code)
	}

	close(block)
	if err := <-first; err != nil {
		t.Fatalf("first scan error = %v", err)
	}
}
