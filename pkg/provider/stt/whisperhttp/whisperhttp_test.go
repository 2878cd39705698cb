package whisperhttp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/scribantia/scribantia/pkg/provider/stt/whisperhttp"
	"github.com/scribantia/scribantia/pkg/types"
)

// newMockServer creates a test server that responds to POST /inference with
// a JSON body containing responseText. The last received form values are
// stored in *gotLang and *gotModel when non-nil.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32, gotLang, gotModel *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, "bad multipart", http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file field", http.StatusBadRequest)
			return
		}
		if gotLang != nil {
			*gotLang = r.FormValue("language")
		}
		if gotModel != nil {
			*gotModel = r.FormValue("model")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

func testWindow() types.AudioWindow {
	return types.AudioWindow{PCM: make([]byte, 640), SampleRate: 16000, Channels: 1}
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()

	if _, err := whisperhttp.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_ReturnsTrimmedText(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, "  Hello world.  ", nil, nil, nil)
	defer srv.Close()

	p, err := whisperhttp.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), testWindow(), "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Hello world." {
		t.Errorf("text: want %q, got %q", "Hello world.", text)
	}
}

func TestTranscribe_SendsLanguageAndModelFields(t *testing.T) {
	t.Parallel()

	var lang, model string
	srv := newMockServer(t, "ok", nil, &lang, &model)
	defer srv.Close()

	p, _ := whisperhttp.New(srv.URL, whisperhttp.WithModel("small"))
	if _, err := p.Transcribe(context.Background(), testWindow(), "de"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if lang != "de" {
		t.Errorf("language field: want %q, got %q", "de", lang)
	}
	if model != "small" {
		t.Errorf("model field: want %q, got %q", "small", model)
	}
}

func TestTranscribe_OmitsLanguageWhenEmpty(t *testing.T) {
	t.Parallel()

	var lang string
	srv := newMockServer(t, "ok", nil, &lang, nil)
	defer srv.Close()

	p, _ := whisperhttp.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), testWindow(), ""); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if lang != "" {
		t.Errorf("language field: want empty, got %q", lang)
	}
}

func TestTranscribe_ServerError_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisperhttp.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), testWindow(), ""); err == nil {
		t.Fatal("expected error on HTTP 500, got nil")
	}
}

func TestTranscribe_ContextCancelled_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, "ok", nil, nil, nil)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := whisperhttp.New(srv.URL)
	if _, err := p.Transcribe(ctx, testWindow(), ""); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}

func TestTranscribe_ConcurrentCalls(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newMockServer(t, "ok", &calls, nil, nil)
	defer srv.Close()

	p, _ := whisperhttp.New(srv.URL)
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, _ = p.Transcribe(context.Background(), testWindow(), "")
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("server calls: want 4, got %d", got)
	}
}
