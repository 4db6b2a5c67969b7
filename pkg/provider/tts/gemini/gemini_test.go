package gemini_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/eimkon/eimkon/pkg/provider/tts"
	"github.com/eimkon/eimkon/pkg/provider/tts/gemini"
)

// recorded captures one generateContent request.
type recorded struct {
	Path string
	Body map[string]any
}

// startServer launches a fake generateContent endpoint. handler writes the
// response; every request is recorded.
func startServer(t *testing.T, handler func(w http.ResponseWriter)) (*httptest.Server, func() []recorded) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(data, &body)
		mu.Lock()
		reqs = append(reqs, recorded{Path: r.URL.Path, Body: body})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		handler(w)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), reqs...)
	}
}

func newProvider(t *testing.T, srv *httptest.Server) *gemini.Provider {
	t.Helper()
	p, err := gemini.New(context.Background(), "test-key", gemini.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_MissingKey(t *testing.T) {
	t.Parallel()
	if _, err := gemini.New(context.Background(), ""); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestSynthesize_ReturnsInlineAudio(t *testing.T) {
	t.Parallel()
	pcm := []byte{0x10, 0x00, 0x20, 0x00}
	srv, reqs := startServer(t, func(w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role": "model",
					"parts": []map[string]any{{
						"inlineData": map[string]any{
							"mimeType": "audio/L16;codec=pcm;rate=24000",
							"data":     base64.StdEncoding.EncodeToString(pcm),
						},
					}},
				},
			}},
		})
	})

	got, err := newProvider(t, srv).Synthesize(context.Background(), tts.Request{
		Model: "gemini-2.5-flash-preview-tts",
		Text:  "Salom",
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(got) != string(pcm) {
		t.Fatalf("audio = %x, want %x", got, pcm)
	}

	rs := reqs()
	if len(rs) != 1 {
		t.Fatalf("requests = %d, want 1", len(rs))
	}
	if !strings.Contains(rs[0].Path, "gemini-2.5-flash-preview-tts:generateContent") {
		t.Errorf("path = %q", rs[0].Path)
	}
	gc, _ := rs[0].Body["generationConfig"].(map[string]any)
	speech, _ := gc["speechConfig"].(map[string]any)
	vc, _ := speech["voiceConfig"].(map[string]any)
	pvc, _ := vc["prebuiltVoiceConfig"].(map[string]any)
	if pvc["voiceName"] != gemini.DefaultVoice {
		t.Errorf("voice = %v, want %s", pvc["voiceName"], gemini.DefaultVoice)
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	t.Parallel()
	srv, _ := startServer(t, func(w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": "no audio"}}},
			}},
		})
	})
	got, err := newProvider(t, srv).Synthesize(context.Background(), tts.Request{Model: "m", Text: "x"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("audio = %x, want empty", got)
	}
}

func TestSynthesize_QuotaError(t *testing.T) {
	t.Parallel()
	srv, _ := startServer(t, func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    429,
				"message": "You exceeded your current quota",
				"status":  "RESOURCE_EXHAUSTED",
			},
		})
	})
	_, err := newProvider(t, srv).Synthesize(context.Background(), tts.Request{Model: "m", Text: "x"})
	if !errors.Is(err, tts.ErrQuotaExhausted) {
		t.Fatalf("err = %v, want ErrQuotaExhausted", err)
	}
}

func TestSynthesize_OtherError(t *testing.T) {
	t.Parallel()
	srv, _ := startServer(t, func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 400, "message": "bad model", "status": "INVALID_ARGUMENT"},
		})
	})
	_, err := newProvider(t, srv).Synthesize(context.Background(), tts.Request{Model: "m", Text: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, tts.ErrQuotaExhausted) {
		t.Fatalf("400 must not be classified as quota: %v", err)
	}
}
