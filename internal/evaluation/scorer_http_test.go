package evaluation_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/evaluation"
	"github.com/p-n-ai/pai-lesson/internal/platform/resilience"
)

func fastScorer(url string) *evaluation.HTTPScorer {
	return evaluation.NewHTTPScorer(url, evaluation.WithResilience(resilience.Options{
		MaxAttempts:      2,
		InitialDelay:     time.Millisecond,
		MaxDelay:         time.Millisecond,
		FailureThreshold: 100,
	}))
}

func TestHTTPScorer_Score(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
			return
		}
		if got := r.FormValue("expectedText"); got != "hola" {
			t.Errorf("expectedText = %q", got)
		}
		if got := r.FormValue("language"); got != "es-ES" {
			t.Errorf("language = %q", got)
		}
		f, hdr, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("FormFile(audio) error = %v", err)
			return
		}
		audio, _ := io.ReadAll(f)
		if string(audio) != "RIFFdata" || hdr.Filename != "recording.wav" {
			t.Errorf("audio part = %q (%s)", audio, hdr.Filename)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"overall_score": 72.6,
				"spoken_text":   "ola",
				"expected_text": "hola",
				"feedback":      "Good",
			},
		})
	}))
	defer server.Close()

	res, err := fastScorer(server.URL).Score(context.Background(), evaluation.SpeechRequest{
		Audio: []byte("RIFFdata"), ExpectedText: "hola", Language: "es-ES",
	})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if res.Score != 73 || res.SpokenText != "ola" || res.Feedback != "Good" {
		t.Errorf("Score() = %+v", res)
	}
}

func TestHTTPScorer_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not success", http.StatusOK, `{"success": false, "message": "no speech detected"}`, evaluation.ErrServiceUnavailable},
		{"missing score", http.StatusOK, `{"success": true, "data": {"spoken_text": "x"}}`, evaluation.ErrMalformedResponse},
		{"not json", http.StatusOK, `<html>`, evaluation.ErrMalformedResponse},
		{"server error", http.StatusBadGateway, `upstream down`, evaluation.ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := fastScorer(server.URL).Score(context.Background(), evaluation.SpeechRequest{Audio: []byte("x")})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Score() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPScorer_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"success": true, "data": {"overall_score": 90}}`))
	}))
	defer server.Close()

	res, err := fastScorer(server.URL).Score(context.Background(), evaluation.SpeechRequest{Audio: []byte("x")})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if res.Score != 90 || calls.Load() != 2 {
		t.Errorf("Score() = %+v after %d calls", res, calls.Load())
	}
}
