package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/p-n-ai/pai-lesson/internal/platform/resilience"
)

// HTTPSink posts progress and completions to the learner records service.
type HTTPSink struct {
	baseURL    string
	client     *http.Client
	opts       resilience.Options
	saveGuard  *resilience.Guard[struct{}]
	finalGuard *resilience.Guard[CompletionResult]
}

// HTTPSinkOption configures an HTTPSink.
type HTTPSinkOption func(*HTTPSink)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPSinkOption {
	return func(s *HTTPSink) {
		s.client = client
	}
}

// WithResilience overrides retry and breaker settings.
func WithResilience(opts resilience.Options) HTTPSinkOption {
	return func(s *HTTPSink) {
		s.opts = opts
	}
}

// NewHTTPSink creates a sink posting to
// {baseURL}/lessons/{lessonId}/progress and {baseURL}/lessons/{lessonId}/complete.
func NewHTTPSink(baseURL string, opts ...HTTPSinkOption) *HTTPSink {
	s := &HTTPSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.saveGuard = resilience.NewGuard[struct{}]("progress", s.opts)
	s.finalGuard = resilience.NewGuard[CompletionResult]("completion", s.opts)
	return s
}

func (s *HTTPSink) SaveProgress(ctx context.Context, rec ProgressRecord) error {
	_, err := s.saveGuard.Do(ctx, func(ctx context.Context) (struct{}, error) {
		var out struct {
			OK *bool `json:"ok"`
		}
		if err := s.post(ctx, s.lessonURL(rec.LessonID, "progress"), rec, &out); err != nil {
			return struct{}{}, err
		}
		if out.OK != nil && !*out.OK {
			return struct{}{}, resilience.Permanent(errors.New("progress rejected"))
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (s *HTTPSink) SubmitCompletion(ctx context.Context, rec CompletionRecord) (CompletionResult, error) {
	res, err := s.finalGuard.Do(ctx, func(ctx context.Context) (CompletionResult, error) {
		var out CompletionResult
		if err := s.post(ctx, s.lessonURL(rec.LessonID, "complete"), rec, &out); err != nil {
			return CompletionResult{}, err
		}
		if !out.Success {
			return CompletionResult{}, resilience.Permanent(errors.New("completion rejected"))
		}
		return out, nil
	})
	if err != nil {
		return CompletionResult{}, fmt.Errorf("submit completion: %w", err)
	}
	return res, nil
}

func (s *HTTPSink) lessonURL(lessonID, action string) string {
	return s.baseURL + "/lessons/" + url.PathEscape(lessonID) + "/" + action
}

func (s *HTTPSink) post(ctx context.Context, target string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return resilience.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &resilience.StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resilience.Permanent(fmt.Errorf("unmarshal response: %w", err))
	}
	return nil
}
