package lesson

import (
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

// HTTPSource fetches lessons from the content service.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	guard   *resilience.Guard[*Lesson]
	opts    resilience.Options
}

// HTTPSourceOption configures an HTTPSource.
type HTTPSourceOption func(*HTTPSource)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// WithResilience overrides retry and breaker settings.
func WithResilience(opts resilience.Options) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.opts = opts
	}
}

// NewHTTPSource creates a source reading GET {baseURL}/lessons/{id}.
func NewHTTPSource(baseURL string, opts ...HTTPSourceOption) *HTTPSource {
	s := &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.guard = resilience.NewGuard[*Lesson]("lesson-source", s.opts)
	return s
}

func (s *HTTPSource) Lesson(ctx context.Context, id string) (*Lesson, error) {
	l, err := s.guard.Do(ctx, func(ctx context.Context) (*Lesson, error) {
		return s.fetch(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch lesson %s: %w", id, err)
	}
	return l, nil
}

func (s *HTTPSource) fetch(ctx context.Context, id string) (*Lesson, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/lessons/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, resilience.Permanent(ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, &resilience.StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	doc, err := unwrapEnvelope(body)
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	l, err := Decode(doc)
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	return l, nil
}

// unwrapEnvelope accepts both a bare lesson and {"success":..,"lesson":{..}}.
func unwrapEnvelope(body []byte) ([]byte, error) {
	var env struct {
		Success *bool           `json:"success"`
		Lesson  json.RawMessage `json:"lesson"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Success != nil && !*env.Success {
		if env.Error == "" {
			env.Error = "content service reported failure"
		}
		return nil, errors.New(env.Error)
	}
	if len(env.Lesson) > 0 {
		return env.Lesson, nil
	}
	return body, nil
}
