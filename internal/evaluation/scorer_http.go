package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/p-n-ai/pai-lesson/internal/platform/resilience"
)

// HTTPScorer calls the pronunciation service with a multipart upload.
type HTTPScorer struct {
	url    string
	client *http.Client
	opts   resilience.Options
	guard  *resilience.Guard[SpeechResult]
}

// HTTPScorerOption configures an HTTPScorer.
type HTTPScorerOption func(*HTTPScorer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPScorerOption {
	return func(s *HTTPScorer) {
		s.client = client
	}
}

// WithResilience overrides retry and breaker settings.
func WithResilience(opts resilience.Options) HTTPScorerOption {
	return func(s *HTTPScorer) {
		s.opts = opts
	}
}

// NewHTTPScorer creates a scorer posting to url.
func NewHTTPScorer(url string, opts ...HTTPScorerOption) *HTTPScorer {
	s := &HTTPScorer{
		url:    url,
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.guard = resilience.NewGuard[SpeechResult]("pronunciation", s.opts)
	return s
}

type scoreResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *struct {
		OverallScore *float64 `json:"overall_score"`
		SpokenText   string   `json:"spoken_text"`
		ExpectedText string   `json:"expected_text"`
		Feedback     string   `json:"feedback"`
	} `json:"data"`
}

func (s *HTTPScorer) Score(ctx context.Context, req SpeechRequest) (SpeechResult, error) {
	body, contentType, err := encodeSpeech(req)
	if err != nil {
		return SpeechResult{}, fmt.Errorf("encode request: %w", err)
	}

	res, err := s.guard.Do(ctx, func(ctx context.Context) (SpeechResult, error) {
		return s.send(ctx, body, contentType)
	})
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, ErrMalformedResponse):
		return SpeechResult{}, err
	default:
		return SpeechResult{}, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
}

func (s *HTTPScorer) send(ctx context.Context, body []byte, contentType string) (SpeechResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return SpeechResult{}, resilience.Permanent(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return SpeechResult{}, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return SpeechResult{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return SpeechResult{}, &resilience.StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var sr scoreResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return SpeechResult{}, resilience.Permanent(fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	if !sr.Success {
		msg := sr.Message
		if msg == "" {
			msg = "evaluation failed"
		}
		return SpeechResult{}, resilience.Permanent(errors.New(msg))
	}
	if sr.Data == nil || sr.Data.OverallScore == nil {
		return SpeechResult{}, resilience.Permanent(fmt.Errorf("%w: missing overall_score", ErrMalformedResponse))
	}

	return SpeechResult{
		Score:        RoundScore(*sr.Data.OverallScore),
		SpokenText:   sr.Data.SpokenText,
		ExpectedText: sr.Data.ExpectedText,
		Feedback:     sr.Data.Feedback,
	}, nil
}

func encodeSpeech(req SpeechRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	ct := req.ContentType
	if ct == "" {
		ct = "audio/wav"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="audio"; filename="recording.wav"`)
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("expectedText", req.ExpectedText); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("language", req.Language); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
