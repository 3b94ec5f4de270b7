package iptv

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"nzbengine/pkg/apperrors"
)

const maxRedirects = 10

// FetchResult is one upstream response, classified and ready to relay.
type FetchResult struct {
	Body        io.ReadCloser
	StatusCode  int
	ContentType string
	Headers     http.Header
	IsHLS       bool
}

// StreamService fetches upstream IPTV content with manual redirect
// following and one exponential backoff schedule for every retryable error
// class; 429 responses are retried on that same schedule, not a longer one.
type StreamService struct {
	httpClient *http.Client
	stbUA      string
}

// NewStreamService builds a service sharing one no-auto-redirect client.
func NewStreamService(stbUA string) *StreamService {
	return &StreamService{
		httpClient: NewHTTPClient(WithNoRedirects()),
		stbUA:      stbUA,
	}
}

// Fetch retrieves rawURL, following redirects manually (capped at 10 hops)
// and retrying per the retryable error classes.
func (s *StreamService) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	var result *FetchResult

	err := retry.Do(
		func() error {
			r, err := s.fetchOnce(ctx, rawURL)
			if err != nil {
				return err
			}
			result = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isRetryable),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *StreamService) fetchOnce(ctx context.Context, rawURL string) (*FetchResult, error) {
	current := rawURL
	for hop := 0; hop < maxRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", s.stbUA)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, &apperrors.ConnectionReset{Op: "iptv fetch " + current}
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" {
				return nil, &apperrors.PortalError{Message: "redirect with no Location"}
			}
			current = loc
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, retryAfter429{}
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, &apperrors.ServiceUnavailable{Message: resp.Status}
		}
		if resp.StatusCode >= 400 {
			body := resp.Body
			defer body.Close()
			return nil, &apperrors.PortalError{Message: resp.Status}
		}

		ct := resp.Header.Get("Content-Type")
		return &FetchResult{
			Body:        resp.Body,
			StatusCode:  resp.StatusCode,
			ContentType: ct,
			Headers:     resp.Header,
			IsHLS:       IsHLSContentType(ct),
		}, nil
	}
	return nil, &apperrors.PortalError{Message: "too many redirects"}
}

// retryAfter429 marks a 429 response so isRetryable treats it as retryable;
// it is retried with the same backoff as every other retryable error.
type retryAfter429 struct{}

func (retryAfter429) Error() string { return "rate limited (429)" }

func isRetryable(err error) bool {
	var connReset *apperrors.ConnectionReset
	var connTimeout *apperrors.ConnectionTimeout
	var svcUnavail *apperrors.ServiceUnavailable
	var sessionExpired *apperrors.SessionExpired
	var rateLimited retryAfter429

	switch {
	case errors.As(err, &connReset), errors.As(err, &connTimeout):
		return true
	case errors.As(err, &svcUnavail):
		return true
	case errors.As(err, &sessionExpired):
		return true
	case errors.As(err, &rateLimited):
		return true
	default:
		return false
	}
}
