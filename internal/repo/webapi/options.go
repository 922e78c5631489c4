package webapi

import (
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

type Option func(*ImageStore)

// RetryMax overrides how many times the underlying client retries a request.
func RetryMax(retries int) Option {
	return func(s *ImageStore) {
		s.client.RetryMax = retries
	}
}

// Timeout overrides the per-request timeout.
func Timeout(timeout time.Duration) Option {
	return func(s *ImageStore) {
		s.client.HTTPClient.Timeout = timeout
	}
}

// Client replaces the HTTP client entirely.
func Client(client *retryablehttp.Client) Option {
	return func(s *ImageStore) {
		s.client = client
	}
}

// Clock replaces the write-signature timestamp source.
func Clock(now func() time.Time) Option {
	return func(s *ImageStore) {
		s.now = now
	}
}
