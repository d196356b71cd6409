// Package provider defines the contract every vendor data source implements
// and the shared plumbing their HTTP clients use.
package provider

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/yourorg/invest-api/listing"
)

// ErrQuotaExceeded is returned when a vendor rejects a call because the
// account's daily/monthly quota is spent. Callers surface it distinctly
// instead of treating it as a transient upstream failure.
var ErrQuotaExceeded = errors.New("provider quota exceeded")

// Provider is one external listing source. Search returns normalized
// listings; malformed vendor records are dropped inside the adapter, never
// surfaced as errors.
type Provider interface {
	Name() string
	Search(ctx context.Context, f listing.SearchFilters) ([]listing.Listing, error)
}

// NewHTTPClient builds the retryable HTTP client every provider uses:
// bounded retries with short backoff and a hard per-request timeout.
func NewHTTPClient() *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 900 * time.Millisecond
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil
	return rc
}

// ReadAllLimit reads at most limit bytes and errors beyond it, guarding
// against runaway vendor payloads.
func ReadAllLimit(r io.Reader, limit int64) ([]byte, error) {
	lr := io.LimitReader(r, limit+1)
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errors.New("payload too large")
	}
	return b, nil
}
