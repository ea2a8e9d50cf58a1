// Package catalog implements the product fetch engine for the Tiki
// product-detail API: one HTTP GET per identifier with politeness delays,
// per-attempt outcome classification, and linear backoff on rate limits and
// timeouts.
package catalog

import (
	"encoding/json"
	"fmt"
)

// Product is one catalog record as persisted in batch artifacts.
// Description holds plain text; the API's HTML markup is stripped on fetch.
type Product struct {
	ID          json.Number `json:"id"`
	Name        string      `json:"name"`
	URLKey      string      `json:"url_key"`
	Price       json.Number `json:"price"`
	Description string      `json:"description"`
	ImageURL    string      `json:"image_url"`
}

// productResponse mirrors the API response fields consumed by the crawler.
type productResponse struct {
	ID           json.Number `json:"id"`
	Name         string      `json:"name"`
	URLKey       string      `json:"url_key"`
	Price        json.Number `json:"price"`
	Description  string      `json:"description"`
	ThumbnailURL string      `json:"thumbnail_url"`
}

// ReasonKind classifies a permanent fetch failure.
type ReasonKind string

const (
	// ReasonNotFound is an HTTP 404; the product does not exist.
	ReasonNotFound ReasonKind = "not_found"

	// ReasonHTTPStatus is any status outside {200, 404, 429}. These are
	// permanent: the retry budget is never spent on unknown statuses.
	ReasonHTTPStatus ReasonKind = "http_status"

	// ReasonTimeoutExhausted means every attempt timed out.
	ReasonTimeoutExhausted ReasonKind = "timeout_exhausted"

	// ReasonRateLimitExhausted means the final attempt was still rate limited.
	ReasonRateLimitExhausted ReasonKind = "rate_limited_exhausted"

	// ReasonException is any other error during an attempt (connection
	// failure, malformed body). Not retried.
	ReasonException ReasonKind = "exception"

	// ReasonRetriesExhausted is the fallback when the attempt budget runs
	// out without a more specific terminal classification.
	ReasonRetriesExhausted ReasonKind = "retries_exhausted"
)

// Reason is a permanent failure classification, carrying the HTTP status
// for ReasonHTTPStatus.
type Reason struct {
	Kind       ReasonKind
	StatusCode int
}

func (r Reason) String() string {
	if r.Kind == ReasonHTTPStatus {
		return fmt.Sprintf("%s_%d", r.Kind, r.StatusCode)
	}
	return string(r.Kind)
}

// Outcome is the terminal result of fetching one identifier: either a
// product or a failure reason, never both.
type Outcome struct {
	ID      string
	Product *Product
	Reason  Reason
}

// Success reports whether the fetch produced a product.
func (o Outcome) Success() bool {
	return o.Product != nil
}

// successOutcome and failureOutcome keep construction in one place.
func successOutcome(id string, p *Product) Outcome {
	return Outcome{ID: id, Product: p}
}

func failureOutcome(id string, reason Reason) Outcome {
	return Outcome{ID: id, Reason: reason}
}
