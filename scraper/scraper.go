// Package scraper fetches platinmods.com pages and extracts observations
// from them. It owns all site-specific HTML knowledge; nothing outside this
// package knows what a XenForo page looks like.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"

	"platinmods-tracker/pkg/tracker"
)

// FetchError indicates the raw page could not be retrieved: network error,
// non-success status, or timeout.
type FetchError struct {
	URL    string
	Status int // HTTP status when the response was received, 0 otherwise
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError checks if an error is a FetchError.
func IsFetchError(err error) bool {
	var fetch *FetchError
	return errors.As(err, &fetch)
}

// ExtractError indicates the page was retrieved but the expected structure
// was missing, usually a site layout change.
type ExtractError struct {
	URL    string
	Reason string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
}

// IsExtractError checks if an error is an ExtractError.
func IsExtractError(err error) bool {
	var extract *ExtractError
	return errors.As(err, &extract)
}

// Scraper fetches and parses tracked pages.
type Scraper struct {
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new scraper. The client's timeout bounds every fetch.
func New(client *http.Client, logger *slog.Logger) *Scraper {
	return &Scraper{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Observe fetches the target's page and extracts its current state.
func (s *Scraper) Observe(ctx context.Context, target tracker.Target) (tracker.Observation, error) {
	doc, err := s.fetch(ctx, target.URL)
	if err != nil {
		return tracker.Observation{}, err
	}

	switch target.Kind {
	case tracker.KindUser:
		online, err := parseMemberPage(doc, target.URL)
		if err != nil {
			return tracker.Observation{}, err
		}
		return tracker.Observation{
			Kind:       tracker.KindUser,
			Online:     online,
			ObservedAt: s.now(),
		}, nil
	case tracker.KindForum:
		threads, err := parseForumPage(doc, target.URL)
		if err != nil {
			return tracker.Observation{}, err
		}
		return tracker.Observation{
			Kind:       tracker.KindForum,
			ObservedAt: s.now(),
			Threads:    threads,
		}, nil
	default:
		return tracker.Observation{}, &ExtractError{URL: target.URL, Reason: fmt.Sprintf("unknown target kind %q", target.Kind)}
	}
}

// fetch retrieves a page and parses it into a document, retrying transient
// failures with backoff and jitter.
func (s *Scraper) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	var doc *goquery.Document

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(&FetchError{URL: pageURL, Err: err})
			}

			// Chrome-like headers to avoid getting blocked
			req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")

			startTime := time.Now()
			resp, err := s.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				s.logger.Warn("HTTP request failed, will retry",
					"url", pageURL,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return &FetchError{URL: pageURL, Err: err}
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					s.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			s.logger.Info("HTTP request completed",
				"url", pageURL,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds())

			if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
				// Not transient: retrying a 403/404 just hammers the site
				return retry.Unrecoverable(&FetchError{URL: pageURL, Status: resp.StatusCode})
			}
			if resp.StatusCode != http.StatusOK {
				return &FetchError{URL: pageURL, Status: resp.StatusCode}
			}

			parsed, err := goquery.NewDocumentFromReader(resp.Body)
			if err != nil {
				s.logger.Warn("Failed to parse HTML, will retry", "url", pageURL, "error", err)
				return &FetchError{URL: pageURL, Err: fmt.Errorf("parse html: %w", err)}
			}

			doc = parsed
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying fetch after error", "attempt", n, "url", pageURL, "error", err)
		}),
	)
	if err != nil {
		var fetch *FetchError
		if errors.As(err, &fetch) {
			return nil, fetch
		}
		return nil, &FetchError{URL: pageURL, Err: err}
	}

	return doc, nil
}
