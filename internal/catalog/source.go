// Package catalog downloads per-dataset metadata records from the CMR
// search API and stores them as the documents the ingest pipeline reads.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrNotFound       = errors.New("no collection for DOI")
	ErrMissingCMRID   = errors.New("collection has no concept-id")
	ErrUnexpectedHTTP = errors.New("unexpected catalog response")
)

// Metadata is one collection record. UMM carries the raw UMM-C document
// with CMR_ID attached.
type Metadata struct {
	DOI   string
	CMRID string
	UMM   map[string]any
}

type Source interface {
	Fetch(ctx context.Context, doi string) (Metadata, error)
}

// CMRSource queries collections.umm_json by DOI.
type CMRSource struct {
	BaseURL string
	Client  *http.Client
	// Limiter, if set, paces outgoing requests.
	Limiter *rate.Limiter
}

func NewCMRSource(baseURL string, timeout time.Duration, requestsPerSecond float64) *CMRSource {
	s := &CMRSource{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
	if requestsPerSecond > 0 {
		s.Limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return s
}

type searchResponse struct {
	Items []struct {
		Meta map[string]any `json:"meta"`
		UMM  map[string]any `json:"umm"`
	} `json:"items"`
}

func (s *CMRSource) Fetch(ctx context.Context, doi string) (Metadata, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return Metadata{}, err
		}
	}
	endpoint := s.BaseURL
	if strings.Contains(endpoint, "?") {
		endpoint += "&"
	} else {
		endpoint += "?"
	}
	endpoint += "doi=" + url.QueryEscape(doi)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Metadata{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("fetch %s: %w", doi, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Metadata{}, fmt.Errorf("%w: %s for %s: %s", ErrUnexpectedHTTP, resp.Status, doi, strings.TrimSpace(string(body)))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Metadata{}, fmt.Errorf("decode response for %s: %w", doi, err)
	}
	if len(sr.Items) == 0 || len(sr.Items[0].UMM) == 0 {
		return Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, doi)
	}
	item := sr.Items[0]
	id, _ := item.Meta["concept-id"].(string)
	if id == "" {
		return Metadata{DOI: doi, UMM: item.UMM}, fmt.Errorf("%w: %s", ErrMissingCMRID, doi)
	}
	item.UMM["CMR_ID"] = id
	return Metadata{DOI: doi, CMRID: id, UMM: item.UMM}, nil
}
