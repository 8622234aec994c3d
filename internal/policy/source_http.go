package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"immigo/pkg/platform/sentinel"
)

// HTTPSource fetches policy fields from an aggregator endpoint that serves
// one JSON object of string attributes per policy line.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource builds a source against baseURL. The expected layout is
// GET {baseURL}/{country}/{policyType} returning {"field": "value", ...}.
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPSource{baseURL: baseURL, client: client}
}

func (s *HTTPSource) Fetch(ctx context.Context, key Key) (Fields, error) {
	url := fmt.Sprintf("%s/%s/%s", s.baseURL, key.Country, key.Type)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request for %s: %w", key, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("fetch %s: upstream status %d: %w", key, resp.StatusCode, sentinel.ErrUnavailable)
	default:
		return nil, fmt.Errorf("fetch %s: upstream status %d: %w", key, resp.StatusCode, sentinel.ErrMalformed)
	}

	var fields Fields
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", key, sentinel.ErrMalformed)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("decode %s payload: empty field set: %w", key, sentinel.ErrMalformed)
	}
	return fields, nil
}
