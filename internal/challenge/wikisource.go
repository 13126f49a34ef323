package challenge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const wikiSourceHTTPTimeout = 10 * time.Second

// WikiSource pulls random article intros from a MediaWiki API endpoint.
type WikiSource struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
}

func NewWikiSource(endpoint, userAgent string) *WikiSource {
	return &WikiSource{
		endpoint:   endpoint,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: wikiSourceHTTPTimeout},
	}
}

func (s *WikiSource) RandomExtract(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("formatversion", "2")
	q.Set("utf8", "1")
	q.Set("generator", "random")
	q.Set("grnnamespace", "0")
	q.Set("grnlimit", "1")
	q.Set("prop", "extracts")
	q.Set("exintro", "1")
	q.Set("explaintext", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var payload struct {
		Query struct {
			Pages []struct {
				Title   string `json:"title"`
				Extract string `json:"extract"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(payload.Query.Pages) == 0 {
		return "", fmt.Errorf("no pages in response")
	}
	return payload.Query.Pages[0].Extract, nil
}
