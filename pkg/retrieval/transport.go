package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// fetchBody issues one GET and returns the response body as text. Non-2xx
// responses are transport errors.
func fetchBody(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("GET %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// queryURL appends the attribute set as query parameters to a base URL.
func queryURL(baseURL string, attrs []Attribute) string {
	params := QueryParams(attrs)
	if sep := "?"; len(params) > 0 {
		if u, err := url.Parse(baseURL); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		return baseURL + sep + params.Encode()
	}
	return baseURL
}
