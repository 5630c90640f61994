package drm

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// DefaultLicenseTimeout bounds a single license round trip when no timeout
// is configured. Retrying is the protocol's job, not the transport's.
const DefaultLicenseTimeout = 10 * time.Second

// HTTPTransport is the net/http implementation of Transport. License
// exchanges are plain POSTs; non-2xx statuses are returned to the caller,
// not turned into errors, so the retry policy can see them.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport returns a transport whose round trips time out after the
// given duration. A non-positive timeout means DefaultLicenseTimeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultLicenseTimeout
	}
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

// Send implements Transport.Send.
func (t *HTTPTransport) Send(ctx context.Context, url string, body []byte, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}
