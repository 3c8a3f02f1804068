package service

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// ForwardResult carries the upstream response verbatim so the gateway can
// pass it through untouched.
type ForwardResult struct {
	Status      int
	ContentType string
	Body        []byte
}

// Forwarder relays an admitted request to the registered upstream.
type Forwarder interface {
	Forward(ctx context.Context, host, path, method, body string) (*ForwardResult, error)
}

// HTTPForwarder forwards over a shared tuned http.Client.
type HTTPForwarder struct {
	client *http.Client
}

func NewHTTPForwarder(timeout time.Duration) *HTTPForwarder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPForwarder{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (f *HTTPForwarder) Forward(ctx context.Context, host, path, method, body string) (*ForwardResult, error) {
	url := strings.TrimRight(host, "/") + path

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &ForwardResult{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        payload,
	}, nil
}
