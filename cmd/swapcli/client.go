package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ArkLabsHQ/subswap/internal/interface/web/types"
)

type restClient struct {
	url    string
	client http.Client
}

// newRestClient talks to swapd at serverURL, over https when tlsConfig is
// set and the url has no scheme.
func newRestClient(serverURL string, tlsConfig *tls.Config) *restClient {
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		scheme := "http://"
		if tlsConfig != nil {
			scheme = "https://"
		}
		serverURL = scheme + serverURL
	}

	client := http.Client{Timeout: 30 * time.Second}
	if tlsConfig != nil {
		client.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}
	return &restClient{
		url:    strings.TrimSuffix(serverURL, "/"),
		client: client,
	}
}

// loadTLSConfig trusts the PEM certificate at certPath, nil when empty.
func loadTLSConfig(certPath string) (*tls.Config, error) {
	if certPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tls cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificate found in %s", certPath)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// grpcTarget strips the scheme of a server url.
func grpcTarget(serverURL string) string {
	serverURL = strings.TrimPrefix(serverURL, "http://")
	serverURL = strings.TrimPrefix(serverURL, "https://")
	return strings.TrimSuffix(serverURL, "/")
}

func (c *restClient) quote(ctx context.Context, direction string, send, receive uint64) (*types.Quote, error) {
	query := url.Values{}
	query.Set("direction", direction)
	if send > 0 {
		query.Set("send", fmt.Sprintf("%d", send))
	}
	if receive > 0 {
		query.Set("receive", fmt.Sprintf("%d", receive))
	}
	return call[types.Quote](ctx, c, http.MethodGet, "/v1/quote?"+query.Encode(), nil)
}

func (c *restClient) pay(ctx context.Context, invoice string) (*types.Swap, error) {
	return call[types.Swap](ctx, c, http.MethodPost, "/v1/swap/submarine", types.SubmarineSwapRequest{
		Invoice: invoice,
	})
}

func (c *restClient) receive(ctx context.Context, amount uint64, address string) (*types.Swap, error) {
	return call[types.Swap](ctx, c, http.MethodPost, "/v1/swap/reverse", types.ReverseSwapRequest{
		Amount:  amount,
		Address: address,
	})
}

func (c *restClient) list(ctx context.Context) (*types.Swaps, error) {
	return call[types.Swaps](ctx, c, http.MethodGet, "/v1/swaps", nil)
}

func (c *restClient) get(ctx context.Context, id string) (*types.Swap, error) {
	return call[types.Swap](ctx, c, http.MethodGet, "/v1/swaps/"+url.PathEscape(id), nil)
}

func call[T any](ctx context.Context, c *restClient, method, path string, reqBody any) (*T, error) {
	var body io.Reader
	if reqBody != nil {
		buf, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	// nolint:all
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr types.Error
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error != "" {
			if apiErr.MaxSend > 0 {
				return nil, fmt.Errorf("%s (send between %d and %d sats)", apiErr.Error, apiErr.MinSend, apiErr.MaxSend)
			}
			return nil, fmt.Errorf("%s", apiErr.Error)
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}
