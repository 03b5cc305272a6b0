package boltz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Api struct {
	URL    string
	WSURL  string
	Client http.Client
}

func (boltz *Api) GetSubmarinePairs(ctx context.Context) (SubmarinePairs, error) {
	resp, err := sendGetRequest[SubmarinePairs](ctx, boltz, "/swap/submarine")
	if err != nil {
		return nil, err
	}
	return *resp, nil
}

func (boltz *Api) GetReversePairs(ctx context.Context) (ReversePairs, error) {
	resp, err := sendGetRequest[ReversePairs](ctx, boltz, "/swap/reverse")
	if err != nil {
		return nil, err
	}
	return *resp, nil
}

func (boltz *Api) CreateSwap(ctx context.Context, request CreateSwapRequest) (*CreateSwapResponse, error) {
	resp, err := sendPostRequest[CreateSwapResponse](ctx, boltz, "/swap/submarine", request)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, resp.Error)
	}
	if resp.Id == "" {
		return nil, fmt.Errorf("%w: missing swap id", ErrProtocol)
	}

	return resp, nil
}

func (boltz *Api) CreateReverseSwap(ctx context.Context, request CreateReverseSwapRequest) (*CreateReverseSwapResponse, error) {
	resp, err := sendPostRequest[CreateReverseSwapResponse](ctx, boltz, "/swap/reverse", request)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, resp.Error)
	}
	if resp.Id == "" {
		return nil, fmt.Errorf("%w: missing swap id", ErrProtocol)
	}

	return resp, nil
}

func (boltz *Api) GetSwapClaimDetails(ctx context.Context, swapId string) (*SwapClaimDetails, error) {
	url := fmt.Sprintf("/swap/submarine/%s/claim", swapId)
	resp, err := sendGetRequest[SwapClaimDetails](ctx, boltz, url)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, resp.Error)
	}

	return resp, nil
}

func (boltz *Api) SubmitSwapClaim(ctx context.Context, swapId string, request PartialSignature) error {
	url := fmt.Sprintf("/swap/submarine/%s/claim", swapId)
	resp, err := sendPostRequest[PartialSignature](ctx, boltz, url, request)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, resp.Error)
	}

	return nil
}

func (boltz *Api) ClaimReverseSwap(ctx context.Context, swapId string, request ReverseClaimRequest) (*PartialSignature, error) {
	url := fmt.Sprintf("/swap/reverse/%s/claim", swapId)
	resp, err := sendPostRequest[PartialSignature](ctx, boltz, url, request)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, resp.Error)
	}

	return resp, nil
}

func (boltz *Api) GetSwapStatus(ctx context.Context, swapId string) (*SwapStatusResponse, error) {
	resp, err := sendGetRequest[SwapStatusResponse](ctx, boltz, "/swap/"+swapId)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, resp.Error)
	}

	return resp, nil
}

func (boltz *Api) BroadcastTransaction(ctx context.Context, currency Currency, txHex string) (string, error) {
	url := fmt.Sprintf("/chain/%s/transaction", currency)
	resp, err := sendPostRequest[BroadcastResponse](ctx, boltz, url, BroadcastRequest{Hex: txHex})
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidRequest, resp.Error)
	}

	return resp.Id, nil
}

const defaultHTTPTimeout = 15 * time.Second

func withTimeoutCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, defaultHTTPTimeout)
}

func sendGetRequest[T any](ctx context.Context, boltz *Api, endpoint string) (*T, error) {
	ctx, cancel := withTimeoutCtx(ctx)
	defer cancel()
	return callApi[T](ctx, &boltz.Client, http.MethodGet, boltz.URL+"/v2"+endpoint, nil)
}

func sendPostRequest[T any](ctx context.Context, boltz *Api, endpoint string, requestBody any) (*T, error) {
	ctx, cancel := withTimeoutCtx(ctx)
	defer cancel()
	return callApi[T](ctx, &boltz.Client, http.MethodPost, boltz.URL+"/v2"+endpoint, requestBody)
}

func callApi[T any](ctx context.Context, c *http.Client, method, url string, reqBody any) (*T, error) {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("new %s %s: %w", method, url, err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrServiceUnavailable, method, url, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %w", ErrServiceUnavailable, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 2000 {
			msg = msg[:2000] + "...(truncated)"
		}
		return nil, &HTTPError{
			Method:     method,
			URL:        url,
			StatusCode: res.StatusCode,
			Message:    errorMessage(raw),
			Body:       msg,
		}
	}

	// Handle empty body for 201/204 etc.
	if len(bytes.TrimSpace(raw)) == 0 {
		var zero T
		return &zero, nil
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		snip := strings.TrimSpace(string(raw))
		if len(snip) > 300 {
			snip = snip[:300] + "...(truncated)"
		}
		return nil, fmt.Errorf("%w: unmarshal JSON: %w (body: %q)", ErrProtocol, err, snip)
	}

	return &out, nil
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.Error
}
