package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/abennett/destiny/pkg/messages"
)

// API calls the server's HTTP endpoints.
type API struct {
	BaseURL string
	HTTP    *http.Client
}

func NewAPI(baseURL string) *API {
	return &API{
		BaseURL: baseURL,
		HTTP:    http.DefaultClient,
	}
}

func (a *API) Roll(ctx context.Context, notation string) (messages.RollResponse, error) {
	var resp messages.RollResponse
	err := a.get(ctx, "/api/roll", notation, &resp)
	return resp, err
}

func (a *API) Complexity(ctx context.Context, notation string) (messages.ComplexityResponse, error) {
	var resp messages.ComplexityResponse
	err := a.get(ctx, "/api/complexity", notation, &resp)
	return resp, err
}

func (a *API) Distribution(ctx context.Context, notation string) (messages.DistributionResponse, error) {
	var resp messages.DistributionResponse
	err := a.get(ctx, "/api/distribution", notation, &resp)
	return resp, err
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (a *API) get(ctx context.Context, path, notation string, out any) error {
	u, err := url.Parse(a.BaseURL)
	if err != nil {
		return err
	}
	u = u.JoinPath(path)
	u.RawQuery = url.Values{"notation": {notation}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", messages.ContentType)
	resp, err := a.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e messages.ErrorResponse
		if err := msgpack.Unmarshal(b, &e); err != nil || e.Error == "" {
			e.Error = string(b)
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if err := msgpack.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
