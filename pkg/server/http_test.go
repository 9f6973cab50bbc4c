package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shoenig/test/must"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/abennett/destiny/pkg/messages"
)

func get(t *testing.T, ts *httptest.Server, path, notation string, out any) int {
	t.Helper()
	u := ts.URL + path
	if notation != "" {
		u += "?" + url.Values{"notation": {notation}}.Encode()
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, u, nil)
	must.NoError(t, err)
	resp, err := ts.Client().Do(req)
	must.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	must.NoError(t, err)
	if out != nil {
		must.EqOp(t, messages.ContentType, resp.Header.Get("Content-Type"))
		must.NoError(t, msgpack.Unmarshal(b, out))
	}
	return resp.StatusCode
}

func newAPIServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewMux(NewServer(cfg)))
	t.Cleanup(ts.Close)
	return ts
}

func TestHealth(t *testing.T) {
	ts := newAPIServer(t, DefaultConfig())
	must.EqOp(t, http.StatusOK, get(t, ts, "/health", "", nil))
}

func TestRollEndpoint(t *testing.T) {
	ts := newAPIServer(t, DefaultConfig())
	var resp messages.RollResponse
	status := get(t, ts, "/api/roll", "(3 + 1d1) * 2", &resp)
	must.EqOp(t, http.StatusOK, status)
	must.EqOp(t, int64(8), resp.Total)
	must.EqOp(t, "(3 + 1) * 2", resp.Expression)
	must.Eq(t, []int64{1}, resp.Results)

	var errResp messages.ErrorResponse
	status = get(t, ts, "/api/roll", "1d4 + asdf", &errResp)
	must.EqOp(t, http.StatusBadRequest, status)
	must.StrContains(t, errResp.Error, "malformed expression")

	status = get(t, ts, "/api/roll", "0d4", &errResp)
	must.EqOp(t, http.StatusBadRequest, status)

	status = get(t, ts, "/api/roll", "", &errResp)
	must.EqOp(t, http.StatusBadRequest, status)
}

func TestComplexityEndpoint(t *testing.T) {
	ts := newAPIServer(t, DefaultConfig())
	var resp messages.ComplexityResponse
	status := get(t, ts, "/api/complexity", "1d20 + 3d6", &resp)
	must.EqOp(t, http.StatusOK, status)
	must.EqOp(t, int64(4320), resp.Combinations)

	var errResp messages.ErrorResponse
	status = get(t, ts, "/api/complexity", "100d100", &errResp)
	must.EqOp(t, http.StatusUnprocessableEntity, status)
}

func TestDistributionEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxComplexity = 1000
	ts := newAPIServer(t, cfg)

	var resp messages.DistributionResponse
	status := get(t, ts, "/api/distribution", "2d6", &resp)
	must.EqOp(t, http.StatusOK, status)
	must.EqOp(t, int64(36), resp.Total)
	must.SliceLen(t, 11, resp.Rows)
	must.EqOp(t, int64(2), resp.Rows[0].Value)
	must.EqOp(t, int64(6), resp.Rows[5].Count)
	must.InDelta(t, 7.0, resp.Mean, 1e-9)

	var errResp messages.ErrorResponse
	status = get(t, ts, "/api/distribution", "4d10", &errResp)
	must.EqOp(t, http.StatusUnprocessableEntity, status)
	must.StrContains(t, errResp.Error, "complexity limit")

	status = get(t, ts, "/api/distribution", "(1d4 + 1d6", &errResp)
	must.EqOp(t, http.StatusBadRequest, status)
}

func TestDistributionEndpointSkipFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkipFailures = true
	ts := newAPIServer(t, cfg)

	var resp messages.DistributionResponse
	status := get(t, ts, "/api/distribution", "12 / (1d3 - 2)", &resp)
	must.EqOp(t, http.StatusOK, status)
	must.EqOp(t, int64(3), resp.Total)
	must.EqOp(t, int64(1), resp.Failed)
	must.SliceLen(t, 2, resp.Rows)
}

func TestWriteErrorStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.New("boom"))
	must.EqOp(t, http.StatusInternalServerError, rec.Code)
}

func TestRollEndpointMaxDice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDice = 100
	ts := newAPIServer(t, cfg)

	var resp messages.RollResponse
	status := get(t, ts, "/api/roll", "50d6 + 50d6", &resp)
	must.EqOp(t, http.StatusOK, status)

	var errResp messages.ErrorResponse
	status = get(t, ts, "/api/roll", "1000000000000d6", &errResp)
	must.EqOp(t, http.StatusUnprocessableEntity, status)
	must.StrContains(t, errResp.Error, "too many dice")

	status = get(t, ts, "/api/roll", "50d6 + 51d6", &errResp)
	must.EqOp(t, http.StatusUnprocessableEntity, status)
}
