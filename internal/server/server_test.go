package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conway-token-lab/internal/chain/stub"
	"conway-token-lab/internal/gallery"
	"conway-token-lab/internal/mint"
	"conway-token-lab/internal/ownership"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func newTestServer(t *testing.T, c *stub.Contract, opts ...gallery.Option) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(gallery.NewService(c, opts...), nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func seeded(t *testing.T) *stub.Contract {
	t.Helper()
	c := stub.NewContract()
	for _, id := range []uint64{0, 2} {
		args, err := mint.Encode(8, []int{1, 2, int(id)})
		require.NoError(t, err)
		uri, err := stub.TokenURIFor(args)
		require.NoError(t, err)
		c.Mint(alice, id, uri)
	}
	c.Mint(common.HexToAddress("0xb0b"), 1, "data:application/json;base64,e30=")
	return c
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, stub.NewContract())

	resp, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, stub.NewContract())

	resp, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "conway_token_lab_")
}

func TestOwnerTokens(t *testing.T) {
	srv := newTestServer(t, seeded(t))

	resp, body := get(t, srv.URL+"/owners/"+alice.Hex()+"/tokens")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got OwnerTokensResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, alice.Hex(), got.Owner)
	assert.Equal(t, []uint64{0, 2}, got.TokenIDs)
	assert.Equal(t, 2, got.Balance)
}

func TestOwnerTokens_InvalidAddress(t *testing.T) {
	srv := newTestServer(t, seeded(t))

	resp, _ := get(t, srv.URL+"/owners/not-an-address/tokens")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOwnerTokens_Incomplete(t *testing.T) {
	srv := newTestServer(t, seeded(t), gallery.WithEnumerator(&ownership.Enumerator{MaxProbes: 2}))

	resp, _ := get(t, srv.URL+"/owners/"+alice.Hex()+"/tokens")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestOwnerTokens_ProviderError(t *testing.T) {
	c := seeded(t)
	c.Err = errors.New("node unavailable")
	srv := newTestServer(t, c)

	resp, body := get(t, srv.URL+"/owners/"+alice.Hex()+"/tokens")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var got ErrorResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Contains(t, got.Error, "node unavailable")
}

func TestToken(t *testing.T) {
	srv := newTestServer(t, seeded(t))

	resp, body := get(t, srv.URL+"/tokens/2")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got TokenResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, uint64(2), got.ID)
	assert.Equal(t, "image/svg+xml", got.ImageMIME)
	assert.Equal(t, "text/html", got.AnimationMIME)
	assert.Equal(t, "/tokens/2/image", got.ImageURL)

	var meta map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(got.Metadata, &meta))
	assert.Contains(t, meta, "image")
	assert.Contains(t, meta, "animation_url")
	assert.Contains(t, meta, "name")
}

func TestToken_Errors(t *testing.T) {
	srv := newTestServer(t, seeded(t))

	tests := []struct {
		path   string
		status int
	}{
		{"/tokens/abc", http.StatusBadRequest},
		{"/tokens/-1", http.StatusBadRequest},
		{"/tokens/9", http.StatusNotFound},
		{"/tokens/1", http.StatusUnprocessableEntity},
		{"/tokens/9/image", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, _ := get(t, srv.URL+tt.path)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestTokenAssets(t *testing.T) {
	srv := newTestServer(t, seeded(t))

	resp, body := get(t, srv.URL+"/tokens/0/image")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "sandbox")
	assert.Contains(t, string(body), "<svg")

	resp, body = get(t, srv.URL+"/tokens/0/animation")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "<!DOCTYPE html>")
}

func TestRun_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(gallery.NewService(stub.NewContract()), nil).Run(ctx, "127.0.0.1:0")
	}()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
