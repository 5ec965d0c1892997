package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/pkg/errors"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handler func(t *testing.T, params json.RawMessage) (interface{}, *json2.Error)

// newServer answers JSON-RPC 2.0 requests from the given per-method handlers.
func newServer(t *testing.T, handlers map[string]handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Version string          `json:"jsonrpc"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params"`
			ID      json.RawMessage `json:"id"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "2.0", req.Version)

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		h, ok := handlers[req.Method]
		if !ok {
			resp["error"] = &json2.Error{Code: json2.E_NO_METHOD, Message: "method not found: " + req.Method}
		} else if result, rpcErr := h(t, req.Params); rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetLedgerEntriesSendsKeysAndDecodesTTL(t *testing.T) {
	live := uint32(2000)
	srv := newServer(t, map[string]handler{
		"getLedgerEntries": func(t *testing.T, params json.RawMessage) (interface{}, *json2.Error) {
			var req GetLedgerEntriesRequest
			require.NoError(t, json.Unmarshal(params, &req))
			assert.Equal(t, []string{"a", "b"}, req.Keys)
			return GetLedgerEntriesResponse{
				Entries:      []LedgerEntryResult{{Key: "a", XDR: "x", LiveUntilLedgerSeq: &live}},
				LatestLedger: 1000,
			}, nil
		},
	})

	resp, err := NewClient(srv.URL).GetLedgerEntries(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), resp.LatestLedger)
	require.Len(t, resp.Entries, 1)
	require.NotNil(t, resp.Entries[0].LiveUntilLedgerSeq)
	assert.Equal(t, live, *resp.Entries[0].LiveUntilLedgerSeq)
}

func TestGetAccountReadsSequence(t *testing.T) {
	kp := keypair.MustRandom()
	var id xdr.AccountId
	require.NoError(t, id.SetAddress(kp.Address()))
	data, err := xdr.MarshalBase64(xdr.LedgerEntryData{
		Type:    xdr.LedgerEntryTypeAccount,
		Account: &xdr.AccountEntry{AccountId: id, Balance: 100, SeqNum: 12345},
	})
	require.NoError(t, err)
	wantKey, err := AccountKey(kp.Address())
	require.NoError(t, err)

	srv := newServer(t, map[string]handler{
		"getLedgerEntries": func(t *testing.T, params json.RawMessage) (interface{}, *json2.Error) {
			var req GetLedgerEntriesRequest
			require.NoError(t, json.Unmarshal(params, &req))
			assert.Equal(t, []string{wantKey}, req.Keys)
			return GetLedgerEntriesResponse{
				Entries:      []LedgerEntryResult{{Key: wantKey, XDR: data}},
				LatestLedger: 10,
			}, nil
		},
	})

	account, err := NewClient(srv.URL).GetAccount(context.Background(), kp.Address())
	require.NoError(t, err)
	assert.Equal(t, kp.Address(), account.AccountID)
	assert.Equal(t, int64(12345), account.Sequence)
}

func TestGetAccountNotFound(t *testing.T) {
	srv := newServer(t, map[string]handler{
		"getLedgerEntries": func(*testing.T, json.RawMessage) (interface{}, *json2.Error) {
			return GetLedgerEntriesResponse{LatestLedger: 10}, nil
		},
	})

	_, err := NewClient(srv.URL).GetAccount(context.Background(), keypair.MustRandom().Address())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}

func TestServerErrorIsTyped(t *testing.T) {
	srv := newServer(t, map[string]handler{
		"getHealth": func(*testing.T, json.RawMessage) (interface{}, *json2.Error) {
			return nil, &json2.Error{Code: json2.E_INTERNAL, Message: "boom"}
		},
	})

	_, err := NewClient(srv.URL).GetHealth(context.Background())
	require.Error(t, err)
	var rpcErr *json2.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "boom", rpcErr.Message)
	assert.Contains(t, err.Error(), "getHealth")
}

func TestHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetLatestLedger(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "overloaded")
}

func TestRateLimitedClientHonoursContext(t *testing.T) {
	srv := newServer(t, map[string]handler{
		"getLatestLedger": func(*testing.T, json.RawMessage) (interface{}, *json2.Error) {
			return GetLatestLedgerResponse{Sequence: 7}, nil
		},
	})
	c := NewClient(srv.URL, WithRateLimit(0.001, 1))

	ledger, err := c.GetLatestLedger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(7), ledger.Sequence)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.GetLatestLedger(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestCheckCompatibility(t *testing.T) {
	serve := func(passphrase, ver string) *Client {
		srv := newServer(t, map[string]handler{
			"getNetwork": func(*testing.T, json.RawMessage) (interface{}, *json2.Error) {
				return GetNetworkResponse{Passphrase: passphrase, ProtocolVersion: 23}, nil
			},
			"getVersionInfo": func(*testing.T, json.RawMessage) (interface{}, *json2.Error) {
				return GetVersionInfoResponse{Version: ver, ProtocolVersion: 23}, nil
			},
		})
		return NewClient(srv.URL)
	}
	ctx := context.Background()

	require.NoError(t, serve("Test SDF Network ; September 2015", "23.0.4-5c9d4e1").
		CheckCompatibility(ctx, "Test SDF Network ; September 2015", "22.0.0"))

	err := serve("Public Global Stellar Network ; September 2015", "23.0.0").
		CheckCompatibility(ctx, "Test SDF Network ; September 2015", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Public Global")

	err = serve("Test SDF Network ; September 2015", "21.3.0").
		CheckCompatibility(ctx, "Test SDF Network ; September 2015", "22.0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not satisfy")
}
