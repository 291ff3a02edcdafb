package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSimulatedClient(t *testing.T) {
	c := NewSimulatedClient(0)

	first, err := c.SubmitMint(context.Background(), "0xabc", "ipfs://one")
	require.NoError(t, err)
	second, err := c.SubmitMint(context.Background(), "0xabc", "ipfs://one")
	require.NoError(t, err)

	require.NotEqual(t, first.TokenID, second.TokenID)
	require.NotEqual(t, first.TxHash, second.TxHash)
	require.True(t, strings.HasPrefix(first.TxHash, "0x"))
	require.Len(t, first.TxHash, 66)

	hash, err := c.SubmitNameRegistration(context.Background(), "alice", "0xabc")
	require.NoError(t, err)
	require.Len(t, hash, 66)
}

func TestSimulatedClient_RespectsContext(t *testing.T) {
	c := NewSimulatedClient(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.SubmitMint(ctx, "0xabc", "ipfs://one")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRelayerClient(t *testing.T) {
	var (
		gotAuth string
		gotMint mintRequest
		gotName nameRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/mint":
			_ = json.NewDecoder(r.Body).Decode(&gotMint)
			_, _ = w.Write([]byte(`{"token_id":"7","tx_hash":"0xfeed"}`))
		case "/names":
			_ = json.NewDecoder(r.Body).Decode(&gotName)
			_, _ = w.Write([]byte(`{"tx_hash":"0xbeef"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewRelayerClient(srv.URL, "relayer-token", nil)

	res, err := c.SubmitMint(context.Background(), "0xabc", "ipfs://meta")
	require.NoError(t, err)
	require.Equal(t, MintResult{TokenID: "7", TxHash: "0xfeed"}, res)
	require.Equal(t, mintRequest{Recipient: "0xabc", MetadataURI: "ipfs://meta"}, gotMint)
	require.Equal(t, "Bearer relayer-token", gotAuth)

	tx, err := c.SubmitNameRegistration(context.Background(), "alice", "0xabc")
	require.NoError(t, err)
	require.Equal(t, "0xbeef", tx)
	require.Equal(t, nameRequest{Label: "alice", Owner: "0xabc"}, gotName)
}

func TestRelayerClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/mint" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewRelayerClient(srv.URL, "", nil)
	_, err := c.SubmitMint(context.Background(), "0xabc", "ipfs://meta")
	require.ErrorIs(t, err, ErrEmptyResponse)

	_, err = c.SubmitNameRegistration(context.Background(), "alice", "0xabc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status=502")
}

func TestNew_SelectsClientByEnvironment(t *testing.T) {
	t.Run("production without relayer never simulates", func(t *testing.T) {
		c := New(nil, Options{Production: true})
		_, err := c.SubmitMint(context.Background(), "0xabc", "ipfs://one")
		require.ErrorIs(t, err, ErrNotConfigured)
		_, err = c.SubmitNameRegistration(context.Background(), "alice", "0xabc")
		require.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("development without relayer simulates", func(t *testing.T) {
		c := New(nil, Options{})
		require.IsType(t, &SimulatedClient{}, c)
	})

	t.Run("relayer wins in any environment", func(t *testing.T) {
		c := New(nil, Options{Production: true, RelayerURL: "http://relayer.local"})
		require.IsType(t, &RelayerClient{}, c)
	})
}
