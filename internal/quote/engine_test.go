package quote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygrid-dev/walletcore/internal/models"
)

func localDestination() models.ResolvedDestination {
	return models.ResolvedDestination{
		Type:       models.DestinationLocal,
		Username:   "bob",
		LedgerHost: "wallet.example",
		AccountURI: "https://wallet.example/ledger/accounts/bob",
	}
}

func TestQuoteLocalIdentity(t *testing.T) {
	e := New(Config{LocalLedger: "wallet.example"})

	t.Run("fixed source", func(t *testing.T) {
		q, err := e.Quote(context.Background(), models.QuoteRequest{
			Destination:  localDestination(),
			SourceAmount: "12",
		})
		require.NoError(t, err)
		assert.Equal(t, "12", q.SourceAmount)
		assert.Equal(t, "12", q.DestinationAmount)
		assert.Equal(t, "0", q.ConnectorFee)
		assert.Equal(t, 0, q.Hops)
		assert.Equal(t, "wallet.example", q.SourceLedger)
		assert.Equal(t, "wallet.example", q.DestinationLedger)
	})

	t.Run("fixed destination", func(t *testing.T) {
		q, err := e.Quote(context.Background(), models.QuoteRequest{
			Destination:       localDestination(),
			DestinationAmount: "0.25",
		})
		require.NoError(t, err)
		assert.Equal(t, q.SourceAmount, q.DestinationAmount)
		assert.Equal(t, "0.25", q.DestinationAmount)
	})
}

func TestQuoteAmountValidation(t *testing.T) {
	e := New(Config{LocalLedger: "wallet.example"})

	cases := []struct {
		name string
		req  models.QuoteRequest
	}{
		{"neither amount", models.QuoteRequest{Destination: localDestination()}},
		{"both amounts", models.QuoteRequest{Destination: localDestination(), SourceAmount: "1", DestinationAmount: "1"}},
		{"not a decimal", models.QuoteRequest{Destination: localDestination(), SourceAmount: "twelve"}},
		{"zero", models.QuoteRequest{Destination: localDestination(), SourceAmount: "0"}},
		{"negative", models.QuoteRequest{Destination: localDestination(), DestinationAmount: "-3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Quote(context.Background(), tc.req)
			assert.ErrorIs(t, err, ErrInvalidQuoteRequest)
		})
	}
}

func remoteDestination(quoteURL string) models.ResolvedDestination {
	return models.ResolvedDestination{
		Type:        models.DestinationRemote,
		Username:    "carla",
		LedgerHost:  "other.example",
		AccountURI:  "https://other.example/ledger/accounts/carla",
		QuoteURL:    quoteURL,
		ReceiverURL: "https://other.example/api/receivers/carla",
	}
}

func TestQuoteRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("source_amount"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"source_amount":"10","destination_amount":"9.21","connector_fee":"0.79","hops":2,"ledger":"other.example"}`)
	}))
	defer server.Close()

	e := New(Config{LocalLedger: "wallet.example"})
	q, err := e.Quote(context.Background(), models.QuoteRequest{
		Destination:  remoteDestination(server.URL),
		SourceAmount: "10",
	})
	require.NoError(t, err)
	assert.Equal(t, "10", q.SourceAmount)
	assert.Equal(t, "9.21", q.DestinationAmount)
	assert.Equal(t, "0.79", q.ConnectorFee)
	assert.Equal(t, 2, q.Hops)
	assert.Equal(t, "other.example", q.DestinationLedger)
}

func TestQuoteRemoteUnavailable(t *testing.T) {
	e := New(Config{LocalLedger: "wallet.example", Timeout: 200 * time.Millisecond})

	t.Run("no quoting endpoint", func(t *testing.T) {
		_, err := e.Quote(context.Background(), models.QuoteRequest{
			Destination:  remoteDestination(""),
			SourceAmount: "10",
		})
		assert.ErrorIs(t, err, ErrQuoteUnavailable)
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := e.Quote(context.Background(), models.QuoteRequest{
			Destination:  remoteDestination(server.URL),
			SourceAmount: "10",
		})
		assert.ErrorIs(t, err, ErrQuoteUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(time.Second)
		}))
		defer server.Close()

		_, err := e.Quote(context.Background(), models.QuoteRequest{
			Destination:  remoteDestination(server.URL),
			SourceAmount: "10",
		})
		assert.ErrorIs(t, err, ErrQuoteUnavailable)
	})

	t.Run("malformed counterpart amount", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"source_amount":"10","destination_amount":"lots"}`)
		}))
		defer server.Close()

		_, err := e.Quote(context.Background(), models.QuoteRequest{
			Destination:  remoteDestination(server.URL),
			SourceAmount: "10",
		})
		assert.ErrorIs(t, err, ErrQuoteUnavailable)
	})
}
