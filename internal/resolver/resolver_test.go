package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygrid-dev/walletcore/internal/models"
)

func newLocalResolver() *Resolver {
	return New(Config{
		LocalHost: "wallet.example",
		LedgerURL: "https://wallet.example/ledger",
	})
}

func TestResolveLocal(t *testing.T) {
	r := newLocalResolver()

	cases := []struct {
		name        string
		destination string
	}{
		{"bare username", "bob"},
		{"payment pointer on local host", "bob@wallet.example"},
		{"account URI on local host", "https://wallet.example/ledger/accounts/bob"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dest, err := r.Resolve(context.Background(), tc.destination)
			require.NoError(t, err)
			assert.Equal(t, models.DestinationLocal, dest.Type)
			assert.Equal(t, "bob", dest.Username)
			assert.Equal(t, "wallet.example", dest.LedgerHost)
			assert.Equal(t, "https://wallet.example/ledger/accounts/bob", dest.AccountURI)
		})
	}
}

func TestResolveInvalid(t *testing.T) {
	r := newLocalResolver()

	cases := []string{
		"",
		"   ",
		"no spaces allowed",
		"UPPER@wallet.example",
		"bob@",
		"@wallet.example",
		"$nopath",
		"https:///accounts/bob",
	}
	for _, destination := range cases {
		t.Run(fmt.Sprintf("%q", destination), func(t *testing.T) {
			_, err := r.Resolve(context.Background(), destination)
			assert.ErrorIs(t, err, ErrInvalidDestination)
		})
	}
}

func TestResolveRemoteDiscovery(t *testing.T) {
	var gotResource string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotResource = req.URL.Query().Get("resource")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"subject": "acct:carla@other.example",
			"links": [
				{"rel": "ledger-account", "href": "https://other.example/ledger/accounts/carla"},
				{"rel": "payment-quote", "href": "https://other.example/api/quote"},
				{"rel": "payment-setup", "href": "https://other.example/api/receivers/carla"}
			]
		}`)
	}))
	defer server.Close()

	host := strings.TrimPrefix(server.URL, "http://")
	r := New(Config{
		LocalHost: "wallet.example",
		LedgerURL: "https://wallet.example/ledger",
		Scheme:    "http",
	})

	dest, err := r.Resolve(context.Background(), "carla@"+host)
	require.NoError(t, err)
	assert.Equal(t, models.DestinationRemote, dest.Type)
	assert.Equal(t, "carla", dest.Username)
	assert.Equal(t, "https://other.example/ledger/accounts/carla", dest.AccountURI)
	assert.Equal(t, "https://other.example/api/quote", dest.QuoteURL)
	assert.Equal(t, "https://other.example/api/receivers/carla", dest.ReceiverURL)
	assert.Equal(t, "acct:carla@"+host, gotResource)
}

func TestResolveRemoteDiscoveryFailures(t *testing.T) {
	t.Run("endpoint down", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {}))
		host := strings.TrimPrefix(server.URL, "http://")
		server.Close()

		r := New(Config{LocalHost: "wallet.example", LedgerURL: "https://wallet.example/ledger", Scheme: "http"})
		_, err := r.Resolve(context.Background(), "carla@"+host)
		assert.ErrorIs(t, err, ErrDestinationUnreachable)
	})

	t.Run("not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()
		host := strings.TrimPrefix(server.URL, "http://")

		r := New(Config{LocalHost: "wallet.example", LedgerURL: "https://wallet.example/ledger", Scheme: "http"})
		_, err := r.Resolve(context.Background(), "carla@"+host)
		assert.ErrorIs(t, err, ErrDestinationUnreachable)
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			fmt.Fprint(w, `{"links": `)
		}))
		defer server.Close()
		host := strings.TrimPrefix(server.URL, "http://")

		r := New(Config{LocalHost: "wallet.example", LedgerURL: "https://wallet.example/ledger", Scheme: "http"})
		_, err := r.Resolve(context.Background(), "carla@"+host)
		assert.ErrorIs(t, err, ErrDestinationUnreachable)
	})

	t.Run("missing endpoints", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			fmt.Fprint(w, `{"links": []}`)
		}))
		defer server.Close()
		host := strings.TrimPrefix(server.URL, "http://")

		r := New(Config{LocalHost: "wallet.example", LedgerURL: "https://wallet.example/ledger", Scheme: "http"})
		_, err := r.Resolve(context.Background(), "carla@"+host)
		assert.ErrorIs(t, err, ErrDestinationUnreachable)
	})
}

func TestLocalAccountURI(t *testing.T) {
	r := New(Config{LocalHost: "wallet.example", LedgerURL: "https://wallet.example/ledger/"})
	assert.Equal(t, "https://wallet.example/ledger/accounts/alice", r.LocalAccountURI("alice"))
}
