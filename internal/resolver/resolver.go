package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/paygrid-dev/walletcore/internal/models"
)

var (
	ErrInvalidDestination     = errors.New("invalid destination")
	ErrDestinationUnreachable = errors.New("destination unreachable")
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)
	pointerPattern  = regexp.MustCompile(`^([a-z0-9][a-z0-9_.-]{0,63})@([a-z0-9.-]+(?::\d+)?)$`)
)

// Resolver turns an opaque destination string (local username, payment
// pointer, or ledger account URI) into a normalized ResolvedDestination.
type Resolver struct {
	localHost string
	ledgerURL string
	scheme    string
	client    *http.Client
	logger    *zap.Logger
}

type Config struct {
	// Host that classifies a destination as local.
	LocalHost string
	// Base URL of the local ledger, used to synthesize account URIs.
	LedgerURL string
	// Scheme for discovery lookups; https unless overridden.
	Scheme string
	Client *http.Client
	Logger *zap.Logger
}

func New(cfg Config) *Resolver {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return &Resolver{
		localHost: cfg.LocalHost,
		ledgerURL: strings.TrimRight(cfg.LedgerURL, "/"),
		scheme:    scheme,
		client:    client,
		logger:    logger,
	}
}

// LocalAccountURI synthesizes the ledger account URI for a local username.
func (r *Resolver) LocalAccountURI(username string) string {
	return fmt.Sprintf("%s/accounts/%s", r.ledgerURL, username)
}

// Resolve parses and classifies a destination. Local destinations resolve
// without any network traffic; remote ones require a webfinger discovery
// lookup to find the receiver's quote and setup endpoints.
func (r *Resolver) Resolve(ctx context.Context, destination string) (models.ResolvedDestination, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return models.ResolvedDestination{}, fmt.Errorf("%w: empty destination", ErrInvalidDestination)
	}

	username, host, err := parse(destination)
	if err != nil {
		return models.ResolvedDestination{}, err
	}

	if host == "" || host == r.localHost {
		return models.ResolvedDestination{
			Type:       models.DestinationLocal,
			Username:   username,
			LedgerHost: r.localHost,
			AccountURI: r.LocalAccountURI(username),
		}, nil
	}

	return r.discover(ctx, username, host)
}

func parse(destination string) (username, host string, err error) {
	// Ledger account URI.
	if strings.HasPrefix(destination, "http://") || strings.HasPrefix(destination, "https://") {
		u, err := url.Parse(destination)
		if err != nil || u.Host == "" {
			return "", "", fmt.Errorf("%w: malformed account URI %q", ErrInvalidDestination, destination)
		}
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		name := segments[len(segments)-1]
		if name == "" || !usernamePattern.MatchString(name) {
			return "", "", fmt.Errorf("%w: account URI %q has no account segment", ErrInvalidDestination, destination)
		}
		return name, u.Host, nil
	}

	// Payment pointer, user@host form.
	if strings.Contains(destination, "@") {
		m := pointerPattern.FindStringSubmatch(destination)
		if m == nil {
			return "", "", fmt.Errorf("%w: malformed payment pointer %q", ErrInvalidDestination, destination)
		}
		return m[1], m[2], nil
	}

	// $host/user shorthand.
	if strings.HasPrefix(destination, "$") {
		rest := strings.TrimPrefix(destination, "$")
		idx := strings.LastIndex(rest, "/")
		if idx <= 0 || idx == len(rest)-1 {
			return "", "", fmt.Errorf("%w: malformed payment pointer %q", ErrInvalidDestination, destination)
		}
		name := rest[idx+1:]
		if !usernamePattern.MatchString(name) {
			return "", "", fmt.Errorf("%w: malformed payment pointer %q", ErrInvalidDestination, destination)
		}
		return name, rest[:idx], nil
	}

	// Bare local username.
	if !usernamePattern.MatchString(destination) {
		return "", "", fmt.Errorf("%w: %q is not a username, payment pointer, or account URI", ErrInvalidDestination, destination)
	}
	return destination, "", nil
}

type webfingerResponse struct {
	Subject string `json:"subject"`
	Links   []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

const (
	relQuote    = "payment-quote"
	relReceiver = "payment-setup"
	relAccount  = "ledger-account"
)

func (r *Resolver) discover(ctx context.Context, username, host string) (models.ResolvedDestination, error) {
	endpoint := fmt.Sprintf("%s://%s/.well-known/webfinger?resource=%s",
		r.scheme, host, url.QueryEscape("acct:"+username+"@"+host))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.ResolvedDestination{}, fmt.Errorf("%w: %v", ErrDestinationUnreachable, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("discovery lookup failed",
			zap.String("host", host), zap.String("user", username), zap.Error(err))
		return models.ResolvedDestination{}, fmt.Errorf("%w: %v", ErrDestinationUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ResolvedDestination{}, fmt.Errorf("%w: discovery returned status %d", ErrDestinationUnreachable, resp.StatusCode)
	}

	var wf webfingerResponse
	if err := json.NewDecoder(resp.Body).Decode(&wf); err != nil {
		return models.ResolvedDestination{}, fmt.Errorf("%w: malformed discovery response: %v", ErrDestinationUnreachable, err)
	}

	dest := models.ResolvedDestination{
		Type:       models.DestinationRemote,
		Username:   username,
		LedgerHost: host,
	}
	for _, link := range wf.Links {
		switch link.Rel {
		case relQuote:
			dest.QuoteURL = link.Href
		case relReceiver:
			dest.ReceiverURL = link.Href
		case relAccount:
			dest.AccountURI = link.Href
		}
	}
	if dest.AccountURI == "" || dest.ReceiverURL == "" {
		return models.ResolvedDestination{}, fmt.Errorf("%w: discovery response missing endpoints", ErrDestinationUnreachable)
	}
	return dest, nil
}
