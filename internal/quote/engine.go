package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paygrid-dev/walletcore/internal/models"
)

var (
	ErrInvalidQuoteRequest = errors.New("invalid quote request")
	ErrQuoteUnavailable    = errors.New("quote unavailable")
)

// Engine computes counterpart amounts. Local quotes are identity (one ledger,
// no conversion); remote quotes query the destination's published quoting
// endpoint. Quotes are advisory and reserve nothing.
type Engine struct {
	localLedger string
	timeout     time.Duration
	client      *http.Client
	logger      *zap.Logger
}

type Config struct {
	// Identifier reported as the source ledger in quotes.
	LocalLedger string
	Timeout     time.Duration
	Client      *http.Client
	Logger      *zap.Logger
}

func New(cfg Config) *Engine {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Engine{localLedger: cfg.LocalLedger, timeout: timeout, client: client, logger: logger}
}

// Quote computes the counterpart amount for the one fixed side of the pair.
func (e *Engine) Quote(ctx context.Context, req models.QuoteRequest) (models.Quote, error) {
	fixed, fixedSide, err := fixedAmount(req)
	if err != nil {
		return models.Quote{}, err
	}

	if req.Destination.Type == models.DestinationLocal {
		amount := fixed.String()
		return models.Quote{
			SourceAmount:      amount,
			DestinationAmount: amount,
			SourceLedger:      e.localLedger,
			DestinationLedger: e.localLedger,
			ConnectorFee:      "0",
			Hops:              0,
		}, nil
	}

	return e.remoteQuote(ctx, req.Destination, fixed, fixedSide)
}

func fixedAmount(req models.QuoteRequest) (decimal.Decimal, string, error) {
	hasSource := req.SourceAmount != ""
	hasDestination := req.DestinationAmount != ""
	if hasSource == hasDestination {
		return decimal.Decimal{}, "", fmt.Errorf("%w: exactly one of source_amount and destination_amount must be set", ErrInvalidQuoteRequest)
	}

	raw, side := req.SourceAmount, "source"
	if hasDestination {
		raw, side = req.DestinationAmount, "destination"
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, "", fmt.Errorf("%w: %s_amount %q is not a decimal", ErrInvalidQuoteRequest, side, raw)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, "", fmt.Errorf("%w: %s_amount must be positive", ErrInvalidQuoteRequest, side)
	}
	return amount, side, nil
}

type remoteQuoteResponse struct {
	SourceAmount      string `json:"source_amount"`
	DestinationAmount string `json:"destination_amount"`
	ConnectorFee      string `json:"connector_fee"`
	Hops              int    `json:"hops"`
	Ledger            string `json:"ledger"`
}

func (e *Engine) remoteQuote(ctx context.Context, dest models.ResolvedDestination, fixed decimal.Decimal, fixedSide string) (models.Quote, error) {
	if dest.QuoteURL == "" {
		return models.Quote{}, fmt.Errorf("%w: destination published no quoting endpoint", ErrQuoteUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	params := url.Values{}
	params.Set(fixedSide+"_amount", fixed.String())
	endpoint := dest.QuoteURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Quote{}, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn("remote quote fetch failed",
			zap.String("endpoint", dest.QuoteURL), zap.Error(err))
		return models.Quote{}, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Quote{}, fmt.Errorf("%w: quoting endpoint returned status %d", ErrQuoteUnavailable, resp.StatusCode)
	}

	var body remoteQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Quote{}, fmt.Errorf("%w: malformed quote response: %v", ErrQuoteUnavailable, err)
	}

	quote := models.Quote{
		SourceAmount:      body.SourceAmount,
		DestinationAmount: body.DestinationAmount,
		SourceLedger:      e.localLedger,
		DestinationLedger: body.Ledger,
		ConnectorFee:      body.ConnectorFee,
		Hops:              body.Hops,
	}
	if quote.DestinationLedger == "" {
		quote.DestinationLedger = dest.LedgerHost
	}
	if quote.ConnectorFee == "" {
		quote.ConnectorFee = "0"
	}

	// The endpoint echoes the fixed side and fills in the counterpart; verify
	// both came back as parseable decimals before anyone does math on them.
	if _, err := decimal.NewFromString(quote.SourceAmount); err != nil {
		return models.Quote{}, fmt.Errorf("%w: counterpart source_amount %q is not a decimal", ErrQuoteUnavailable, quote.SourceAmount)
	}
	if _, err := decimal.NewFromString(quote.DestinationAmount); err != nil {
		return models.Quote{}, fmt.Errorf("%w: counterpart destination_amount %q is not a decimal", ErrQuoteUnavailable, quote.DestinationAmount)
	}
	return quote, nil
}
