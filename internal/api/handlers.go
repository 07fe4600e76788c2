package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/paygrid-dev/walletcore/internal/executor"
	"github.com/paygrid-dev/walletcore/internal/ledger"
	"github.com/paygrid-dev/walletcore/internal/models"
	"github.com/paygrid-dev/walletcore/internal/quote"
	"github.com/paygrid-dev/walletcore/internal/receiver"
	"github.com/paygrid-dev/walletcore/internal/resolver"
	"github.com/paygrid-dev/walletcore/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "endpoint"})
)

// Payments is the slice of the payment service the HTTP surface needs.
type Payments interface {
	Quote(ctx context.Context, params service.QuoteParams) (models.Quote, error)
	Execute(ctx context.Context, params service.ExecuteParams) (models.Payment, error)
	CreateReceiverRequest(ctx context.Context, username, amount, senderIdentifier, memo string) (models.ReceiverRequest, error)
	ListPayments(ctx context.Context, username string, page, limit int) (models.PaymentPage, error)
}

type Handler struct {
	payments Payments
	logger   *zap.Logger
}

func NewHandler(payments Payments, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{payments: payments, logger: logger}
}

// Register mounts the payment routes on a router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/payments", h.ListPayments).Methods("GET")
	r.HandleFunc("/payments/quote", h.QuotePayment).Methods("POST")
	r.HandleFunc("/payments/{id}", h.ExecutePayment).Methods("PUT")
	r.HandleFunc("/receivers/{username}", h.CreateReceiverRequest).Methods("POST")
}

// userHeader names the authenticated wallet user. Session handling itself is
// owned by the gateway in front of this service.
const userHeader = "X-Wallet-User"

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("GET", "/payments"))
	defer timer.ObserveDuration()

	username := r.Header.Get(userHeader)
	if username == "" {
		username = r.URL.Query().Get("user")
	}
	if username == "" {
		respondWithError(w, http.StatusBadRequest, "Missing wallet user", "GET", "/payments")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.payments.ListPayments(r.Context(), username, page, limit)
	if err != nil {
		h.respondServiceError(w, err, "GET", "/payments")
		return
	}
	respondWithJSON(w, http.StatusOK, result, "GET", "/payments")
}

type quoteRequestBody struct {
	Destination       string `json:"destination"`
	SourceAmount      string `json:"source_amount,omitempty"`
	DestinationAmount string `json:"destination_amount,omitempty"`
}

func (h *Handler) QuotePayment(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/payments/quote"))
	defer timer.ObserveDuration()

	var body quoteRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/payments/quote")
		return
	}

	quoted, err := h.payments.Quote(r.Context(), service.QuoteParams{
		Destination:       body.Destination,
		SourceAmount:      body.SourceAmount,
		DestinationAmount: body.DestinationAmount,
	})
	if err != nil {
		h.respondServiceError(w, err, "POST", "/payments/quote")
		return
	}
	respondWithJSON(w, http.StatusOK, quoted, "POST", "/payments/quote")
}

type executeRequestBody struct {
	DestinationAccount string `json:"destination_account"`
	SourceAmount       string `json:"source_amount,omitempty"`
	DestinationAmount  string `json:"destination_amount,omitempty"`
	SourceMemo         string `json:"source_memo,omitempty"`
	DestinationMemo    string `json:"destination_memo,omitempty"`
	Message            string `json:"message,omitempty"`
	Condition          string `json:"condition,omitempty"`
}

func (h *Handler) ExecutePayment(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("PUT", "/payments/{id}"))
	defer timer.ObserveDuration()

	username := r.Header.Get(userHeader)
	if username == "" {
		respondWithError(w, http.StatusBadRequest, "Missing wallet user", "PUT", "/payments/{id}")
		return
	}

	paymentID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Payment id must be a UUID", "PUT", "/payments/{id}")
		return
	}

	var body executeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "PUT", "/payments/{id}")
		return
	}
	if body.DestinationAccount == "" {
		respondWithError(w, http.StatusBadRequest, "destination_account is required", "PUT", "/payments/{id}")
		return
	}

	payment, err := h.payments.Execute(r.Context(), service.ExecuteParams{
		PaymentID:         paymentID,
		SourceUser:        username,
		Destination:       body.DestinationAccount,
		SourceAmount:      body.SourceAmount,
		DestinationAmount: body.DestinationAmount,
		SourceMemo:        body.SourceMemo,
		DestinationMemo:   body.DestinationMemo,
		Message:           body.Message,
		Condition:         body.Condition,
	})
	if err != nil {
		h.respondServiceError(w, err, "PUT", "/payments/{id}")
		return
	}
	respondWithJSON(w, http.StatusOK, payment, "PUT", "/payments/{id}")
}

type receiverRequestBody struct {
	SenderIdentifier string `json:"sender_identifier,omitempty"`
	Memo             string `json:"memo,omitempty"`
	Amount           string `json:"amount"`
}

func (h *Handler) CreateReceiverRequest(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/receivers/{username}"))
	defer timer.ObserveDuration()

	username := mux.Vars(r)["username"]

	var body receiverRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/receivers/{username}")
		return
	}

	request, err := h.payments.CreateReceiverRequest(r.Context(), username, body.Amount, body.SenderIdentifier, body.Memo)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/receivers/{username}")
		return
	}
	respondWithJSON(w, http.StatusCreated, request, "POST", "/receivers/{username}")
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, resolver.ErrInvalidDestination),
		errors.Is(err, quote.ErrInvalidQuoteRequest),
		errors.Is(err, receiver.ErrInvalidAmount):
		respondWithError(w, http.StatusBadRequest, err.Error(), method, endpoint)
	case errors.Is(err, receiver.ErrUnknownReceiver),
		errors.Is(err, service.ErrUnknownCondition),
		errors.Is(err, ledger.ErrInvalidAccount):
		respondWithError(w, http.StatusNotFound, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrConditionSpent):
		respondWithError(w, http.StatusConflict, err.Error(), method, endpoint)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	case errors.Is(err, resolver.ErrDestinationUnreachable),
		errors.Is(err, quote.ErrQuoteUnavailable),
		errors.Is(err, executor.ErrRemoteRegistration):
		respondWithError(w, http.StatusBadGateway, err.Error(), method, endpoint)
	default:
		h.logger.Error("unhandled payment error",
			zap.String("endpoint", endpoint), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint)
	}
}

func respondWithError(w http.ResponseWriter, code int, message, method, endpoint string) {
	respondWithJSON(w, code, map[string]string{"error": message}, method, endpoint)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
