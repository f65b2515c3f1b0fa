package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/ayo6706/transaction-stream-processor/internal/models"
	"github.com/ayo6706/transaction-stream-processor/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const (
	maxExternalReferenceLength = 100
	// Matches the NUMERIC(19,2) amount column.
	maxAmountScale = 2
)

var minAmount = decimal.RequireFromString("0.01")

type TransactionSubmitter interface {
	Submit(ctx context.Context, cmd service.SubmitTransactionCmd) (*service.SubmitResult, error)
}

type TransactionReader interface {
	Get(ctx context.Context, id domain.TransactionID) (domain.Transaction, error)
	History(ctx context.Context, id domain.TransactionID) ([]domain.AuditEntry, error)
}

type TransactionHandler struct {
	submitter TransactionSubmitter
	reader    TransactionReader
}

func NewTransactionHandler(submitter TransactionSubmitter, reader TransactionReader) *TransactionHandler {
	return &TransactionHandler{submitter: submitter, reader: reader}
}

type createTransactionRequest struct {
	Amount            *decimal.Decimal `json:"amount"`
	Currency          string           `json:"currency"`
	Type              string           `json:"type"`
	OccurredAt        *time.Time       `json:"occurred_at"`
	ExternalReference string           `json:"external_reference"`
}

func (req createTransactionRequest) validate() error {
	switch {
	case req.Amount == nil:
		return fmt.Errorf("amount is required")
	case req.Amount.LessThan(minAmount):
		return fmt.Errorf("amount must be at least 0.01")
	case !req.Amount.Equal(req.Amount.Round(maxAmountScale)):
		return fmt.Errorf("amount must have at most %d decimal places", maxAmountScale)
	case strings.TrimSpace(req.Currency) == "":
		return fmt.Errorf("currency is required")
	case strings.TrimSpace(req.Type) == "":
		return fmt.Errorf("type is required")
	case req.OccurredAt == nil:
		return fmt.Errorf("occurred_at is required")
	case strings.TrimSpace(req.ExternalReference) == "":
		return fmt.Errorf("external_reference is required")
	case utf8.RuneCountInString(req.ExternalReference) > maxExternalReferenceLength:
		return fmt.Errorf("external_reference must be at most %d characters", maxExternalReferenceLength)
	}
	if _, err := domain.ParseCurrency(req.Currency); err != nil {
		return fmt.Errorf("currency must be one of %s", joinValues(domain.SupportedCurrencies()))
	}
	if _, err := domain.ParseTransactionType(req.Type); err != nil {
		return fmt.Errorf("type must be one of %s", joinValues(domain.TransactionTypes()))
	}
	return nil
}

// Create submits a transaction. Replays of a known external_reference
// return the stored transaction with 200 instead of 201.
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "invalid-request-body", "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation-error", err.Error())
		return
	}

	res, err := h.submitter.Submit(r.Context(), service.SubmitTransactionCmd{
		Amount:            *req.Amount,
		Currency:          req.Currency,
		Type:              req.Type,
		OccurredAt:        *req.OccurredAt,
		ExternalReference: req.ExternalReference,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/v1/transactions/"+res.Transaction.ID().String())
	RespondJSON(w, status, models.NewTransactionResponse(res.Transaction))
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseTransactionID(chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	tx, err := h.reader.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, models.NewTransactionResponse(tx))
}

func (h *TransactionHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseTransactionID(chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	entries, err := h.reader.History(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, models.NewTransactionHistoryResponse(id, entries))
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
