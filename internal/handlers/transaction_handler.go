package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/shopspring/decimal"
)

type TransactionHandler struct {
	ledger   *services.LedgerService
	accounts *services.AccountService
}

func NewTransactionHandler(ledger *services.LedgerService, accounts *services.AccountService) *TransactionHandler {
	return &TransactionHandler{ledger: ledger, accounts: accounts}
}

func (h *TransactionHandler) Routes(r chi.Router) {
	r.Post("/transactions", h.Create)
	r.Get("/transactions/number/{number}", h.GetByNumber)
	r.Get("/transactions/{id}", h.Get)
	r.Put("/transactions/{id}", h.Update)
	r.Delete("/transactions/{id}", h.Delete)
	r.Post("/transactions/{id}/process", h.Process)
	r.Post("/transactions/{id}/reverse", h.Reverse)
	r.Get("/accounts/{id}/transactions", h.ListByAccount)
	r.Get("/users/me/transactions", h.ListMine)
}

// owned loads a transaction and hides it from callers who did not create it.
func (h *TransactionHandler) owned(ctx context.Context, id, caller uuid.UUID) (*models.Transaction, error) {
	txn, err := h.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.UserID != caller {
		return nil, models.NotFound("transactions.get", "transaction %s not found", id)
	}
	return txn, nil
}

type createTransactionBody struct {
	AccountID       uuid.UUID              `json:"accountId"`
	Amount          decimal.Decimal        `json:"amount"`
	Currency        string                 `json:"currency"`
	TransactionType models.TransactionType `json:"transactionType"`
	Description     *string                `json:"description,omitempty"`
	TransactionDate time.Time              `json:"transactionDate"`
}

// Create records a Pending transaction for the authenticated user.
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	var body createTransactionBody
	if !decodeJSON(w, r, &body) {
		return
	}

	req := services.CreateTransactionRequest{
		AccountID:       body.AccountID,
		UserID:          caller,
		Amount:          body.Amount,
		Currency:        body.Currency,
		TransactionType: body.TransactionType,
		Description:     body.Description,
		TransactionDate: body.TransactionDate,
	}

	txn, err := h.ledger.Create(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, txn)
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	txn, err := h.owned(r.Context(), id, caller)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, txn)
}

func (h *TransactionHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	number := chi.URLParam(r, "number")
	txn, err := h.ledger.GetByNumber(r.Context(), number)
	if err == nil && txn.UserID != caller {
		err = models.NotFound("transactions.get_by_number", "transaction %s not found", number)
	}
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, txn)
}

func (h *TransactionHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req services.UpdateTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.owned(r.Context(), id, caller); err != nil {
		WriteError(w, r, err)
		return
	}
	txn, err := h.ledger.Update(r.Context(), id, req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, txn)
}

// Delete answers 204 when a record was removed and 404 when there was none.
func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.owned(r.Context(), id, caller); err != nil {
		WriteError(w, r, err)
		return
	}
	deleted, err := h.ledger.Delete(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if !deleted {
		SendErrorResponse(w, "transaction not found", http.StatusNotFound, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TransactionHandler) Process(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.ledger.Process)
}

func (h *TransactionHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.ledger.Reverse)
}

func (h *TransactionHandler) settle(w http.ResponseWriter, r *http.Request, apply func(context.Context, uuid.UUID) (*models.Transaction, error)) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.owned(r.Context(), id, caller); err != nil {
		WriteError(w, r, err)
		return
	}
	txn, err := apply(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, txn)
}

// ListByAccount lists an account's history, optionally bounded by ?from=&to=.
func (h *TransactionHandler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	acct, err := h.accounts.Get(r.Context(), accountID)
	if err == nil && acct.OwnerUserID != caller {
		err = models.NotFound("transactions.list", "account %s not found", accountID)
	}
	if err != nil {
		WriteError(w, r, err)
		return
	}

	fromRaw, toRaw := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if fromRaw == "" && toRaw == "" {
		txns, err := h.ledger.ListByAccount(r.Context(), accountID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, txns)
		return
	}

	from, to := time.Time{}, time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	if fromRaw != "" {
		if from, err = parseDateParam(fromRaw, false); err != nil {
			SendErrorResponse(w, "Invalid from: "+err.Error(), http.StatusBadRequest, nil)
			return
		}
	}
	if toRaw != "" {
		if to, err = parseDateParam(toRaw, true); err != nil {
			SendErrorResponse(w, "Invalid to: "+err.Error(), http.StatusBadRequest, nil)
			return
		}
	}

	txns, err := h.ledger.ListByDateRange(r.Context(), accountID, from, to)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, txns)
}

func (h *TransactionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	txns, err := h.ledger.ListByUser(r.Context(), caller)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, txns)
}
