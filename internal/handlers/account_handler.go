package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/shopspring/decimal"
)

type AccountHandler struct {
	accounts *services.AccountService
	ledger   *services.LedgerService
}

func NewAccountHandler(accounts *services.AccountService, ledger *services.LedgerService) *AccountHandler {
	return &AccountHandler{accounts: accounts, ledger: ledger}
}

func (h *AccountHandler) Routes(r chi.Router) {
	r.Post("/accounts", h.Open)
	r.Get("/accounts", h.ListMine)
	r.Get("/accounts/{id}", h.Get)
	r.Put("/accounts/{id}", h.Update)
	r.Delete("/accounts/{id}", h.Close)
	r.Get("/accounts/{id}/balance", h.Balance)
	r.Get("/accounts/{id}/reconcile", h.Reconcile)
}

func (h *AccountHandler) owned(ctx context.Context, id, caller uuid.UUID) (*models.Account, error) {
	acct, err := h.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct.OwnerUserID != caller {
		return nil, models.NotFound("accounts.get", "account %s not found", id)
	}
	return acct, nil
}

type openAccountBody struct {
	AccountNumber  string             `json:"accountNumber"`
	AccountType    models.AccountType `json:"accountType"`
	OpeningBalance decimal.Decimal    `json:"balance"`
	Currency       string             `json:"currency"`
	Description    *string            `json:"description,omitempty"`
}

func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	var body openAccountBody
	if !decodeJSON(w, r, &body) {
		return
	}

	acct, err := h.accounts.Open(r.Context(), services.OpenAccountRequest{
		UserID:         caller,
		AccountNumber:  body.AccountNumber,
		AccountType:    body.AccountType,
		OpeningBalance: body.OpeningBalance,
		Currency:       body.Currency,
		Description:    body.Description,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, acct)
}

func (h *AccountHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	accts, err := h.accounts.ListByUser(r.Context(), caller)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, accts)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	acct, err := h.owned(r.Context(), id, caller)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, acct)
}

func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req services.UpdateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.owned(r.Context(), id, caller); err != nil {
		WriteError(w, r, err)
		return
	}
	acct, err := h.accounts.Update(r.Context(), id, req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, acct)
}

func (h *AccountHandler) Close(w http.ResponseWriter, r *http.Request) {
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
	closed, err := h.accounts.Close(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if !closed {
		SendErrorResponse(w, "account not found", http.StatusNotFound, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	acct, err := h.owned(r.Context(), id, caller)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"accountId":     acct.ID,
		"accountNumber": acct.AccountNumber,
		"balance":       acct.Balance.StringFixed(models.MoneyScale),
		"currency":      acct.Currency,
	})
}

func (h *AccountHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
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
	report, err := h.ledger.Reconcile(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
