package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"quota-platform/internal/middleware"
	"quota-platform/internal/models"
	"quota-platform/internal/services"
)

type TransactionHandler struct {
	transactionService *services.TransactionService
	logger             zerolog.Logger
}

func NewTransactionHandler(transactionService *services.TransactionService, logger zerolog.Logger) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		logger:             logger,
	}
}

func (h *TransactionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	limit, offset := pagination(r)

	txs, err := h.transactionService.GetUserTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to fetch history")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"limit":        limit,
		"offset":       offset,
	})
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(r)
	userRole, _ := middleware.GetUserRole(r)

	qt, err := h.transactionService.GetTransactionByID(r.Context(), transactionID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to load transaction")
		return
	}

	involved := qt.ActorID == userID || (qt.CounterpartID != nil && *qt.CounterpartID == userID)
	if !involved && userRole != models.RoleSuperadmin {
		respondWithError(w, http.StatusNotFound, "not_found", "Transaction not found")
		return
	}

	respondWithJSON(w, http.StatusOK, qt)
}

func (h *TransactionHandler) ReconcileUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	rec, err := h.transactionService.ReconcileUser(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Reconciliation failed")
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (h *TransactionHandler) ReconcilePool(w http.ResponseWriter, r *http.Request) {
	rec, err := h.transactionService.ReconcilePool(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Reconciliation failed")
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}
