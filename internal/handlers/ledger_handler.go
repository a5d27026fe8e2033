package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"quota-platform/internal/middleware"
	"quota-platform/internal/models"
	"quota-platform/internal/services"
)

type LedgerHandler struct {
	ledgerService   *services.LedgerService
	settingsService *services.SettingsService
	logger          zerolog.Logger
}

func NewLedgerHandler(ledgerService *services.LedgerService, settingsService *services.SettingsService, logger zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledgerService:   ledgerService,
		settingsService: settingsService,
		logger:          logger,
	}
}

func (h *LedgerHandler) PurchaseQuota(w http.ResponseWriter, r *http.Request) {
	var req models.PurchaseQuotaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID, _ := middleware.GetUserID(r)

	result, err := h.ledgerService.PurchaseQuota(r.Context(), userID, req.Quantity)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Quota purchase failed")
		return
	}
	respondWithJSON(w, http.StatusCreated, result)
}

func (h *LedgerHandler) TransferToChild(w http.ResponseWriter, r *http.Request) {
	var req models.TransferToChildRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID, _ := middleware.GetUserID(r)

	qt, err := h.ledgerService.TransferToChild(r.Context(), userID, req.ChildID, req.Quantity)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Transfer to child failed")
		return
	}
	respondWithJSON(w, http.StatusCreated, qt)
}

func (h *LedgerHandler) ReturnToPool(w http.ResponseWriter, r *http.Request) {
	var req models.ReturnToPoolRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID, _ := middleware.GetUserID(r)

	qt, err := h.ledgerService.ReturnToPool(r.Context(), userID, req.Quantity)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Return to pool failed")
		return
	}
	respondWithJSON(w, http.StatusCreated, qt)
}

func (h *LedgerHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.ledgerService.GetPool(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to load pool")
		return
	}
	respondWithJSON(w, http.StatusOK, pool)
}

func (h *LedgerHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsService.GetSettings(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to load settings")
		return
	}
	respondWithJSON(w, http.StatusOK, settings)
}

func (h *LedgerHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	adminID, _ := middleware.GetUserID(r)

	settings, err := h.settingsService.UpdateSettings(r.Context(), adminID, &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to update settings")
		return
	}
	respondWithJSON(w, http.StatusOK, settings)
}
