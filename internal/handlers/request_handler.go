package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"quota-platform/internal/middleware"
	"quota-platform/internal/models"
	"quota-platform/internal/services"
)

type RequestHandler struct {
	requestService *services.RequestService
	logger         zerolog.Logger
}

func NewRequestHandler(requestService *services.RequestService, logger zerolog.Logger) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
		logger:         logger,
	}
}

func (h *RequestHandler) CreateCreditRequest(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCreditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID, _ := middleware.GetUserID(r)

	cr, err := h.requestService.CreateCreditRequest(r.Context(), userID, req.Amount, req.Note)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to create credit request")
		return
	}
	respondWithJSON(w, http.StatusCreated, cr)
}

func (h *RequestHandler) ListPendingCreditRequests(w http.ResponseWriter, r *http.Request) {
	out, err := h.requestService.ListPendingCreditRequests(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to list credit requests")
		return
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *RequestHandler) ResolveCreditRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.ResolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	adminID, _ := middleware.GetUserID(r)

	cr, err := h.requestService.ResolveCreditRequest(r.Context(), requestID, adminID, req.Decision, req.ApprovedAmount)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to resolve credit request")
		return
	}
	respondWithJSON(w, http.StatusOK, cr)
}

func (h *RequestHandler) CreateQuotaRequest(w http.ResponseWriter, r *http.Request) {
	var req models.CreateQuotaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID, _ := middleware.GetUserID(r)

	qr, err := h.requestService.CreateQuotaRequest(r.Context(), userID, req.Quantity, req.Note)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to create quota request")
		return
	}
	respondWithJSON(w, http.StatusCreated, qr)
}

// ListPendingQuotaRequests lists the requests addressed to the calling agent.
func (h *RequestHandler) ListPendingQuotaRequests(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)

	out, err := h.requestService.ListPendingQuotaRequests(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to list quota requests")
		return
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *RequestHandler) ResolveQuotaRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.ResolveQuotaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID, _ := middleware.GetUserID(r)

	qr, err := h.requestService.ResolveQuotaRequest(r.Context(), requestID, userID, req.Decision, req.ApprovedQuantity)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to resolve quota request")
		return
	}
	respondWithJSON(w, http.StatusOK, qr)
}
