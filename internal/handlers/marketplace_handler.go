package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"quota-platform/internal/middleware"
	"quota-platform/internal/models"
	"quota-platform/internal/services"
)

type MarketplaceHandler struct {
	marketplaceService *services.MarketplaceService
	logger             zerolog.Logger
}

func NewMarketplaceHandler(marketplaceService *services.MarketplaceService, logger zerolog.Logger) *MarketplaceHandler {
	return &MarketplaceHandler{
		marketplaceService: marketplaceService,
		logger:             logger,
	}
}

func (h *MarketplaceHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req models.CreateListingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID, _ := middleware.GetUserID(r)

	listing, err := h.marketplaceService.CreateListing(r.Context(), userID, req.Quantity, req.PricePerQuota)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to create listing")
		return
	}
	respondWithJSON(w, http.StatusCreated, listing)
}

func (h *MarketplaceHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	listings, err := h.marketplaceService.ListActiveListings(r.Context(), limit, offset)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to list listings")
		return
	}
	respondWithJSON(w, http.StatusOK, listings)
}

func (h *MarketplaceHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	listingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	listing, err := h.marketplaceService.GetListing(r.Context(), listingID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to load listing")
		return
	}
	respondWithJSON(w, http.StatusOK, listing)
}

func (h *MarketplaceHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	listingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(r)

	if err := h.marketplaceService.CancelListing(r.Context(), listingID, userID); err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to cancel listing")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Listing cancelled",
	})
}

func (h *MarketplaceHandler) RequestPurchase(w http.ResponseWriter, r *http.Request) {
	listingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(r)

	purchase, err := h.marketplaceService.RequestPurchase(r.Context(), listingID, userID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to request purchase")
		return
	}
	respondWithJSON(w, http.StatusCreated, purchase)
}

func (h *MarketplaceHandler) ListPendingPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.marketplaceService.ListPendingPurchases(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to list purchases")
		return
	}
	respondWithJSON(w, http.StatusOK, purchases)
}

func (h *MarketplaceHandler) ResolvePurchase(w http.ResponseWriter, r *http.Request) {
	purchaseID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.ResolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	adminID, _ := middleware.GetUserID(r)

	purchase, err := h.marketplaceService.ResolvePurchase(r.Context(), purchaseID, adminID, req.Decision)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to resolve purchase")
		return
	}
	respondWithJSON(w, http.StatusOK, purchase)
}
