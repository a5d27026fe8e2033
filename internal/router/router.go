package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"quota-platform/internal/handlers"
	"quota-platform/internal/middleware"
	"quota-platform/internal/models"
	"quota-platform/internal/services"
)

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Users        *services.UserService
	Auth         *services.AuthService
	Ledger       *services.LedgerService
	Marketplace  *services.MarketplaceService
	Requests     *services.RequestService
	Transactions *services.TransactionService
	Settings     *services.SettingsService

	// Ping reports database health for /health. Optional.
	Ping func(ctx context.Context) error
	// Gatherer backs /metrics. Optional.
	Gatherer prometheus.Gatherer

	RateLimit rate.Limit
	RateBurst int
}

func SetupRouter(deps Deps, logger zerolog.Logger) *mux.Router {
	authHandler := handlers.NewAuthHandler(deps.Users, deps.Auth, logger)
	userHandler := handlers.NewUserHandler(deps.Users, logger)
	ledgerHandler := handlers.NewLedgerHandler(deps.Ledger, deps.Settings, logger)
	marketplaceHandler := handlers.NewMarketplaceHandler(deps.Marketplace, logger)
	requestHandler := handlers.NewRequestHandler(deps.Requests, logger)
	transactionHandler := handlers.NewTransactionHandler(deps.Transactions, logger)

	if deps.RateLimit <= 0 {
		deps.RateLimit = rate.Limit(10)
	}
	if deps.RateBurst <= 0 {
		deps.RateBurst = 20
	}

	r := mux.NewRouter()

	rateLimiter := middleware.NewRateLimiter(deps.RateLimit, deps.RateBurst)

	r.Use(middleware.ErrorHandling(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(rateLimiter.Middleware())

	authenticated := middleware.Authentication(deps.Auth, logger)
	superadmin := middleware.RequireRole(models.RoleSuperadmin)
	agent := middleware.RequireRole(models.RoleAgent, models.RoleSuperadmin)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RequestValidation())

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", authHandler.Register).Methods("POST")
	auth.HandleFunc("/login", authHandler.Login).Methods("POST")
	auth.HandleFunc("/refresh", authHandler.Refresh).Methods("POST")

	users := api.PathPrefix("/users").Subrouter()
	users.Use(authenticated)
	users.HandleFunc("/me", userHandler.Me).Methods("GET")
	users.Handle("/me/children", agent(http.HandlerFunc(userHandler.ListChildren))).Methods("GET")
	users.HandleFunc("/{id:[0-9]+}", userHandler.GetUser).Methods("GET")
	users.Handle("/{id:[0-9]+}/activate", superadmin(http.HandlerFunc(userHandler.Activate))).Methods("POST")
	users.Handle("/{id:[0-9]+}/disable", superadmin(http.HandlerFunc(userHandler.Disable))).Methods("POST")

	ledger := api.PathPrefix("/ledger").Subrouter()
	ledger.Use(authenticated)
	ledger.HandleFunc("/purchase", ledgerHandler.PurchaseQuota).Methods("POST")
	ledger.Handle("/transfer", agent(http.HandlerFunc(ledgerHandler.TransferToChild))).Methods("POST")
	ledger.HandleFunc("/return", ledgerHandler.ReturnToPool).Methods("POST")
	ledger.HandleFunc("/pool", ledgerHandler.GetPool).Methods("GET")

	settings := api.PathPrefix("/settings").Subrouter()
	settings.Use(authenticated)
	settings.HandleFunc("", ledgerHandler.GetSettings).Methods("GET")
	settings.Handle("", superadmin(http.HandlerFunc(ledgerHandler.UpdateSettings))).Methods("PUT")

	market := api.PathPrefix("/marketplace").Subrouter()
	market.Use(authenticated)
	market.HandleFunc("/listings", marketplaceHandler.CreateListing).Methods("POST")
	market.HandleFunc("/listings", marketplaceHandler.ListListings).Methods("GET")
	market.HandleFunc("/listings/{id:[0-9]+}", marketplaceHandler.GetListing).Methods("GET")
	market.HandleFunc("/listings/{id:[0-9]+}", marketplaceHandler.CancelListing).Methods("DELETE")
	market.HandleFunc("/listings/{id:[0-9]+}/purchase", marketplaceHandler.RequestPurchase).Methods("POST")
	market.Handle("/purchases", superadmin(http.HandlerFunc(marketplaceHandler.ListPendingPurchases))).Methods("GET")
	market.Handle("/purchases/{id:[0-9]+}/resolve", superadmin(http.HandlerFunc(marketplaceHandler.ResolvePurchase))).Methods("POST")

	requests := api.PathPrefix("/requests").Subrouter()
	requests.Use(authenticated)
	requests.HandleFunc("/credit", requestHandler.CreateCreditRequest).Methods("POST")
	requests.Handle("/credit", superadmin(http.HandlerFunc(requestHandler.ListPendingCreditRequests))).Methods("GET")
	requests.Handle("/credit/{id:[0-9]+}/resolve", superadmin(http.HandlerFunc(requestHandler.ResolveCreditRequest))).Methods("POST")
	requests.HandleFunc("/quota", requestHandler.CreateQuotaRequest).Methods("POST")
	requests.Handle("/quota", agent(http.HandlerFunc(requestHandler.ListPendingQuotaRequests))).Methods("GET")
	requests.HandleFunc("/quota/{id:[0-9]+}/resolve", requestHandler.ResolveQuotaRequest).Methods("POST")

	transactions := api.PathPrefix("/transactions").Subrouter()
	transactions.Use(authenticated)
	transactions.HandleFunc("/history", transactionHandler.GetHistory).Methods("GET")
	transactions.HandleFunc("/{id:[0-9]+}", transactionHandler.GetTransaction).Methods("GET")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(authenticated, superadmin)
	admin.HandleFunc("/reconcile/users/{id:[0-9]+}", transactionHandler.ReconcileUser).Methods("GET")
	admin.HandleFunc("/reconcile/pool", transactionHandler.ReconcilePool).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.Ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ping(ctx); err != nil {
				logger.Error().Err(err).Msg("Health check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	return r
}
