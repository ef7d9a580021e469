package routes

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/etiditalex/CMFagency-sub002/controllers"
	"github.com/etiditalex/CMFagency-sub002/database"
	"github.com/etiditalex/CMFagency-sub002/middleware"
	"github.com/etiditalex/CMFagency-sub002/utils"
)

// Register wires every endpoint under /v3. Controllers get the DB handle
// here so tests can register against their own datastore.
func Register(router *mux.Router, db *gorm.DB) {
	checkout := controllers.NewCheckoutController(db, nil)
	paystack := controllers.NewPaystackController(db)
	daraja := controllers.NewDarajaController(db)
	sweep := controllers.NewSweepController(db, nil)
	txns := controllers.NewTransactionController(db)
	campaigns := controllers.NewCampaignController(db)
	withdrawals := controllers.NewWithdrawalController(db, nil)
	auth := controllers.NewAuthController(db)

	loginLimiter := middleware.NewIPRateLimiter(10, time.Minute)
	webhookLimiter := middleware.NewWebhookLimiter(300, time.Minute, webhookWhitelist())

	v3 := router.PathPrefix("/v3").Subrouter()

	// Public checkout and catalogue.
	v3.HandleFunc("/checkout", checkout.Checkout).Methods(http.MethodPost)
	v3.HandleFunc("/checkout/cart", checkout.CartCheckout).Methods(http.MethodPost)
	v3.HandleFunc("/transactions/{reference}", txns.Status).Methods(http.MethodGet)
	v3.HandleFunc("/campaigns/{slug}", campaigns.Get).Methods(http.MethodGet)
	v3.HandleFunc("/campaigns/{slug}/contestants", campaigns.Contestants).Methods(http.MethodGet)

	// Provider callbacks.
	callbacks := v3.PathPrefix("/callback").Subrouter()
	callbacks.Use(webhookLimiter.Middleware)
	callbacks.HandleFunc("/paystack", paystack.Webhook).Methods(http.MethodPost)
	callbacks.HandleFunc("/daraja", daraja.STKCallback).Methods(http.MethodPost)
	callbacks.HandleFunc("/daraja/b2c", daraja.B2CResult).Methods(http.MethodPost)

	// Recovery sweep, for cron or an admin.
	v3.Handle("/reconcile/{provider}", middleware.OperatorAuthMiddleware(http.HandlerFunc(sweep.Sweep))).Methods(http.MethodPost)

	// Portal.
	v3.Handle("/auth/login", loginLimiter.Middleware(http.HandlerFunc(auth.Login))).Methods(http.MethodPost)
	v3.HandleFunc("/auth/logout", auth.Logout).Methods(http.MethodPost)

	portal := v3.PathPrefix("/portal").Subrouter()
	portal.Use(middleware.PortalAuthMiddleware)
	portal.HandleFunc("/withdrawals", withdrawals.List).Methods(http.MethodGet)
	portal.HandleFunc("/withdrawals", withdrawals.Create).Methods(http.MethodPost)
	portal.HandleFunc("/withdrawals/{id}/approve", withdrawals.Approve).Methods(http.MethodPost)
	portal.HandleFunc("/withdrawals/{id}/reject", withdrawals.Reject).Methods(http.MethodPost)
	portal.Handle("/transactions", middleware.RequireAdmin(http.HandlerFunc(txns.List))).Methods(http.MethodGet)
	portal.HandleFunc("/transactions/{reference}", txns.PortalStatus).Methods(http.MethodGet)

	router.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
}

func webhookWhitelist() []string {
	raw := os.Getenv("WEBHOOK_IP_WHITELIST")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := database.DB.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.APIResponse{Success: false, Message: "Database unreachable"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK"})
}
