package controllers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/etiditalex/CMFagency-sub002/models"
	"github.com/etiditalex/CMFagency-sub002/utils"
)

// PaystackController receives Paystack webhook events. Authenticity is the
// HMAC-SHA512 signature over the raw body; once a request is authenticated
// and parsed it is always acked with 200 so Paystack stops retrying, even
// when the reference is unknown or already settled.
type PaystackController struct {
	DB         *gorm.DB
	Reconciler *Reconciler
}

func NewPaystackController(db *gorm.DB) *PaystackController {
	return &PaystackController{DB: db, Reconciler: NewReconciler(db)}
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID              int64  `json:"id"`
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		Amount          int64  `json:"amount"`
		Currency        string `json:"currency"`
		Channel         string `json:"channel"`
		PaidAt          string `json:"paid_at"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

func (c *PaystackController) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Failed to read body"})
		return
	}

	if !utils.VerifyPaystackSignature(body, r.Header.Get("X-Paystack-Signature")) {
		log.Printf("[paystack] webhook signature mismatch from %s", r.RemoteAddr)
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Invalid signature"})
		return
	}

	var event paystackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid payload"})
		return
	}

	go utils.ArchiveWebhookPayload(context.Background(), models.ProviderPaystack, event.Data.Reference, body)

	var txn models.Transaction
	err = c.DB.Where("reference = ? AND provider = ?", event.Data.Reference, models.ProviderPaystack).First(&txn).Error
	if err == gorm.ErrRecordNotFound {
		// Not ours, nothing to reconcile. Ack so Paystack stops retrying.
		log.Printf("[paystack] webhook for unknown reference %s", event.Data.Reference)
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Acknowledged"})
		return
	}
	if err != nil {
		log.Printf("[paystack] lookup %s: %v", event.Data.Reference, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Lookup failed"})
		return
	}

	switch {
	case event.Event == "charge.success" || utils.IsPaystackSuccessStatus(event.Data.Status):
		txn.Metadata.Paystack = mergePaystackCorrelation(txn.Metadata.Paystack, event)
		confirmed := ConfirmedPayment{
			AmountMinor: event.Data.Amount,
			MinorUnits:  true,
			Currency:    event.Data.Currency,
			PaidAt:      parsePaystackTime(event.Data.PaidAt),
		}
		if _, err := c.Reconciler.SettlePayment(&txn, confirmed); err != nil {
			log.Printf("[paystack] settle %s: %v", txn.Reference, err)
			utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Settlement failed"})
			return
		}
	case event.Event == "charge.failed" || event.Data.Status == "failed" || event.Data.Status == "abandoned":
		if _, err := c.Reconciler.FailPending(&txn, "provider_declined", nil, event.Data.GatewayResponse); err != nil {
			log.Printf("[paystack] fail %s: %v", txn.Reference, err)
			utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Settlement failed"})
			return
		}
	default:
		log.Printf("[paystack] ignoring event %s for %s", event.Event, txn.Reference)
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Acknowledged"})
}

func mergePaystackCorrelation(existing *models.PaystackCorrelation, event paystackEvent) *models.PaystackCorrelation {
	pc := existing
	if pc == nil {
		pc = &models.PaystackCorrelation{}
	}
	pc.TransactionID = event.Data.ID
	pc.Channel = event.Data.Channel
	pc.PaidAmount = event.Data.Amount
	pc.PaidCurrency = event.Data.Currency
	return pc
}

func parsePaystackTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
