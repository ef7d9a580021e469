package controllers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/etiditalex/CMFagency-sub002/models"
	"github.com/etiditalex/CMFagency-sub002/utils"
)

// SweepController is the recovery path for transactions whose callback never
// arrived. It re-verifies every pending row against the provider and pushes
// the result through the same settlement rules the webhooks use. One bad row
// never stops the sweep.
type SweepController struct {
	DB         *gorm.DB
	HTTP       *http.Client
	Reconciler *Reconciler
}

func NewSweepController(db *gorm.DB, client *http.Client) *SweepController {
	if client == nil {
		client = http.DefaultClient
	}
	return &SweepController{DB: db, HTTP: client, Reconciler: NewReconciler(db)}
}

type sweepReport struct {
	Provider string   `json:"provider"`
	Total    int      `json:"total"`
	Updated  int      `json:"updated"`
	Errors   []string `json:"errors"`
}

// Sweep reconciles all pending transactions for one provider. Rows younger
// than SWEEP_MIN_AGE_SEC (default 120s) are skipped so the sweeper never
// races a checkout that is still in flight.
func (c *SweepController) Sweep(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	if provider != models.ProviderPaystack && provider != models.ProviderDaraja {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Unknown provider"})
		return
	}

	minAge := 120 * time.Second
	if v := r.URL.Query().Get("min_age_sec"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			minAge = time.Duration(n) * time.Second
		}
	}
	cutoff := time.Now().Add(-minAge)

	var pending []models.Transaction
	if err := c.DB.Where("provider = ? AND status = ? AND created_at < ?", provider, models.StatusPending, cutoff).
		Order("created_at ASC").Limit(500).Find(&pending).Error; err != nil {
		log.Printf("[sweep] list pending %s: %v", provider, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to list pending transactions"})
		return
	}

	report := sweepReport{Provider: provider, Total: len(pending), Errors: []string{}}

	var darajaToken string
	if provider == models.ProviderDaraja && len(pending) > 0 {
		token, err := utils.GetDarajaAccessToken(r.Context(), c.HTTP)
		if err != nil {
			log.Printf("[sweep] daraja token: %v", err)
			utils.WriteJSON(w, http.StatusBadGateway, utils.APIResponse{Success: false, Message: "Provider unavailable"})
			return
		}
		darajaToken = token
	}

	for i := range pending {
		txn := &pending[i]
		var updated bool
		var err error
		switch provider {
		case models.ProviderPaystack:
			updated, err = c.sweepPaystack(r, txn)
		case models.ProviderDaraja:
			updated, err = c.sweepDaraja(r, txn, darajaToken)
		}
		if err != nil {
			// Isolate the row and move on.
			log.Printf("[sweep] %s %s: %v", provider, txn.Reference, err)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", txn.Reference, err))
			continue
		}
		if updated {
			report.Updated++
		}
	}

	log.Printf("[sweep] %s: %d pending, %d updated, %d errors", provider, report.Total, report.Updated, len(report.Errors))
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Sweep complete", Data: report})
}

func (c *SweepController) sweepPaystack(r *http.Request, txn *models.Transaction) (bool, error) {
	verify, err := utils.VerifyPaystackTransaction(r.Context(), c.HTTP, txn.Reference)
	if err != nil {
		return false, err
	}
	switch {
	case utils.IsPaystackSuccessStatus(verify.Data.Status):
		pc := txn.Metadata.Paystack
		if pc == nil {
			pc = &models.PaystackCorrelation{}
		}
		pc.TransactionID = verify.Data.ID
		pc.Channel = verify.Data.Channel
		pc.PaidAmount = verify.Data.Amount
		pc.PaidCurrency = verify.Data.Currency
		txn.Metadata.Paystack = pc
		confirmed := ConfirmedPayment{
			AmountMinor: verify.Data.Amount,
			MinorUnits:  true,
			Currency:    verify.Data.Currency,
			PaidAt:      parsePaystackTime(verify.Data.PaidAt),
		}
		changed, err := c.Reconciler.SettlePayment(txn, confirmed)
		// A mismatch flips the row to failed, which also counts as updated.
		return changed || txn.Terminal(), err
	case verify.Data.Status == "failed" || verify.Data.Status == "abandoned":
		return c.Reconciler.FailPending(txn, "provider_declined", nil, verify.Data.Status)
	default:
		// Still in flight at the provider; leave pending.
		return false, nil
	}
}

func (c *SweepController) sweepDaraja(r *http.Request, txn *models.Transaction, token string) (bool, error) {
	if txn.Metadata.Mpesa == nil || txn.Metadata.Mpesa.CheckoutRequestID == "" {
		// The STK push never went out; nothing to query. The row ages out
		// under operator review rather than being guessed at here.
		return false, nil
	}
	query, err := utils.QuerySTKPushStatus(r.Context(), c.HTTP, token, txn.Metadata.Mpesa.CheckoutRequestID)
	if err != nil {
		return false, err
	}
	code, err := strconv.Atoi(query.ResultCode)
	if err != nil {
		return false, fmt.Errorf("unparseable result code %q", query.ResultCode)
	}
	if code == 0 {
		// The query endpoint confirms the outcome but not the amount; the
		// push itself carried the ledger amount, so settle against it.
		confirmed := ConfirmedPayment{
			Amount:    txn.Amount,
			Tolerance: darajaAmountTolerance,
		}
		return c.Reconciler.SettlePayment(txn, confirmed)
	}
	return c.Reconciler.FailPending(txn, "provider_declined", &code, query.ResultDesc)
}
