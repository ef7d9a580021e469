package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/etiditalex/CMFagency-sub002/models"
)

func getStatus(c *TransactionController, reference string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v3/transactions/"+reference, nil)
	req = mux.SetURLVars(req, map[string]string{"reference": reference})
	rr := httptest.NewRecorder()
	c.Status(rr, req)
	return rr
}

func TestStatusHidesBuyerContact(t *testing.T) {
	db := newTestDB(t)
	campaign := seedCampaign(t, db, "gala-night", models.TypeTicket, 500, false)
	txn := seedPendingTxn(t, db, campaign, nil, models.ProviderPaystack, 1, 500)

	now := time.Now()
	if err := db.Model(&models.Transaction{}).Where("id = ?", txn.ID).
		Updates(map[string]interface{}{"status": models.StatusSuccess, "verified_at": now, "paid_at": now}).Error; err != nil {
		t.Fatalf("force success: %v", err)
	}

	rr := getStatus(NewTransactionController(db), txn.Reference)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if strings.Contains(body, "buyer@example.com") || strings.Contains(body, "Buyer") {
		t.Fatalf("public status leaked buyer contact: %s", body)
	}
	if !strings.Contains(body, txn.Reference) || !strings.Contains(body, `"status":"success"`) {
		t.Fatalf("unexpected status body: %s", body)
	}
}

func TestStatusIncludesTicketNumberOnceFulfilled(t *testing.T) {
	db := newTestDB(t)
	rc := NewReconciler(db)
	campaign := seedCampaign(t, db, "gala-night", models.TypeTicket, 500, false)
	txn := seedPendingTxn(t, db, campaign, nil, models.ProviderPaystack, 1, 500)

	if _, err := rc.SettlePayment(&txn, ConfirmedPayment{AmountMinor: 50000, MinorUnits: true}); err != nil {
		t.Fatalf("settle: %v", err)
	}

	rr := getStatus(NewTransactionController(db), txn.Reference)
	body := rr.Body.String()
	if !strings.Contains(body, `"fulfilled":true`) || !strings.Contains(body, "GAL-TK-") {
		t.Fatalf("expected ticket number in fulfilled status: %s", body)
	}
}

func TestStatusExposesSettlementTimestamps(t *testing.T) {
	db := newTestDB(t)
	rc := NewReconciler(db)
	campaign := seedCampaign(t, db, "gala-night", models.TypeTicket, 500, false)
	txn := seedPendingTxn(t, db, campaign, nil, models.ProviderPaystack, 1, 500)

	if _, err := rc.SettlePayment(&txn, ConfirmedPayment{AmountMinor: 50000, MinorUnits: true}); err != nil {
		t.Fatalf("settle: %v", err)
	}

	rr := getStatus(NewTransactionController(db), txn.Reference)
	body := rr.Body.String()
	for _, field := range []string{`"verified_at":"`, `"paid_at":"`, `"fulfilled_at":"`} {
		if !strings.Contains(body, field) {
			t.Fatalf("expected %s in settled status body: %s", field, body)
		}
	}
}

func TestStatusUnknownReference(t *testing.T) {
	db := newTestDB(t)
	rr := getStatus(NewTransactionController(db), "deadbeef")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
