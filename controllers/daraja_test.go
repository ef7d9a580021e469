package controllers

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"gorm.io/gorm"

	"github.com/etiditalex/CMFagency-sub002/models"
)

func postSTKCallback(c *DarajaController, token string, body []byte) *httptest.ResponseRecorder {
	url := "/v3/callback/daraja"
	if token != "" {
		url += "?token=" + token
	}
	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	c.STKCallback(rr, req)
	return rr
}

func stkSuccessBody(checkoutRequestID string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{
		"MerchantRequestID":"29115-34620561-1",
		"CheckoutRequestID":%q,
		"ResultCode":0,
		"ResultDesc":"The service request is processed successfully.",
		"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":%d},
			{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},
			{"Name":"TransactionDate","Value":20260801103045},
			{"Name":"PhoneNumber","Value":254708374149}
		]}}}}`, checkoutRequestID, amount))
}

func seedDarajaTxn(t *testing.T, db *gorm.DB, campaign models.Campaign, amount int64, checkoutRequestID string) models.Transaction {
	t.Helper()
	txn := seedPendingTxn(t, db, campaign, nil, models.ProviderDaraja, 1, amount)
	txn.Metadata.Mpesa = &models.MpesaCorrelation{CheckoutRequestID: checkoutRequestID}
	if err := db.Model(&models.Transaction{}).Where("id = ?", txn.ID).Updates(map[string]interface{}{
		"provider_ref": checkoutRequestID,
		"metadata":     txn.Metadata,
	}).Error; err != nil {
		t.Fatalf("set daraja correlation: %v", err)
	}
	return reloadTxn(t, db, txn.ID)
}

func TestSTKCallbackRejectsBadToken(t *testing.T) {
	db := newTestDB(t)
	t.Setenv("DARAJA_CALLBACK_TOKEN", "cb-secret")

	c := NewDarajaController(db)
	rr := postSTKCallback(c, "wrong", stkSuccessBody("ws_CO_1", 100))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestSTKCallbackSettlesPayment(t *testing.T) {
	db := newTestDB(t)
	t.Setenv("DARAJA_CALLBACK_TOKEN", "cb-secret")

	campaign := seedCampaign(t, db, "gala-night", models.TypeTicket, 1000, false)
	txn := seedDarajaTxn(t, db, campaign, 1000, "ws_CO_27072026")

	c := NewDarajaController(db)
	rr := postSTKCallback(c, "cb-secret", stkSuccessBody("ws_CO_27072026", 1000))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	got := reloadTxn(t, db, txn.ID)
	if got.Status != models.StatusSuccess {
		t.Fatalf("status = %s, want success", got.Status)
	}
	if got.Metadata.Mpesa == nil || got.Metadata.Mpesa.MpesaReceiptNumber != "NLJ7RT61SV" {
		t.Fatalf("expected receipt recorded: %+v", got.Metadata)
	}
	if got.FulfilledAt == nil {
		t.Fatal("expected issuance to complete")
	}
}

func TestSTKCallbackToleratesOneShilling(t *testing.T) {
	db := newTestDB(t)
	t.Setenv("DARAJA_CALLBACK_TOKEN", "cb-secret")

	campaign := seedCampaign(t, db, "gala-night", models.TypeTicket, 1000, false)
	txn := seedDarajaTxn(t, db, campaign, 1000, "ws_CO_A")

	c := NewDarajaController(db)
	rr := postSTKCallback(c, "cb-secret", stkSuccessBody("ws_CO_A", 999))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := reloadTxn(t, db, txn.ID); got.Status != models.StatusSuccess {
		t.Fatalf("status = %s, want success within tolerance", got.Status)
	}
}

func TestSTKCallbackAmountMismatchFailsRow(t *testing.T) {
	db := newTestDB(t)
	t.Setenv("DARAJA_CALLBACK_TOKEN", "cb-secret")

	campaign := seedCampaign(t, db, "gala-night", models.TypeTicket, 1000, false)
	txn := seedDarajaTxn(t, db, campaign, 1000, "ws_CO_B")

	c := NewDarajaController(db)
	rr := postSTKCallback(c, "cb-secret", stkSuccessBody("ws_CO_B", 990))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 ack", rr.Code)
	}
	got := reloadTxn(t, db, txn.ID)
	if got.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Metadata.WebhookError != "amount_mismatch" {
		t.Fatalf("webhook_error = %q", got.Metadata.WebhookError)
	}
}

func TestSTKCallbackDeclineFailsRow(t *testing.T) {
	db := newTestDB(t)
	t.Setenv("DARAJA_CALLBACK_TOKEN", "cb-secret")

	campaign := seedCampaign(t, db, "gala-night", models.TypeTicket, 1000, false)
	txn := seedDarajaTxn(t, db, campaign, 1000, "ws_CO_C")

	body := []byte(`{"Body":{"stkCallback":{
		"MerchantRequestID":"29115-34620561-1",
		"CheckoutRequestID":"ws_CO_C",
		"ResultCode":1032,
		"ResultDesc":"Request cancelled by user"}}}`)
	c := NewDarajaController(db)
	rr := postSTKCallback(c, "cb-secret", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 ack", rr.Code)
	}
	got := reloadTxn(t, db, txn.ID)
	if got.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Metadata.ResultCode == nil || *got.Metadata.ResultCode != 1032 {
		t.Fatalf("result_code = %v, want 1032", got.Metadata.ResultCode)
	}
}

func TestSTKCallbackUnknownCheckoutRequestAcked(t *testing.T) {
	db := newTestDB(t)
	t.Setenv("DARAJA_CALLBACK_TOKEN", "cb-secret")

	c := NewDarajaController(db)
	rr := postSTKCallback(c, "cb-secret", stkSuccessBody("ws_CO_UNKNOWN", 500))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 so Safaricom stops retrying", rr.Code)
	}
}
