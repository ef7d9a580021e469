package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/etiditalex/CMFagency-sub002/models"
)

func runSweep(c *SweepController, provider string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v3/reconcile/"+provider+"?min_age_sec=0", nil)
	req = mux.SetURLVars(req, map[string]string{"provider": provider})
	rr := httptest.NewRecorder()
	c.Sweep(rr, req)
	return rr
}

func sweepData(t *testing.T, rr *httptest.ResponseRecorder) sweepReport {
	t.Helper()
	var resp struct {
		Data sweepReport `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse sweep response: %v (body: %s)", err, rr.Body.String())
	}
	return resp.Data
}

func TestSweepRecoversPaidTransaction(t *testing.T) {
	db := newTestDB(t)
	campaign := seedCampaign(t, db, "gala-night", models.TypeTicket, 500, false)
	txn := seedPendingTxn(t, db, campaign, nil, models.ProviderPaystack, 1, 500)
	ageTxn(t, db, txn.ID, time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")
		fmt.Fprintf(w, `{"status":true,"message":"Verification successful","data":{"id":99,"status":"success","reference":%q,"amount":50000,"currency":"KES","paid_at":"2026-08-01T10:00:00Z","channel":"card"}}`, ref)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("PAYSTACK_BASE_URL", srv.URL)
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_secret")

	rr := runSweep(NewSweepController(db, nil), models.ProviderPaystack)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	report := sweepData(t, rr)
	if report.Total != 1 || report.Updated != 1 || len(report.Errors) != 0 {
		t.Fatalf("report = %+v, want 1 total, 1 updated, no errors", report)
	}

	got := reloadTxn(t, db, txn.ID)
	if got.Status != models.StatusSuccess || got.FulfilledAt == nil {
		t.Fatalf("transaction not recovered: status=%s fulfilled=%v", got.Status, got.FulfilledAt)
	}
	if n := countRows(t, db, &models.TicketIssue{}, "transaction_id = ?", txn.ID); n != 1 {
		t.Fatalf("ticket issues = %d, want 1", n)
	}
}

func TestSweepLeavesUnpaidTransactionsPending(t *testing.T) {
	db := newTestDB(t)
	campaign := seedCampaign(t, db, "gala-night", models.TypeTicket, 500, false)
	txn := seedPendingTxn(t, db, campaign, nil, models.ProviderPaystack, 1, 500)
	ageTxn(t, db, txn.ID, time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")
		fmt.Fprintf(w, `{"status":true,"message":"ok","data":{"status":"ongoing","reference":%q,"amount":0,"currency":"KES"}}`, ref)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("PAYSTACK_BASE_URL", srv.URL)
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_secret")

	rr := runSweep(NewSweepController(db, nil), models.ProviderPaystack)
	report := sweepData(t, rr)
	if report.Updated != 0 {
		t.Fatalf("updated = %d, want 0 for an in-flight charge", report.Updated)
	}
	if got := reloadTxn(t, db, txn.ID); got.Status != models.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
}

func TestSweepIsolatesPerRowErrors(t *testing.T) {
	db := newTestDB(t)
	campaign := seedCampaign(t, db, "gala-night", models.TypeTicket, 500, false)
	bad := seedPendingTxn(t, db, campaign, nil, models.ProviderPaystack, 1, 500)
	good := seedPendingTxn(t, db, campaign, nil, models.ProviderPaystack, 1, 500)
	ageTxn(t, db, bad.ID, 2*time.Hour)
	ageTxn(t, db, good.ID, time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")
		if ref == bad.Reference {
			fmt.Fprint(w, `{"status":false,"message":"Transaction not found"}`)
			return
		}
		fmt.Fprintf(w, `{"status":true,"message":"ok","data":{"id":7,"status":"success","reference":%q,"amount":50000,"currency":"KES","channel":"card"}}`, ref)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("PAYSTACK_BASE_URL", srv.URL)
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_secret")

	rr := runSweep(NewSweepController(db, nil), models.ProviderPaystack)
	report := sweepData(t, rr)
	if report.Total != 2 || report.Updated != 1 || len(report.Errors) != 1 {
		t.Fatalf("report = %+v, want the bad row isolated and the good one settled", report)
	}

	if got := reloadTxn(t, db, good.ID); got.Status != models.StatusSuccess {
		t.Fatalf("good row status = %s, want success", got.Status)
	}
	if got := reloadTxn(t, db, bad.ID); got.Status != models.StatusPending {
		t.Fatalf("bad row status = %s, want pending for the next sweep", got.Status)
	}
}

func TestSweepRejectsUnknownProvider(t *testing.T) {
	db := newTestDB(t)
	rr := runSweep(NewSweepController(db, nil), "stripe")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestSweepSkipsYoungRows(t *testing.T) {
	db := newTestDB(t)
	campaign := seedCampaign(t, db, "gala-night", models.TypeTicket, 500, false)
	seedPendingTxn(t, db, campaign, nil, models.ProviderPaystack, 1, 500)
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_secret")

	req := httptest.NewRequest(http.MethodPost, "/v3/reconcile/paystack", nil)
	req = mux.SetURLVars(req, map[string]string{"provider": models.ProviderPaystack})
	rr := httptest.NewRecorder()
	NewSweepController(db, nil).Sweep(rr, req)

	report := sweepData(t, rr)
	if report.Total != 0 {
		t.Fatalf("total = %d, a fresh checkout must not be swept", report.Total)
	}
}

func TestSweepDarajaQuerySettlesConfirmedPush(t *testing.T) {
	db := newTestDB(t)
	campaign := seedCampaign(t, db, "gala-night", models.TypeTicket, 1000, false)
	txn := seedDarajaTxn(t, db, campaign, 1000, "ws_CO_SWEEP")
	ageTxn(t, db, txn.ID, time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/oauth/v1/generate"):
			fmt.Fprint(w, `{"access_token":"test-token","expires_in":"3599"}`)
		case r.URL.Path == "/mpesa/stkpushquery/v1/query":
			fmt.Fprint(w, `{"ResponseCode":"0","ResultCode":"0","ResultDesc":"The service request is processed successfully.","CheckoutRequestID":"ws_CO_SWEEP"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	t.Setenv("DARAJA_BASE_URL", srv.URL)
	t.Setenv("DARAJA_CONSUMER_KEY", "ck")
	t.Setenv("DARAJA_CONSUMER_SECRET", "cs")
	t.Setenv("DARAJA_SHORTCODE", "174379")
	t.Setenv("DARAJA_PASSKEY", "passkey")
	t.Setenv("DARAJA_STK_CALLBACK_URL", "https://example.com/cb")

	rr := runSweep(NewSweepController(db, nil), models.ProviderDaraja)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	report := sweepData(t, rr)
	if report.Updated != 1 {
		t.Fatalf("report = %+v, want 1 updated", report)
	}
	if got := reloadTxn(t, db, txn.ID); got.Status != models.StatusSuccess {
		t.Fatalf("status = %s, want success", got.Status)
	}
}
