package controllers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"

	"gorm.io/gorm"

	"github.com/etiditalex/CMFagency-sub002/models"
	"github.com/etiditalex/CMFagency-sub002/utils"
)

// DarajaController receives Safaricom Daraja callbacks: the STK push result
// for customer payments and the B2C result for payouts. Daraja cannot sign
// requests, so the callback URLs carry a shared token that is compared in
// constant time. Safaricom expects a ResultCode=0 body as the ack.
type DarajaController struct {
	DB         *gorm.DB
	Reconciler *Reconciler
}

func NewDarajaController(db *gorm.DB) *DarajaController {
	return &DarajaController{DB: db, Reconciler: NewReconciler(db)}
}

// Daraja amounts arrive in whole shillings but occasionally off by the
// provider's own rounding, so settlement allows a one-unit tolerance.
const darajaAmountTolerance = 1

type darajaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func writeDarajaAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(darajaAck{ResultCode: 0, ResultDesc: "Accepted"})
}

func darajaTokenValid(r *http.Request) bool {
	expected := os.Getenv("DARAJA_CALLBACK_TOKEN")
	if expected == "" {
		return false
	}
	got := r.URL.Query().Get("token")
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

type stkCallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

type stkCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []stkCallbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback reconciles a customer STK push outcome against its pending
// transaction, correlated by CheckoutRequestID.
func (c *DarajaController) STKCallback(w http.ResponseWriter, r *http.Request) {
	if !darajaTokenValid(r) {
		log.Printf("[daraja] stk callback with bad token from %s", r.RemoteAddr)
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Failed to read body"})
		return
	}

	var env stkCallbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Body.StkCallback.CheckoutRequestID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid payload"})
		return
	}
	cb := env.Body.StkCallback

	go utils.ArchiveWebhookPayload(context.Background(), models.ProviderDaraja, cb.CheckoutRequestID, body)

	var txn models.Transaction
	err = c.DB.Where("provider_ref = ? AND provider = ?", cb.CheckoutRequestID, models.ProviderDaraja).First(&txn).Error
	if err == gorm.ErrRecordNotFound {
		log.Printf("[daraja] stk callback for unknown checkout request %s", cb.CheckoutRequestID)
		writeDarajaAck(w)
		return
	}
	if err != nil {
		log.Printf("[daraja] lookup %s: %v", cb.CheckoutRequestID, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Lookup failed"})
		return
	}

	if cb.ResultCode != 0 {
		code := cb.ResultCode
		if _, err := c.Reconciler.FailPending(&txn, "provider_declined", &code, cb.ResultDesc); err != nil {
			log.Printf("[daraja] fail %s: %v", txn.Reference, err)
			utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Settlement failed"})
			return
		}
		writeDarajaAck(w)
		return
	}

	paidAmount, receipt, phone, txDate := extractSTKItems(cb.CallbackMetadata.Item)
	mpesa := txn.Metadata.Mpesa
	if mpesa == nil {
		mpesa = &models.MpesaCorrelation{}
	}
	mpesa.MerchantRequestID = cb.MerchantRequestID
	mpesa.CheckoutRequestID = cb.CheckoutRequestID
	mpesa.MpesaReceiptNumber = receipt
	mpesa.PaidAmount = paidAmount
	if phone != "" {
		mpesa.Phone = phone
	}
	mpesa.TransactionDate = txDate
	txn.Metadata.Mpesa = mpesa

	confirmed := ConfirmedPayment{
		Amount:    paidAmount,
		Tolerance: darajaAmountTolerance,
	}
	if _, err := c.Reconciler.SettlePayment(&txn, confirmed); err != nil {
		log.Printf("[daraja] settle %s: %v", txn.Reference, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Settlement failed"})
		return
	}
	writeDarajaAck(w)
}

// extractSTKItems pulls the loosely-typed CallbackMetadata items. Amounts
// arrive as JSON numbers, receipt and date as strings or numbers.
func extractSTKItems(items []stkCallbackItem) (amount int64, receipt, phone, txDate string) {
	for _, item := range items {
		switch item.Name {
		case "Amount":
			if f, ok := item.Value.(float64); ok {
				amount = int64(math.Round(f))
			}
		case "MpesaReceiptNumber":
			receipt = stringValue(item.Value)
		case "PhoneNumber":
			phone = stringValue(item.Value)
		case "TransactionDate":
			txDate = stringValue(item.Value)
		}
	}
	return
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return fmt.Sprintf("%.0f", s)
	default:
		return ""
	}
}

type b2cResultEnvelope struct {
	Result struct {
		ResultType               int    `json:"ResultType"`
		ResultCode               int    `json:"ResultCode"`
		ResultDesc               string `json:"ResultDesc"`
		OriginatorConversationID string `json:"OriginatorConversationID"`
		ConversationID           string `json:"ConversationID"`
		TransactionID            string `json:"TransactionID"`
	} `json:"Result"`
}

// B2CResult closes out a payout: processing -> completed on success,
// processing -> rejected with the provider's code otherwise. Withdrawals
// that are not in processing are left alone and acked.
func (c *DarajaController) B2CResult(w http.ResponseWriter, r *http.Request) {
	if !darajaTokenValid(r) {
		log.Printf("[daraja] b2c result with bad token from %s", r.RemoteAddr)
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Failed to read body"})
		return
	}

	var env b2cResultEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Result.ConversationID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid payload"})
		return
	}
	result := env.Result

	go utils.ArchiveWebhookPayload(context.Background(), "daraja-b2c", result.ConversationID, body)

	var wr models.WithdrawalRequest
	err = c.DB.Where("provider_ref = ?", result.ConversationID).First(&wr).Error
	if err == gorm.ErrRecordNotFound {
		log.Printf("[daraja] b2c result for unknown conversation %s", result.ConversationID)
		writeDarajaAck(w)
		return
	}
	if err != nil {
		log.Printf("[daraja] b2c lookup %s: %v", result.ConversationID, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Lookup failed"})
		return
	}

	md := wr.Metadata
	code := result.ResultCode
	md.ResultCode = &code
	md.ResultDesc = result.ResultDesc
	md.TransactionReceipt = result.TransactionID

	if result.ResultCode == 0 {
		err = completeWithdrawal(c.DB, &wr, md)
	} else {
		err = rejectProcessingWithdrawal(c.DB, &wr, md)
	}
	if err != nil {
		log.Printf("[daraja] b2c settle %s: %v", result.ConversationID, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Settlement failed"})
		return
	}
	writeDarajaAck(w)
}
