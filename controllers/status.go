package controllers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/etiditalex/CMFagency-sub002/middleware"
	"github.com/etiditalex/CMFagency-sub002/models"
	"github.com/etiditalex/CMFagency-sub002/utils"
)

// TransactionController serves transaction lookups: a public status poll for
// payment pages and an admin listing for the portal.
type TransactionController struct {
	DB *gorm.DB
}

func NewTransactionController(db *gorm.DB) *TransactionController {
	return &TransactionController{DB: db}
}

// publicStatus is the buyer-facing view: enough to drive a payment result
// page, no contact details.
type publicStatus struct {
	Reference    string  `json:"reference"`
	Status       string  `json:"status"`
	CampaignType string  `json:"campaign_type"`
	Quantity     int     `json:"quantity"`
	Amount       int64   `json:"amount"`
	Currency     string  `json:"currency"`
	VerifiedAt   *string `json:"verified_at,omitempty"`
	PaidAt       *string `json:"paid_at,omitempty"`
	FulfilledAt  *string `json:"fulfilled_at,omitempty"`
	Fulfilled    bool    `json:"fulfilled"`
	TicketNumber string  `json:"ticket_number,omitempty"`
}

func formatStamp(ts *time.Time) *string {
	if ts == nil {
		return nil
	}
	s := ts.UTC().Format("2006-01-02T15:04:05Z")
	return &s
}

// Status returns the current state of one transaction by reference.
func (c *TransactionController) Status(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]

	var txn models.Transaction
	err := c.DB.Where("reference = ?", reference).First(&txn).Error
	if err == gorm.ErrRecordNotFound {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Transaction not found"})
		return
	}
	if err != nil {
		log.Printf("[transactions] status %s: %v", reference, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Lookup failed"})
		return
	}

	out := publicStatus{
		Reference:    txn.Reference,
		Status:       txn.Status,
		CampaignType: txn.CampaignType,
		Quantity:     txn.Quantity,
		Amount:       txn.Amount,
		Currency:     txn.Currency,
		VerifiedAt:   formatStamp(txn.VerifiedAt),
		PaidAt:       formatStamp(txn.PaidAt),
		FulfilledAt:  formatStamp(txn.FulfilledAt),
		Fulfilled:    txn.FulfilledAt != nil,
	}
	if txn.FulfilledAt != nil && txn.CampaignType != models.TypeVote {
		var issue models.TicketIssue
		if err := c.DB.Where("transaction_id = ?", txn.ID).First(&issue).Error; err == nil {
			out.TicketNumber = issue.TicketNumber
		}
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Transaction status", Data: out})
}

// PortalStatus is the authenticated view: the full ledger row, buyer contact
// and correlation metadata included.
func (c *TransactionController) PortalStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetCapability(r); !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}
	reference := mux.Vars(r)["reference"]

	var txn models.Transaction
	err := c.DB.Where("reference = ?", reference).First(&txn).Error
	if err == gorm.ErrRecordNotFound {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Transaction not found"})
		return
	}
	if err != nil {
		log.Printf("[transactions] portal status %s: %v", reference, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Lookup failed"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Transaction", Data: txn})
}

// List is the admin ledger view with pagination and status/provider filters.
func (c *TransactionController) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 25
	}

	q := c.DB.Model(&models.Transaction{})
	if status := r.URL.Query().Get("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if provider := r.URL.Query().Get("provider"); provider != "" {
		q = q.Where("provider = ?", provider)
	}
	if campaignID := r.URL.Query().Get("campaign_id"); campaignID != "" {
		q = q.Where("campaign_id = ?", campaignID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		log.Printf("[transactions] count: %v", err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to list transactions"})
		return
	}

	var rows []models.Transaction
	if err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&rows).Error; err != nil {
		log.Printf("[transactions] list: %v", err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to list transactions"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Transactions", Data: map[string]interface{}{
		"transactions": rows,
		"page":         page,
		"limit":        limit,
		"total":        total,
	}})
}
