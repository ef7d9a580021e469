package controllers

import (
	"fmt"
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

// WithdrawalController manages member payout requests. Requests queue behind
// an admin decision; approval triggers a Daraja B2C payment, and the B2C
// result callback closes the row out.
type WithdrawalController struct {
	DB   *gorm.DB
	HTTP *http.Client
}

func NewWithdrawalController(db *gorm.DB, client *http.Client) *WithdrawalController {
	if client == nil {
		client = http.DefaultClient
	}
	return &WithdrawalController{DB: db, HTTP: client}
}

type CreateWithdrawalRequest struct {
	Amount int64  `json:"amount"`
	Phone  string `json:"phone" validate:"required,msisdn"`
}

type RejectWithdrawalRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// Create queues a payout request for the authenticated member.
func (c *WithdrawalController) Create(w http.ResponseWriter, r *http.Request) {
	cap, ok := middleware.GetCapability(r)
	if !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}

	var req CreateWithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Amount must be positive"})
		return
	}

	wr := models.WithdrawalRequest{
		MemberID: cap.MemberID,
		Amount:   req.Amount,
		Currency: "KES",
		Phone:    req.Phone,
		Status:   models.WithdrawalPendingAdmin,
	}
	if err := c.DB.Create(&wr).Error; err != nil {
		log.Printf("[withdrawals] create: %v", err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to create withdrawal request"})
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Withdrawal request created", Data: wr})
}

// List returns the member's own requests; admins see everyone's and can
// filter by status.
func (c *WithdrawalController) List(w http.ResponseWriter, r *http.Request) {
	cap, ok := middleware.GetCapability(r)
	if !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}

	q := c.DB.Model(&models.WithdrawalRequest{}).Order("created_at DESC")
	if cap.IsAdmin() {
		if status := r.URL.Query().Get("status"); status != "" {
			q = q.Where("status = ?", status)
		}
	} else {
		q = q.Where("member_id = ?", cap.MemberID)
	}

	var rows []models.WithdrawalRequest
	if err := q.Limit(200).Find(&rows).Error; err != nil {
		log.Printf("[withdrawals] list: %v", err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to list withdrawals"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Withdrawal requests", Data: rows})
}

// Approve moves pending_admin -> approved and fires the B2C payment. The
// status guard means two admins clicking at once produce one payout. If
// Daraja is down the row stays approved and the admin can retry.
func (c *WithdrawalController) Approve(w http.ResponseWriter, r *http.Request) {
	cap, ok := middleware.GetCapability(r)
	if !ok || !cap.IsAdmin() {
		utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{Success: false, Message: "Admin access required"})
		return
	}

	wr, ok := c.loadByPathID(w, r)
	if !ok {
		return
	}

	res := c.DB.Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", wr.ID, models.WithdrawalPendingAdmin).
		Updates(map[string]interface{}{
			"status":      models.WithdrawalApproved,
			"approver_id": cap.MemberID,
		})
	if res.Error != nil {
		log.Printf("[withdrawals] approve %d: %v", wr.ID, res.Error)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to approve withdrawal"})
		return
	}
	if res.RowsAffected == 0 && wr.Status != models.WithdrawalApproved {
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Withdrawal is not awaiting approval"})
		return
	}
	wr.Status = models.WithdrawalApproved
	approver := cap.MemberID
	wr.ApproverID = &approver

	token, err := utils.GetDarajaAccessToken(r.Context(), c.HTTP)
	if err != nil {
		log.Printf("[withdrawals] daraja token for %d: %v", wr.ID, err)
		utils.WriteJSON(w, http.StatusBadGateway, utils.APIResponse{Success: false, Message: "Payout provider unavailable"})
		return
	}
	remarks := fmt.Sprintf("Withdrawal %d", wr.ID)
	b2c, err := utils.InitiateB2CPayment(r.Context(), c.HTTP, token, wr.Phone, wr.Amount, remarks)
	if err != nil {
		log.Printf("[withdrawals] b2c initiate for %d: %v", wr.ID, err)
		utils.WriteJSON(w, http.StatusBadGateway, utils.APIResponse{Success: false, Message: "Payout provider unavailable"})
		return
	}

	md := wr.Metadata
	md.ConversationID = b2c.ConversationID
	md.OriginatorConversationID = b2c.OriginatorConversationID
	res = c.DB.Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", wr.ID, models.WithdrawalApproved).
		Updates(map[string]interface{}{
			"status":       models.WithdrawalProcessing,
			"provider_ref": b2c.ConversationID,
			"metadata":     md,
		})
	if res.Error != nil {
		log.Printf("[withdrawals] mark processing %d: %v", wr.ID, res.Error)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to update withdrawal"})
		return
	}
	wr.Status = models.WithdrawalProcessing
	wr.Metadata = md

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Payout initiated", Data: wr})
}

// Reject moves pending_admin -> rejected with the admin's reason.
func (c *WithdrawalController) Reject(w http.ResponseWriter, r *http.Request) {
	cap, ok := middleware.GetCapability(r)
	if !ok || !cap.IsAdmin() {
		utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{Success: false, Message: "Admin access required"})
		return
	}

	wr, ok := c.loadByPathID(w, r)
	if !ok {
		return
	}

	var req RejectWithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	md := wr.Metadata
	md.RejectReason = req.Reason
	res := c.DB.Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", wr.ID, models.WithdrawalPendingAdmin).
		Updates(map[string]interface{}{
			"status":      models.WithdrawalRejected,
			"approver_id": cap.MemberID,
			"metadata":    md,
		})
	if res.Error != nil {
		log.Printf("[withdrawals] reject %d: %v", wr.ID, res.Error)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to reject withdrawal"})
		return
	}
	if res.RowsAffected == 0 {
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Withdrawal is not awaiting approval"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Withdrawal rejected"})
}

func (c *WithdrawalController) loadByPathID(w http.ResponseWriter, r *http.Request) (*models.WithdrawalRequest, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid withdrawal id"})
		return nil, false
	}
	var wr models.WithdrawalRequest
	if err := c.DB.First(&wr, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Withdrawal not found"})
			return nil, false
		}
		log.Printf("[withdrawals] load %d: %v", id, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to load withdrawal"})
		return nil, false
	}
	return &wr, true
}

// completeWithdrawal stamps a processing payout completed. The status guard
// makes the B2C result callback idempotent under replay.
func completeWithdrawal(db *gorm.DB, wr *models.WithdrawalRequest, md models.WithdrawalMetadata) error {
	now := time.Now()
	res := db.Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", wr.ID, models.WithdrawalProcessing).
		Updates(map[string]interface{}{
			"status":       models.WithdrawalCompleted,
			"completed_at": now,
			"metadata":     md,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		wr.Status = models.WithdrawalCompleted
		wr.CompletedAt = &now
		wr.Metadata = md
	}
	return nil
}

// rejectProcessingWithdrawal records a provider-side payout failure.
func rejectProcessingWithdrawal(db *gorm.DB, wr *models.WithdrawalRequest, md models.WithdrawalMetadata) error {
	res := db.Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", wr.ID, models.WithdrawalProcessing).
		Updates(map[string]interface{}{
			"status":   models.WithdrawalRejected,
			"metadata": md,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		wr.Status = models.WithdrawalRejected
		wr.Metadata = md
	}
	return nil
}
