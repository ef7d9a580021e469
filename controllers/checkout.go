package controllers

import (
	"log"
	"net/http"

	"gorm.io/gorm"

	"github.com/etiditalex/CMFagency-sub002/models"
	"github.com/etiditalex/CMFagency-sub002/utils"
)

// CheckoutController creates pending transactions and hands them to a
// payment provider. The row is inserted before the provider is contacted so
// the sweeper can pick up anything the provider or the process drops.
type CheckoutController struct {
	DB   *gorm.DB
	HTTP *http.Client
}

func NewCheckoutController(db *gorm.DB, client *http.Client) *CheckoutController {
	if client == nil {
		client = http.DefaultClient
	}
	return &CheckoutController{DB: db, HTTP: client}
}

type CheckoutRequest struct {
	Slug         string `json:"slug" validate:"required"`
	Quantity     int    `json:"quantity"`
	ContestantID *uint  `json:"contestant_id"`
	Provider     string `json:"provider" validate:"required,oneof=paystack daraja"`
	Email        string `json:"email" validate:"required,email"`
	Name         string `json:"name"`
	Phone        string `json:"phone" validate:"msisdn"`
}

type CartCheckoutRequest struct {
	Items    []models.CartItem `json:"items"`
	Shipping int64             `json:"shipping"`
	Provider string            `json:"provider" validate:"required,oneof=paystack daraja"`
	Email    string            `json:"email" validate:"required,email"`
	Name     string            `json:"name"`
	Phone    string            `json:"phone" validate:"msisdn"`
}

type checkoutResponse struct {
	Reference         string `json:"reference"`
	Amount            int64  `json:"amount"`
	Tax               int64  `json:"tax"`
	Currency          string `json:"currency"`
	AuthorizationURL  string `json:"authorization_url,omitempty"`
	CheckoutRequestID string `json:"checkout_request_id,omitempty"`
}

// Checkout handles ticket and vote purchases against a campaign slug.
func (c *CheckoutController) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var campaign models.Campaign
	if err := c.DB.Where("slug = ? AND active = ?", req.Slug, true).First(&campaign).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Campaign not found"})
			return
		}
		log.Printf("[checkout] load campaign %s: %v", req.Slug, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to load campaign"})
		return
	}

	if req.Quantity <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Quantity must be positive"})
		return
	}
	quantity := req.Quantity
	if campaign.MaxQuantity > 0 && quantity > campaign.MaxQuantity {
		quantity = campaign.MaxQuantity
	}

	if campaign.Type == models.TypeVote {
		if req.ContestantID == nil {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Contestant is required for votes"})
			return
		}
		// Eligibility is checked before any row exists, so a bad contestant
		// never produces a pending transaction.
		var count int64
		if err := c.DB.Model(&models.Contestant{}).
			Where("id = ? AND campaign_id = ?", *req.ContestantID, campaign.ID).
			Count(&count).Error; err != nil {
			log.Printf("[checkout] contestant lookup: %v", err)
			utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to validate contestant"})
			return
		}
		if count == 0 {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Contestant does not belong to this campaign"})
			return
		}
	} else if req.ContestantID != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Contestant only applies to vote campaigns"})
		return
	}

	if req.Provider == models.ProviderDaraja && req.Phone == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Phone is required for M-Pesa"})
		return
	}

	subtotal := campaign.UnitAmount * int64(quantity)
	var tax int64
	if campaign.Taxable {
		tax = utils.ComputeTax(subtotal, utils.TaxRate())
	}
	total := subtotal + tax

	campaignID := campaign.ID
	txn := models.Transaction{
		CampaignID:   &campaignID,
		CampaignType: campaign.Type,
		ContestantID: req.ContestantID,
		Quantity:     quantity,
		Currency:     campaign.Currency,
		UnitAmount:   campaign.UnitAmount,
		Amount:       total,
		Provider:     req.Provider,
		Email:        req.Email,
		BuyerName:    req.Name,
		Status:       models.StatusPending,
	}

	c.createAndInitiate(w, r, &txn, req.Phone, tax)
}

// CartCheckout handles merchandise carts. Prices come from the client but
// every line is validated; the transaction pins unit_amount to 1 and carries
// the full cart in metadata for the fulfilment record.
func (c *CheckoutController) CartCheckout(w http.ResponseWriter, r *http.Request) {
	var req CartCheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.Items) == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Cart is empty"})
		return
	}
	if req.Shipping < 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid shipping fee"})
		return
	}
	var subtotal int64
	for i, item := range req.Items {
		if item.ID == "" || item.Name == "" || item.Price <= 0 || item.Quantity <= 0 {
			log.Printf("[checkout] rejected cart line %d: %+v", i, item)
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid cart item"})
			return
		}
		subtotal += item.Price * int64(item.Quantity)
	}
	total := subtotal + req.Shipping

	if req.Provider == models.ProviderDaraja && req.Phone == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Phone is required for M-Pesa"})
		return
	}

	txn := models.Transaction{
		CampaignType: models.TypeMerch,
		Quantity:     int(total),
		Currency:     "KES",
		UnitAmount:   1,
		Amount:       total,
		Provider:     req.Provider,
		Email:        req.Email,
		BuyerName:    req.Name,
		Status:       models.StatusPending,
		Metadata: models.TransactionMetadata{
			Cart:     req.Items,
			Shipping: req.Shipping,
		},
	}

	c.createAndInitiate(w, r, &txn, req.Phone, 0)
}

// createAndInitiate persists the pending row, then calls the provider. A
// provider failure leaves the row pending for the sweeper and returns 502.
func (c *CheckoutController) createAndInitiate(w http.ResponseWriter, r *http.Request, txn *models.Transaction, phone string, tax int64) {
	reference, err := utils.NewReference()
	if err != nil {
		log.Printf("[checkout] generate reference: %v", err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to create transaction"})
		return
	}
	txn.Reference = reference

	if err := c.DB.Create(txn).Error; err != nil {
		log.Printf("[checkout] create transaction: %v", err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to create transaction"})
		return
	}

	resp := checkoutResponse{
		Reference: txn.Reference,
		Amount:    txn.Amount,
		Tax:       tax,
		Currency:  txn.Currency,
	}

	switch txn.Provider {
	case models.ProviderPaystack:
		charge, err := utils.InitializePaystackTransaction(r.Context(), c.HTTP, txn.Reference, txn.Email, txn.Amount, txn.Currency)
		if err != nil {
			log.Printf("[checkout] paystack initialize %s: %v", txn.Reference, err)
			utils.WriteJSON(w, http.StatusBadGateway, utils.APIResponse{Success: false, Message: "Payment provider unavailable"})
			return
		}
		txn.Metadata.Paystack = &models.PaystackCorrelation{
			AccessCode:       charge.Data.AccessCode,
			AuthorizationURL: charge.Data.AuthorizationURL,
		}
		if err := c.DB.Model(txn).Update("metadata", txn.Metadata).Error; err != nil {
			log.Printf("[checkout] save paystack correlation %s: %v", txn.Reference, err)
		}
		resp.AuthorizationURL = charge.Data.AuthorizationURL

	case models.ProviderDaraja:
		token, err := utils.GetDarajaAccessToken(r.Context(), c.HTTP)
		if err != nil {
			log.Printf("[checkout] daraja token %s: %v", txn.Reference, err)
			utils.WriteJSON(w, http.StatusBadGateway, utils.APIResponse{Success: false, Message: "Payment provider unavailable"})
			return
		}
		push, err := utils.InitiateSTKPush(r.Context(), c.HTTP, token, phone, txn.Reference, txn.Amount)
		if err != nil {
			log.Printf("[checkout] stk push %s: %v", txn.Reference, err)
			utils.WriteJSON(w, http.StatusBadGateway, utils.APIResponse{Success: false, Message: "Payment provider unavailable"})
			return
		}
		txn.Metadata.Mpesa = &models.MpesaCorrelation{
			MerchantRequestID: push.MerchantRequestID,
			CheckoutRequestID: push.CheckoutRequestID,
			Phone:             phone,
		}
		providerRef := push.CheckoutRequestID
		if err := c.DB.Model(txn).Updates(map[string]interface{}{
			"provider_ref": providerRef,
			"metadata":     txn.Metadata,
		}).Error; err != nil {
			log.Printf("[checkout] save daraja correlation %s: %v", txn.Reference, err)
		}
		resp.CheckoutRequestID = push.CheckoutRequestID
	}

	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Checkout initiated", Data: resp})
}
