package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Transaction statuses. A transaction is created pending and moves to exactly
// one terminal state; terminal rows are never rewritten by later callbacks.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Payment providers.
const (
	ProviderPaystack = "paystack"
	ProviderDaraja   = "daraja"
)

// Campaign type snapshots carried on the transaction.
const (
	TypeTicket = "ticket"
	TypeVote   = "vote"
	TypeMerch  = "merch"
)

// Transaction is one purchase attempt. Reference is generated internally
// (random 128-bit hex) and doubles as the idempotency key and the provider's
// correlation key. ProviderRef holds the provider-issued correlation id
// (Daraja CheckoutRequestID) so callbacks can be matched with an indexed
// column instead of a JSON scan; the full correlation record lives in Metadata.
type Transaction struct {
	ID           uint                `gorm:"primaryKey" json:"id"`
	Reference    string              `gorm:"type:varchar(64);not null;uniqueIndex" json:"reference"`
	CampaignID   *uint               `gorm:"index" json:"campaign_id,omitempty"`
	CampaignType string              `gorm:"type:varchar(16);not null" json:"campaign_type"`
	ContestantID *uint               `gorm:"index" json:"contestant_id,omitempty"`
	Quantity     int                 `gorm:"not null" json:"quantity"`
	Currency     string              `gorm:"type:varchar(8);not null" json:"currency"`
	UnitAmount   int64               `gorm:"not null" json:"unit_amount"`
	Amount       int64               `gorm:"not null" json:"amount"`
	Provider     string              `gorm:"type:varchar(16);not null;index" json:"provider"`
	Email        string              `gorm:"type:varchar(191);not null" json:"email"`
	BuyerName    string              `gorm:"type:varchar(191)" json:"buyer_name"`
	Status       string              `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ProviderRef  *string             `gorm:"type:varchar(191);index" json:"-"`
	VerifiedAt   *time.Time          `json:"verified_at,omitempty"`
	PaidAt       *time.Time          `json:"paid_at,omitempty"`
	FulfilledAt  *time.Time          `json:"fulfilled_at,omitempty"`
	Metadata     TransactionMetadata `gorm:"type:jsonb" json:"metadata"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"-"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// Terminal reports whether the payment outcome has already been determined.
func (t *Transaction) Terminal() bool {
	return t.Status != StatusPending
}

// TransactionMetadata is the structured correlation and audit bag. Exactly one
// provider branch is populated per transaction; the remaining fields record
// cart contents and failure audit data.
type TransactionMetadata struct {
	Paystack *PaystackCorrelation `json:"paystack,omitempty"`
	Mpesa    *MpesaCorrelation    `json:"mpesa,omitempty"`

	Cart     []CartItem `json:"cart,omitempty"`
	Shipping int64      `json:"shipping,omitempty"`

	// Failure audit, set when a callback or sweep forces status=failed.
	WebhookError string `json:"webhook_error,omitempty"`
	ResultCode   *int   `json:"result_code,omitempty"`
	ResultDesc   string `json:"result_desc,omitempty"`
}

// Value serializes the metadata to JSON for the database. Implementing
// driver.Valuer means the column survives both struct writes and the
// map-form conditional updates the settlement path relies on.
func (m TransactionMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *TransactionMetadata) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = TransactionMetadata{}
		return nil
	case []byte:
		if len(v) == 0 {
			*m = TransactionMetadata{}
			return nil
		}
		return json.Unmarshal(v, m)
	case string:
		if v == "" {
			*m = TransactionMetadata{}
			return nil
		}
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into TransactionMetadata", value)
	}
}

// PaystackCorrelation holds the Paystack-side identifiers for one charge.
type PaystackCorrelation struct {
	AccessCode       string `json:"access_code,omitempty"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
	TransactionID    int64  `json:"transaction_id,omitempty"`
	Channel          string `json:"channel,omitempty"`
	PaidAmount       int64  `json:"paid_amount,omitempty"`
	PaidCurrency     string `json:"paid_currency,omitempty"`
}

// MpesaCorrelation holds the Daraja-side identifiers for one STK push.
type MpesaCorrelation struct {
	MerchantRequestID  string `json:"merchant_request_id,omitempty"`
	CheckoutRequestID  string `json:"checkout_request_id,omitempty"`
	MpesaReceiptNumber string `json:"mpesa_receipt_number,omitempty"`
	Phone              string `json:"phone,omitempty"`
	PaidAmount         int64  `json:"paid_amount,omitempty"`
	TransactionDate    string `json:"transaction_date,omitempty"`
}

// CartItem is one validated merchandise line captured at checkout.
type CartItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}
