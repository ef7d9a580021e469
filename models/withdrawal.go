package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Withdrawal request statuses.
const (
	WithdrawalPendingAdmin = "pending_admin"
	WithdrawalApproved     = "approved"
	WithdrawalProcessing   = "processing"
	WithdrawalCompleted    = "completed"
	WithdrawalRejected     = "rejected"
)

// WithdrawalRequest is the payout mirror of Transaction: outbound money
// movement to a member's M-Pesa number, reconciled by the B2C result callback.
// ProviderRef carries the Daraja ConversationID once the payout is initiated.
type WithdrawalRequest struct {
	ID          uint               `gorm:"primaryKey" json:"id"`
	MemberID    uint               `gorm:"not null;index" json:"member_id"`
	Amount      int64              `gorm:"not null" json:"amount"`
	Currency    string             `gorm:"type:varchar(8);not null;default:'KES'" json:"currency"`
	Phone       string             `gorm:"type:varchar(20);not null" json:"phone"`
	Status      string             `gorm:"type:varchar(20);not null;default:'pending_admin';index" json:"status"`
	ApproverID  *uint              `json:"approver_id,omitempty"`
	ProviderRef *string            `gorm:"type:varchar(191);index" json:"-"`
	Metadata    WithdrawalMetadata `gorm:"type:jsonb" json:"metadata"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"-"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}

// WithdrawalMetadata holds the B2C correlation and audit fields.
type WithdrawalMetadata struct {
	ConversationID           string `json:"conversation_id,omitempty"`
	OriginatorConversationID string `json:"originator_conversation_id,omitempty"`
	TransactionReceipt       string `json:"transaction_receipt,omitempty"`
	ResultCode               *int   `json:"result_code,omitempty"`
	ResultDesc               string `json:"result_desc,omitempty"`
	RejectReason             string `json:"reject_reason,omitempty"`
}

func (m WithdrawalMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *WithdrawalMetadata) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = WithdrawalMetadata{}
		return nil
	case []byte:
		if len(v) == 0 {
			*m = WithdrawalMetadata{}
			return nil
		}
		return json.Unmarshal(v, m)
	case string:
		if v == "" {
			*m = WithdrawalMetadata{}
			return nil
		}
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into WithdrawalMetadata", value)
	}
}
