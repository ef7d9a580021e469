package models

import "time"

// Vote is the issuance record for one fulfilled vote purchase. The unique
// index on TransactionID is the structural guard against double-counting:
// duplicate fulfillment attempts insert with ON CONFLICT DO NOTHING.
type Vote struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TransactionID uint      `gorm:"not null;uniqueIndex" json:"transaction_id"`
	CampaignID    uint      `gorm:"not null;index" json:"campaign_id"`
	ContestantID  uint      `gorm:"not null;index" json:"contestant_id"`
	VoteCount     int       `gorm:"not null" json:"vote_count"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Vote) TableName() string {
	return "votes"
}

// TicketIssue is the issuance record for one fulfilled ticket or merchandise
// purchase, guarded the same way as Vote.
type TicketIssue struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TransactionID uint      `gorm:"not null;uniqueIndex" json:"transaction_id"`
	CampaignID    *uint     `gorm:"index" json:"campaign_id,omitempty"`
	TicketNumber  string    `gorm:"type:varchar(64);not null" json:"ticket_number"`
	Quantity      int       `gorm:"not null" json:"quantity"`
	CreatedAt     time.Time `json:"created_at"`
}

func (TicketIssue) TableName() string {
	return "ticket_issues"
}
