package models

import "time"

// Campaign is a sellable offering: a ticketed event or a voting contest,
// addressed by slug. Campaigns are authored in the portal and are read-only to
// the payment path.
type Campaign struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Slug        string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"slug"`
	Title       string    `gorm:"type:varchar(191);not null" json:"title"`
	Type        string    `gorm:"type:varchar(16);not null" json:"type"`
	Currency    string    `gorm:"type:varchar(8);not null;default:'KES'" json:"currency"`
	UnitAmount  int64     `gorm:"not null" json:"unit_amount"`
	MaxQuantity int       `gorm:"not null;default:100" json:"max_quantity"`
	Taxable     bool      `gorm:"not null;default:true" json:"taxable"`
	Active      bool      `gorm:"not null;default:true" json:"active"`
	OwnerID     uint      `gorm:"index" json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"-"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// Contestant is a votable entry belonging to exactly one vote-type campaign.
type Contestant struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CampaignID uint      `gorm:"not null;index" json:"campaign_id"`
	Name       string    `gorm:"type:varchar(191);not null" json:"name"`
	Code       string    `gorm:"type:varchar(32)" json:"code"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}

func (Contestant) TableName() string {
	return "contestants"
}
