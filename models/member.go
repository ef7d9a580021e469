package models

import "time"

// Portal roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleClient  = "client"
)

// Member is a portal account: the owner of campaigns and withdrawal requests.
// Buyers are not members; they are identified only by the email on a
// transaction.
type Member struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"email"`
	Name         string    `gorm:"type:varchar(191);not null" json:"name"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	Role         string    `gorm:"type:varchar(16);not null;default:'client'" json:"role"`
	Features     []string  `gorm:"serializer:json" json:"features"`
	Active       bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"-"`
}

func (Member) TableName() string {
	return "members"
}
