package controllers

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/etiditalex/CMFagency-sub002/models"
	"github.com/etiditalex/CMFagency-sub002/utils"
)

// newTestDB opens an isolated in-memory datastore with the full schema.
// A single connection keeps every goroutine on the same database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.Member{},
		&models.Campaign{},
		&models.Contestant{},
		&models.Transaction{},
		&models.Vote{},
		&models.TicketIssue{},
		&models.WithdrawalRequest{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func seedCampaign(t *testing.T, db *gorm.DB, slug, campaignType string, unitAmount int64, taxable bool) models.Campaign {
	t.Helper()
	c := models.Campaign{
		Slug:        slug,
		Title:       slug,
		Type:        campaignType,
		Currency:    "KES",
		UnitAmount:  unitAmount,
		MaxQuantity: 100,
		Taxable:     taxable,
		Active:      true,
	}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("seed campaign %s: %v", slug, err)
	}
	return c
}

func seedContestant(t *testing.T, db *gorm.DB, campaignID uint, name string) models.Contestant {
	t.Helper()
	c := models.Contestant{CampaignID: campaignID, Name: name}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("seed contestant %s: %v", name, err)
	}
	return c
}

// seedPendingTxn creates a pending transaction against a campaign. Pass a
// nil contestant for ticket purchases.
func seedPendingTxn(t *testing.T, db *gorm.DB, campaign models.Campaign, contestantID *uint, provider string, quantity int, amount int64) models.Transaction {
	t.Helper()
	ref, err := utils.NewReference()
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	campaignID := campaign.ID
	txn := models.Transaction{
		Reference:    ref,
		CampaignID:   &campaignID,
		CampaignType: campaign.Type,
		ContestantID: contestantID,
		Quantity:     quantity,
		Currency:     campaign.Currency,
		UnitAmount:   campaign.UnitAmount,
		Amount:       amount,
		Provider:     provider,
		Email:        "buyer@example.com",
		BuyerName:    "Buyer",
		Status:       models.StatusPending,
	}
	if err := db.Create(&txn).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return txn
}

func reloadTxn(t *testing.T, db *gorm.DB, id uint) models.Transaction {
	t.Helper()
	var txn models.Transaction
	if err := db.First(&txn, id).Error; err != nil {
		t.Fatalf("reload transaction %d: %v", id, err)
	}
	return txn
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// ageTxn backdates created_at so the sweeper's minimum-age cutoff passes.
func ageTxn(t *testing.T, db *gorm.DB, id uint, age time.Duration) {
	t.Helper()
	if err := db.Model(&models.Transaction{}).Where("id = ?", id).
		Update("created_at", time.Now().Add(-age)).Error; err != nil {
		t.Fatalf("age transaction %d: %v", id, err)
	}
}
