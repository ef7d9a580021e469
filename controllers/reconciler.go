package controllers

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/etiditalex/CMFagency-sub002/models"
	"github.com/etiditalex/CMFagency-sub002/utils"
)

// Reconciler owns the settlement state machine shared by the provider
// callbacks and the recovery sweeper. Every path into it converges on the
// same rules: validate the confirmed money, flip pending rows with a
// conditional update, then issue exactly once.
type Reconciler struct {
	DB *gorm.DB
}

func NewReconciler(db *gorm.DB) *Reconciler {
	return &Reconciler{DB: db}
}

// ConfirmedPayment is what a provider callback or verify call reported.
// Paystack settles in minor units and must match exactly; Daraja settles in
// base units with a one-shilling tolerance for its rounding.
type ConfirmedPayment struct {
	Amount      int64
	AmountMinor int64
	MinorUnits  bool
	Tolerance   int64
	Currency    string
	PaidAt      *time.Time
}

func (c ConfirmedPayment) matches(txn *models.Transaction) bool {
	if c.MinorUnits {
		return c.AmountMinor == utils.ToMinorUnits(txn.Amount)
	}
	diff := c.Amount - txn.Amount
	if diff < 0 {
		diff = -diff
	}
	return diff <= c.Tolerance
}

// SettlePayment applies a confirmed provider outcome to a transaction.
// Returns true when this call moved the row to success. Terminal rows are
// left untouched except for healing a success row that never got issued.
func (rc *Reconciler) SettlePayment(txn *models.Transaction, confirmed ConfirmedPayment) (bool, error) {
	if txn.Terminal() {
		if txn.Status == models.StatusSuccess && txn.FulfilledAt == nil {
			return false, rc.Fulfill(txn)
		}
		return false, nil
	}

	if confirmed.Currency != "" && !strings.EqualFold(confirmed.Currency, txn.Currency) {
		desc := fmt.Sprintf("expected %s, provider sent %s", txn.Currency, confirmed.Currency)
		_, err := rc.FailPending(txn, "currency_mismatch", nil, desc)
		return false, err
	}

	if !confirmed.matches(txn) {
		got := confirmed.Amount
		if confirmed.MinorUnits {
			got = confirmed.AmountMinor
		}
		desc := fmt.Sprintf("expected %d, provider sent %d", txn.Amount, got)
		_, err := rc.FailPending(txn, "amount_mismatch", nil, desc)
		return false, err
	}

	updated, err := rc.succeedPending(txn, confirmed.PaidAt)
	if err != nil {
		return false, err
	}
	if !updated {
		// Lost the race to another callback. Reload and heal a half-settled
		// row if the winner crashed before issuance.
		var current models.Transaction
		if err := rc.DB.First(&current, txn.ID).Error; err != nil {
			return false, err
		}
		*txn = current
		if txn.Status == models.StatusSuccess && txn.FulfilledAt == nil {
			return false, rc.Fulfill(txn)
		}
		return false, nil
	}
	return true, rc.Fulfill(txn)
}

// succeedPending flips pending -> success. The status guard in the WHERE
// clause is the concurrency control: whichever caller gets RowsAffected=1
// owns the transition, everyone else sees 0 and backs off.
func (rc *Reconciler) succeedPending(txn *models.Transaction, paidAt *time.Time) (bool, error) {
	now := time.Now()
	if paidAt == nil {
		paidAt = &now
	}
	res := rc.DB.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, models.StatusPending).
		Updates(map[string]interface{}{
			"status":      models.StatusSuccess,
			"verified_at": now,
			"paid_at":     *paidAt,
			"metadata":    txn.Metadata,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	txn.Status = models.StatusSuccess
	txn.VerifiedAt = &now
	txn.PaidAt = paidAt
	return true, nil
}

// FailPending flips pending -> failed and records why. A row that is
// already terminal is left alone and reported as not updated.
func (rc *Reconciler) FailPending(txn *models.Transaction, reason string, code *int, desc string) (bool, error) {
	now := time.Now()
	md := txn.Metadata
	md.WebhookError = reason
	if code != nil {
		md.ResultCode = code
	}
	if desc != "" {
		md.ResultDesc = desc
	}
	res := rc.DB.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, models.StatusPending).
		Updates(map[string]interface{}{
			"status":      models.StatusFailed,
			"verified_at": now,
			"metadata":    md,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	txn.Status = models.StatusFailed
	txn.VerifiedAt = &now
	txn.Metadata = md
	log.Printf("[reconcile] transaction %s failed: %s (%s)", txn.Reference, reason, desc)
	return true, nil
}

// Fulfill issues whatever the transaction bought, at most once. The insert
// ignores conflicts on the unique transaction_id, and the fulfilled_at stamp
// only lands on a row that has never been stamped. Replays and concurrent
// callers both collapse into no-ops.
func (rc *Reconciler) Fulfill(txn *models.Transaction) error {
	if txn.Status != models.StatusSuccess {
		return fmt.Errorf("cannot fulfil %s transaction %s", txn.Status, txn.Reference)
	}

	var campaign *models.Campaign
	if txn.CampaignID != nil {
		var c models.Campaign
		if err := rc.DB.First(&c, *txn.CampaignID).Error; err != nil {
			return fmt.Errorf("load campaign %d: %w", *txn.CampaignID, err)
		}
		campaign = &c
	}

	slug := "cmf"
	if campaign != nil {
		slug = campaign.Slug
	}
	receipt := utils.ReceiptNumber(slug, txn.CampaignType, txn.Reference)

	switch txn.CampaignType {
	case models.TypeVote:
		if txn.CampaignID == nil || txn.ContestantID == nil {
			return fmt.Errorf("vote transaction %s has no campaign/contestant", txn.Reference)
		}
		vote := models.Vote{
			TransactionID: txn.ID,
			CampaignID:    *txn.CampaignID,
			ContestantID:  *txn.ContestantID,
			VoteCount:     txn.Quantity,
		}
		if err := rc.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).Create(&vote).Error; err != nil {
			return fmt.Errorf("record votes for %s: %w", txn.Reference, err)
		}
	case models.TypeTicket, models.TypeMerch:
		issue := models.TicketIssue{
			TransactionID: txn.ID,
			CampaignID:    txn.CampaignID,
			TicketNumber:  receipt,
			Quantity:      txn.Quantity,
		}
		if err := rc.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).Create(&issue).Error; err != nil {
			return fmt.Errorf("issue ticket for %s: %w", txn.Reference, err)
		}
	default:
		return fmt.Errorf("unknown campaign type %q on transaction %s", txn.CampaignType, txn.Reference)
	}

	now := time.Now()
	res := rc.DB.Model(&models.Transaction{}).
		Where("id = ? AND fulfilled_at IS NULL", txn.ID).
		Update("fulfilled_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Someone else stamped it; their email already went out.
		return nil
	}
	txn.FulfilledAt = &now

	// Receipt email is best effort, never blocks settlement.
	if err := utils.SendReceiptEmail(txn.Email, txn.BuyerName, receipt, txn.Amount, txn.Currency, txn.Quantity); err != nil {
		log.Printf("[reconcile] receipt email for %s: %v", txn.Reference, err)
	}
	return nil
}
