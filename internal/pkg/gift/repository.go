package gift

import (
	"time"

	"github.com/FelixBrandt/GiftMile/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the DB operations used by the gift service. The
// idempotency-critical operations (conditional insert, bulk claim, CAS
// transition) live here so their atomicity is a data-layer property.
type Repository interface {
	GetAppSetting(shop string) (*models.AppSetting, error)
	SaveAppSetting(s *models.AppSetting) error
	GetGiftSetting(shop string) (*models.GiftSetting, error)
	SaveGiftSetting(s *models.GiftSetting) error
	ListEnabledShops() ([]string, error)

	ReplaceSnapshots(shop string, rows []models.SubscriberSnapshot) error
	ListSnapshots(shop string) ([]models.SubscriberSnapshot, error)
	GetSnapshotByCustomer(shop, customerID, email string) (*models.SubscriberSnapshot, error)

	CreateSyncLog(l *models.SyncLog) error
	ListSyncLogs(shop string, limit int) ([]models.SyncLog, error)

	CreateEligibilityIfNotExists(e *models.GiftEligibility) (bool, error)
	ListEligibilities(shop string) ([]models.GiftEligibility, error)
	GetEligibilityByID(id uint) (*models.GiftEligibility, error)
	GetEligibilityByToken(token string) (*models.GiftEligibility, error)

	ClaimDispatchable(shop string, createdBefore, now time.Time) ([]models.GiftEligibility, error)
	MarkEmailFailed(id uint) error

	ClaimForSelection(token string, now time.Time) (bool, error)
	ReopenStrandedSelection(id uint) (bool, error)
	CreateSelections(sels []models.GiftSelection) error
	ListSelections(eligibilityID uint) ([]models.GiftSelection, error)
	DeleteSelections(eligibilityID uint) error
	MarkSelectionApplied(id uint, upstreamLineID string) error
	MarkEligibilityApplied(id uint, now time.Time) error
	ResetEligibility(id uint) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a gift repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetAppSetting(shop string) (*models.AppSetting, error) {
	var s models.AppSetting
	if err := r.db.Where("shop = ?", shop).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) SaveAppSetting(s *models.AppSetting) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shop"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"api_key",
			"api_base_url",
			"updated_at",
		}),
	}).Create(s).Error; err != nil {
		return err
	}
	return r.db.Where("shop = ?", s.Shop).First(s).Error
}

func (r *gormRepository) GetGiftSetting(shop string) (*models.GiftSetting, error) {
	var s models.GiftSetting
	if err := r.db.Where("shop = ?", shop).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) SaveGiftSetting(s *models.GiftSetting) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shop"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled",
			"trigger_order_counts",
			"max_gift_products",
			"gift_expiry_days",
			"email_delay_days",
			"eligible_product_ids",
			"email_subject",
			"updated_at",
		}),
	}).Create(s).Error; err != nil {
		return err
	}
	return r.db.Where("shop = ?", s.Shop).First(s).Error
}

func (r *gormRepository) ListEnabledShops() ([]string, error) {
	var shops []string
	err := r.db.Model(&models.GiftSetting{}).
		Where("enabled = ?", true).
		Order("shop").
		Pluck("shop", &shops).Error
	return shops, err
}

// ReplaceSnapshots performs the full delete-then-insert replacement of a
// shop's snapshot inside one transaction. A crash mid-replace self-heals on
// the next cycle.
func (r *gormRepository) ReplaceSnapshots(shop string, rows []models.SubscriberSnapshot) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("shop = ?", shop).Delete(&models.SubscriberSnapshot{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 200).Error
	})
}

func (r *gormRepository) ListSnapshots(shop string) ([]models.SubscriberSnapshot, error) {
	var rows []models.SubscriberSnapshot
	err := r.db.Where("shop = ?", shop).Find(&rows).Error
	return rows, err
}

func (r *gormRepository) GetSnapshotByCustomer(shop, customerID, email string) (*models.SubscriberSnapshot, error) {
	var row models.SubscriberSnapshot
	q := r.db.Where("shop = ?", shop)
	if customerID != "" {
		q = q.Where("customer_id = ?", customerID)
	} else {
		q = q.Where("email = ?", email)
	}
	if err := q.First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *gormRepository) CreateSyncLog(l *models.SyncLog) error {
	return r.db.Create(l).Error
}

func (r *gormRepository) ListSyncLogs(shop string, limit int) ([]models.SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.SyncLog
	err := r.db.Where("shop = ?", shop).Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// CreateEligibilityIfNotExists inserts the row only when no eligibility for
// the same (shop, contract, threshold) exists. The unique index turns the
// check-then-create race into a clean no-op for the loser.
func (r *gormRepository) CreateEligibilityIfNotExists(e *models.GiftEligibility) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "shop"},
			{Name: "contract_id"},
			{Name: "trigger_threshold"},
		},
		DoNothing: true,
	}).Create(e)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ListEligibilities(shop string) ([]models.GiftEligibility, error) {
	var rows []models.GiftEligibility
	err := r.db.Preload("Selections").Where("shop = ?", shop).Order("id DESC").Find(&rows).Error
	return rows, err
}

func (r *gormRepository) GetEligibilityByID(id uint) (*models.GiftEligibility, error) {
	var e models.GiftEligibility
	if err := r.db.Preload("Selections").First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormRepository) GetEligibilityByToken(token string) (*models.GiftEligibility, error) {
	var e models.GiftEligibility
	if err := r.db.Where("token = ?", token).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// ClaimDispatchable selects every eligibility matching the dispatch predicate
// and transitions all of them to email_sent before returning. Rows are locked
// for the duration of the transaction, so an overlapping dispatch cycle
// observes either unclaimed or already-claimed rows, never a half state.
func (r *gormRepository) ClaimDispatchable(shop string, createdBefore, now time.Time) ([]models.GiftEligibility, error) {
	var claimed []models.GiftEligibility
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("shop = ? AND status = ? AND email_sent_at IS NULL AND created_at <= ? AND expires_at > ?",
				shop, models.GiftStatusPending, createdBefore, now).
			Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		ids := make([]uint, len(claimed))
		for i := range claimed {
			ids[i] = claimed[i].ID
		}
		return tx.Model(&models.GiftEligibility{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":        models.GiftStatusEmailSent,
				"email_sent_at": &now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	for i := range claimed {
		claimed[i].Status = models.GiftStatusEmailSent
		claimed[i].EmailSentAt = &now
	}
	return claimed, nil
}

func (r *gormRepository) MarkEmailFailed(id uint) error {
	return r.db.Model(&models.GiftEligibility{}).
		Where("id = ?", id).
		Update("status", models.GiftStatusEmailFailed).Error
}

// ClaimForSelection is the compare-and-swap that closes the concurrent
// redemption race: only one caller can move the row into selected.
func (r *gormRepository) ClaimForSelection(token string, now time.Time) (bool, error) {
	res := r.db.Model(&models.GiftEligibility{}).
		Where("token = ? AND status IN ? AND expires_at > ?",
			token,
			[]string{models.GiftStatusPending, models.GiftStatusEmailSent, models.GiftStatusEmailFailed},
			now).
		Updates(map[string]interface{}{
			"status":      models.GiftStatusSelected,
			"selected_at": &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReopenStrandedSelection returns a fully failed redemption to a redeemable
// state so the customer can try again. The single conditional UPDATE makes
// concurrent retries single-winner; the loser sees 0 rows affected. The row
// passes through email_failed, which the dispatch claim never matches.
func (r *gormRepository) ReopenStrandedSelection(id uint) (bool, error) {
	res := r.db.Model(&models.GiftEligibility{}).
		Where("id = ? AND status = ?", id, models.GiftStatusSelected).
		Updates(map[string]interface{}{
			"status":      models.GiftStatusEmailFailed,
			"selected_at": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) CreateSelections(sels []models.GiftSelection) error {
	if len(sels) == 0 {
		return nil
	}
	return r.db.Create(&sels).Error
}

func (r *gormRepository) ListSelections(eligibilityID uint) ([]models.GiftSelection, error) {
	var rows []models.GiftSelection
	err := r.db.Where("eligibility_id = ?", eligibilityID).Find(&rows).Error
	return rows, err
}

func (r *gormRepository) DeleteSelections(eligibilityID uint) error {
	return r.db.Where("eligibility_id = ?", eligibilityID).Delete(&models.GiftSelection{}).Error
}

func (r *gormRepository) MarkSelectionApplied(id uint, upstreamLineID string) error {
	return r.db.Model(&models.GiftSelection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"added_to_subscription": true,
			"upstream_line_id":      upstreamLineID,
		}).Error
}

func (r *gormRepository) MarkEligibilityApplied(id uint, now time.Time) error {
	return r.db.Model(&models.GiftEligibility{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.GiftStatusApplied,
			"applied_at": &now,
		}).Error
}

// ResetEligibility is the operator do-over: selections removed, status back
// to pending, all progress timestamps cleared. The token survives so an
// already-delivered link keeps working.
func (r *gormRepository) ResetEligibility(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("eligibility_id = ?", id).Delete(&models.GiftSelection{}).Error; err != nil {
			return err
		}
		return tx.Model(&models.GiftEligibility{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":        models.GiftStatusPending,
				"email_sent_at": nil,
				"selected_at":   nil,
				"applied_at":    nil,
			}).Error
	})
}
