package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orderform_backend/internal/model"
)

// ErrUnknownShop marks a shop reference with no local match. Webhook handlers
// acknowledge it as success so the platform stops redelivering.
var ErrUnknownShop = errors.New("unknown shop")

// SubscriptionEvent is the normalized payload both reconciliation writers
// (webhook and confirm redirect) funnel into the same upsert.
type SubscriptionEvent struct {
	// ChargeID as delivered, either legacy numeric or global id form.
	ChargeID     string
	Status       string
	Price        float64
	CurrencyCode string
	BillingCycle string
	StartedAt    *time.Time
	// ExpiresAt applies only when ExpiresAtKnown is true. Webhook payloads
	// know the expiry (nil there means recurring, never expires); REST
	// charge lookups carry no expiry data at all and must not wipe one a
	// webhook already recorded.
	ExpiresAt      *time.Time
	ExpiresAtKnown bool
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ResolveShop looks a shop up by its platform id, falling back to the domain
// for shops created before the platform id was captured. A shop that does not
// resolve returns (nil, nil), never an error.
func (r *Repository) ResolveShop(shopifyID int64, domain string) (*model.Shop, error) {
	var shop model.Shop
	if shopifyID != 0 {
		err := r.db.Where("shopify_id = ?", shopifyID).First(&shop).Error
		if err == nil {
			return &shop, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if domain == "" {
		return nil, nil
	}
	err := r.db.Where("domain = ?", domain).First(&shop).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *Repository) ShopByDomain(domain string) (*model.Shop, error) {
	return r.ResolveShop(0, domain)
}

// UpsertSubscription applies one sighting of a charge to the projection.
// Repeating it, or interleaving it with a concurrent sighting of the same
// charge, converges on the same row:
//
//   - the lookup matches both the canonical and the previously stored raw id,
//     so the two writers (webhook payloads and REST charge lookups) hit the
//     same row whatever id encoding they deliver;
//   - the insert is insert-or-nothing on the canonical id, so two
//     first-sightings cannot race into duplicate rows; the loser falls back
//     to merging into the winner's row;
//   - the merge is monotone over the status ranks: a replayed PENDING cannot
//     demote an active row, and terminal statuses absorb everything, so a
//     late activation event cannot resurrect a cancelled charge.
func (r *Repository) UpsertSubscription(shop *model.Shop, event SubscriptionEvent) error {
	canonical := model.NormalizeChargeID(event.ChargeID)
	event.Status = model.NormalizeStatus(event.Status)

	return r.db.Transaction(func(tx *gorm.DB) error {
		merged, err := mergeIntoExisting(tx, canonical, event)
		if err != nil {
			return err
		}

		if !merged {
			row := model.ShopSubscription{
				ShopID:       shop.ID,
				ChargeID:     canonical,
				RawChargeID:  event.ChargeID,
				Status:       event.Status,
				Price:        event.Price,
				CurrencyCode: event.CurrencyCode,
				BillingCycle: event.BillingCycle,
				StartedAt:    event.StartedAt,
				ExpiresAt:    event.ExpiresAt,
			}
			if model.IsCancelledFamily(event.Status) {
				now := time.Now()
				row.CancelledAt = &now
			}

			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "charge_id"}},
				DoNothing: true,
			}).Create(&row)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				// Lost the first-sighting race; merge into the winner's row.
				if _, err := mergeIntoExisting(tx, canonical, event); err != nil {
					return err
				}
			}
		}

		return r.refreshPlanCache(tx, shop)
	})
}

// mergeIntoExisting updates the row for this charge in place, if one exists.
// An event ranked below the row's current status is a no-op: PENDING only
// takes effect on insert, and a terminal row is left untouched, so event
// replays and reorderings converge.
func mergeIntoExisting(tx *gorm.DB, canonical string, event SubscriptionEvent) (bool, error) {
	var existing model.ShopSubscription
	err := tx.Where("charge_id = ? OR raw_charge_id = ?", canonical, event.ChargeID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if model.StatusRank(event.Status) < model.StatusRank(existing.Status) {
		return true, nil
	}

	existing.Status = event.Status
	if event.Price != 0 {
		existing.Price = event.Price
	}
	if event.CurrencyCode != "" {
		existing.CurrencyCode = event.CurrencyCode
	}
	if event.BillingCycle != "" {
		existing.BillingCycle = event.BillingCycle
	}
	if event.StartedAt != nil {
		existing.StartedAt = event.StartedAt
	}
	if event.ExpiresAtKnown {
		existing.ExpiresAt = event.ExpiresAt
	}
	if model.IsCancelledFamily(event.Status) && existing.CancelledAt == nil {
		now := time.Now()
		existing.CancelledAt = &now
	}
	if err := tx.Save(&existing).Error; err != nil {
		return true, err
	}
	return true, nil
}

// refreshPlanCache recomputes the shop's denormalized plan tier. A shop with
// no access token never becomes paid, whatever the projection says.
func (r *Repository) refreshPlanCache(tx *gorm.DB, shop *model.Shop) error {
	current, err := currentSubscription(tx, shop.ID)
	if err != nil {
		return err
	}

	planName := model.PlanFree
	if current != nil && current.Billable(time.Now()) && shop.Installed() {
		planName = model.PlanPaid
	}
	if shop.Plan == planName {
		return nil
	}
	shop.Plan = planName
	return tx.Model(&model.Shop{}).Where("id = ?", shop.ID).
		Update("plan", planName).Error
}

// CurrentSubscription returns the most-recently-started row in the active set,
// or nil when the shop has none.
func (r *Repository) CurrentSubscription(shopID uint) (*model.ShopSubscription, error) {
	return currentSubscription(r.db, shopID)
}

func currentSubscription(tx *gorm.DB, shopID uint) (*model.ShopSubscription, error) {
	var sub model.ShopSubscription
	err := tx.Where("shop_id = ? AND status IN ?", shopID,
		[]string{model.StatusActive, model.StatusAccepted}).
		Order("started_at DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ExpireSubscription stamps a row whose expiry has passed and drops the
// shop's plan cache back to free, in one transaction. Safe to repeat.
func (r *Repository) ExpireSubscription(sub *model.ShopSubscription) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		sub.Status = model.StatusExpired
		if sub.CancelledAt == nil {
			now := time.Now()
			sub.CancelledAt = &now
		}
		if err := tx.Save(sub).Error; err != nil {
			return err
		}
		return tx.Model(&model.Shop{}).Where("id = ?", sub.ShopID).
			Update("plan", model.PlanFree).Error
	})
}

// DowngradePlanCache writes the shop's cached tier back to free.
func (r *Repository) DowngradePlanCache(shop *model.Shop) error {
	shop.Plan = model.PlanFree
	return r.db.Model(&model.Shop{}).Where("id = ?", shop.ID).
		Update("plan", model.PlanFree).Error
}

// MarkUninstalled revokes the shop's access and cancels every subscription
// row, atomically. A stray webhook after this cannot resurrect the token.
func (r *Repository) MarkUninstalled(shop *model.Shop) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		err := tx.Model(&model.Shop{}).Where("id = ?", shop.ID).Updates(map[string]interface{}{
			"access_token":   "",
			"uninstalled_at": now,
			"plan":           model.PlanFree,
		}).Error
		if err != nil {
			return err
		}

		err = tx.Model(&model.ShopSubscription{}).
			Where("shop_id = ? AND cancelled_at IS NULL", shop.ID).
			Update("cancelled_at", now).Error
		if err != nil {
			return err
		}
		return tx.Model(&model.ShopSubscription{}).
			Where("shop_id = ?", shop.ID).
			Update("status", model.StatusCancelled).Error
	})
}

// PurgeShop hard-deletes every record the shop owns and the shop row itself,
// in one transaction. Called from the shop redact webhook.
func (r *Repository) PurgeShop(shop *model.Shop) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		owned := []interface{}{
			&model.Form{},
			&model.ShippingFee{},
			&model.OnboardingProgress{},
			&model.PixelCredential{},
			&model.ShopSubscription{},
		}
		for _, record := range owned {
			if err := tx.Unscoped().Where("shop_id = ?", shop.ID).Delete(record).Error; err != nil {
				return err
			}
		}
		return tx.Unscoped().Delete(&model.Shop{}, shop.ID).Error
	})
}

// ExpiredBillableRows lists active-set rows whose expiry is already past.
// Used by the daily sweep; the read path heals these lazily as well.
func (r *Repository) ExpiredBillableRows(now time.Time) ([]model.ShopSubscription, error) {
	var subs []model.ShopSubscription
	err := r.db.Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
		[]string{model.StatusActive, model.StatusAccepted}, now).
		Find(&subs).Error
	return subs, err
}
