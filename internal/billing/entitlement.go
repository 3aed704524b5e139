package billing

import (
	"context"
	"errors"
	"log"
	"time"

	"orderform_backend/internal/model"
	"orderform_backend/pkg/plan"
	"orderform_backend/pkg/shopify"
)

// Entitlement is the derived view of what a shop is currently allowed to do.
// It is computed on every read, never stored.
type Entitlement struct {
	PlanType        plan.Type  `json:"plan_type"`
	OrderCount      int        `json:"order_count"`
	OrderLimit      int        `json:"order_limit"`
	IsUnlimited     bool       `json:"is_unlimited"`
	PlanExpiresAt   *time.Time `json:"plan_expires_at"`
	IsExpired       bool       `json:"is_expired"`
	UpgradePriceUSD float64    `json:"upgrade_price_usd"`
}

// CanCreateOrder applies the quota rule: free shops stop at the order limit,
// paid shops are unlimited.
func (e *Entitlement) CanCreateOrder() bool {
	if e.IsUnlimited {
		return true
	}
	return e.OrderCount < e.OrderLimit
}

// OrderCounter is the slice of the platform client the resolver needs.
type OrderCounter interface {
	CountTaggedOrders(ctx context.Context, shopDomain, token, tag string, since time.Time) (int, error)
}

type Resolver struct {
	repo     *Repository
	orders   OrderCounter
	orderTag string
}

func NewResolver(repo *Repository, orders OrderCounter, orderTag string) *Resolver {
	return &Resolver{repo: repo, orders: orders, orderTag: orderTag}
}

// ResolveEntitlement derives the shop's current entitlement from its
// subscription projection and this month's usage.
//
// The read is self-healing: a subscription whose expiry has passed is stamped
// EXPIRED and the plan cache dropped to free right here, so staleness never
// needs a background sweep to be observable. A second call finds the state
// already corrected and mutates nothing.
func (r *Resolver) ResolveEntitlement(ctx context.Context, shopDomain string) (*Entitlement, error) {
	shop, err := r.repo.ShopByDomain(shopDomain)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, ErrUnknownShop
	}
	return r.resolveForShop(ctx, shop)
}

func (r *Resolver) resolveForShop(ctx context.Context, shop *model.Shop) (*Entitlement, error) {
	now := time.Now()

	sub, err := r.repo.CurrentSubscription(shop.ID)
	if err != nil {
		return nil, err
	}

	planType := plan.Free
	var expiresAt *time.Time
	isExpired := false

	if sub != nil {
		expiresAt = sub.ExpiresAt
		if sub.ExpiresAt != nil && sub.ExpiresAt.Before(now) {
			isExpired = true
			if err := r.repo.ExpireSubscription(sub); err != nil {
				return nil, err
			}
			shop.Plan = model.PlanFree
		} else {
			planType = plan.Paid
		}
	}

	// A cached paid tier with nothing billable behind it is stale.
	if planType == plan.Free && shop.Plan == model.PlanPaid {
		if err := r.repo.DowngradePlanCache(shop); err != nil {
			return nil, err
		}
	}

	limits := plan.GetLimits(planType)

	entitlement := &Entitlement{
		PlanType:        planType,
		OrderLimit:      limits.OrderLimit,
		IsUnlimited:     limits.IsUnlimited,
		PlanExpiresAt:   expiresAt,
		IsExpired:       isExpired,
		UpgradePriceUSD: plan.PaidPriceUSD,
	}

	entitlement.OrderCount = r.monthlyUsage(ctx, shop, now)
	return entitlement, nil
}

// monthlyUsage counts this month's tagged orders. A partial count is used
// as-is and any other counter failure degrades to zero: usage reporting
// never blocks the quota decision.
func (r *Resolver) monthlyUsage(ctx context.Context, shop *model.Shop, now time.Time) int {
	if !shop.Installed() {
		return 0
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	count, err := r.orders.CountTaggedOrders(ctx, shop.Domain, shop.AccessToken, r.orderTag, monthStart)
	if err != nil {
		if errors.Is(err, shopify.ErrPartialCount) {
			log.Printf("Partial order count for %s: using lower bound %d", shop.Domain, count)
			return count
		}
		log.Printf("Could not count orders for %s: %v", shop.Domain, err)
		return 0
	}
	return count
}
