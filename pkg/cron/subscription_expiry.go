package cron

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"orderform_backend/internal/billing"
)

// InitSubscriptionExpiryCron stamps rows whose expiry date has passed once a
// day. The entitlement read path already heals these lazily; the sweep only
// keeps the history tidy for shops nobody reads. It never calls out to the
// platform.
func InitSubscriptionExpiryCron(repo *billing.Repository) {
	c := cron.New()

	_, err := c.AddFunc("0 9 * * *", func() {
		sweepExpiredSubscriptions(repo)
	})

	if err != nil {
		log.Printf("Could not initialize subscription expiry cron: %v", err)
		return
	}

	c.Start()
}

func sweepExpiredSubscriptions(repo *billing.Repository) {
	log.Println("Checking for expired subscriptions...")

	subs, err := repo.ExpiredBillableRows(time.Now())
	if err != nil {
		log.Printf("Error fetching expired subscriptions: %v", err)
		return
	}

	log.Printf("Found %d expired subscriptions", len(subs))

	for i := range subs {
		if err := repo.ExpireSubscription(&subs[i]); err != nil {
			log.Printf("Error expiring subscription %s: %v", subs[i].ChargeID, err)
		}
	}
}
