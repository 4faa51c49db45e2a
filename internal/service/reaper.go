package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunReferralReaper purges expired referral codes every interval until ctx
// is done. Expiry is enforced on claim, so the reaper only reclaims space.
func RunReferralReaper(ctx context.Context, referrals *ReferralService, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := referrals.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Referral purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("Expired referral codes purged")
			}
		}
	}
}
