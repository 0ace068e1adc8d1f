package invalidation

import (
	"context"
	"time"

	"github.com/l0p7/purgectl/internal/invalidation/cdn"
	"github.com/l0p7/purgectl/internal/metrics"
)

// ListRecentInvalidations returns the CDN's recent invalidations for the
// configured distribution, unmodified.
func (d *Dispatcher) ListRecentInvalidations(ctx context.Context) ([]cdn.Invalidation, error) {
	distribution := d.config.DistributionID()
	if distribution == "" {
		return nil, ErrNoDistribution
	}
	start := time.Now()
	items, err := d.client.ListInvalidations(ctx, distribution)
	d.metrics.ObserveCDN(metrics.CDNOperationList, err, time.Since(start))
	return items, err
}
