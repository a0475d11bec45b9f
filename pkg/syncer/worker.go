package syncer

import (
	"context"

	"github.com/piwi3910/cvmsync/pkg/cloud"
	"github.com/piwi3910/cvmsync/pkg/stores"
	"github.com/piwi3910/cvmsync/pkg/telemetry"
)

// syncRegion refreshes one region's zones and public images. The two
// sub-steps are independent: a zone failure still attempts the image
// fetch. Errors stay inside this worker as recorded scope results; they
// never abort sibling regions or the preload.
func (s *Syncer) syncRegion(ctx context.Context, logger *telemetry.Logger, report *Report, store *stores.InventoryStore, creds cloud.Credentials, region string) {
	ctx, span := s.tracer.StartRegionSpan(ctx, region)
	defer span.End()

	client, err := s.factory.New(creds, region)
	if err != nil {
		report.addScope(ScopeResult{Region: region, Kind: ScopeZones, Err: err})
		report.addScope(ScopeResult{Region: region, Kind: ScopeImages, Err: err})
		s.metrics.ScopeSyncFailed(string(ScopeZones))
		s.metrics.ScopeSyncFailed(string(ScopeImages))
		telemetry.RecordError(span, err)
		logger.WithError(err).Warn("failed to create region client, skipping region")
		return
	}

	s.syncZones(ctx, logger, report, store, client, region)
	s.syncImages(ctx, logger, report, store, client, region)
}

func (s *Syncer) syncZones(ctx context.Context, logger *telemetry.Logger, report *Report, store *stores.InventoryStore, client cloud.Client, region string) {
	zones, err := client.DescribeZones(ctx)
	if err == nil {
		rows := make([]stores.Zone, 0, len(zones))
		for _, z := range zones {
			rows = append(rows, stores.Zone{
				Zone:   z.Zone,
				Region: region,
				Name:   z.Name,
				State:  z.State,
			})
		}
		err = store.ReplaceZones(ctx, region, rows)
		if err == nil {
			report.addScope(ScopeResult{Region: region, Kind: ScopeZones, Count: len(rows)})
			return
		}
	}

	report.addScope(ScopeResult{Region: region, Kind: ScopeZones, Err: err})
	s.metrics.ScopeSyncFailed(string(ScopeZones))
	logger.WithError(err).Warn("zone sync failed, keeping previous zones")
}

func (s *Syncer) syncImages(ctx context.Context, logger *telemetry.Logger, report *Report, store *stores.InventoryStore, client cloud.Client, region string) {
	images, err := client.DescribePublicImages(ctx, s.opts.ImagePageSize)
	if err == nil {
		rows := make([]stores.Image, 0, len(images))
		for _, img := range images {
			rows = append(rows, stores.Image{
				ImageID:     img.ImageID,
				Name:        img.Name,
				Platform:    img.Platform,
				Region:      region,
				CreatedTime: img.CreatedTime,
			})
		}
		err = store.ReplacePublicImages(ctx, region, rows)
		if err == nil {
			report.addScope(ScopeResult{Region: region, Kind: ScopeImages, Count: len(rows)})
			return
		}
	}

	report.addScope(ScopeResult{Region: region, Kind: ScopeImages, Err: err})
	s.metrics.ScopeSyncFailed(string(ScopeImages))
	logger.WithError(err).Warn("image sync failed, keeping previous images")
}
