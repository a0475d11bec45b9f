// Package syncer orchestrates the full preload: region discovery, bounded
// per-region fan-out of zone and image refreshes, and the paginated
// instance reconciliation against the local mirror.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/piwi3910/cvmsync/pkg/cloud"
	"github.com/piwi3910/cvmsync/pkg/stores"
	"github.com/piwi3910/cvmsync/pkg/telemetry"
)

// Options tune one preload run. Zero values fall back to the defaults the
// provider API tolerates well.
type Options struct {
	// Concurrency bounds the per-region fan-out workers.
	Concurrency int

	// ImagePageSize bounds one public-image listing call.
	ImagePageSize int64

	// InstancePageSize is the instance pagination page size.
	InstancePageSize int64
}

const (
	defaultConcurrency      = 10
	defaultImagePageSize    = 60
	defaultInstancePageSize = 100
)

// Syncer runs full preloads against the local mirror. Each preload opens
// its own store handle, so a Syncer itself holds no database state between
// runs.
type Syncer struct {
	storeCfg stores.Config
	factory  cloud.Factory
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	opts     Options
}

// New creates a Syncer writing to the store described by storeCfg and
// fetching through clients built by factory.
func New(storeCfg stores.Config, factory cloud.Factory, logger *telemetry.Logger, metrics *telemetry.Metrics, tracer *telemetry.Tracer, opts Options) *Syncer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.ImagePageSize <= 0 {
		opts.ImagePageSize = defaultImagePageSize
	}
	if opts.InstancePageSize <= 0 {
		opts.InstancePageSize = defaultInstancePageSize
	}

	return &Syncer{
		storeCfg: storeCfg,
		factory:  factory,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		opts:     opts,
	}
}

// Preload performs one full inventory refresh. Region discovery and the
// instance reconciliation are fatal on error; everything in between only
// degrades freshness of its own scope and is reported through the Report.
func (s *Syncer) Preload(ctx context.Context, creds cloud.Credentials, defaultRegion string) (*Report, error) {
	started := time.Now()
	report := &Report{
		RunID:         uuid.NewString(),
		DefaultRegion: defaultRegion,
	}

	logger := s.logger.WithRunID(report.RunID)
	s.metrics.PreloadStarted()

	ctx, span := s.tracer.StartPreloadSpan(ctx, report.RunID, defaultRegion)
	defer span.End()

	err := s.preload(ctx, logger, report, creds, defaultRegion)
	report.Duration = time.Since(started)
	s.metrics.PreloadCompleted(err == nil, report.Duration)

	if err != nil {
		telemetry.RecordError(span, err)
		logger.WithError(err).Error("preload failed")
		return report, err
	}

	telemetry.RecordSuccess(span)
	logger.Infof("preload finished: %s", report.Summary())
	return report, nil
}

func (s *Syncer) preload(ctx context.Context, logger *telemetry.Logger, report *Report, creds cloud.Credentials, defaultRegion string) error {
	store, err := stores.NewInventoryStore(s.storeCfg)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	client, err := s.factory.New(creds, defaultRegion)
	if err != nil {
		return fmt.Errorf("failed to create client for region %s: %w", defaultRegion, err)
	}

	// Regions are foundational: nothing downstream is meaningful without
	// them, so this fetch is the first fatal step.
	regions, err := client.DescribeRegions(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch regions: %w", err)
	}
	report.RegionCount = len(regions)
	s.metrics.RegionsDiscovered(len(regions))

	s.replaceRegions(ctx, logger, report, store, regions)
	s.fanOut(ctx, logger, report, store, creds, regions)

	if err := s.syncInstances(ctx, logger, report, store, client, defaultRegion); err != nil {
		return fmt.Errorf("instance sync failed: %w", err)
	}
	return nil
}

// replaceRegions refreshes the region table. Best effort: a failure here
// leaves the previous region set in place and degrades freshness only.
func (s *Syncer) replaceRegions(ctx context.Context, logger *telemetry.Logger, report *Report, store *stores.InventoryStore, regions []cloud.RegionInfo) {
	rows := make([]stores.Region, 0, len(regions))
	for _, r := range regions {
		rows = append(rows, stores.Region{
			Region: r.Region,
			Name:   r.Name,
			State:  r.State,
		})
	}

	if err := store.ReplaceRegions(ctx, rows); err != nil {
		report.addScope(ScopeResult{Kind: ScopeRegions, Err: err})
		s.metrics.ScopeSyncFailed(string(ScopeRegions))
		logger.WithError(err).Warn("region replace failed, keeping previous region set")
		return
	}
	report.addScope(ScopeResult{Kind: ScopeRegions, Count: len(rows)})
}

// fanOut refreshes zones and public images for every discovered region
// under the concurrency bound. Worker failures never cross this barrier.
func (s *Syncer) fanOut(ctx context.Context, logger *telemetry.Logger, report *Report, store *stores.InventoryStore, creds cloud.Credentials, regions []cloud.RegionInfo) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.opts.Concurrency)

	for _, region := range regions {
		if region.Region == "" {
			continue
		}
		wg.Add(1)
		go func(regionID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			s.syncRegion(ctx, logger.WithRegion(regionID), report, store, creds, regionID)
		}(region.Region)
	}

	wg.Wait()
}

// syncInstances reconciles the instance table for one region: flag every
// fresh row stale, then upsert pages in offset order until a short or
// empty page. A full final page triggers one more fetch that comes back
// empty; that is the termination rule. Any fetch error is fatal to the
// whole preload.
func (s *Syncer) syncInstances(ctx context.Context, logger *telemetry.Logger, report *Report, store *stores.InventoryStore, client cloud.Client, region string) error {
	marked, err := store.MarkInstancesStale(ctx)
	if err != nil {
		return err
	}
	report.StaleMarked = marked
	s.metrics.InstancesMarkedStale(marked)

	limit := s.opts.InstancePageSize
	var offset int64
	for {
		page, err := client.DescribeInstances(ctx, offset, limit)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		rows := make([]stores.Instance, 0, len(page))
		for _, inst := range page {
			rows = append(rows, stores.Instance{
				InstanceID:   inst.InstanceID,
				Name:         inst.Name,
				Status:       inst.Status,
				Region:       region,
				Zone:         inst.Zone,
				InstanceType: inst.InstanceType,
				ImageID:      inst.ImageID,
				CPU:          inst.CPU,
				Memory:       inst.Memory,
				PrivateIP:    inst.PrivateIP,
				PublicIP:     inst.PublicIP,
				CreatedTime:  inst.CreatedTime,
			})
		}

		if err := store.UpsertInstances(ctx, region, rows); err != nil {
			return err
		}

		report.InstancePages++
		report.InstanceCount += len(rows)
		s.metrics.InstancePageFetched(len(rows))

		if int64(len(page)) < limit {
			break
		}
		offset += limit
	}

	logger.Infof("instance sync finished: %d pages, %d instances", report.InstancePages, report.InstanceCount)
	return nil
}
