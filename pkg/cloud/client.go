package cloud

import "context"

// Client is the read-only slice of the provider API the sync engine
// consumes. Implementations are scoped to a single credential pair and a
// single region; cross-region work constructs one client per region via a
// Factory.
type Client interface {
	// DescribeRegions lists every region visible to the credential pair.
	DescribeRegions(ctx context.Context) ([]RegionInfo, error)

	// DescribeZones lists the availability zones of the client's region.
	DescribeZones(ctx context.Context) ([]ZoneInfo, error)

	// DescribePublicImages lists provider-curated public images in the
	// client's region, bounded to limit results.
	DescribePublicImages(ctx context.Context, limit int64) ([]ImageInfo, error)

	// DescribeInstances lists a page of instances in the client's region,
	// ordered by the provider, starting at offset.
	DescribeInstances(ctx context.Context, offset, limit int64) ([]InstanceInfo, error)
}

// Factory builds a Client for a credential pair and region. The syncer
// holds a Factory so tests can substitute fakes for the real SDK.
type Factory interface {
	New(creds Credentials, region string) (Client, error)
}
