package stores

import (
	"context"
	"testing"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *InventoryStore {
	t.Helper()

	// A single connection: every pooled connection to :memory: would open
	// its own empty database.
	store, err := NewInventoryStore(Config{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewInventoryStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests that all inventory tables exist
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	tables := []string{"regions", "zones", "images", "instances"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestReplaceRegions(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	first := []Region{
		{Region: "ap-beijing", Name: "Beijing", State: "AVAILABLE"},
		{Region: "ap-shanghai", Name: "Shanghai", State: "AVAILABLE"},
	}
	if err := store.ReplaceRegions(ctx, first); err != nil {
		t.Fatalf("failed to replace regions: %v", err)
	}

	regions, err := store.ListRegions(ctx)
	if err != nil {
		t.Fatalf("failed to list regions: %v", err)
	}
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(regions))
	}

	// A second replace must fully supersede the first set, no leftovers.
	second := []Region{
		{Region: "ap-guangzhou", Name: "Guangzhou", State: "AVAILABLE"},
	}
	if err := store.ReplaceRegions(ctx, second); err != nil {
		t.Fatalf("failed to replace regions again: %v", err)
	}

	regions, err = store.ListRegions(ctx)
	if err != nil {
		t.Fatalf("failed to list regions: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("expected 1 region after replace, got %d", len(regions))
	}
	if regions[0].Region != "ap-guangzhou" {
		t.Errorf("expected ap-guangzhou, got %s", regions[0].Region)
	}
	if regions[0].UpdatedAt == 0 {
		t.Error("expected updated_at to be stamped")
	}
}

func TestReplaceZonesScopedToRegion(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	if err := store.ReplaceZones(ctx, "ap-beijing", []Zone{
		{Zone: "ap-beijing-1", Name: "Beijing Zone 1", State: "AVAILABLE"},
		{Zone: "ap-beijing-2", Name: "Beijing Zone 2", State: "AVAILABLE"},
	}); err != nil {
		t.Fatalf("failed to replace beijing zones: %v", err)
	}
	if err := store.ReplaceZones(ctx, "ap-shanghai", []Zone{
		{Zone: "ap-shanghai-1", Name: "Shanghai Zone 1", State: "AVAILABLE"},
	}); err != nil {
		t.Fatalf("failed to replace shanghai zones: %v", err)
	}

	// Refreshing beijing must not touch shanghai rows.
	if err := store.ReplaceZones(ctx, "ap-beijing", []Zone{
		{Zone: "ap-beijing-3", Name: "Beijing Zone 3", State: "AVAILABLE"},
	}); err != nil {
		t.Fatalf("failed to refresh beijing zones: %v", err)
	}

	beijing, err := store.ListZones(ctx, "ap-beijing")
	if err != nil {
		t.Fatalf("failed to list beijing zones: %v", err)
	}
	if len(beijing) != 1 || beijing[0].Zone != "ap-beijing-3" {
		t.Errorf("expected only ap-beijing-3, got %+v", beijing)
	}

	shanghai, err := store.ListZones(ctx, "ap-shanghai")
	if err != nil {
		t.Fatalf("failed to list shanghai zones: %v", err)
	}
	if len(shanghai) != 1 || shanghai[0].Zone != "ap-shanghai-1" {
		t.Errorf("expected shanghai zones untouched, got %+v", shanghai)
	}
}

func TestReplacePublicImagesScopedToClass(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Seed a private image row directly; the engine never writes these but
	// the controller's tooling might, and a public refresh must not touch it.
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO images (image_id, image_name, image_type, platform, region, created_time, updated_at)
		VALUES ('img-private', 'custom', 'PRIVATE_IMAGE', 'CentOS', 'ap-beijing', '', 0)
	`)
	if err != nil {
		t.Fatalf("failed to seed private image: %v", err)
	}

	if err := store.ReplacePublicImages(ctx, "ap-beijing", []Image{
		{ImageID: "img-1", Name: "Ubuntu 22.04", Platform: "Ubuntu"},
	}); err != nil {
		t.Fatalf("failed to replace public images: %v", err)
	}

	public, err := store.ListPublicImages(ctx, "ap-beijing")
	if err != nil {
		t.Fatalf("failed to list public images: %v", err)
	}
	if len(public) != 1 || public[0].ImageID != "img-1" {
		t.Errorf("expected only img-1 public, got %+v", public)
	}
	if public[0].ImageType != PublicImageType {
		t.Errorf("expected image type %s, got %s", PublicImageType, public[0].ImageType)
	}

	var privateCount int
	err = store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM images WHERE image_type = 'PRIVATE_IMAGE'`).Scan(&privateCount)
	if err != nil {
		t.Fatalf("failed to count private images: %v", err)
	}
	if privateCount != 1 {
		t.Errorf("expected private image untouched, got %d rows", privateCount)
	}
}

func TestInstanceUpsertAndStaleness(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	if err := store.UpsertInstances(ctx, "ap-beijing", []Instance{
		{InstanceID: "ins-1", Name: "web-1", Status: "RUNNING"},
		{InstanceID: "ins-2", Name: "web-2", Status: "STOPPED"},
	}); err != nil {
		t.Fatalf("failed to upsert instances: %v", err)
	}

	marked, err := store.MarkInstancesStale(ctx)
	if err != nil {
		t.Fatalf("failed to mark stale: %v", err)
	}
	if marked != 2 {
		t.Errorf("expected 2 rows marked stale, got %d", marked)
	}

	// Re-observe only ins-1; ins-2 should stay flagged.
	if err := store.UpsertInstances(ctx, "ap-beijing", []Instance{
		{InstanceID: "ins-1", Name: "web-1", Status: "RUNNING"},
	}); err != nil {
		t.Fatalf("failed to upsert instances: %v", err)
	}

	ins1, err := store.GetInstance(ctx, "ins-1")
	if err != nil {
		t.Fatalf("failed to get ins-1: %v", err)
	}
	if ins1.Stale {
		t.Error("expected ins-1 to be fresh after upsert")
	}
	if ins1.Status != "RUNNING" {
		t.Errorf("expected status RUNNING, got %s", ins1.Status)
	}

	ins2, err := store.GetInstance(ctx, "ins-2")
	if err != nil {
		t.Fatalf("failed to get ins-2: %v", err)
	}
	if !ins2.Stale {
		t.Error("expected ins-2 to stay stale")
	}
	if ins2.Status != "STOPPED" {
		t.Errorf("expected stale row to keep its last status, got %s", ins2.Status)
	}

	// Marking again only touches fresh rows.
	marked, err = store.MarkInstancesStale(ctx)
	if err != nil {
		t.Fatalf("failed to mark stale again: %v", err)
	}
	if marked != 1 {
		t.Errorf("expected 1 row marked stale, got %d", marked)
	}
}

func TestInstanceUpsertNeverDeletes(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	if err := store.UpsertInstances(ctx, "ap-beijing", []Instance{
		{InstanceID: "ins-1", Name: "web-1", Status: "RUNNING", CPU: 2, Memory: 4},
	}); err != nil {
		t.Fatalf("failed to upsert instances: %v", err)
	}

	if err := store.UpsertInstances(ctx, "ap-beijing", []Instance{
		{InstanceID: "ins-1", Name: "web-1-renamed", Status: "STOPPED", CPU: 4, Memory: 8},
	}); err != nil {
		t.Fatalf("failed to upsert instances again: %v", err)
	}

	instances, err := store.ListInstances(ctx)
	if err != nil {
		t.Fatalf("failed to list instances: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("expected 1 instance row, got %d", len(instances))
	}

	inst := instances[0]
	if inst.Name != "web-1-renamed" {
		t.Errorf("expected updated name, got %s", inst.Name)
	}
	if inst.Status != "STOPPED" {
		t.Errorf("expected updated status, got %s", inst.Status)
	}
	if inst.CPU != 4 || inst.Memory != 8 {
		t.Errorf("expected updated sizing, got cpu=%d memory=%d", inst.CPU, inst.Memory)
	}
}

func TestGetInstanceNotFound(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	if _, err := store.GetInstance(context.Background(), "ins-missing"); err == nil {
		t.Fatal("expected error for missing instance")
	}
}
