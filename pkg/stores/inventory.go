package stores

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ReplaceRegions replaces the full region set in one transaction. The
// visible state is always either the previous fetch or the new one,
// never a mix.
func (s *InventoryStore) ReplaceRegions(ctx context.Context, regions []Region) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM regions`); err != nil {
		return fmt.Errorf("failed to clear regions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO regions (region, region_name, region_state, updated_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare region insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range regions {
		if _, err := stmt.ExecContext(ctx, r.Region, r.Name, r.State, now); err != nil {
			return fmt.Errorf("failed to insert region %s: %w", r.Region, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit region replace: %w", err)
	}
	return nil
}

// ReplaceZones replaces the zone rows belonging to one region. Zones of
// other regions are untouched.
func (s *InventoryStore) ReplaceZones(ctx context.Context, region string, zones []Zone) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM zones WHERE region = ?`, region); err != nil {
		return fmt.Errorf("failed to clear zones for region %s: %w", region, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO zones (zone, region, zone_name, zone_state, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare zone insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, z := range zones {
		if _, err := stmt.ExecContext(ctx, z.Zone, region, z.Name, z.State, now); err != nil {
			return fmt.Errorf("failed to insert zone %s: %w", z.Zone, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit zone replace for region %s: %w", region, err)
	}
	return nil
}

// ReplacePublicImages replaces the public-image rows belonging to one
// region. Private and custom image rows, and other regions, are untouched.
func (s *InventoryStore) ReplacePublicImages(ctx context.Context, region string, images []Image) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM images WHERE region = ? AND image_type = ?`, region, PublicImageType); err != nil {
		return fmt.Errorf("failed to clear public images for region %s: %w", region, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO images (image_id, image_name, image_type, platform, region, created_time, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare image insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, img := range images {
		if _, err := stmt.ExecContext(ctx,
			img.ImageID, img.Name, PublicImageType, img.Platform, region, img.CreatedTime, now); err != nil {
			return fmt.Errorf("failed to insert image %s: %w", img.ImageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit image replace for region %s: %w", region, err)
	}
	return nil
}

// MarkInstancesStale flags every fresh instance row as stale. Rows
// re-observed during the following pagination pass get the flag cleared
// by the upsert; whatever is still flagged afterwards no longer exists
// remotely. It returns the number of rows flagged.
func (s *InventoryStore) MarkInstancesStale(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE instances SET stale = 1, updated_at = ? WHERE stale = 0`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to mark instances stale: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// UpsertInstances writes one fetched page of instances in a single
// transaction. Existing rows are updated in place by instance ID and
// unflagged; rows are never deleted here, so instance IDs held by the
// controller stay stable across refreshes.
func (s *InventoryStore) UpsertInstances(ctx context.Context, region string, instances []Instance) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO instances (
			instance_id, instance_name, status, stale, region, zone,
			instance_type, image_id, cpu, memory, private_ip, public_ip,
			created_time, updated_at
		) VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			instance_name = excluded.instance_name,
			status = excluded.status,
			stale = 0,
			zone = excluded.zone,
			instance_type = excluded.instance_type,
			image_id = excluded.image_id,
			cpu = excluded.cpu,
			memory = excluded.memory,
			private_ip = excluded.private_ip,
			public_ip = excluded.public_ip,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare instance upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, inst := range instances {
		if _, err := stmt.ExecContext(ctx,
			inst.InstanceID, inst.Name, inst.Status, region, inst.Zone,
			inst.InstanceType, inst.ImageID, inst.CPU, inst.Memory,
			inst.PrivateIP, inst.PublicIP, inst.CreatedTime, now); err != nil {
			return fmt.Errorf("failed to upsert instance %s: %w", inst.InstanceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit instance page: %w", err)
	}
	return nil
}

// ListRegions returns every cached region.
func (s *InventoryStore) ListRegions(ctx context.Context) ([]*Region, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT region, region_name, region_state, updated_at
		FROM regions
		ORDER BY region ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	defer rows.Close()

	regions := []*Region{}
	for rows.Next() {
		r := &Region{}
		if err := rows.Scan(&r.Region, &r.Name, &r.State, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		regions = append(regions, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating regions: %w", err)
	}
	return regions, nil
}

// ListZones returns the cached zones of one region.
func (s *InventoryStore) ListZones(ctx context.Context, region string) ([]*Zone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT zone, region, zone_name, zone_state, updated_at
		FROM zones
		WHERE region = ?
		ORDER BY zone ASC
	`, region)
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	defer rows.Close()

	zones := []*Zone{}
	for rows.Next() {
		z := &Zone{}
		if err := rows.Scan(&z.Zone, &z.Region, &z.Name, &z.State, &z.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		zones = append(zones, z)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating zones: %w", err)
	}
	return zones, nil
}

// ListPublicImages returns the cached public images of one region.
func (s *InventoryStore) ListPublicImages(ctx context.Context, region string) ([]*Image, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT image_id, image_name, image_type, platform, region, created_time, updated_at
		FROM images
		WHERE region = ? AND image_type = ?
		ORDER BY image_id ASC
	`, region, PublicImageType)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	images := []*Image{}
	for rows.Next() {
		img := &Image{}
		if err := rows.Scan(&img.ImageID, &img.Name, &img.ImageType, &img.Platform,
			&img.Region, &img.CreatedTime, &img.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating images: %w", err)
	}
	return images, nil
}

// ListInstances returns every cached instance, stale rows included.
func (s *InventoryStore) ListInstances(ctx context.Context) ([]*Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_id, instance_name, status, stale, region, zone,
		       instance_type, image_id, cpu, memory, private_ip, public_ip,
		       created_time, updated_at
		FROM instances
		ORDER BY instance_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	instances := []*Instance{}
	for rows.Next() {
		inst := &Instance{}
		if err := rows.Scan(&inst.InstanceID, &inst.Name, &inst.Status, &inst.Stale,
			&inst.Region, &inst.Zone, &inst.InstanceType, &inst.ImageID,
			&inst.CPU, &inst.Memory, &inst.PrivateIP, &inst.PublicIP,
			&inst.CreatedTime, &inst.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}
	return instances, nil
}

// GetInstance retrieves one instance by ID.
func (s *InventoryStore) GetInstance(ctx context.Context, id string) (*Instance, error) {
	inst := &Instance{}
	err := s.db.QueryRowContext(ctx, `
		SELECT instance_id, instance_name, status, stale, region, zone,
		       instance_type, image_id, cpu, memory, private_ip, public_ip,
		       created_time, updated_at
		FROM instances
		WHERE instance_id = ?
	`, id).Scan(&inst.InstanceID, &inst.Name, &inst.Status, &inst.Stale,
		&inst.Region, &inst.Zone, &inst.InstanceType, &inst.ImageID,
		&inst.CPU, &inst.Memory, &inst.PrivateIP, &inst.PublicIP,
		&inst.CreatedTime, &inst.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("instance not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return inst, nil
}
