// Copyright 2025 Lumina Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/MozillaSecurity/spotmanagerd/internal/model"
	"github.com/MozillaSecurity/spotmanagerd/internal/provider"
)

// SQLStore is the Postgres-backed Store. It expects the tables
// ec2spotmanager_pool, ec2spotmanager_poolconfiguration,
// ec2spotmanager_instance and ec2spotmanager_poolstatusentry to already
// exist; no schema for them is defined in this repo, which does not own
// migrations for the tables it shares with the rest of the fleet manager.
type SQLStore struct {
	db *sqlx.DB
}

// Open connects to Postgres via lib/pq and wraps the connection in sqlx.
func Open(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type poolRow struct {
	ID             int64          `db:"id"`
	Name           string         `db:"name"`
	Enabled        bool           `db:"isenabled"`
	LastCycled     sql.NullTime   `db:"last_cycled"`
	Size           int            `db:"size"`
	CycleSeconds   int64          `db:"cycle_interval_seconds"`
	AllowedRegions string         `db:"allowed_regions"` // json array
	InstanceTypes  string         `db:"instance_types"`  // json array
	MaxPricePerCore float64       `db:"max_price_per_core"`
	KeyName        string         `db:"key_name"`
	ImageName      string         `db:"image_name"`
	SecurityGroups string         `db:"security_groups"` // json array
	Tags           string         `db:"tags"`            // json object
	UserData       []byte         `db:"userdata"`
	UserDataMacros string         `db:"userdata_macros"` // json object
	RawConfig      string         `db:"raw_config"`      // json object
}

func (s *SQLStore) ListPoolIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM ec2spotmanager_pool ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("list pool ids: %w", err)
	}
	return ids, nil
}

func (s *SQLStore) GetPool(ctx context.Context, poolID int64) (*model.Pool, error) {
	var row poolRow
	err := s.db.GetContext(ctx, &row, `
		SELECT p.id, p.name, p.isenabled, p.last_cycled, c.size,
		       c.cycle_interval_seconds, c.allowed_regions, c.instance_types,
		       c.max_price_per_core, c.key_name, c.image_name,
		       c.security_groups, c.tags, c.userdata, c.userdata_macros, c.raw_config
		FROM ec2spotmanager_pool p
		JOIN ec2spotmanager_poolconfiguration c ON c.pool_id = p.id
		WHERE p.id = $1`, poolID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pool %d: %w", poolID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %d: %w", poolID, err)
	}
	return rowToPool(row)
}

func rowToPool(row poolRow) (*model.Pool, error) {
	cfg := model.Configuration{
		Size:            row.Size,
		CycleInterval:   time.Duration(row.CycleSeconds) * time.Second,
		MaxPricePerCore: row.MaxPricePerCore,
		KeyName:         row.KeyName,
		ImageName:       row.ImageName,
		UserData:        row.UserData,
	}
	for field, dst := range map[string]any{
		row.AllowedRegions: &cfg.AllowedRegions,
		row.InstanceTypes:  &cfg.InstanceTypes,
		row.SecurityGroups: &cfg.SecurityGroups,
	} {
		if field == "" {
			continue
		}
		if err := json.Unmarshal([]byte(field), dst); err != nil {
			return nil, fmt.Errorf("decode pool field: %w", err)
		}
	}
	for field, dst := range map[string]any{
		row.Tags:           &cfg.Tags,
		row.UserDataMacros: &cfg.UserDataMacros,
		row.RawConfig:      &cfg.RawConfig,
	} {
		if field == "" {
			continue
		}
		if err := json.Unmarshal([]byte(field), dst); err != nil {
			return nil, fmt.Errorf("decode pool field: %w", err)
		}
	}

	p := &model.Pool{
		ID:      row.ID,
		Name:    row.Name,
		Config:  cfg,
		Enabled: row.Enabled,
	}
	if row.LastCycled.Valid {
		t := row.LastCycled.Time
		p.LastCycled = &t
	}
	return p, nil
}

func (s *SQLStore) SetLastCycled(ctx context.Context, poolID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ec2spotmanager_pool SET last_cycled = now() WHERE id = $1`, poolID)
	if err != nil {
		return fmt.Errorf("set last_cycled for pool %d: %w", poolID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pool %d: %w", poolID, ErrNotFound)
	}
	return nil
}

type instanceRow struct {
	ID           int64     `db:"id"`
	PoolID       int64     `db:"pool_id"`
	ProviderID   string    `db:"instance_id"`
	Region       string    `db:"region"`
	Zone         string    `db:"zone"`
	Hostname     string    `db:"hostname"`
	InstanceType string    `db:"instance_type"`
	Size         int       `db:"size"`
	StatusCode   int       `db:"status_code"`
	Created      time.Time `db:"created"`
}

func (s *SQLStore) ListInstances(ctx context.Context, poolID int64) ([]model.Instance, error) {
	var rows []instanceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, pool_id, instance_id, region, zone, hostname, instance_type, size, status_code, created
		FROM ec2spotmanager_instance
		WHERE pool_id = $1
		ORDER BY created ASC, id ASC`, poolID)
	if err != nil {
		return nil, fmt.Errorf("list instances for pool %d: %w", poolID, err)
	}

	out := make([]model.Instance, len(rows))
	for i, r := range rows {
		out[i] = model.Instance{
			ID:           r.ID,
			PoolID:       r.PoolID,
			ProviderID:   r.ProviderID,
			Region:       r.Region,
			Zone:         r.Zone,
			Hostname:     r.Hostname,
			InstanceType: r.InstanceType,
			Size:         r.Size,
			StatusCode:   provider.StatusCode(r.StatusCode),
			Created:      r.Created,
		}
	}
	return out, nil
}

func (s *SQLStore) PutInstance(ctx context.Context, inst model.Instance) (model.Instance, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `
		INSERT INTO ec2spotmanager_instance
			(pool_id, instance_id, region, zone, hostname, instance_type, size, status_code, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()))
		ON CONFLICT (pool_id, instance_id) DO UPDATE SET
			region = EXCLUDED.region,
			zone = EXCLUDED.zone,
			hostname = EXCLUDED.hostname,
			instance_type = EXCLUDED.instance_type,
			size = EXCLUDED.size,
			status_code = EXCLUDED.status_code
		RETURNING id`,
		inst.PoolID, inst.ProviderID, inst.Region, inst.Zone, inst.Hostname,
		inst.InstanceType, inst.Size, int(inst.StatusCode), nullableTime(inst.Created))
	if err != nil {
		return model.Instance{}, fmt.Errorf("put instance %s: %w", inst.ProviderID, err)
	}
	inst.ID = id
	return inst, nil
}

func (s *SQLStore) RewriteInstanceID(ctx context.Context, poolID int64, oldProviderID, newProviderID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ec2spotmanager_instance SET instance_id = $1
		WHERE pool_id = $2 AND instance_id = $3`, newProviderID, poolID, oldProviderID)
	if err != nil {
		return fmt.Errorf("rewrite instance id %s->%s: %w", oldProviderID, newProviderID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("instance %s in pool %d: %w", oldProviderID, poolID, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) DeleteInstance(ctx context.Context, poolID int64, providerID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM ec2spotmanager_instance WHERE pool_id = $1 AND instance_id = $2`,
		poolID, providerID)
	if err != nil {
		return fmt.Errorf("delete instance %s: %w", providerID, err)
	}
	return nil
}

type statusEntryRow struct {
	ID         int64     `db:"id"`
	PoolID     int64     `db:"pool_id"`
	Type       string    `db:"type"`
	IsCritical bool      `db:"is_critical"`
	Message    string    `db:"message"`
	Created    time.Time `db:"created"`
}

func (s *SQLStore) ListStatusEntries(ctx context.Context, poolID int64) ([]model.StatusEntry, error) {
	var rows []statusEntryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, pool_id, type, is_critical, message, created
		FROM ec2spotmanager_poolstatusentry
		WHERE pool_id = $1
		ORDER BY created ASC`, poolID)
	if err != nil {
		return nil, fmt.Errorf("list status entries for pool %d: %w", poolID, err)
	}

	out := make([]model.StatusEntry, len(rows))
	for i, r := range rows {
		out[i] = model.StatusEntry{
			ID:         r.ID,
			PoolID:     r.PoolID,
			Type:       model.StatusEntryType(r.Type),
			IsCritical: r.IsCritical,
			Message:    r.Message,
			Created:    r.Created,
		}
	}
	return out, nil
}

func (s *SQLStore) PutStatusEntry(ctx context.Context, entry model.StatusEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ec2spotmanager_poolstatusentry (pool_id, type, is_critical, message, created)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))`,
		entry.PoolID, string(entry.Type), entry.IsCritical, entry.Message, nullableTime(entry.Created))
	if err != nil {
		return fmt.Errorf("put status entry for pool %d: %w", entry.PoolID, err)
	}
	return nil
}

func (s *SQLStore) ClearStatusEntries(ctx context.Context, poolID int64, entryType model.StatusEntryType) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM ec2spotmanager_poolstatusentry WHERE pool_id = $1 AND type = $2`,
		poolID, string(entryType))
	if err != nil {
		return fmt.Errorf("clear status entries (%s) for pool %d: %w", entryType, poolID, err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
