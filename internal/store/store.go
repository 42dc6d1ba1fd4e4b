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

// Package store is the Instance Store: the persistence interface for pool
// records, instance records, and pool status entries, per spec §2/§4.
package store

import (
	"context"
	"errors"

	"github.com/MozillaSecurity/spotmanagerd/internal/model"
)

// ErrNotFound is returned by Store implementations when a pool or instance
// lookup fails to find a record.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface the reconciler treats as an ordered,
// queryable repository with per-record updates. Errors from the Store are
// fatal to the current tick and are re-raised after the Pool Lock is
// released, per spec §7.
type Store interface {
	// ListPoolIDs returns the ids of every pool known to the store, the set
	// the process-level scheduler iterates each tick to call Reconcile.
	ListPoolIDs(ctx context.Context) ([]int64, error)

	// GetPool loads a pool and its flattened configuration by id.
	GetPool(ctx context.Context, poolID int64) (*model.Pool, error)

	// SetLastCycled updates a pool's last_cycled timestamp.
	SetLastCycled(ctx context.Context, poolID int64) error

	// ListInstances returns every instance currently persisted for a pool,
	// ordered oldest-created first (the order scale-down relies on).
	ListInstances(ctx context.Context, poolID int64) ([]model.Instance, error)

	// PutInstance inserts or updates an instance record by provider id.
	PutInstance(ctx context.Context, inst model.Instance) (model.Instance, error)

	// RewriteInstanceID replaces a requested instance's provider id (the
	// spot request id) with its fulfilled instance id, per spec §4.5.1.
	RewriteInstanceID(ctx context.Context, poolID int64, oldProviderID, newProviderID string) error

	// DeleteInstance removes an instance record.
	DeleteInstance(ctx context.Context, poolID int64, providerID string) error

	// ListStatusEntries returns every status entry for a pool.
	ListStatusEntries(ctx context.Context, poolID int64) ([]model.StatusEntry, error)

	// PutStatusEntry inserts a status entry.
	PutStatusEntry(ctx context.Context, entry model.StatusEntry) error

	// ClearStatusEntries deletes every entry of the given type for a pool.
	ClearStatusEntries(ctx context.Context, poolID int64, entryType model.StatusEntryType) error
}
