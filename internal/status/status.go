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

// Package status reports and clears pool status entries, applying the
// dedup rule of spec §4.4: entries of a Deduplicated type are collapsed to
// at most one live entry per pool, while non-deduplicated types (notably
// config-error) accumulate one entry per occurrence.
package status

import (
	"context"
	"fmt"

	"github.com/MozillaSecurity/spotmanagerd/internal/model"
	"github.com/MozillaSecurity/spotmanagerd/internal/store"
	"github.com/MozillaSecurity/spotmanagerd/pkg/metrics"
)

// Reporter records and clears PoolStatusEntry records for a pool.
type Reporter struct {
	store   store.Store
	metrics *metrics.Metrics
}

// NewReporter creates a Reporter over the given Store.
func NewReporter(s store.Store) *Reporter {
	return &Reporter{store: s}
}

// WithMetrics attaches a Metrics sink that Report/Clear update as a side
// effect, returning the Reporter for chaining at construction time.
func (r *Reporter) WithMetrics(m *metrics.Metrics) *Reporter {
	r.metrics = m
	return r
}

// Report records a status entry for a pool. If entryType is deduplicated
// (spec §4.4) and a live entry of the same type already exists, this is a
// no-op: the existing entry is left in place rather than duplicated.
func (r *Reporter) Report(ctx context.Context, poolID int64, entryType model.StatusEntryType, critical bool, message string) error {
	if entryType.Deduplicated() {
		existing, err := r.store.ListStatusEntries(ctx, poolID)
		if err != nil {
			return fmt.Errorf("report status for pool %d: %w", poolID, err)
		}
		for _, e := range existing {
			if e.Type == entryType {
				return nil
			}
		}
	}

	if err := r.store.PutStatusEntry(ctx, model.StatusEntry{
		PoolID:     poolID,
		Type:       entryType,
		IsCritical: critical,
		Message:    message,
	}); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.SetStatusEntryActive(poolID, string(entryType), true)
	}
	return nil
}

// Clear removes every live entry of entryType for a pool. Called once the
// condition that produced the entry no longer holds, e.g. a price-too-low
// entry is cleared as soon as a region clears the price bar again.
func (r *Reporter) Clear(ctx context.Context, poolID int64, entryType model.StatusEntryType) error {
	if err := r.store.ClearStatusEntries(ctx, poolID, entryType); err != nil {
		return fmt.Errorf("clear status for pool %d: %w", poolID, err)
	}
	if r.metrics != nil {
		r.metrics.SetStatusEntryActive(poolID, string(entryType), false)
	}
	return nil
}

// IsFrozen reports whether the pool has any critical status entry. The
// reconciler skips the whole tick of a frozen pool, before any provider
// refresh or scaling, until the entry is cleared, per spec §4.5 step 2.
func (r *Reporter) IsFrozen(ctx context.Context, poolID int64) (bool, error) {
	entries, err := r.store.ListStatusEntries(ctx, poolID)
	if err != nil {
		return false, fmt.Errorf("check frozen state for pool %d: %w", poolID, err)
	}
	for _, e := range entries {
		if e.IsCritical {
			return true, nil
		}
	}
	return false, nil
}
