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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MozillaSecurity/spotmanagerd/internal/model"
)

// MemStore is an in-memory Store, used by unit tests in place of a SQL
// database (the end-to-end suite runs against Postgres). It holds one set of pools, instances, and
// status entries per process and is safe for concurrent use.
type MemStore struct {
	mu sync.RWMutex

	pools     map[int64]model.Pool
	instances map[int64]map[string]model.Instance // poolID -> providerID -> instance
	entries   map[int64][]model.StatusEntry        // poolID -> entries

	nextInstanceID int64
	nextEntryID    int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		pools:     make(map[int64]model.Pool),
		instances: make(map[int64]map[string]model.Instance),
		entries:   make(map[int64][]model.StatusEntry),
	}
}

// SeedPool installs a pool record directly, bypassing persistence. Tests use
// this to set up fixtures; the reconciler itself never creates pools.
func (m *MemStore) SeedPool(p model.Pool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[p.ID] = p
}

func (m *MemStore) ListPoolIDs(_ context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.pools))
	for id := range m.pools {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MemStore) GetPool(_ context.Context, poolID int64) (*model.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("pool %d: %w", poolID, ErrNotFound)
	}
	cp := p
	return &cp, nil
}

func (m *MemStore) SetLastCycled(_ context.Context, poolID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[poolID]
	if !ok {
		return fmt.Errorf("pool %d: %w", poolID, ErrNotFound)
	}
	now := time.Now()
	p.LastCycled = &now
	m.pools[poolID] = p
	return nil
}

func (m *MemStore) ListInstances(_ context.Context, poolID int64) ([]model.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byID := m.instances[poolID]
	out := make([]model.Instance, 0, len(byID))
	for _, inst := range byID {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

func (m *MemStore) PutInstance(_ context.Context, inst model.Instance) (model.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.instances[inst.PoolID]
	if !ok {
		byID = make(map[string]model.Instance)
		m.instances[inst.PoolID] = byID
	}

	if existing, ok := byID[inst.ProviderID]; ok {
		inst.ID = existing.ID
		if inst.Created.IsZero() {
			inst.Created = existing.Created
		}
	} else {
		m.nextInstanceID++
		inst.ID = m.nextInstanceID
		if inst.Created.IsZero() {
			inst.Created = time.Now()
		}
	}
	byID[inst.ProviderID] = inst
	return inst, nil
}

func (m *MemStore) RewriteInstanceID(_ context.Context, poolID int64, oldProviderID, newProviderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.instances[poolID]
	if !ok {
		return fmt.Errorf("pool %d: %w", poolID, ErrNotFound)
	}
	inst, ok := byID[oldProviderID]
	if !ok {
		return fmt.Errorf("instance %s in pool %d: %w", oldProviderID, poolID, ErrNotFound)
	}
	delete(byID, oldProviderID)
	inst.ProviderID = newProviderID
	byID[newProviderID] = inst
	return nil
}

func (m *MemStore) DeleteInstance(_ context.Context, poolID int64, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.instances[poolID]
	if !ok {
		return nil
	}
	delete(byID, providerID)
	return nil
}

func (m *MemStore) ListStatusEntries(_ context.Context, poolID int64) ([]model.StatusEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.entries[poolID]
	out := make([]model.StatusEntry, len(src))
	copy(out, src)
	return out, nil
}

func (m *MemStore) PutStatusEntry(_ context.Context, entry model.StatusEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextEntryID++
	entry.ID = m.nextEntryID
	if entry.Created.IsZero() {
		entry.Created = time.Now()
	}
	m.entries[entry.PoolID] = append(m.entries[entry.PoolID], entry)
	return nil
}

func (m *MemStore) ClearStatusEntries(_ context.Context, poolID int64, entryType model.StatusEntryType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.entries[poolID]
	kept := src[:0:0]
	for _, e := range src {
		if e.Type != entryType {
			kept = append(kept, e)
		}
	}
	m.entries[poolID] = kept
	return nil
}
