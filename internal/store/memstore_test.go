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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MozillaSecurity/spotmanagerd/internal/model"
	"github.com/MozillaSecurity/spotmanagerd/internal/provider"
)

func TestMemStore_GetPoolNotFound(t *testing.T) {
	s := NewMemStore()
	_, err := s.GetPool(context.Background(), 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestMemStore_SetLastCycled(t *testing.T) {
	s := NewMemStore()
	s.SeedPool(model.Pool{ID: 1, Name: "pool-a"})

	require.NoError(t, s.SetLastCycled(context.Background(), 1))

	p, err := s.GetPool(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, p.LastCycled)
}

func TestMemStore_PutAndListInstancesOrdered(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	_, err := s.PutInstance(ctx, model.Instance{
		PoolID: 1, ProviderID: "i-second", Created: base.Add(time.Minute),
		StatusCode: provider.StatusRunning,
	})
	require.NoError(t, err)
	_, err = s.PutInstance(ctx, model.Instance{
		PoolID: 1, ProviderID: "i-first", Created: base,
		StatusCode: provider.StatusRunning,
	})
	require.NoError(t, err)

	instances, err := s.ListInstances(ctx, 1)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	require.Equal(t, "i-first", instances[0].ProviderID)
	require.Equal(t, "i-second", instances[1].ProviderID)
}

func TestMemStore_PutInstanceUpdatesInPlace(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	first, err := s.PutInstance(ctx, model.Instance{
		PoolID: 1, ProviderID: "sir-abc", StatusCode: provider.StatusRequested,
	})
	require.NoError(t, err)

	updated, err := s.PutInstance(ctx, model.Instance{
		PoolID: 1, ProviderID: "sir-abc", StatusCode: provider.StatusPending,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, updated.ID)
	require.Equal(t, provider.StatusPending, updated.StatusCode)

	instances, err := s.ListInstances(ctx, 1)
	require.NoError(t, err)
	require.Len(t, instances, 1)
}

func TestMemStore_RewriteInstanceID(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_, err := s.PutInstance(ctx, model.Instance{
		PoolID: 1, ProviderID: "sir-abc", StatusCode: provider.StatusRequested,
	})
	require.NoError(t, err)

	require.NoError(t, s.RewriteInstanceID(ctx, 1, "sir-abc", "i-0123456789"))

	instances, err := s.ListInstances(ctx, 1)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Equal(t, "i-0123456789", instances[0].ProviderID)
}

func TestMemStore_RewriteInstanceIDMissing(t *testing.T) {
	s := NewMemStore()
	err := s.RewriteInstanceID(context.Background(), 1, "sir-missing", "i-x")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestMemStore_DeleteInstance(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_, err := s.PutInstance(ctx, model.Instance{PoolID: 1, ProviderID: "i-a"})
	require.NoError(t, err)
	require.NoError(t, s.DeleteInstance(ctx, 1, "i-a"))

	instances, err := s.ListInstances(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, instances)
}

func TestMemStore_StatusEntryDedupLifecycle(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.PutStatusEntry(ctx, model.StatusEntry{
		PoolID: 1, Type: model.StatusPriceTooLow, Message: "bid too low in us-east-1",
	}))
	require.NoError(t, s.PutStatusEntry(ctx, model.StatusEntry{
		PoolID: 1, Type: model.StatusConfigError, IsCritical: true, Message: "missing key name",
	}))

	entries, err := s.ListStatusEntries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, s.ClearStatusEntries(ctx, 1, model.StatusPriceTooLow))

	entries, err = s.ListStatusEntries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, model.StatusConfigError, entries[0].Type)
}
