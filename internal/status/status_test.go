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

package status

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MozillaSecurity/spotmanagerd/internal/model"
	"github.com/MozillaSecurity/spotmanagerd/internal/store"
)

func TestReporter_DeduplicatesPriceTooLow(t *testing.T) {
	s := store.NewMemStore()
	s.SeedPool(model.Pool{ID: 1})
	r := NewReporter(s)
	ctx := context.Background()

	require.NoError(t, r.Report(ctx, 1, model.StatusPriceTooLow, false, "first"))
	require.NoError(t, r.Report(ctx, 1, model.StatusPriceTooLow, false, "second"))

	entries, err := s.ListStatusEntries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "first", entries[0].Message)
}

func TestReporter_ConfigErrorAccumulates(t *testing.T) {
	s := store.NewMemStore()
	s.SeedPool(model.Pool{ID: 1})
	r := NewReporter(s)
	ctx := context.Background()

	require.NoError(t, r.Report(ctx, 1, model.StatusConfigError, true, "missing key_name"))
	require.NoError(t, r.Report(ctx, 1, model.StatusConfigError, true, "missing image_name"))

	entries, err := s.ListStatusEntries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestReporter_ClearRemovesEntriesOfType(t *testing.T) {
	s := store.NewMemStore()
	s.SeedPool(model.Pool{ID: 1})
	r := NewReporter(s)
	ctx := context.Background()

	require.NoError(t, r.Report(ctx, 1, model.StatusPriceTooLow, false, "no cheap region"))
	require.NoError(t, r.Clear(ctx, 1, model.StatusPriceTooLow))

	entries, err := s.ListStatusEntries(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestReporter_IsFrozen(t *testing.T) {
	s := store.NewMemStore()
	s.SeedPool(model.Pool{ID: 1})
	r := NewReporter(s)
	ctx := context.Background()

	frozen, err := r.IsFrozen(ctx, 1)
	require.NoError(t, err)
	require.False(t, frozen)

	require.NoError(t, r.Report(ctx, 1, model.StatusConfigError, true, "missing ec2_image_name"))

	frozen, err = r.IsFrozen(ctx, 1)
	require.NoError(t, err)
	require.True(t, frozen)
}
