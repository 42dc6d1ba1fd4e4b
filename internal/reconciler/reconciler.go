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

// Package reconciler implements reconcile(pool_id), the core loop of
// spec §4.5: a single entry point that brings one pool's live instance
// count to its configured size. The teacher's Reconcile-per-tick,
// logr-logged, timer-requeued shape (internal/controller/ec2_reconciler.go)
// is kept; the body is rebuilt entirely around pool/instance/spot-request
// semantics instead of read-only EC2 inventory collection.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/MozillaSecurity/spotmanagerd/internal/cache"
	"github.com/MozillaSecurity/spotmanagerd/internal/lock"
	"github.com/MozillaSecurity/spotmanagerd/internal/model"
	"github.com/MozillaSecurity/spotmanagerd/internal/provider"
	"github.com/MozillaSecurity/spotmanagerd/internal/status"
	"github.com/MozillaSecurity/spotmanagerd/internal/store"
	"github.com/MozillaSecurity/spotmanagerd/internal/userdata"
	"github.com/MozillaSecurity/spotmanagerd/pkg/metrics"
)

const (
	reasonDisabled      = "disabled"
	reasonCycleInterval = "cycle_interval"
	reasonOversize      = "oversize"
)

const (
	// TagPoolID and TagUpdatable are the provider tags spec §6 fixes.
	TagPoolID    = "SpotManager-PoolId"
	TagUpdatable = "SpotManager-Updatable"

	// spotFulfillmentTimeout is the fixed 10-minute window spec §4.3/§4.5.2
	// gives a spot request to be fulfilled before it's considered stale.
	spotFulfillmentTimeout = 10 * time.Minute

	// blacklistTTL is how long a (zone, type) pair is excluded from the
	// selector after a cancelled/closed spot request, per spec §4.5.1.
	blacklistTTL = 12 * time.Hour

	// amiCacheTTL is how long a resolved AMI id is trusted, per spec §6.
	amiCacheTTL = 24 * time.Hour
)

// Reconciler holds every collaborator reconcile(pool_id) needs: the
// persistence layer, the price/blacklist/AMI cache, the provider dialer,
// the status reporter, and a directory for pool lock files.
type Reconciler struct {
	Store   store.Store
	Cache   cache.PriceClient
	Dialer  provider.Dialer
	Status  *status.Reporter
	LockDir string
	Log     logr.Logger

	// Metrics is optional; a nil Metrics disables instrumentation entirely
	// (used by unit tests that have no registry to report to).
	Metrics *metrics.Metrics
}

// New creates a Reconciler over its collaborators. m may be nil, in which
// case no metrics are recorded.
func New(s store.Store, c cache.PriceClient, dialer provider.Dialer, lockDir string, log logr.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		Store:   s,
		Cache:   c,
		Dialer:  dialer,
		Status:  status.NewReporter(s).WithMetrics(m),
		LockDir: lockDir,
		Log:     log,
		Metrics: m,
	}
}

// Reconcile runs one tick of spec §4.5's core loop for a single pool.
func (r *Reconciler) Reconcile(ctx context.Context, poolID int64) error {
	log := r.Log.WithValues("pool_id", poolID)

	// Step 1: Lock.
	pl, err := lock.Acquire(r.LockDir, poolID)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			log.V(1).Info("pool already being reconciled, skipping tick")
			return nil
		}
		return fmt.Errorf("acquire pool lock: %w", err)
	}
	defer func() {
		if relErr := pl.Release(); relErr != nil {
			log.Error(relErr, "failed to release pool lock")
		}
	}()

	start := time.Now()
	err = r.reconcileLocked(ctx, log, poolID)
	if r.Metrics != nil {
		r.Metrics.RecordTick(poolID, time.Since(start), err)
	}
	if err != nil {
		log.Error(err, "reconciliation tick failed")
		return err
	}
	return nil
}

func (r *Reconciler) reconcileLocked(ctx context.Context, log logr.Logger, poolID int64) error {
	// Step 2: Load & gate.
	pool, err := r.Store.GetPool(ctx, poolID)
	if err != nil {
		return fmt.Errorf("load pool: %w", err)
	}

	frozen, err := r.Status.IsFrozen(ctx, poolID)
	if err != nil {
		return fmt.Errorf("check frozen state: %w", err)
	}
	if frozen {
		log.V(1).Info("pool is frozen on a critical status entry, skipping tick")
		return nil
	}

	var violations []string
	violations = append(violations, pool.Config.MissingParameters()...)
	if pool.Config.IsCyclic() {
		violations = append(violations, "configuration is cyclic")
	}
	if len(violations) > 0 {
		msg := fmt.Sprintf("Configuration error: %s", strings.Join(violations, "; "))
		if err := r.Status.Report(ctx, poolID, model.StatusConfigError, true, msg); err != nil {
			return fmt.Errorf("report config error: %w", err)
		}
		return nil
	}

	// Step 3: Flatten. The Pool loaded from the Store is already flattened
	// (§3); the inheritance mechanism that produces it lives outside this
	// repo's scope.
	cfg := pool.Config

	// Step 4: Refresh from provider.
	instancesCreated, err := r.updatePoolInstances(ctx, log, pool)
	if err != nil {
		return fmt.Errorf("update pool instances: %w", err)
	}
	if instancesCreated {
		if err := r.Status.Clear(ctx, poolID, model.StatusMaxSpotCountExceeded); err != nil {
			return fmt.Errorf("clear max-spot-count-exceeded: %w", err)
		}
		if err := r.Status.Clear(ctx, poolID, model.StatusTemporaryFailure); err != nil {
			return fmt.Errorf("clear temporary-failure: %w", err)
		}
	}

	// Step 5: Count capacity (with status-code healing).
	instances, err := r.Store.ListInstances(ctx, poolID)
	if err != nil {
		return fmt.Errorf("list instances: %w", err)
	}
	coresPresent := 0
	for _, inst := range instances {
		healed, wasUnknown := healStatusCode(inst.StatusCode)
		if wasUnknown {
			log.Info("instance has unrecognized status code, forcing to pending",
				"provider_id", inst.ProviderID, "original_status_code", int(inst.StatusCode))
		}
		if healed != inst.StatusCode {
			inst.StatusCode = healed
			if _, err := r.Store.PutInstance(ctx, inst); err != nil {
				return fmt.Errorf("heal instance status: %w", err)
			}
		}
		if inst.CountsTowardCapacity() {
			coresPresent += inst.Size
		}
	}
	instanceCoresMissing := cfg.Size - coresPresent

	if r.Metrics != nil {
		r.Metrics.RecordCapacity(poolID, coresPresent, instanceCoresMissing)
		byKey := make(map[[2]string]int)
		for _, inst := range instances {
			byKey[[2]string{inst.Region, inst.InstanceType}]++
		}
		for k, n := range byKey {
			r.Metrics.PoolInstanceCount.WithLabelValues(
				fmt.Sprintf("%d", poolID), k[0], k[1]).Set(float64(n))
		}
	}

	// Step 6: Disabled.
	if !pool.Enabled {
		r.terminatePoolInstances(ctx, log, pool, nil, true, reasonDisabled)
		return nil
	}

	// Step 7: Cycle.
	if pool.LastCycled == nil || time.Since(*pool.LastCycled) >= cfg.CycleInterval {
		if err := r.Store.SetLastCycled(ctx, poolID); err != nil {
			return fmt.Errorf("set last cycled: %w", err)
		}
		r.terminatePoolInstances(ctx, log, pool, nil, true, reasonCycleInterval)
		return nil
	}

	// Step 8: Scale up.
	if instanceCoresMissing > 0 {
		if err := r.startPoolInstances(ctx, log, pool, instanceCoresMissing); err != nil {
			return fmt.Errorf("start pool instances: %w", err)
		}
	}

	// Step 9: Scale down.
	if instanceCoresMissing < 0 {
		toTerminate := selectScaleDownSet(instances, -instanceCoresMissing)
		if len(toTerminate) > 0 {
			r.terminatePoolInstances(ctx, log, pool, toTerminate, false, reasonOversize)
		}
	}

	return nil
}

// healStatusCode implements spec §4.5 step 5's unknown-code healing: a
// status code this system doesn't recognize is forced to pending(0) and
// counted toward capacity as running; wasUnknown reports that case so the
// caller can log the original value before overwriting it. Any
// code at or above 256 other than the StatusRequested sentinel is first
// tried with 256 subtracted, recovering from the historical storage bug
// that shifted codes by that amount.
func healStatusCode(code provider.StatusCode) (healed provider.StatusCode, wasUnknown bool) {
	if code == provider.StatusRequested || code.ProviderKnown() {
		return code, false
	}

	if code >= 256 {
		if candidate := code - 256; candidate.ProviderKnown() {
			return candidate, false
		}
	}

	return provider.StatusPending, true
}

// selectScaleDownSet picks the oldest instances (by Created) whose
// cumulative size sums to exactly deficit, per spec §4.5 step 9. instances
// must already be ordered oldest-first (Store.ListInstances's contract).
func selectScaleDownSet(instances []model.Instance, deficit int) []model.Instance {
	var selected []model.Instance
	remaining := deficit

	for _, inst := range instances {
		if remaining <= 0 {
			break
		}
		if !inst.CountsTowardCapacity() {
			continue
		}
		if inst.Size > remaining {
			// Taking this instance would overshoot; skip it and keep
			// looking for a smaller one, per the "exact sum only" rule.
			continue
		}
		selected = append(selected, inst)
		remaining -= inst.Size
	}

	if remaining != 0 {
		// No exact subset exists; leave the pool over-capacity this tick
		// rather than overshoot, per spec §4.5 step 9.
		return nil
	}
	return selected
}

// resolveImage resolves and caches an AMI id for a region/image-name pair,
// consulting the 24-hour AMI cache before calling the provider, per spec
// §4.3/§4.5.2 step 6.
func resolveImage(ctx context.Context, c provider.Client, cacheClient cache.PriceClient, region, imageName string) (string, error) {
	if id, found, err := cacheClient.ImageID(ctx, region, imageName); err == nil && found {
		return id, nil
	}

	id, err := c.ResolveImage(ctx, imageName)
	if err != nil {
		return "", err
	}
	if err := cacheClient.SetImageID(ctx, region, imageName, id, amiCacheTTL); err != nil {
		return "", err
	}
	return id, nil
}

// compileUserdata renders a pool's userdata template with its configured
// macros plus the two internal ones, per spec §4.5.2 step 5.
func compileUserdata(cfg model.Configuration, poolID int64) ([]byte, error) {
	out, err := userdata.Compile(string(cfg.UserData), cfg.UserDataMacros, poolID, cfg.CycleInterval)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
