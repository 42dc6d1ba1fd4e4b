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

package reconciler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-logr/logr"

	"github.com/MozillaSecurity/spotmanagerd/internal/model"
	"github.com/MozillaSecurity/spotmanagerd/internal/provider"
)

// updatePoolInstances is update_pool_instances, spec §4.5.1: it brings the
// local Instance Store up to date with the provider's view, one region at
// a time. It returns true if any instance transitioned from requested to
// fulfilled this tick (the caller uses this to clear stale status entries).
func (r *Reconciler) updatePoolInstances(ctx context.Context, log logr.Logger, pool *model.Pool) (bool, error) {
	instances, err := r.Store.ListInstances(ctx, pool.ID)
	if err != nil {
		return false, fmt.Errorf("list instances: %w", err)
	}

	byRegion := make(map[string][]model.Instance)
	for _, inst := range instances {
		byRegion[inst.Region] = append(byRegion[inst.Region], inst)
	}

	instancesCreated := false
	for region, regionInstances := range byRegion {
		created, err := r.updateRegion(ctx, log.WithValues("region", region), pool, region, regionInstances)
		if err != nil {
			return instancesCreated, err
		}
		instancesCreated = instancesCreated || created
	}
	return instancesCreated, nil
}

func (r *Reconciler) updateRegion(ctx context.Context, log logr.Logger, pool *model.Pool, region string, regionInstances []model.Instance) (bool, error) {
	client, err := r.Dialer.Connect(ctx, region)
	if err != nil {
		// Connect failures are classified (§4.3) but there is no internal
		// retry (§5); leave this region's instances untouched and let the
		// next tick try again.
		log.Error(err, "failed to connect to provider for region")
		return false, nil
	}

	instancesCreated := false
	seen := make(map[string]bool, len(regionInstances))

	var requestIDs []string
	for _, inst := range regionInstances {
		if inst.IsRequested() {
			requestIDs = append(requestIDs, inst.ProviderID)
		}
	}

	if len(requestIDs) > 0 {
		created, err := r.processSpotOutcomes(ctx, log, pool, region, regionInstances, requestIDs, seen, client)
		if err != nil {
			return instancesCreated, err
		}
		instancesCreated = created
	}

	// Reload: fulfilled requests rewrote provider ids, so the local set
	// must be re-read before matching against the provider's find() view.
	regionInstances, err = r.Store.ListInstances(ctx, pool.ID)
	if err != nil {
		return instancesCreated, fmt.Errorf("reload instances: %w", err)
	}
	localByID := make(map[string]model.Instance, len(regionInstances))
	for _, inst := range regionInstances {
		if inst.Region == region {
			localByID[inst.ProviderID] = inst
		}
	}

	providerInstances, err := client.Find(ctx, provider.Filter{
		Tags: map[string]string{TagPoolID: strconv.FormatInt(pool.ID, 10)},
	})
	if err != nil {
		log.Error(err, "find failed")
		return instancesCreated, nil
	}

	for _, pinst := range providerInstances {
		if !isUpdatable(pinst.Tags) {
			// Still being set up by a concurrent or prior spawner; leave it
			// alone and protect it from the reaper below.
			if local, ok := localByID[pinst.InstanceID]; ok {
				seen[local.ProviderID] = true
			}
			continue
		}

		local, ok := localByID[pinst.InstanceID]
		if !ok {
			stripped := pinst.StateCode
			if stripped != provider.StatusShuttingDown && stripped != provider.StatusTerminated {
				// One last lookup, in case the spawner persisted between
				// our initial load and this find().
				refreshed, lerr := r.Store.ListInstances(ctx, pool.ID)
				if lerr != nil {
					return instancesCreated, fmt.Errorf("recheck instances: %w", lerr)
				}
				found := false
				for _, ri := range refreshed {
					if ri.ProviderID == pinst.InstanceID {
						found = true
						seen[ri.ProviderID] = true
						break
					}
				}
				if !found {
					return instancesCreated, fmt.Errorf(
						"provider instance %s tagged for pool %d has no local record: inconsistent state", pinst.InstanceID, pool.ID)
				}
			}
			continue
		}

		seen[local.ProviderID] = true
		local.StatusCode = pinst.StateCode

		// Spec §4.5.1 step 5 / §8 invariant: a terminal instance is deleted
		// locally as soon as it's observed, even though the provider itself
		// keeps reporting it (e.g. AWS continues to return a terminated
		// instance from describe-instances for some time after shutdown).
		if local.IsTerminal() {
			if err := r.Store.DeleteInstance(ctx, pool.ID, local.ProviderID); err != nil {
				return instancesCreated, fmt.Errorf("delete terminal instance %s: %w", local.ProviderID, err)
			}
			continue
		}

		if local.Hostname == "" {
			local.Hostname = pinst.Hostname
		}
		if _, err := r.Store.PutInstance(ctx, local); err != nil {
			return instancesCreated, fmt.Errorf("update instance from provider: %w", err)
		}
	}

	// Reap anything in this region we didn't observe above.
	for _, inst := range regionInstances {
		if inst.Region != region || seen[inst.ProviderID] {
			continue
		}
		log.Info("reaping instance not observed by provider this tick",
			"provider_id", inst.ProviderID, "status_code", int(inst.StatusCode))
		if err := r.Store.DeleteInstance(ctx, pool.ID, inst.ProviderID); err != nil {
			return instancesCreated, fmt.Errorf("reap instance %s: %w", inst.ProviderID, err)
		}
	}

	return instancesCreated, nil
}

// isUpdatable reports whether the SpotManager-Updatable tag is present and
// positive, per spec §4.5.1 step 3.
func isUpdatable(tags map[string]string) bool {
	v, ok := tags[TagUpdatable]
	if !ok {
		return false
	}
	n, err := strconv.Atoi(v)
	return err == nil && n > 0
}

func (r *Reconciler) processSpotOutcomes(
	ctx context.Context,
	log logr.Logger,
	pool *model.Pool,
	region string,
	regionInstances []model.Instance,
	requestIDs []string,
	seen map[string]bool,
	client provider.Client,
) (bool, error) {
	outcomes, err := client.CheckSpotRequests(ctx, requestIDs, map[string]string{TagUpdatable: "1"})
	if err != nil {
		log.Error(err, "check_spot_requests failed")
		return false, nil
	}

	localByRequestID := make(map[string]model.Instance, len(regionInstances))
	for _, inst := range regionInstances {
		localByRequestID[inst.ProviderID] = inst
	}

	instancesCreated := false
	for _, outcome := range outcomes {
		local, ok := localByRequestID[outcome.RequestID]
		if !ok {
			continue
		}

		switch outcome.Kind {
		case provider.OutcomeFulfilled:
			if err := r.Store.RewriteInstanceID(ctx, pool.ID, outcome.RequestID, outcome.InstanceID); err != nil {
				return instancesCreated, fmt.Errorf("rewrite instance id: %w", err)
			}
			updated := local
			updated.ProviderID = outcome.InstanceID
			updated.Hostname = outcome.Hostname
			updated.StatusCode = outcome.StateCode
			if _, err := r.Store.PutInstance(ctx, updated); err != nil {
				return instancesCreated, fmt.Errorf("update fulfilled instance: %w", err)
			}
			seen[outcome.InstanceID] = true
			instancesCreated = true

		case provider.OutcomeTerminalCancelled, provider.OutcomeTerminalClosed:
			if err := r.Cache.Blacklist(ctx, local.Zone, local.InstanceType, blacklistTTL); err != nil {
				log.Error(err, "failed to blacklist zone/type after cancelled or closed spot request",
					"zone", local.Zone, "instance_type", local.InstanceType)
			}
			if err := r.Store.DeleteInstance(ctx, pool.ID, local.ProviderID); err != nil {
				return instancesCreated, fmt.Errorf("delete cancelled/closed instance: %w", err)
			}

		case provider.OutcomeTerminalFailed:
			if err := r.Status.Report(ctx, pool.ID, model.StatusUnclassified, true,
				fmt.Sprintf("spot request %s failed", outcome.RequestID)); err != nil {
				return instancesCreated, fmt.Errorf("report failed spot request: %w", err)
			}
			if err := r.Store.DeleteInstance(ctx, pool.ID, local.ProviderID); err != nil {
				return instancesCreated, fmt.Errorf("delete failed instance: %w", err)
			}

		case provider.OutcomeTransientOpen, provider.OutcomeTransientActive:
			log.Info("spot request still open/active, leaving for next tick", "request_id", outcome.RequestID)
			seen[local.ProviderID] = true

		case provider.OutcomePending:
			seen[local.ProviderID] = true
		}
	}

	return instancesCreated, nil
}
