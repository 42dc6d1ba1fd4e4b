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

// terminatePoolInstances is terminate_pool_instances, spec §4.5.3. When
// terminateByPool is true it terminates every provider instance tagged for
// the pool in each region that holds a local instance record for it (used
// by the disabled and cycle paths, step 6/7); regions with no local record
// are not searched. Otherwise it terminates exactly the given instances
// (the scale-down path, step 9). Find and Terminate errors are recorded as
// critical unclassified status entries, and a failed Connect is only
// logged; either way a termination failure never aborts the tick, since
// the lock must still be released and the next tick will try again.
func (r *Reconciler) terminatePoolInstances(ctx context.Context, log logr.Logger, pool *model.Pool, instances []model.Instance, terminateByPool bool, reason string) {
	byRegion := make(map[string][]model.Instance)
	for _, inst := range instances {
		byRegion[inst.Region] = append(byRegion[inst.Region], inst)
	}

	if terminateByPool {
		regions, err := r.Store.ListInstances(ctx, pool.ID)
		if err != nil {
			log.Error(err, "failed to list instances for pool-wide termination")
			return
		}
		for _, inst := range regions {
			byRegion[inst.Region] = append(byRegion[inst.Region], inst)
		}
	}

	for region, regionInstances := range byRegion {
		r.terminateRegion(ctx, log.WithValues("region", region), pool, region, regionInstances, terminateByPool, reason)
	}
}

func (r *Reconciler) terminateRegion(ctx context.Context, log logr.Logger, pool *model.Pool, region string, localInstances []model.Instance, terminateByPool bool, reason string) {
	client, err := r.Dialer.Connect(ctx, region)
	if err != nil {
		log.Error(err, "failed to connect to provider for termination region")
		return
	}

	var targetIDs []string

	if terminateByPool {
		found, err := client.Find(ctx, provider.Filter{
			Tags: map[string]string{TagPoolID: strconv.FormatInt(pool.ID, 10)},
		})
		if err != nil {
			r.recordTerminateError(ctx, pool.ID, err, "find instances for pool-wide termination")
			return
		}

		localByID := make(map[string]model.Instance, len(localInstances))
		for _, inst := range localInstances {
			localByID[inst.ProviderID] = inst
		}
		for _, pinst := range found {
			if _, ok := localByID[pinst.InstanceID]; !ok &&
				pinst.StateCode != provider.StatusShuttingDown && pinst.StateCode != provider.StatusTerminated {
				log.Info("terminating provider instance with no local record",
					"instance_id", pinst.InstanceID)
			}
			targetIDs = append(targetIDs, pinst.InstanceID)
		}

		// Outstanding spot requests never appear in a provider Find(), since
		// no instance exists yet; drop their local records directly rather
		// than leaving them to be reaped as a data inconsistency next tick.
		for _, inst := range localInstances {
			if inst.IsRequested() {
				if err := r.Store.DeleteInstance(ctx, pool.ID, inst.ProviderID); err != nil {
					log.Error(err, "failed to delete requested instance during pool-wide termination",
						"request_id", inst.ProviderID)
				}
			}
		}
	} else {
		for _, inst := range localInstances {
			if inst.IsRequested() {
				// A bare spot request has no instance-id to terminate;
				// cancellation happens by letting the fulfillment timeout
				// lapse. Drop it from the store directly.
				if err := r.Store.DeleteInstance(ctx, pool.ID, inst.ProviderID); err != nil {
					log.Error(err, "failed to delete requested instance targeted for scale-down",
						"request_id", inst.ProviderID)
				}
				continue
			}
			targetIDs = append(targetIDs, inst.ProviderID)
		}
	}

	if len(targetIDs) == 0 {
		return
	}

	if err := client.Terminate(ctx, targetIDs); err != nil {
		r.recordTerminateError(ctx, pool.ID, err, "terminate")
		return
	}
	if r.Metrics != nil {
		r.Metrics.RecordScaleDown(pool.ID, reason, len(targetIDs))
	}
}

func (r *Reconciler) recordTerminateError(ctx context.Context, poolID int64, err error, op string) {
	classified := provider.Classify(err)
	if statusErr := r.Status.Report(ctx, poolID, model.StatusUnclassified, true,
		fmt.Sprintf("%s: %s", op, classified.Error())); statusErr != nil {
		r.Log.Error(statusErr, "failed to record termination error status entry")
	}
}
