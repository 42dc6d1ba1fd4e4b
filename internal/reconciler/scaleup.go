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
	"sort"
	"strconv"
	"strings"

	"github.com/go-logr/logr"

	"github.com/MozillaSecurity/spotmanagerd/internal/model"
	"github.com/MozillaSecurity/spotmanagerd/internal/provider"
)

// candidateZoneSuffixes stands in for a live describe-availability-zones
// call: every region in Regions exposes at least these three, and the
// selector only needs a name to key the price and blacklist caches by.
var candidateZoneSuffixes = []string{"a", "b", "c"}

// startPoolInstances is start_pool_instances, spec §4.5.2: it selects a
// region/zone/instance-type triple under the deficit, compiles userdata,
// resolves the AMI, and submits a spot bid for as many instances as the
// deficit divides into at the chosen type's core count.
func (r *Reconciler) startPoolInstances(ctx context.Context, log logr.Logger, pool *model.Pool, coresMissing int) error {
	cfg := pool.Config

	eligible := eligibleInstanceTypes(cfg.InstanceTypes, coresMissing)
	if len(eligible) == 0 {
		// The deficit is smaller than every acceptable type; fall back to
		// the smallest type(s) available rather than starting nothing.
		_, eligible = model.SmallestCoreCount(cfg.InstanceTypes)
	}
	if len(eligible) == 0 {
		return r.Status.Report(ctx, pool.ID, model.StatusConfigError, true,
			"no instance type in ec2_instance_types has a known core count")
	}

	candidates, err := r.buildZonePrices(ctx, cfg.AllowedRegions, eligible)
	if err != nil {
		return fmt.Errorf("build zone prices: %w", err)
	}

	choice, rejected, ok := selectCandidate(candidates, eligible, cfg.MaxPricePerCore)
	if !ok {
		msg := formatRejected(rejected)
		return r.Status.Report(ctx, pool.ID, model.StatusPriceTooLow, false, msg)
	}
	if err := r.Status.Clear(ctx, pool.ID, model.StatusPriceTooLow); err != nil {
		return fmt.Errorf("clear price-too-low: %w", err)
	}

	cores := model.CoresPerInstance[choice.InstanceType]
	count := coresMissing / cores
	if count < 1 {
		count = 1
	}

	userdata, err := compileUserdata(cfg, pool.ID)
	if err != nil {
		return r.Status.Report(ctx, pool.ID, model.StatusConfigError, true,
			fmt.Sprintf("userdata compile failed: %s", err))
	}

	client, err := r.Dialer.Connect(ctx, choice.Region)
	if err != nil {
		log.Error(err, "failed to connect to provider for scale-up region", "region", choice.Region)
		return nil
	}

	imageID, err := resolveImage(ctx, client, r.Cache, choice.Region, cfg.ImageName)
	if err != nil {
		return r.reportProviderError(ctx, pool.ID, err, "resolve image")
	}

	tags := make(map[string]string, len(cfg.Tags)+1)
	for k, v := range cfg.Tags {
		tags[k] = v
	}
	tags[TagPoolID] = strconv.FormatInt(pool.ID, 10)

	spec := provider.SpotRequestSpec{
		Region:       choice.Region,
		Zone:         choice.Zone,
		InstanceType: choice.InstanceType,
		ImageID:      imageID,
		Image: provider.ImageDescriptor{
			KeyName:        cfg.KeyName,
			ImageName:      cfg.ImageName,
			SecurityGroups: cfg.SecurityGroups,
			RawConfig:      cfg.RawConfig,
			UserData:       userdata,
			Tags:           tags,
		},
	}
	bidTotal := cfg.MaxPricePerCore * float64(cores)

	requestIDs, err := client.RequestSpot(ctx, spec, bidTotal, count, spotFulfillmentTimeout)
	if err != nil {
		return r.reportProviderError(ctx, pool.ID, err, "request_spot")
	}

	for _, reqID := range requestIDs {
		inst := model.Instance{
			PoolID:       pool.ID,
			ProviderID:   reqID,
			Region:       choice.Region,
			Zone:         choice.Zone,
			InstanceType: choice.InstanceType,
			Size:         cores,
			StatusCode:   provider.StatusRequested,
		}
		// Persisted one at a time, before continuing to the next id, so a
		// crash mid-loop never loses track of an issued bid (spec §4.5.2
		// step 7).
		if _, err := r.Store.PutInstance(ctx, inst); err != nil {
			return fmt.Errorf("persist requested instance %s: %w", reqID, err)
		}
	}

	if r.Metrics != nil {
		r.Metrics.RecordScaleUp(pool.ID, choice.Region, choice.InstanceType, len(requestIDs))
	}

	return nil
}

// reportProviderError classifies err via the Provider Adapter's taxonomy
// and records the matching status entry, per spec §4.3/§7.
func (r *Reconciler) reportProviderError(ctx context.Context, poolID int64, err error, op string) error {
	classified := provider.Classify(err)
	switch classified.Kind {
	case provider.KindQuotaExceeded:
		return r.Status.Report(ctx, poolID, model.StatusMaxSpotCountExceeded, false,
			fmt.Sprintf("%s: %s", op, classified.Error()))
	case provider.KindTransient:
		return r.Status.Report(ctx, poolID, model.StatusTemporaryFailure, false,
			fmt.Sprintf("%s: %s", op, classified.Error()))
	default:
		return r.Status.Report(ctx, poolID, model.StatusUnclassified, true,
			fmt.Sprintf("%s: %s", op, classified.Error()))
	}
}

// eligibleInstanceTypes returns the configured instance types whose core
// count is at most count, preserving configuration order (the selector's
// tie-break), per spec §4.5.2 step 1.
func eligibleInstanceTypes(types []string, count int) []string {
	var eligible []string
	for _, t := range types {
		if cores, ok := model.CoresPerInstance[t]; ok && cores <= count {
			eligible = append(eligible, t)
		}
	}
	return eligible
}

func formatRejected(rejected map[string]float64) string {
	if len(rejected) == 0 {
		return "no region/zone/instance-type combination cleared the price ceiling"
	}
	zones := make([]string, 0, len(rejected))
	for z := range rejected {
		zones = append(zones, z)
	}
	sort.Strings(zones)

	parts := make([]string, 0, len(zones))
	for _, z := range zones {
		parts = append(parts, fmt.Sprintf("%s=%.6f", z, rejected[z]))
	}
	return "price too low in every candidate zone: " + strings.Join(parts, ", ")
}
