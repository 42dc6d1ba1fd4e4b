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

	"github.com/MozillaSecurity/spotmanagerd/internal/model"
	"github.com/MozillaSecurity/spotmanagerd/internal/selector"
)

// buildZonePrices assembles the selector's candidate list by consulting
// the Price/Blacklist Cache for every (region, zone, instance-type) triple
// the pool's configuration could choose from, per spec §4.2 step 1-3. Cache
// misses are skipped rather than treated as errors (spec §7: "errors from
// the cache... degrade gracefully").
func (r *Reconciler) buildZonePrices(ctx context.Context, regions []string, instanceTypes []string) ([]selector.ZonePrices, error) {
	var candidates []selector.ZonePrices

	for _, instanceType := range instanceTypes {
		series, found, err := r.Cache.SpotPrices(ctx, instanceType)
		if err != nil {
			// A degraded cache read is skipped, not fatal.
			found = false
		}

		for _, region := range regions {
			if !model.Regions[region] {
				continue
			}
			for _, suffix := range candidateZoneSuffixes {
				zone := region + suffix

				blacklisted, err := r.Cache.IsBlacklisted(ctx, zone, instanceType)
				if err != nil {
					return nil, fmt.Errorf("check blacklist %s/%s: %w", zone, instanceType, err)
				}
				if blacklisted {
					candidates = append(candidates, selector.ZonePrices{
						Region: region, Zone: zone, InstanceType: instanceType, Blacklisted: true,
					})
					continue
				}

				if !found {
					continue
				}
				prices := series[region][zone]
				if len(prices) == 0 {
					continue
				}
				candidates = append(candidates, selector.ZonePrices{
					Region:       region,
					Zone:         zone,
					InstanceType: instanceType,
					Prices:       prices,
				})
			}
		}
	}

	return candidates, nil
}

// selectCandidate narrows coresPerInstance to the eligible types before
// delegating to selector.Select, so an instance type absent from this
// tick's eligible set can never win even if it happens to appear in
// candidates.
func selectCandidate(candidates []selector.ZonePrices, eligibleTypes []string, maxPricePerCore float64) (selector.Choice, map[string]float64, bool) {
	cores := make(map[string]int, len(eligibleTypes))
	for _, t := range eligibleTypes {
		if c, ok := model.CoresPerInstance[t]; ok {
			cores[t] = c
		}
	}
	return selector.Select(candidates, cores, maxPricePerCore)
}
