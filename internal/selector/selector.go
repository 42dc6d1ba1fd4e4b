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

// Package selector picks the cheapest acceptable region/zone/instance-type
// triple for a pool, per spec §4.2. It is a pure function over price
// history the caller has already fetched; it holds no cache or provider
// handle of its own.
package selector

import (
	"sort"
)

// ZonePrices is one zone's recent per-instance spot price observations for
// a single instance type, in the region they were observed in.
type ZonePrices struct {
	Region       string
	Zone         string
	InstanceType string
	Prices       []float64 // most recent first; Prices[0] is the current price
	Blacklisted  bool
}

// Choice is the selector's recommendation: the cheapest region/zone/type
// that clears MaxPricePerCore. Rejected prices are not part of Choice;
// Select returns them separately.
type Choice struct {
	Region        string
	Zone          string
	InstanceType  string
	MedianPerCore float64
}

// Select evaluates every candidate and returns the one with the lowest
// median price-per-core, mirroring _get_best_region_zone's ordering: ties
// keep the first (lowest-median) candidate found, so caller iteration order
// over InstanceTypes acts as the tiebreaker the same way a Python dict walk
// did in the original.
//
// coresPerInstance maps instance type to vCPU count; maxPricePerCore is the
// pool's configured ceiling. ok is false when every candidate was either
// blacklisted or over price; rejected then holds each non-blacklisted
// zone's lowest current per-core price, for status reporting.
func Select(candidates []ZonePrices, coresPerInstance map[string]int, maxPricePerCore float64) (choice Choice, rejected map[string]float64, ok bool) {
	rejected = make(map[string]float64)
	var best *Choice

	for _, c := range candidates {
		if c.Blacklisted || len(c.Prices) == 0 {
			continue
		}
		cores, known := coresPerInstance[c.InstanceType]
		if !known || cores <= 0 {
			continue
		}

		perCore := make([]float64, len(c.Prices))
		for i, p := range c.Prices {
			perCore[i] = p / float64(cores)
		}

		if perCore[0] > maxPricePerCore {
			if prev, seen := rejected[c.Zone]; !seen || perCore[0] < prev {
				rejected[c.Zone] = perCore[0]
			}
			continue
		}

		median := priceMedian(perCore)
		if best == nil || median < best.MedianPerCore {
			best = &Choice{
				Region:        c.Region,
				Zone:          c.Zone,
				InstanceType:  c.InstanceType,
				MedianPerCore: median,
			}
		}
	}

	if best == nil {
		return Choice{}, rejected, false
	}
	return *best, rejected, true
}

// priceMedian returns the median of a set of per-core prices. Ties (even
// length) average the two middle values, the conventional median
// definition and the one get_price_median used upstream.
func priceMedian(prices []float64) float64 {
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
