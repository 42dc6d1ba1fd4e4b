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

package cache

import (
	"context"
	"time"
)

// expiring wraps a value with the instant it stops being valid, the
// MapCache-backed analogue of a Redis key TTL.
type expiring[T any] struct {
	value   T
	expires time.Time
}

// timestampedSeries wraps a PriceSeries with the instant it was last
// written, the MapCache-backed analogue of the Redis key's own natural
// recency (a crawler that stops running just leaves a stale blob behind).
type timestampedSeries struct {
	series    PriceSeries
	timestamp time.Time
}

// MapCacheClient is an in-memory PriceClient backed by MapCache, used by
// unit and Ginkgo end-to-end tests in place of Redis. It embeds three
// independent MapCache instances rather than one combined map so each
// namespace (price, blacklist, AMI) keeps its own staleness/update tracking,
// matching how BaseCache-derived caches are composed elsewhere in this tree.
type MapCacheClient struct {
	prices    *MapCache[timestampedSeries]
	blacklist *MapCache[expiring[bool]]
	images    *MapCache[expiring[string]]
}

// NewMapCacheClient creates an empty in-memory cache client.
func NewMapCacheClient() *MapCacheClient {
	return &MapCacheClient{
		prices:    NewMapCache[timestampedSeries](),
		blacklist: NewMapCache[expiring[bool]](),
		images:    NewMapCache[expiring[string]](),
	}
}

// SeedSpotPrice installs or extends a price series entry for instanceType,
// merging into whatever region/zone samples are already cached. Test
// fixtures and the (out-of-scope) price-sampling crawler use this to
// populate the cache; production code only ever reads SpotPrices.
func (c *MapCacheClient) SeedSpotPrice(instanceType, region, zone string, prices []float64) {
	entry, ok := c.prices.Get(priceKey(instanceType))
	if !ok {
		entry = timestampedSeries{series: PriceSeries{}}
	}
	if entry.series[region] == nil {
		entry.series[region] = make(map[string][]float64)
	}
	entry.series[region][zone] = prices
	entry.timestamp = time.Now()
	c.prices.Set(priceKey(instanceType), entry)
}

func (c *MapCacheClient) SpotPrices(_ context.Context, instanceType string) (PriceSeries, bool, error) {
	entry, ok := c.prices.Get(priceKey(instanceType))
	if !ok || time.Since(entry.timestamp) > staleAfter {
		return nil, false, nil
	}
	return entry.series, true, nil
}

func (c *MapCacheClient) IsBlacklisted(_ context.Context, zone, instanceType string) (bool, error) {
	e, ok := c.blacklist.Get(blacklistKey(zone, instanceType))
	if !ok || time.Now().After(e.expires) {
		return false, nil
	}
	return e.value, nil
}

func (c *MapCacheClient) Blacklist(_ context.Context, zone, instanceType string, ttl time.Duration) error {
	c.blacklist.Set(blacklistKey(zone, instanceType), expiring[bool]{value: true, expires: time.Now().Add(ttl)})
	return nil
}

func (c *MapCacheClient) ImageID(_ context.Context, region, imageName string) (string, bool, error) {
	e, ok := c.images.Get(amiKey(region, imageName))
	if !ok || time.Now().After(e.expires) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *MapCacheClient) SetImageID(_ context.Context, region, imageName, imageID string, ttl time.Duration) error {
	c.images.Set(amiKey(region, imageName), expiring[string]{value: imageID, expires: time.Now().Add(ttl)})
	return nil
}
