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

// Package cache is the out-of-band Price/Blacklist/AMI cache client, per
// spec §4.1. The reconciler treats it as a read path only: population is a
// background concern (a separate spot-price poller) out of this repo's
// scope, same as the original `update_prices` Celery task in
// original_source/server/ec2spotmanager/tasks.py.
package cache

import (
	"context"
	"fmt"
	"time"
)

// PriceSeries is a price-sampling crawler's recent observations for a
// single instance type, keyed by region then availability zone. Each slice
// is a multi-sample series (most recent first) rather than a single scalar,
// so the selector (spec §4.2) can take a median over recent samples instead
// of reacting to one noisy spot-price tick.
type PriceSeries map[string]map[string][]float64

// PriceClient is the interface the selector (spec §4.2) and the reconciler
// need against the shared Price/Blacklist/AMI cache. Price entries are
// populated by a separate, out-of-scope poller (the original `update_prices`
// Celery task in original_source/server/ec2spotmanager/tasks.py); the
// reconciler itself only ever writes blacklist and AMI entries.
type PriceClient interface {
	// SpotPrices returns the cached price series for an instance type across
	// every region/zone the poller has observed, and whether an entry
	// exists at all.
	SpotPrices(ctx context.Context, instanceType string) (PriceSeries, bool, error)

	// IsBlacklisted reports whether zone/instanceType has been blacklisted
	// (e.g. after a spot request was cancelled or closed unfulfilled).
	IsBlacklisted(ctx context.Context, zone, instanceType string) (bool, error)

	// Blacklist marks zone/instanceType as unavailable for ttl, per spec
	// §4.5.1 (12-hour TTL on a cancelled/closed spot request).
	Blacklist(ctx context.Context, zone, instanceType string, ttl time.Duration) error

	// ImageID returns the cached AMI id resolved for an image name in a
	// region, and whether an entry exists.
	ImageID(ctx context.Context, region, imageName string) (string, bool, error)

	// SetImageID caches a resolved AMI id for ttl, per spec §4.3/§6 (24-hour
	// TTL on ami:<region>:<image_name>).
	SetImageID(ctx context.Context, region, imageName, imageID string, ttl time.Duration) error
}

// priceKey, blacklistKey, and amiKey build the cache's key namespaces. Spec
// §6 fixes these formats; both cache backends share them so tests can run
// against MapCacheClient and production can run against RedisCacheClient
// without behavioral drift.
func priceKey(instanceType string) string {
	return BuildKey(":", "price", instanceType)
}

func blacklistKey(zone, instanceType string) string {
	return BuildKey(":", "blacklist", zone, instanceType)
}

func amiKey(region, imageName string) string {
	return BuildKey(":", "ami", region, imageName)
}

// ErrCacheUnavailable wraps backend errors (Redis connection failures, and
// so on) so callers can distinguish "no price known yet" from "cache is
// down". The reconciler does not freeze a pool on it: a failed price read
// skips that zone, and a failed blacklist read fails the tick.
type ErrCacheUnavailable struct {
	Op  string
	Err error
}

func (e *ErrCacheUnavailable) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *ErrCacheUnavailable) Unwrap() error {
	return e.Err
}

// staleAfter is how long MapCacheClient trusts a cached price; older
// entries are reported as absent. RedisCacheClient does not apply it.
const staleAfter = 15 * time.Minute
