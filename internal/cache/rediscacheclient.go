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
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCacheClient is the production PriceClient, backed by the shared
// Redis instance the (out-of-scope) price poller writes to. Key formats
// follow priceKey/blacklistKey/amiKey so a RedisCacheClient and a
// MapCacheClient are interchangeable in tests.
type RedisCacheClient struct {
	rdb *redis.Client
}

// NewRedisCacheClient wraps an already-configured go-redis client. Callers
// own the client's lifecycle (redis.NewClient + Close).
func NewRedisCacheClient(rdb *redis.Client) *RedisCacheClient {
	return &RedisCacheClient{rdb: rdb}
}

// SpotPrices reads the price-sampling crawler's series for instanceType.
// The value is the raw JSON object the crawler writes directly (spec §6:
// price:<instance_type> -> {region: {zone: [sample, sample, ...]}}), with
// no wrapping envelope, so this system and the crawler agree on the wire
// format without needing to coordinate beyond the key/value contract.
func (c *RedisCacheClient) SpotPrices(ctx context.Context, instanceType string) (PriceSeries, bool, error) {
	raw, err := c.rdb.Get(ctx, priceKey(instanceType)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &ErrCacheUnavailable{Op: "get spot price series", Err: err}
	}
	var series PriceSeries
	if err := json.Unmarshal([]byte(raw), &series); err != nil {
		return nil, false, &ErrCacheUnavailable{Op: "parse spot price series", Err: err}
	}
	return series, true, nil
}

func (c *RedisCacheClient) IsBlacklisted(ctx context.Context, zone, instanceType string) (bool, error) {
	exists, err := c.rdb.Exists(ctx, blacklistKey(zone, instanceType)).Result()
	if err != nil {
		return false, &ErrCacheUnavailable{Op: "check blacklist", Err: err}
	}
	return exists > 0, nil
}

func (c *RedisCacheClient) ImageID(ctx context.Context, region, imageName string) (string, bool, error) {
	id, err := c.rdb.Get(ctx, amiKey(region, imageName)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &ErrCacheUnavailable{Op: "get ami id", Err: err}
	}
	return id, true, nil
}

func (c *RedisCacheClient) Blacklist(ctx context.Context, zone, instanceType string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, blacklistKey(zone, instanceType), "1", ttl).Err(); err != nil {
		return &ErrCacheUnavailable{Op: "set blacklist", Err: err}
	}
	return nil
}

func (c *RedisCacheClient) SetImageID(ctx context.Context, region, imageName, imageID string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, amiKey(region, imageName), imageID, ttl).Err(); err != nil {
		return &ErrCacheUnavailable{Op: "set ami id", Err: err}
	}
	return nil
}
