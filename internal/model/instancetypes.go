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

package model

// CoresPerInstance is the process-wide, compile-time table mapping an
// instance-type name to its vCPU count, per spec §6. Values are fixed at
// build time and never change at runtime.
var CoresPerInstance = map[string]int{
	"c1.medium":    2,
	"c1.xlarge":    8,
	"c3.2xlarge":   8,
	"c3.4xlarge":   16,
	"c3.8xlarge":   32,
	"c3.large":     2,
	"c3.xlarge":    4,
	"c4.2xlarge":   8,
	"c4.4xlarge":   16,
	"c4.8xlarge":   36,
	"c4.large":     2,
	"c4.xlarge":    4,
	"c5.18xlarge":  72,
	"c5.2xlarge":   8,
	"c5.4xlarge":   16,
	"c5.9xlarge":   36,
	"c5.large":     2,
	"c5.xlarge":    4,
	"c5d.18xlarge": 72,
	"c5d.2xlarge":  8,
	"c5d.4xlarge":  16,
	"c5d.9xlarge":  36,
	"c5d.large":    2,
	"c5d.xlarge":   4,
	"cc2.8xlarge":  32,
	"cr1.8xlarge":  32,
	"d2.2xlarge":   8,
	"d2.4xlarge":   16,
	"d2.8xlarge":   36,
	"d2.xlarge":    4,
	"f1.16xlarge":  64,
	"f1.2xlarge":   8,
	"g2.2xlarge":   8,
	"g2.8xlarge":   32,
	"g3.16xlarge":  64,
	"g3.4xlarge":   16,
	"g3.8xlarge":   32,
	"h1.16xlarge":  64,
	"h1.2xlarge":   8,
	"h1.4xlarge":   16,
	"h1.8xlarge":   32,
	"hs1.8xlarge":  16,
	"i2.2xlarge":   8,
	"i2.4xlarge":   16,
	"i2.8xlarge":   32,
	"i2.xlarge":    4,
	"i3.16xlarge":  64,
	"i3.2xlarge":   8,
	"i3.4xlarge":   16,
	"i3.8xlarge":   32,
	"i3.large":     2,
	"i3.metal":     72,
	"i3.xlarge":    4,
	"m1.large":     2,
	"m1.medium":    1,
	"m1.small":     1,
	"m1.xlarge":    4,
	"m2.2xlarge":   4,
	"m2.4xlarge":   8,
	"m2.xlarge":    2,
	"m3.2xlarge":   8,
	"m3.large":     2,
	"m3.medium":    1,
	"m3.xlarge":    4,
	"m4.10xlarge":  40,
	"m4.16xlarge":  64,
	"m4.2xlarge":   8,
	"m4.4xlarge":   16,
	"m4.large":     2,
	"m4.xlarge":    4,
	"m5.12xlarge":  48,
	"m5.24xlarge":  96,
	"m5.2xlarge":   8,
	"m5.4xlarge":   16,
	"m5.large":     2,
	"m5.xlarge":    4,
	"m5d.12xlarge": 48,
	"m5d.24xlarge": 96,
	"m5d.2xlarge":  8,
	"m5d.4xlarge":  16,
	"m5d.large":    2,
	"m5d.xlarge":   4,
	"p2.16xlarge":  64,
	"p2.8xlarge":   32,
	"p2.xlarge":    4,
	"p3.16xlarge":  64,
	"p3.2xlarge":   8,
	"p3.8xlarge":   32,
	"r3.2xlarge":   8,
	"r3.4xlarge":   16,
	"r3.8xlarge":   32,
	"r3.large":     2,
	"r3.xlarge":    4,
	"r4.16xlarge":  64,
	"r4.2xlarge":   8,
	"r4.4xlarge":   16,
	"r4.8xlarge":   32,
	"r4.large":     2,
	"r4.xlarge":    4,
	"r5.12xlarge":  48,
	"r5.24xlarge":  96,
	"r5.2xlarge":   8,
	"r5.4xlarge":   16,
	"r5.large":     2,
	"r5.xlarge":    4,
	"r5d.12xlarge": 48,
	"r5d.24xlarge": 96,
	"r5d.2xlarge":  8,
	"r5d.4xlarge":  16,
	"r5d.large":    2,
	"r5d.xlarge":   4,
	"t1.micro":     1,
	"t2.2xlarge":   8,
	"t2.large":     2,
	"t2.medium":    2,
	"t2.micro":     1,
	"t2.nano":      1,
	"t2.small":     1,
	"t2.xlarge":    4,
	"x1.16xlarge":  64,
	"x1.32xlarge":  128,
	"x1e.16xlarge": 64,
	"x1e.2xlarge":  8,
	"x1e.32xlarge": 128,
	"x1e.4xlarge":  16,
	"x1e.8xlarge":  32,
	"x1e.xlarge":   4,
	"z1d.12xlarge": 48,
	"z1d.2xlarge":  8,
	"z1d.3xlarge":  12,
	"z1d.6xlarge":  24,
	"z1d.large":    2,
	"z1d.xlarge":   4,
}

// Regions is the closed set of provider regions this system supports.
// Configurations naming a region outside this set must be rejected at
// configuration time, per spec §6.
var Regions = map[string]bool{
	"ap-northeast-1": true,
	"ap-northeast-2": true,
	"ap-south-1":     true,
	"ap-southeast-1": true,
	"ap-southeast-2": true,
	"ca-central-1":   true,
	"eu-central-1":   true,
	"eu-west-1":      true,
	"eu-west-2":      true,
	"eu-west-3":      true,
	"sa-east-1":      true,
	"us-east-1":      true,
	"us-east-2":      true,
	"us-west-1":      true,
	"us-west-2":      true,
}

// SmallestCoreCount returns the minimum vCPU count among the given instance
// types, and the subset of types that attain it. Used by the scale-up
// fallback of spec §4.5.2 step 1 when the deficit is smaller than every
// acceptable instance type.
func SmallestCoreCount(types []string) (int, []string) {
	best := -1
	for _, t := range types {
		if cores, ok := CoresPerInstance[t]; ok {
			if best == -1 || cores < best {
				best = cores
			}
		}
	}
	if best == -1 {
		return 0, nil
	}
	var smallest []string
	for _, t := range types {
		if CoresPerInstance[t] == best {
			smallest = append(smallest, t)
		}
	}
	return best, smallest
}
