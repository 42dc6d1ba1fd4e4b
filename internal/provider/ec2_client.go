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

package provider

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// RealDialer constructs RealClients bound to a region. Each Connect call
// loads a fresh aws-sdk-go-v2 config; configs are not cached between calls.
type RealDialer struct {
	config      ClientConfig
	endpointURL string
}

// NewRealDialer creates a Dialer that talks to real AWS EC2, or to a
// LocalStack endpoint if endpointURL is non-empty.
func NewRealDialer(config ClientConfig, endpointURL string) (*RealDialer, error) {
	return &RealDialer{config: config, endpointURL: endpointURL}, nil
}

// Connect implements Dialer, per spec §4.3 connect(region, creds).
// coverage:ignore - requires real AWS credentials; no test in this repo calls it
func (d *RealDialer) Connect(ctx context.Context, region string) (Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, Classify(err)
	}

	opts := []func(*ec2.Options){}
	if d.endpointURL != "" {
		endpoint := d.endpointURL
		opts = append(opts, func(o *ec2.Options) {
			o.BaseEndpoint = &endpoint
		})
	}

	return &RealClient{
		client: ec2.NewFromConfig(cfg, opts...),
		region: region,
	}, nil
}

// RealClient is a production implementation of Client backed by
// aws-sdk-go-v2's EC2 service client.
type RealClient struct {
	client *ec2.Client
	region string
}

// ResolveImage implements Client.
// coverage:ignore - requires real AWS credentials; no test in this repo calls it
func (c *RealClient) ResolveImage(ctx context.Context, name string) (string, error) {
	out, err := c.client.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Filters: []types.Filter{
			{Name: awssdk.String("name"), Values: []string{name}},
		},
	})
	if err != nil {
		return "", Classify(err)
	}
	if len(out.Images) == 0 {
		return "", Classify(fmt.Errorf("no image found matching name %q", name))
	}
	return awssdk.ToString(out.Images[0].ImageId), nil
}

// RequestSpot implements Client, per spec §4.3 request_spot.
// coverage:ignore - requires real AWS credentials; no test in this repo calls it
func (c *RealClient) RequestSpot(ctx context.Context, spec SpotRequestSpec, bidTotal float64, count int, timeout time.Duration) ([]string, error) {
	validUntil := time.Now().Add(timeout)
	input := &ec2.RequestSpotInstancesInput{
		SpotPrice:                    awssdk.String(fmt.Sprintf("%.6f", bidTotal)),
		InstanceCount:                awssdk.Int32(int32(count)),
		Type:                         types.SpotInstanceTypeOneTime,
		ValidUntil:                   awssdk.Time(validUntil),
		InstanceInterruptionBehavior: types.InstanceInterruptionBehaviorTerminate,
		LaunchSpecification: &types.RequestSpotLaunchSpecification{
			ImageId:        awssdk.String(spec.ImageID),
			InstanceType:   types.InstanceType(spec.InstanceType),
			KeyName:        awssdk.String(spec.Image.KeyName),
			SecurityGroups: spec.Image.SecurityGroups,
			Placement: &types.SpotPlacement{
				AvailabilityZone: awssdk.String(spec.Zone),
			},
		},
	}
	if len(spec.Image.UserData) > 0 {
		input.LaunchSpecification.UserData = awssdk.String(string(spec.Image.UserData))
	}

	out, err := c.client.RequestSpotInstances(ctx, input)
	if err != nil {
		return nil, Classify(err)
	}

	ids := make([]string, 0, len(out.SpotInstanceRequests))
	for _, r := range out.SpotInstanceRequests {
		ids = append(ids, awssdk.ToString(r.SpotInstanceRequestId))
	}
	return ids, nil
}

// CheckSpotRequests implements Client, per spec §4.3/§4.5.1.
// coverage:ignore - requires real AWS credentials; no test in this repo calls it
func (c *RealClient) CheckSpotRequests(ctx context.Context, requestIDs []string, tags map[string]string) ([]Outcome, error) {
	if len(requestIDs) == 0 {
		return nil, nil
	}

	out, err := c.client.DescribeSpotInstanceRequests(ctx, &ec2.DescribeSpotInstanceRequestsInput{
		SpotInstanceRequestIds: requestIDs,
	})
	if err != nil {
		return nil, Classify(err)
	}

	outcomes := make([]Outcome, 0, len(out.SpotInstanceRequests))
	for _, r := range out.SpotInstanceRequests {
		reqID := awssdk.ToString(r.SpotInstanceRequestId)
		if r.InstanceId != nil && *r.InstanceId != "" {
			outcome, err := c.describeFulfilled(ctx, reqID, awssdk.ToString(r.InstanceId), tags)
			if err != nil {
				return nil, err
			}
			outcomes = append(outcomes, outcome)
			continue
		}

		switch r.State {
		case types.SpotInstanceStateCancelled:
			outcomes = append(outcomes, Outcome{RequestID: reqID, Kind: OutcomeTerminalCancelled})
		case types.SpotInstanceStateClosed:
			outcomes = append(outcomes, Outcome{RequestID: reqID, Kind: OutcomeTerminalClosed})
		case types.SpotInstanceStateFailed:
			outcomes = append(outcomes, Outcome{RequestID: reqID, Kind: OutcomeTerminalFailed})
		case types.SpotInstanceStateOpen:
			outcomes = append(outcomes, Outcome{RequestID: reqID, Kind: OutcomeTransientOpen})
		case types.SpotInstanceStateActive:
			outcomes = append(outcomes, Outcome{RequestID: reqID, Kind: OutcomeTransientActive})
		default:
			outcomes = append(outcomes, Outcome{RequestID: reqID, Kind: OutcomePending})
		}
	}
	return outcomes, nil
}

func (c *RealClient) describeFulfilled(ctx context.Context, reqID, instanceID string, tags map[string]string) (Outcome, error) {
	out, err := c.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}})
	if err != nil {
		return Outcome{}, Classify(err)
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return Outcome{RequestID: reqID, Kind: OutcomePending}, nil
	}
	inst := out.Reservations[0].Instances[0]

	if len(tags) > 0 {
		ec2Tags := make([]types.Tag, 0, len(tags))
		for k, v := range tags {
			ec2Tags = append(ec2Tags, types.Tag{Key: awssdk.String(k), Value: awssdk.String(v)})
		}
		if _, err := c.client.CreateTags(ctx, &ec2.CreateTagsInput{
			Resources: []string{instanceID},
			Tags:      ec2Tags,
		}); err != nil {
			return Outcome{}, Classify(err)
		}
	}

	return Outcome{
		RequestID:  reqID,
		Kind:       OutcomeFulfilled,
		InstanceID: instanceID,
		Hostname:   awssdk.ToString(inst.PrivateDnsName),
		StateCode:  StripHighByte(int(awssdk.ToInt32(inst.State.Code))),
	}, nil
}

// Find implements Client, per spec §4.3/§4.5.1 find(filter).
// coverage:ignore - requires real AWS credentials; no test in this repo calls it
func (c *RealClient) Find(ctx context.Context, filter Filter) ([]Instance, error) {
	input := &ec2.DescribeInstancesInput{}
	if len(filter.InstanceIDs) > 0 {
		input.InstanceIds = filter.InstanceIDs
	}
	for k, v := range filter.Tags {
		input.Filters = append(input.Filters, types.Filter{
			Name:   awssdk.String("tag:" + k),
			Values: []string{v},
		})
	}

	var results []Instance
	paginator := ec2.NewDescribeInstancesPaginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, Classify(err)
		}
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				results = append(results, convertInstance(inst, c.region))
			}
		}
	}
	return results, nil
}

// Terminate implements Client.
// coverage:ignore - requires real AWS credentials; no test in this repo calls it
func (c *RealClient) Terminate(ctx context.Context, instanceIDs []string) error {
	if len(instanceIDs) == 0 {
		return nil
	}
	_, err := c.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: instanceIDs})
	if err != nil {
		return Classify(err)
	}
	return nil
}

func convertInstance(inst types.Instance, region string) Instance {
	tags := make(map[string]string, len(inst.Tags))
	for _, t := range inst.Tags {
		if t.Key != nil && t.Value != nil {
			tags[awssdk.ToString(t.Key)] = awssdk.ToString(t.Value)
		}
	}

	var zone string
	if inst.Placement != nil {
		zone = awssdk.ToString(inst.Placement.AvailabilityZone)
	}

	var launchTime time.Time
	if inst.LaunchTime != nil {
		launchTime = *inst.LaunchTime
	}

	return Instance{
		InstanceID: awssdk.ToString(inst.InstanceId),
		Region:     region,
		Zone:       zone,
		Hostname:   awssdk.ToString(inst.PrivateDnsName),
		StateCode:  StripHighByte(int(awssdk.ToInt32(inst.State.Code))),
		Tags:       tags,
		Created:    launchTime,
	}
}
