// Package aws implements the AWS pricing source: instance shapes come from
// EC2 DescribeInstanceTypes and hourly prices from a built-in on-demand
// rate table.
package aws

import (
	"context"
	"fmt"
	"sort"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"

	"github.com/cuemby/cirrus/pkg/pricing"
	"github.com/cuemby/cirrus/pkg/types"
)

// describeBatch is the largest instance type filter EC2 accepts per call
const describeBatch = 100

// Source is the AWS pricing source
type Source struct {
	pricing.MachineSet
	api    ec2.DescribeInstanceTypesAPIClient
	region string
	pool   *pricing.FlavorPool
	logger zerolog.Logger
}

// NewSource creates an AWS pricing source over an EC2 client
func NewSource(api ec2.DescribeInstanceTypesAPIClient, region string, pool *pricing.FlavorPool, logger zerolog.Logger) *Source {
	return &Source{api: api, region: region, pool: pool, logger: logger}
}

// NewEC2Client builds an EC2 client from the default credential chain
func NewEC2Client(ctx context.Context, region string) (*ec2.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return ec2.NewFromConfig(cfg), nil
}

func (s *Source) Provider() types.Provider {
	return types.ProviderAWS
}

// Refresh describes the candidate instance types and prices those with a
// known on-demand rate in the region
func (s *Source) Refresh(ctx context.Context) error {
	rates, ok := onDemandRates[s.region]
	if !ok {
		return fmt.Errorf("no on-demand rates for region %s: %w", s.region, pricing.ErrNoMachineTypes)
	}

	candidates := s.pool.Names(types.ProviderAWS)
	if candidates == nil {
		for name := range rates {
			candidates = append(candidates, name)
		}
		sort.Strings(candidates)
	}

	infos, err := s.describe(ctx, candidates)
	if err != nil {
		return fmt.Errorf("failed to describe instance types: %w", err)
	}

	var out []types.MachineType
	for _, info := range infos {
		name := string(info.InstanceType)
		price, ok := rates[name]
		if !ok {
			s.logger.Warn().Str("machine_type", name).Msg("No on-demand rate for instance type, skipping")
			continue
		}
		out = append(out, types.MachineType{
			Provider: types.ProviderAWS,
			Name:     name,
			CPU:      float64(awssdk.ToInt32(info.VCpuInfo.DefaultVCpus)),
			RAM:      float64(awssdk.ToInt64(info.MemoryInfo.SizeInMiB)) / 1024,
			Price:    price,
		})
	}
	if len(out) == 0 {
		return fmt.Errorf("region %s: %w", s.region, pricing.ErrNoMachineTypes)
	}

	s.Set(out)
	return nil
}

func (s *Source) describe(ctx context.Context, names []string) ([]ec2types.InstanceTypeInfo, error) {
	var infos []ec2types.InstanceTypeInfo
	for start := 0; start < len(names); start += describeBatch {
		end := min(start+describeBatch, len(names))

		filter := make([]ec2types.InstanceType, 0, end-start)
		for _, n := range names[start:end] {
			filter = append(filter, ec2types.InstanceType(n))
		}

		paginator := ec2.NewDescribeInstanceTypesPaginator(s.api, &ec2.DescribeInstanceTypesInput{
			InstanceTypes: filter,
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			for _, info := range page.InstanceTypes {
				if info.VCpuInfo == nil || info.MemoryInfo == nil {
					continue
				}
				infos = append(infos, info)
			}
		}
	}
	return infos, nil
}
