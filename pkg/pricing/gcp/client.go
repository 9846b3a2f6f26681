package gcp

import (
	"context"
	"errors"
	"fmt"

	billing "cloud.google.com/go/billing/apiv1"
	"cloud.google.com/go/billing/apiv1/billingpb"
	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// computeServiceName is the Cloud Billing display name of Compute Engine
const computeServiceName = "Compute Engine"

// Client implements API with the Compute and Cloud Billing clients
type Client struct {
	machineTypes *compute.MachineTypesClient
	catalog      *billing.CloudCatalogClient
}

// NewClient creates API clients. An empty credentialsFile uses application
// default credentials.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	mt, err := compute.NewMachineTypesRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create machine types client: %w", err)
	}
	catalog, err := billing.NewCloudCatalogClient(ctx, opts...)
	if err != nil {
		mt.Close()
		return nil, fmt.Errorf("failed to create billing catalog client: %w", err)
	}
	return &Client{machineTypes: mt, catalog: catalog}, nil
}

// Close releases both clients
func (c *Client) Close() error {
	return errors.Join(c.machineTypes.Close(), c.catalog.Close())
}

// ListMachineTypes lists every machine type offered in a zone
func (c *Client) ListMachineTypes(ctx context.Context, project, zone string) ([]MachineTypeInfo, error) {
	it := c.machineTypes.List(ctx, &computepb.ListMachineTypesRequest{
		Project: project,
		Zone:    zone,
	})

	var out []MachineTypeInfo
	for {
		mt, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, MachineTypeInfo{
			Name:     mt.GetName(),
			CPUs:     mt.GetGuestCpus(),
			MemoryMB: mt.GetMemoryMb(),
		})
	}
	return out, nil
}

// ListComputeSKUs lists the SKUs of the Compute Engine billing service
func (c *Client) ListComputeSKUs(ctx context.Context) ([]SKU, error) {
	service, err := c.computeService(ctx)
	if err != nil {
		return nil, err
	}

	it := c.catalog.ListSkus(ctx, &billingpb.ListSkusRequest{Parent: service})
	var out []SKU
	for {
		sku, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, SKU{
			Description:   sku.GetDescription(),
			UsageType:     sku.GetCategory().GetUsageType(),
			ResourceGroup: sku.GetCategory().GetResourceGroup(),
			Regions:       sku.GetServiceRegions(),
			UnitPrice:     lastTieredRate(sku),
		})
	}
	return out, nil
}

func (c *Client) computeService(ctx context.Context) (string, error) {
	it := c.catalog.ListServices(ctx, &billingpb.ListServicesRequest{})
	for {
		svc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", err
		}
		if svc.GetDisplayName() == computeServiceName {
			return svc.GetName(), nil
		}
	}
	return "", fmt.Errorf("billing service %q not found", computeServiceName)
}

func lastTieredRate(sku *billingpb.Sku) float64 {
	var amount float64
	for _, info := range sku.GetPricingInfo() {
		for _, tier := range info.GetPricingExpression().GetTieredRates() {
			price := tier.GetUnitPrice()
			amount = float64(price.GetUnits()) + float64(price.GetNanos())/1e9
		}
	}
	return amount
}
