// Package gcp implements the Google Cloud pricing source. Machine types come
// from the Compute Engine API; prices are derived from the per-family vCPU
// and RAM SKUs of the Cloud Billing catalog.
package gcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/cirrus/pkg/pricing"
	"github.com/cuemby/cirrus/pkg/types"
)

// Resource groups of the billing SKUs used for pricing
const (
	ResourceCPU = "CPU"
	ResourceRAM = "RAM"
)

// maxDescriptionWords drops SKUs for sole-tenancy, commitments and other
// long-named variants of the plain on-demand rates
const maxDescriptionWords = 7

// MachineTypeInfo is a zone machine type as reported by the Compute API
type MachineTypeInfo struct {
	Name     string
	CPUs     int32
	MemoryMB int32
}

// SKU is the subset of a Cloud Billing SKU used for pricing
type SKU struct {
	Description   string
	UsageType     string
	ResourceGroup string
	Regions       []string
	// UnitPrice is the last tiered rate in USD per unit-hour
	UnitPrice float64
}

// API is the Google Cloud surface the source depends on
type API interface {
	ListMachineTypes(ctx context.Context, project, zone string) ([]MachineTypeInfo, error)
	ListComputeSKUs(ctx context.Context) ([]SKU, error)
}

// Config locates the project and zone whose catalog is priced
type Config struct {
	Project string
	Region  string
	Zone    string
}

// Source is the GCP pricing source
type Source struct {
	pricing.MachineSet
	api    API
	cfg    Config
	pool   *pricing.FlavorPool
	logger zerolog.Logger
}

// NewSource creates a GCP pricing source
func NewSource(api API, cfg Config, pool *pricing.FlavorPool, logger zerolog.Logger) *Source {
	return &Source{api: api, cfg: cfg, pool: pool, logger: logger}
}

func (s *Source) Provider() types.Provider {
	return types.ProviderGCP
}

// Refresh lists machine types in the zone, fetches the billing SKUs and
// prices every pooled machine type as vCPU×cpuRate + GiB×ramRate
func (s *Source) Refresh(ctx context.Context) error {
	infos, err := s.api.ListMachineTypes(ctx, s.cfg.Project, s.cfg.Zone)
	if err != nil {
		return fmt.Errorf("failed to list machine types: %w", err)
	}

	families := make(map[string][]MachineTypeInfo)
	for _, info := range infos {
		if !s.pool.Allows(types.ProviderGCP, info.Name) {
			continue
		}
		family := Family(info.Name)
		families[family] = append(families[family], info)
	}
	if len(families) == 0 {
		return fmt.Errorf("zone %s: %w", s.cfg.Zone, pricing.ErrNoMachineTypes)
	}

	skus, err := s.api.ListComputeSKUs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list billing SKUs: %w", err)
	}
	rates := FamilyRates(skus, s.cfg.Region, families)

	var out []types.MachineType
	for family, members := range families {
		rate, ok := rates[family]
		if !ok || !rate.complete() {
			s.logger.Warn().Str("family", family).Msg("No on-demand CPU/RAM rate for machine family, skipping")
			continue
		}
		for _, info := range members {
			out = append(out, rate.price(info))
		}
	}
	if len(out) == 0 {
		return fmt.Errorf("region %s: %w", s.cfg.Region, pricing.ErrNoMachineTypes)
	}

	s.Set(out)
	return nil
}

// Family returns the machine family of a type name: "e2-standard-4" → "e2"
func Family(machineType string) string {
	family, _, _ := strings.Cut(machineType, "-")
	return strings.ToLower(family)
}

// Rate is the on-demand hourly price of one vCPU and one GiB of RAM
type Rate struct {
	CPU    float64
	RAM    float64
	hasCPU bool
	hasRAM bool
}

func (r Rate) complete() bool {
	return r.hasCPU && r.hasRAM
}

func (r Rate) price(info MachineTypeInfo) types.MachineType {
	cpu := float64(info.CPUs)
	ram := float64(info.MemoryMB) / 1024
	return types.MachineType{
		Provider: types.ProviderGCP,
		Name:     info.Name,
		CPU:      cpu,
		RAM:      ram,
		Price:    cpu*r.CPU + ram*r.RAM,
	}
}

// FamilyRates extracts per-family rates from SKUs. Only OnDemand SKUs
// offered in the region whose description mentions "Instance Core" or
// "Instance Ram" and has at most seven words are considered. The family is
// the first word of the description, lower-cased; families not in wanted
// are ignored.
func FamilyRates(skus []SKU, region string, wanted map[string][]MachineTypeInfo) map[string]Rate {
	rates := make(map[string]Rate)
	for _, sku := range skus {
		if !eligible(sku, region) {
			continue
		}
		words := strings.Fields(sku.Description)
		family := strings.ToLower(words[0])
		if _, ok := wanted[family]; !ok {
			continue
		}

		rate := rates[family]
		switch sku.ResourceGroup {
		case ResourceCPU:
			rate.CPU, rate.hasCPU = sku.UnitPrice, true
		case ResourceRAM:
			rate.RAM, rate.hasRAM = sku.UnitPrice, true
		default:
			continue
		}
		rates[family] = rate
	}
	return rates
}

func eligible(sku SKU, region string) bool {
	if sku.UsageType != "OnDemand" {
		return false
	}
	if !strings.Contains(sku.Description, "Instance Core") && !strings.Contains(sku.Description, "Instance Ram") {
		return false
	}
	words := strings.Fields(sku.Description)
	if len(words) == 0 || len(words) > maxDescriptionWords {
		return false
	}
	for _, r := range sku.Regions {
		if r == region {
			return true
		}
	}
	return false
}
