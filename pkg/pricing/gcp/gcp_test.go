package gcp

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cirrus/pkg/pricing"
	"github.com/cuemby/cirrus/pkg/types"
)

const region = "australia-southeast1"

type fakeAPI struct {
	machineTypes []MachineTypeInfo
	skus         []SKU
	err          error
}

func (f *fakeAPI) ListMachineTypes(ctx context.Context, project, zone string) ([]MachineTypeInfo, error) {
	return f.machineTypes, f.err
}

func (f *fakeAPI) ListComputeSKUs(ctx context.Context) ([]SKU, error) {
	return f.skus, nil
}

func sku(desc, group string, price float64) SKU {
	return SKU{
		Description:   desc,
		UsageType:     "OnDemand",
		ResourceGroup: group,
		Regions:       []string{region},
		UnitPrice:     price,
	}
}

func testAPI() *fakeAPI {
	return &fakeAPI{
		machineTypes: []MachineTypeInfo{
			{Name: "e2-standard-2", CPUs: 2, MemoryMB: 8192},
			{Name: "e2-standard-4", CPUs: 4, MemoryMB: 16384},
			{Name: "n2-standard-2", CPUs: 2, MemoryMB: 8192},
			{Name: "c3-standard-4", CPUs: 4, MemoryMB: 16384},
		},
		skus: []SKU{
			sku("E2 Instance Core running in Sydney", ResourceCPU, 0.03),
			sku("E2 Instance Ram running in Sydney", ResourceRAM, 0.004),
			sku("N2 Instance Core running in Sydney", ResourceCPU, 0.04),
			sku("N2 Instance Ram running in Sydney", ResourceRAM, 0.005),
			// Too many words: commitment variant
			sku("Commitment v1: N2 Instance Core running in Sydney for 1 year", ResourceCPU, 0.001),
			// Wrong usage type
			{Description: "E2 Instance Core running in Sydney", UsageType: "Preemptible", ResourceGroup: ResourceCPU, Regions: []string{region}, UnitPrice: 0.0001},
			// Wrong region
			{Description: "E2 Instance Ram running in Iowa", UsageType: "OnDemand", ResourceGroup: ResourceRAM, Regions: []string{"us-central1"}, UnitPrice: 0.0001},
			// C3 only has a CPU rate
			sku("C3 Instance Core running in Sydney", ResourceCPU, 0.05),
		},
	}
}

func TestFamily(t *testing.T) {
	assert.Equal(t, "e2", Family("e2-standard-4"))
	assert.Equal(t, "n2d", Family("n2d-highmem-8"))
	assert.Equal(t, "f1", Family("f1"))
}

func TestFamilyRates(t *testing.T) {
	wanted := map[string][]MachineTypeInfo{"e2": nil, "n2": nil, "c3": nil}
	rates := FamilyRates(testAPI().skus, region, wanted)

	require.Contains(t, rates, "e2")
	assert.Equal(t, 0.03, rates["e2"].CPU)
	assert.Equal(t, 0.004, rates["e2"].RAM)
	assert.Equal(t, 0.04, rates["n2"].CPU, "commitment SKU with more than seven words is ignored")
	assert.False(t, rates["c3"].complete())
}

func TestSourceRefresh(t *testing.T) {
	pool := pricing.NewFlavorPool(map[types.Provider][]string{
		types.ProviderGCP: {"e2-standard-2", "e2-standard-4", "n2-standard-2", "c3-standard-4"},
	})
	src := NewSource(testAPI(), Config{Project: "p", Region: region, Zone: region + "-b"}, pool, zerolog.Nop())

	require.NoError(t, src.Refresh(context.Background()))

	mts := src.MachineTypes()
	require.Len(t, mts, 3, "c3 has no RAM rate and is skipped")

	price, err := src.Price("e2-standard-4")
	require.NoError(t, err)
	assert.InDelta(t, 4*0.03+16*0.004, price, 1e-9)

	price, err = src.Price("n2-standard-2")
	require.NoError(t, err)
	assert.InDelta(t, 2*0.04+8*0.005, price, 1e-9)

	_, err = src.Price("c3-standard-4")
	assert.ErrorIs(t, err, pricing.ErrUnknownMachineType)
}

func TestSourceRefreshRespectsPool(t *testing.T) {
	pool := pricing.NewFlavorPool(map[types.Provider][]string{types.ProviderGCP: {"e2-standard-2"}})
	src := NewSource(testAPI(), Config{Region: region}, pool, zerolog.Nop())

	require.NoError(t, src.Refresh(context.Background()))
	mts := src.MachineTypes()
	require.Len(t, mts, 1)
	assert.Equal(t, "e2-standard-2", mts[0].Name)
	assert.Equal(t, 8.0, mts[0].RAM)
}

func TestSourceRefreshErrorKeepsPrevious(t *testing.T) {
	api := testAPI()
	src := NewSource(api, Config{Region: region}, nil, zerolog.Nop())
	require.NoError(t, src.Refresh(context.Background()))
	before := len(src.MachineTypes())

	api.err = errors.New("quota exceeded")
	assert.Error(t, src.Refresh(context.Background()))
	assert.Len(t, src.MachineTypes(), before)
}

func TestSourceRefreshNoPricedTypes(t *testing.T) {
	api := testAPI()
	api.skus = nil
	src := NewSource(api, Config{Region: region}, nil, zerolog.Nop())

	assert.ErrorIs(t, src.Refresh(context.Background()), pricing.ErrNoMachineTypes)
}
