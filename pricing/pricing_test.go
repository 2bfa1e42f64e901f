package pricing

import (
	"testing"
	"time"

	"enroll-middleware/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiblingDiscountTiers(t *testing.T) {
	// the table caps at the last tier, it never extrapolates
	expected := map[int]float64{1: 0, 2: 0.25, 3: 0.35, 4: 0.45, 5: 0.45, 10: 0.45}
	for position, want := range expected {
		rate, err := DefaultSiblingTiers.Rate(position)
		require.NoError(t, err)
		assert.Equal(t, want, rate, "position %v", position)
	}
}

func TestSiblingDiscountRateRejectsBadPosition(t *testing.T) {
	for _, position := range []int{0, -1} {
		_, err := DefaultSiblingTiers.Rate(position)
		require.Error(t, err)
		assert.IsType(t, &ValidationError{}, err)
	}
}

func TestSiblingDiscountInjectableTable(t *testing.T) {
	custom := TierTable{0, 0.10}
	rate, err := custom.Rate(3)
	require.NoError(t, err)
	assert.Equal(t, 0.10, rate)
}

func TestComputeLineItemsSingleChild(t *testing.T) {
	items, err := ComputeLineItems(15000, []string{"child-a"}, DefaultSiblingTiers)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Position)
	assert.Equal(t, float64(0), items[0].DiscountRate)
	assert.Equal(t, int64(0), items[0].DiscountCents)
	assert.Equal(t, int64(15000), items[0].TotalCents)
}

func TestComputeLineItemsThreeChildren(t *testing.T) {
	items, err := ComputeLineItems(10000, []string{"a", "b", "c"}, DefaultSiblingTiers)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, int64(10000), items[0].TotalCents)
	assert.Equal(t, int64(7500), items[1].TotalCents)
	assert.Equal(t, int64(6500), items[2].TotalCents)
	assert.Equal(t, int64(24000), LineItemsTotal(items))
}

func TestComputeLineItemsRejectsNegativePrice(t *testing.T) {
	_, err := ComputeLineItems(-100, []string{"a"}, DefaultSiblingTiers)
	require.Error(t, err)
	assert.IsType(t, &ValidationError{}, err)
}

func TestComputeFeesTotal(t *testing.T) {
	fees := []models.CustomFee{
		{Name: "uniform", AmountCents: 2500, IsOptional: false},
		{Name: "photos", AmountCents: 1500, IsOptional: true},
		{Name: "snack", AmountCents: 500, IsOptional: true},
	}
	childIDs := []string{"a", "b"}
	selected := map[string][]int{
		"a": {1},
		"b": {1, 2},
	}
	total, err := ComputeFeesTotal(fees, childIDs, selected)
	require.NoError(t, err)
	// required uniform fee twice, photos twice, snack once
	assert.Equal(t, int64(2*2500+2*1500+500), total)
}

func TestComputeFeesTotalSkipsRequiredInSelection(t *testing.T) {
	fees := []models.CustomFee{{Name: "uniform", AmountCents: 2500}}
	total, err := ComputeFeesTotal(fees, []string{"a"}, map[string][]int{"a": {0}})
	require.NoError(t, err)
	// index 0 is a required fee, counted once and never doubled
	assert.Equal(t, int64(2500), total)
}

func TestComputeFeesTotalRejectsBadIndex(t *testing.T) {
	fees := []models.CustomFee{{Name: "photos", AmountCents: 1500, IsOptional: true}}
	_, err := ComputeFeesTotal(fees, []string{"a"}, map[string][]int{"a": {5}})
	require.Error(t, err)
	assert.IsType(t, &ValidationError{}, err)
}

func TestComputeFeesTotalRejectsNegativeFee(t *testing.T) {
	fees := []models.CustomFee{{Name: "bad", AmountCents: -100}}
	_, err := ComputeFeesTotal(fees, []string{"a"}, nil)
	require.Error(t, err)
	assert.IsType(t, &ValidationError{}, err)
}

func TestComputeOrderTotalIdempotent(t *testing.T) {
	params := TotalParams{
		LineItemsTotalCents:  24000,
		FeesTotalCents:       3000,
		Discount:             &models.Discount{Type: models.DiscountPercentage, Value: 10},
		ProcessingFeePercent: 2.9,
	}
	first, err := ComputeOrderTotal(params)
	require.NoError(t, err)
	second, err := ComputeOrderTotal(params)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestComputeOrderTotalPercentageDiscount(t *testing.T) {
	b, err := ComputeOrderTotal(TotalParams{
		LineItemsTotalCents:  10000,
		Discount:             &models.Discount{Type: models.DiscountPercentage, Value: 25},
		ProcessingFeePercent: 2.9,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), b.SubtotalCents)
	assert.Equal(t, int64(2500), b.DiscountCents)
	assert.Equal(t, int64(218), b.ProcessingFeeCents) // 2.9% of 7500, rounded
	assert.Equal(t, int64(7718), b.TotalCents)
}

func TestComputeOrderTotalFixedDiscountClampsAtZero(t *testing.T) {
	b, err := ComputeOrderTotal(TotalParams{
		LineItemsTotalCents:  3000,
		Discount:             &models.Discount{Type: models.DiscountFixed, Value: 5000},
		ProcessingFeePercent: 2.9,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.ProcessingFeeCents)
	assert.Equal(t, int64(0), b.TotalCents)
}

func TestComputeOrderTotalProcessingFee(t *testing.T) {
	b, err := ComputeOrderTotal(TotalParams{
		LineItemsTotalCents:  15000,
		ProcessingFeePercent: 2.9,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15000), b.SubtotalCents)
	assert.Equal(t, int64(435), b.ProcessingFeeCents)
	assert.Equal(t, int64(15435), b.TotalCents)
}

func TestComputeOrderTotalBackendOverride(t *testing.T) {
	// the server total is authoritative; the local math is an estimate
	b, err := ComputeOrderTotal(TotalParams{
		LineItemsTotalCents:       15000,
		ProcessingFeePercent:      2.9,
		BackendTotalCents:         15500,
		BackendProcessingFeeCents: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15500), b.TotalCents)
	assert.Equal(t, int64(500), b.ProcessingFeeCents)
}

func TestComputeOrderTotalRejectsUnknownDiscountType(t *testing.T) {
	_, err := ComputeOrderTotal(TotalParams{
		LineItemsTotalCents: 1000,
		Discount:            &models.Discount{Type: "bogus", Value: 10},
	})
	require.Error(t, err)
	assert.IsType(t, &ValidationError{}, err)
}

func TestComputeInstallmentPreview(t *testing.T) {
	start := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	schedule, err := ComputeInstallmentPreview(10000, 3, start)
	require.NoError(t, err)
	require.Len(t, schedule, 3)
	// remainder cents ride on the first installment
	assert.Equal(t, int64(3334), schedule[0].AmountCents)
	assert.Equal(t, int64(3333), schedule[1].AmountCents)
	assert.Equal(t, int64(3333), schedule[2].AmountCents)
	var sum int64
	for i, inst := range schedule {
		sum += inst.AmountCents
		assert.Equal(t, i+1, inst.Index)
		assert.Equal(t, start.AddDate(0, i, 0), inst.DueDate)
	}
	assert.Equal(t, int64(10000), sum)
}

func TestComputeInstallmentPreviewRejectsBadCount(t *testing.T) {
	_, err := ComputeInstallmentPreview(10000, 0, time.Now())
	require.Error(t, err)
	assert.IsType(t, &ValidationError{}, err)
}
