package orders

import (
	"testing"

	"enroll-middleware/checkout"
	"enroll-middleware/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeeSelectionsRoundTrip(t *testing.T) {
	fees := map[string][]int{
		"child-1": {1},
		"child-2": {1, 2},
	}
	encoded, err := feesToJSON(fees)
	require.NoError(t, err)
	decoded, err := feesFromJSON(encoded)
	require.NoError(t, err)
	assert.Equal(t, fees, decoded)
}

func TestFeeSelectionsEmptyColumn(t *testing.T) {
	decoded, err := feesFromJSON("")
	require.NoError(t, err)
	assert.Nil(t, decoded)

	decoded, err = feesFromJSON("null")
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestPriceIncludesOptionalFeeSelections(t *testing.T) {
	store := NewStore("", nil, 0, nil)
	class := &models.ClassOffering{
		ID:         "class-1",
		PriceCents: 10000,
		CustomFees: []models.CustomFee{
			{Name: "Uniform", AmountCents: 2500},
			{Name: "Team Photos", AmountCents: 1500, IsOptional: true},
		},
	}
	in := checkout.CreateOrderInput{
		ClassID:     "class-1",
		ChildIDs:    []string{"child-1"},
		FeesByChild: map[string][]int{"child-1": {1}},
	}

	withFees, _, err := store.price(class, in, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(14000), withFees.SubtotalCents)

	// a lost selection prices the same order 1500 cents lower
	in.FeesByChild = nil
	withoutFees, _, err := store.price(class, in, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(12500), withoutFees.SubtotalCents)
}
