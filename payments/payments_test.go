package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v72"
)

func TestDeclineCodePrefersNetworkCode(t *testing.T) {
	// insufficient_funds arrives as a decline code under a generic
	// card_declined error code
	err := &stripe.Error{
		Code:        stripe.ErrorCodeCardDeclined,
		DeclineCode: "insufficient_funds",
	}
	assert.Equal(t, "insufficient_funds", DeclineCode(err))
}

func TestDeclineCodeFallsBackToErrorCode(t *testing.T) {
	err := &stripe.Error{Code: stripe.ErrorCodeExpiredCard}
	assert.Equal(t, "expired_card", DeclineCode(err))
}
