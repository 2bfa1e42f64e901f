// Package payments is the Stripe-backed payment service: it creates a
// PaymentIntent for a priced order and confirms it with the payment
// method collected by the card form. Decline details come back as a
// PaymentResult, not an error, so the session can map them for the
// user.
package payments

import (
	"context"
	"fmt"
	"log"

	"enroll-middleware/checkout"
	"enroll-middleware/models"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

type Stripe struct {
	secretKey string
	currency  string
}

func NewStripe(secretKey, currency string) *Stripe {
	if currency == "" {
		currency = "usd"
	}
	return &Stripe{secretKey: secretKey, currency: currency}
}

func (s *Stripe) api() *client.API {
	sc := &client.API{}
	sc.Init(s.secretKey, nil)
	return sc
}

// https://stripe.com/docs/api/payment_intents/create
func (s *Stripe) CreateIntent(ctx context.Context, in checkout.CreateIntentInput) (*models.PaymentIntent, error) {
	sc := s.api()
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.AmountCents),
		Currency: stripe.String(s.currency),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
	}
	params.Context = ctx
	params.AddMetadata("order_id", in.OrderID)
	params.AddMetadata("payment_method", string(in.PaymentMethod))
	if in.InstallmentPlan != nil {
		params.AddMetadata("installment_count", fmt.Sprintf("%v", in.InstallmentPlan.Count))
		params.AddMetadata("installment_amount_cents", fmt.Sprintf("%v", in.InstallmentPlan.AmountPerMonthCents))
	}
	if in.PaymentMethod == checkout.PaySubscribe {
		params.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession))
	}

	intent, err := sc.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent for order %v: %v", in.OrderID, err.Error())
	}
	log.Printf("created payment intent %v for order %v", intent.ID, in.OrderID)
	return &models.PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// https://stripe.com/docs/api/payment_intents/confirm
func (s *Stripe) Confirm(ctx context.Context, in checkout.ConfirmInput) (*models.PaymentResult, error) {
	sc := s.api()
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(in.PaymentMethodID),
	}
	params.Context = ctx

	intent, err := sc.PaymentIntents.Confirm(in.PaymentIntentID, params)
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok {
			return &models.PaymentResult{
				Success: false,
				Code:    DeclineCode(stripeErr),
				Message: stripeErr.Msg,
			}, nil
		}
		return nil, fmt.Errorf("failed to confirm payment intent %v: %v", in.PaymentIntentID, err.Error())
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture:
		return &models.PaymentResult{Success: true}, nil
	default:
		return &models.PaymentResult{
			Success: false,
			Code:    string(intent.Status),
			Message: fmt.Sprintf("payment intent %v is in state %v", intent.ID, intent.Status),
		}, nil
	}
}

// DeclineCode picks the most specific code off a Stripe error: the
// card network's decline code when present (insufficient_funds and
// friends ride there under a generic card_declined error code),
// otherwise the error code itself.
func DeclineCode(stripeErr *stripe.Error) string {
	if stripeErr.DeclineCode != "" {
		return string(stripeErr.DeclineCode)
	}
	return string(stripeErr.Code)
}
