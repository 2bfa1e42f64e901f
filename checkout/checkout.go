// Package checkout owns the per-session enrollment checkout flow:
// class/children lookup, multi-child and fee selection, discount
// handling, order creation, payment intent creation and confirmation.
// Durable side effects (orders, payments, enrollments) all live behind
// the service interfaces; the session itself is in-memory only.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"enroll-middleware/models"
	"enroll-middleware/pricing"
)

// Step is the checkout flow position. Errors during initialization are
// recoverable and leave the step at selection; payment failures move
// the flow to StepError until an explicit retry.
type Step string

const (
	StepSelection    Step = "selection"
	StepPayment      Step = "payment"
	StepProcessing   Step = "processing"
	StepConfirmation Step = "confirmation"
	StepError        Step = "error"
)

type PaymentMethod string

const (
	PayFull         PaymentMethod = "full"
	PaySubscribe    PaymentMethod = "subscribe"
	PayInstallments PaymentMethod = "installments"
)

const msgSelectChild = "Please select at least one child to enroll"
const msgNoOrder = "Please create an order before starting payment"
const msgPaymentFailed = "Payment failed. Please try again."

// paymentErrorMessages maps the processor codes we get often enough to
// care about to friendlier wording. Anything else falls back to the
// raw message, then to the generic default.
var paymentErrorMessages = map[string]string{
	"card_declined":      "Your card was declined. Please try another card.",
	"insufficient_funds": "Insufficient funds. Please try another card.",
	"expired_card":       "Your card has expired. Please use a different card.",
}

// PaymentError carries a processor error code plus its raw message.
type PaymentError struct {
	Code    string
	Message string
}

func (e *PaymentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// CreateOrderInput is everything the order service needs to price and
// record a checkout attempt.
type CreateOrderInput struct {
	ClassID         string                  `json:"class_id"`
	ChildIDs        []string                `json:"child_ids"`
	FeesByChild     map[string][]int        `json:"fees_by_child,omitempty"`
	PaymentMethod   PaymentMethod           `json:"payment_method"`
	DiscountCode    string                  `json:"discount_code,omitempty"`
	InstallmentPlan *models.InstallmentPlan `json:"installment_plan,omitempty"`
}

// CreateIntentInput asks the payment service for an intent bound to an
// existing order.
type CreateIntentInput struct {
	OrderID         string                  `json:"order_id"`
	AmountCents     int64                   `json:"amount_cents"`
	PaymentMethod   PaymentMethod           `json:"payment_method"`
	InstallmentPlan *models.InstallmentPlan `json:"installment_plan,omitempty"`
}

// ConfirmInput carries the card details handle collected by the
// payment form (a processor payment-method id, never raw card data).
type ConfirmInput struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	PaymentMethodID string `json:"payment_method_id"`
}

type EnrollmentInput struct {
	ChildID string `json:"child_id"`
	ClassID string `json:"class_id"`
	OrderID string `json:"order_id"`
}

type ClassService interface {
	GetByID(ctx context.Context, id string) (*models.ClassOffering, error)
	CheckCapacity(ctx context.Context, id string) (bool, error)
}

type ChildrenService interface {
	GetMy(ctx context.Context) ([]models.Child, error)
}

type OrdersService interface {
	Create(ctx context.Context, in CreateOrderInput) (*models.Order, error)
	ApplyDiscount(ctx context.Context, orderID, code string) (*models.Order, error)
	RemoveDiscount(ctx context.Context, orderID string) (*models.Order, error)
}

type PaymentsService interface {
	CreateIntent(ctx context.Context, in CreateIntentInput) (*models.PaymentIntent, error)
	Confirm(ctx context.Context, in ConfirmInput) (*models.PaymentResult, error)
}

type EnrollmentsService interface {
	Create(ctx context.Context, in EnrollmentInput) (*models.Enrollment, error)
}

// Services bundles the external collaborators a session talks to.
type Services struct {
	Classes     ClassService
	Children    ChildrenService
	Orders      OrdersService
	Payments    PaymentsService
	Enrollments EnrollmentsService
}

// Config is the pricing configuration a session computes estimates
// with; the server's totals remain authoritative when present.
type Config struct {
	ProcessingFeePercent float64
	SiblingTiers         pricing.TierTable
}

// State is the session's externally visible snapshot. OrderID and
// ClientSecret are empty strings when no order / intent exists.
type State struct {
	CurrentStep         Step                     `json:"current_step"`
	Class               *models.ClassOffering    `json:"class,omitempty"`
	Children            []models.Child           `json:"children"`
	HasCapacity         bool                     `json:"has_capacity"`
	SelectedChildIDs    []string                 `json:"selected_child_ids"`
	SelectedFeesByChild map[string][]int         `json:"selected_fees_by_child,omitempty"`
	PaymentMethod       PaymentMethod            `json:"payment_method"`
	InstallmentPlan     *models.InstallmentPlan  `json:"installment_plan,omitempty"`
	DiscountCode        string                   `json:"discount_code,omitempty"`
	Discount            *models.Discount         `json:"discount,omitempty"`
	OrderID             string                   `json:"order_id,omitempty"`
	OrderTotalCents     int64                    `json:"order_total_cents,omitempty"`
	LineItems           []models.LineItem        `json:"line_items,omitempty"`
	ClientSecret        string                   `json:"client_secret,omitempty"`
	PaymentIntentID     string                   `json:"payment_intent_id,omitempty"`
	PaymentSucceeded    bool                     `json:"payment_succeeded"`
	Error               string                   `json:"error,omitempty"`
	Pricing             *pricing.TotalBreakdown  `json:"pricing,omitempty"`
	InstallmentPreview  []models.Installment     `json:"installment_preview,omitempty"`
	Enrollments         []models.Enrollment      `json:"enrollments,omitempty"`
}

// Session is one checkout attempt. All methods are safe for concurrent
// use; in practice each session is driven by one browser tab and the
// mutex only guards against double-submitted requests.
type Session struct {
	mu      sync.Mutex
	svc     Services
	cfg     Config
	classID string
	state   State
	now     func() time.Time
}

func NewSession(svc Services, cfg Config) *Session {
	if len(cfg.SiblingTiers) == 0 {
		cfg.SiblingTiers = pricing.DefaultSiblingTiers
	}
	return &Session{
		svc:   svc,
		cfg:   cfg,
		state: initialState(),
		now:   time.Now,
	}
}

func initialState() State {
	return State{
		CurrentStep:         StepSelection,
		Children:            []models.Child{},
		SelectedChildIDs:    []string{},
		SelectedFeesByChild: map[string][]int{},
		PaymentMethod:       PayFull,
	}
}

// Initialize fetches the class, the guardian's children and current
// capacity concurrently; none depends on another. A failure is
// recoverable: the error lands on the state and the step stays at
// selection so the caller can simply retry.
func (s *Session) Initialize(ctx context.Context, classID string) error {
	s.mu.Lock()
	s.classID = classID
	s.mu.Unlock()

	var (
		class       *models.ClassOffering
		children    []models.Child
		hasCapacity bool
		classErr    error
		childErr    error
		capErr      error
	)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		class, classErr = s.svc.Classes.GetByID(ctx, classID)
	}()
	go func() {
		defer wg.Done()
		children, childErr = s.svc.Children.GetMy(ctx)
	}()
	go func() {
		defer wg.Done()
		hasCapacity, capErr = s.svc.Classes.CheckCapacity(ctx, classID)
	}()
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, err := range []error{classErr, childErr, capErr} {
		if err != nil {
			s.state.Error = err.Error()
			return fmt.Errorf("failed to initialize checkout for class %v: %v", classID, err.Error())
		}
	}
	s.state.Class = class
	s.state.Children = children
	s.state.HasCapacity = hasCapacity
	s.state.Error = ""
	return nil
}

// SelectChild replaces the selection with the single given child.
func (s *Session) SelectChild(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SelectedChildIDs = []string{id}
	s.invalidateOrder()
}

// ToggleChildSelection adds the child on first call and removes them
// on the second. Selection order decides the sibling discount tier.
func (s *Session) ToggleChildSelection(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.state.SelectedChildIDs {
		if existing == id {
			s.state.SelectedChildIDs = append(
				s.state.SelectedChildIDs[:i],
				s.state.SelectedChildIDs[i+1:]...,
			)
			s.invalidateOrder()
			return
		}
	}
	s.state.SelectedChildIDs = append(s.state.SelectedChildIDs, id)
	s.invalidateOrder()
}

// ToggleCustomFee flips the fee index in the child's selected set.
// Required fees are not toggleable; they apply to every selected child
// regardless of this set.
func (s *Session) ToggleCustomFee(childID string, feeIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Class != nil {
		if feeIndex < 0 || feeIndex >= len(s.state.Class.CustomFees) {
			return
		}
		if !s.state.Class.CustomFees[feeIndex].IsOptional {
			return
		}
	}
	selected := s.state.SelectedFeesByChild[childID]
	for i, idx := range selected {
		if idx == feeIndex {
			s.state.SelectedFeesByChild[childID] = append(selected[:i], selected[i+1:]...)
			s.invalidateOrder()
			return
		}
	}
	s.state.SelectedFeesByChild[childID] = append(selected, feeIndex)
	s.invalidateOrder()
}

// SelectPaymentMethod sets the method and drops any installment plan
// when the method is no longer installments.
func (s *Session) SelectPaymentMethod(method PaymentMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PaymentMethod = method
	if method != PayInstallments {
		s.state.InstallmentPlan = nil
	}
	s.invalidateOrder()
}

// SelectInstallmentPlan sets the plan and moves the method to
// installments in the same step, so a plan never exists alongside any
// other payment method.
func (s *Session) SelectInstallmentPlan(plan models.InstallmentPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PaymentMethod = PayInstallments
	s.state.InstallmentPlan = &plan
	s.invalidateOrder()
}

// ApplyDiscount stores the code locally when no order exists yet (it
// gets validated at order creation). Once an order exists the backend
// applies the code; its refreshed totals are kept but the order and
// intent ids are dropped so payment re-creates them at the new amount.
func (s *Session) ApplyDiscount(ctx context.Context, code string) error {
	s.mu.Lock()
	if s.state.OrderID == "" {
		s.state.DiscountCode = code
		s.mu.Unlock()
		return nil
	}
	orderID := s.state.OrderID
	s.mu.Unlock()

	order, err := s.svc.Orders.ApplyDiscount(ctx, orderID, code)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state.Error = err.Error()
		return fmt.Errorf("failed to apply discount %v to order %v: %v", code, orderID, err.Error())
	}
	s.state.DiscountCode = code
	s.state.Discount = order.Discount
	s.state.OrderTotalCents = order.TotalCents
	if len(order.LineItems) > 0 {
		s.state.LineItems = order.LineItems
	}
	s.invalidateOrderIDs()
	s.state.Error = ""
	return nil
}

// RemoveDiscount is the symmetric inverse of ApplyDiscount.
func (s *Session) RemoveDiscount(ctx context.Context) error {
	s.mu.Lock()
	if s.state.OrderID == "" {
		s.state.DiscountCode = ""
		s.state.Discount = nil
		s.mu.Unlock()
		return nil
	}
	orderID := s.state.OrderID
	s.mu.Unlock()

	order, err := s.svc.Orders.RemoveDiscount(ctx, orderID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state.Error = err.Error()
		return fmt.Errorf("failed to remove discount from order %v: %v", orderID, err.Error())
	}
	s.state.DiscountCode = ""
	s.state.Discount = nil
	s.state.OrderTotalCents = order.TotalCents
	if len(order.LineItems) > 0 {
		s.state.LineItems = order.LineItems
	}
	s.invalidateOrderIDs()
	s.state.Error = ""
	return nil
}

// CreateOrder submits the selection to the order service. With no
// children selected it fails locally without a network call and
// returns nil.
func (s *Session) CreateOrder(ctx context.Context) (*models.Order, error) {
	s.mu.Lock()
	if len(s.state.SelectedChildIDs) == 0 {
		s.state.Error = msgSelectChild
		s.mu.Unlock()
		return nil, nil
	}
	in := CreateOrderInput{
		ClassID:         s.classID,
		ChildIDs:        append([]string{}, s.state.SelectedChildIDs...),
		FeesByChild:     copyFees(s.state.SelectedFeesByChild),
		PaymentMethod:   s.state.PaymentMethod,
		DiscountCode:    s.state.DiscountCode,
		InstallmentPlan: s.state.InstallmentPlan,
	}
	s.mu.Unlock()

	order, err := s.svc.Orders.Create(ctx, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state.Error = err.Error()
		return nil, nil
	}
	s.state.OrderID = order.ID
	s.state.OrderTotalCents = order.TotalCents
	if len(order.LineItems) > 0 {
		s.state.LineItems = order.LineItems
	}
	if order.Discount != nil {
		s.state.Discount = order.Discount
	}
	s.state.Error = ""
	return order, nil
}

// InitiatePayment requests a payment intent for the current order and
// moves the flow to the payment step.
func (s *Session) InitiatePayment(ctx context.Context) error {
	s.mu.Lock()
	if s.state.OrderID == "" {
		s.state.Error = msgNoOrder
		s.mu.Unlock()
		return errors.New(msgNoOrder)
	}
	in := CreateIntentInput{
		OrderID:         s.state.OrderID,
		AmountCents:     s.state.OrderTotalCents,
		PaymentMethod:   s.state.PaymentMethod,
		InstallmentPlan: s.state.InstallmentPlan,
	}
	s.mu.Unlock()

	intent, err := s.svc.Payments.CreateIntent(ctx, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state.Error = err.Error()
		return fmt.Errorf("failed to create payment intent for order %v: %v", in.OrderID, err.Error())
	}
	s.state.ClientSecret = intent.ClientSecret
	s.state.PaymentIntentID = intent.ID
	s.state.CurrentStep = StepPayment
	s.state.Error = ""
	return nil
}

// ConfirmPayment delegates to the payment processor and finalizes
// enrollment on success. All failures are converted to state; nothing
// escapes to the caller during the normal flow.
func (s *Session) ConfirmPayment(ctx context.Context, paymentMethodID string) {
	s.mu.Lock()
	in := ConfirmInput{
		PaymentIntentID: s.state.PaymentIntentID,
		ClientSecret:    s.state.ClientSecret,
		PaymentMethodID: paymentMethodID,
	}
	s.state.CurrentStep = StepProcessing
	s.mu.Unlock()

	result, err := s.svc.Payments.Confirm(ctx, in)
	if err != nil {
		if perr, ok := err.(*PaymentError); ok {
			s.HandlePaymentError(perr)
			return
		}
		s.HandlePaymentError(&PaymentError{Message: err.Error()})
		return
	}
	if !result.Success {
		s.HandlePaymentError(&PaymentError{Code: result.Code, Message: result.Message})
		return
	}
	s.handlePaymentSuccess(ctx)
}

func (s *Session) handlePaymentSuccess(ctx context.Context) {
	s.mu.Lock()
	classID := s.classID
	orderID := s.state.OrderID
	childIDs := append([]string{}, s.state.SelectedChildIDs...)
	s.mu.Unlock()

	enrollments := make([]models.Enrollment, 0, len(childIDs))
	for _, childID := range childIDs {
		enrollment, err := s.svc.Enrollments.Create(ctx, EnrollmentInput{
			ChildID: childID,
			ClassID: classID,
			OrderID: orderID,
		})
		if err != nil {
			// payment already went through; record what we can and
			// leave reconciliation to the backend
			log.Printf("failed to create enrollment for child %v order %v: %v", childID, orderID, err.Error())
			continue
		}
		enrollments = append(enrollments, *enrollment)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Enrollments = enrollments
	s.state.PaymentSucceeded = true
	s.state.CurrentStep = StepConfirmation
	s.state.Error = ""
}

// HandlePaymentError maps the processor code to a user-facing message
// and parks the flow at the error step until an explicit retry.
func (s *Session) HandlePaymentError(perr *PaymentError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := paymentErrorMessages[perr.Code]
	if !ok {
		msg = perr.Message
	}
	if msg == "" {
		msg = msgPaymentFailed
	}
	s.state.Error = msg
	s.state.CurrentStep = StepError
}

// Retry clears the error without touching any other state. From the
// error step the flow returns to payment so the attempt can be redone.
func (s *Session) Retry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Error = ""
	if s.state.CurrentStep == StepError {
		s.state.CurrentStep = StepPayment
	}
}

// Reset is full session teardown back to the initial empty state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classID = ""
	s.state = initialState()
}

// Snapshot returns a copy of the current state with the derived price
// breakdown and, for installment plans, the payment schedule preview.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.state
	snap.Children = append([]models.Child{}, s.state.Children...)
	snap.SelectedChildIDs = append([]string{}, s.state.SelectedChildIDs...)
	snap.SelectedFeesByChild = copyFees(s.state.SelectedFeesByChild)
	snap.LineItems = append([]models.LineItem{}, s.state.LineItems...)

	if s.state.Class != nil && len(s.state.SelectedChildIDs) > 0 {
		breakdown, items, err := s.computePricing()
		if err != nil {
			log.Printf("failed to compute pricing estimate: %v", err.Error())
		} else {
			snap.Pricing = &breakdown
			if len(s.state.LineItems) == 0 {
				snap.LineItems = items
			}
			if s.state.PaymentMethod == PayInstallments && s.state.InstallmentPlan != nil {
				preview, err := pricing.ComputeInstallmentPreview(
					breakdown.TotalCents,
					s.state.InstallmentPlan.Count,
					s.now(),
				)
				if err != nil {
					log.Printf("failed to compute installment preview: %v", err.Error())
				} else {
					snap.InstallmentPreview = preview
				}
			}
		}
	}
	return snap
}

// computePricing derives the local estimate; caller holds the lock.
func (s *Session) computePricing() (pricing.TotalBreakdown, []models.LineItem, error) {
	items, err := pricing.ComputeLineItems(
		s.state.Class.PriceCents,
		s.state.SelectedChildIDs,
		s.cfg.SiblingTiers,
	)
	if err != nil {
		return pricing.TotalBreakdown{}, nil, err
	}
	feesTotal, err := pricing.ComputeFeesTotal(
		s.state.Class.CustomFees,
		s.state.SelectedChildIDs,
		s.state.SelectedFeesByChild,
	)
	if err != nil {
		return pricing.TotalBreakdown{}, nil, err
	}
	breakdown, err := pricing.ComputeOrderTotal(pricing.TotalParams{
		LineItemsTotalCents:  pricing.LineItemsTotal(items),
		FeesTotalCents:       feesTotal,
		Discount:             s.state.Discount,
		ProcessingFeePercent: s.cfg.ProcessingFeePercent,
		BackendTotalCents:    s.state.OrderTotalCents,
	})
	if err != nil {
		return pricing.TotalBreakdown{}, nil, err
	}
	return breakdown, items, nil
}

// invalidateOrder drops the order, the intent bound to it and the
// derived pricing. Runs synchronously inside every mutation so a stale
// client secret is never observable against a changed selection.
func (s *Session) invalidateOrder() {
	s.invalidateOrderIDs()
	s.state.OrderTotalCents = 0
	s.state.LineItems = nil
}

func (s *Session) invalidateOrderIDs() {
	s.state.OrderID = ""
	s.state.ClientSecret = ""
	s.state.PaymentIntentID = ""
}

func copyFees(in map[string][]int) map[string][]int {
	out := make(map[string][]int, len(in))
	for k, v := range in {
		out[k] = append([]int{}, v...)
	}
	return out
}
