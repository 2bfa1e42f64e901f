package models

import "time"

// ScheduleEntry is one recurring meeting time for a class.
type ScheduleEntry struct {
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// CustomFee is an additional named charge on a class. Fees are not
// separately addressable entities; a fee's index within the class's
// fee list is its identity.
type CustomFee struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	IsOptional  bool   `json:"is_optional"`
	Description string `json:"description,omitempty"`
}

type ClassOffering struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	PriceCents int64           `json:"price_cents"`
	Capacity   int             `json:"capacity"`
	MinAge     int             `json:"min_age"`
	MaxAge     int             `json:"max_age"`
	Schedule   []ScheduleEntry `json:"schedule,omitempty"`
	CustomFees []CustomFee     `json:"custom_fees,omitempty"`
}

// Child belongs to the guardian account; checkout only reads it.
type Child struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
}

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed_amount"
)

// Discount is either a percentage of the subtotal (Value = whole
// percent) or a fixed amount off (Value = cents).
type Discount struct {
	Code  string  `json:"code,omitempty"`
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// LineItem is one child's share of the class price after the sibling
// discount for their position in the selection order.
type LineItem struct {
	Position      int     `json:"position"`
	ChildID       string  `json:"child_id,omitempty"`
	PriceCents    int64   `json:"price_cents"`
	DiscountRate  float64 `json:"discount_rate"`
	DiscountCents int64   `json:"discount_cents"`
	TotalCents    int64   `json:"total_cents"`
}

type Order struct {
	ID                 string     `json:"id"`
	Number             string     `json:"number,omitempty"`
	ClassID            string     `json:"class_id"`
	SubtotalCents      int64      `json:"subtotal_cents"`
	DiscountCents      int64      `json:"discount_cents"`
	ProcessingFeeCents int64      `json:"processing_fee_cents"`
	TotalCents         int64      `json:"total_cents"`
	Discount           *Discount  `json:"discount,omitempty"`
	LineItems          []LineItem `json:"line_items,omitempty"`
	Status             string     `json:"status,omitempty"`
}

// PaymentIntent mirrors the processor's intent object; bound 1:1 to an
// order and discarded whenever that order is recreated.
type PaymentIntent struct {
	ID           string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret"`
}

// PaymentResult is the outcome of a confirmation attempt. Code carries
// the processor's decline/error code when Success is false.
type PaymentResult struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// InstallmentPlan divides an order total into equal monthly payments.
type InstallmentPlan struct {
	Count               int   `json:"count"`
	AmountPerMonthCents int64 `json:"amount_per_month_cents"`
}

// Installment is one scheduled payment of an installment plan.
type Installment struct {
	Index       int       `json:"index"`
	DueDate     time.Time `json:"due_date"`
	AmountCents int64     `json:"amount_cents"`
}

type Enrollment struct {
	ID      string `json:"id"`
	ChildID string `json:"child_id"`
	ClassID string `json:"class_id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status,omitempty"`
}
