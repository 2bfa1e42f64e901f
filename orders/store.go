package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"enroll-middleware/checkout"
	"enroll-middleware/models"
	"enroll-middleware/pricing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/thanhpk/randstr"
)

// Store keeps orders in Postgres for standalone deployments. It prices
// orders itself through the pricing package, so its totals are the
// authoritative ones the session reconciles against.
type Store struct {
	connStr              string
	classes              checkout.ClassService
	processingFeePercent float64
	tiers                pricing.TierTable
}

func NewStore(connStr string, classes checkout.ClassService, processingFeePercent float64, tiers pricing.TierTable) *Store {
	if len(tiers) == 0 {
		tiers = pricing.DefaultSiblingTiers
	}
	return &Store{
		connStr:              connStr,
		classes:              classes,
		processingFeePercent: processingFeePercent,
		tiers:                tiers,
	}
}

func (s *Store) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, s.connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err.Error())
	}
	_, err = conn.Exec(
		ctx,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR ( 36 ) PRIMARY KEY,
			number VARCHAR ( 16 ),
			class_id VARCHAR ( 36 ),
			child_ids TEXT,
			fees_by_child TEXT,
			payment_method VARCHAR ( 16 ),
			subtotal_cents BIGINT,
			discount_cents BIGINT,
			processing_fee_cents BIGINT,
			total_cents BIGINT,
			discount_code VARCHAR ( 64 ),
			discount_type VARCHAR ( 16 ),
			discount_value DOUBLE PRECISION,
			line_items TEXT,
			status VARCHAR ( 16 ),
			created_at BIGINT
		)`,
	)
	if err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to create orders table: %v", err.Error())
	}
	_, err = conn.Exec(
		ctx,
		`CREATE TABLE IF NOT EXISTS discount_codes (
			code VARCHAR ( 64 ) PRIMARY KEY,
			type VARCHAR ( 16 ),
			value DOUBLE PRECISION
		)`,
	)
	if err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to create discount_codes table: %v", err.Error())
	}
	return conn, nil
}

// lookupDiscount resolves a code from the discount_codes table. An
// unknown code is an error: the session stored the code unvalidated
// and order creation is where validation happens.
func (s *Store) lookupDiscount(ctx context.Context, conn *pgx.Conn, code string) (*models.Discount, error) {
	if code == "" {
		return nil, nil
	}
	discount := models.Discount{Code: code}
	err := conn.QueryRow(
		ctx,
		"select type, value from discount_codes where code=$1",
		code,
	).Scan(&discount.Type, &discount.Value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("discount code %v is not valid", code)
		}
		return nil, fmt.Errorf("failed to look up discount code %v: %v", code, err.Error())
	}
	return &discount, nil
}

func feesToJSON(fees map[string][]int) (string, error) {
	encoded, err := json.Marshal(fees)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fee selections: %v", err.Error())
	}
	return string(encoded), nil
}

func feesFromJSON(raw string) (map[string][]int, error) {
	if raw == "" {
		return nil, nil
	}
	var fees map[string][]int
	if err := json.Unmarshal([]byte(raw), &fees); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fee selections: %v", err.Error())
	}
	return fees, nil
}

func (s *Store) price(class *models.ClassOffering, in checkout.CreateOrderInput, discount *models.Discount) (pricing.TotalBreakdown, []models.LineItem, error) {
	items, err := pricing.ComputeLineItems(class.PriceCents, in.ChildIDs, s.tiers)
	if err != nil {
		return pricing.TotalBreakdown{}, nil, err
	}
	feesTotal, err := pricing.ComputeFeesTotal(class.CustomFees, in.ChildIDs, in.FeesByChild)
	if err != nil {
		return pricing.TotalBreakdown{}, nil, err
	}
	breakdown, err := pricing.ComputeOrderTotal(pricing.TotalParams{
		LineItemsTotalCents:  pricing.LineItemsTotal(items),
		FeesTotalCents:       feesTotal,
		Discount:             discount,
		ProcessingFeePercent: s.processingFeePercent,
	})
	if err != nil {
		return pricing.TotalBreakdown{}, nil, err
	}
	return breakdown, items, nil
}

func (s *Store) Create(ctx context.Context, in checkout.CreateOrderInput) (*models.Order, error) {
	class, err := s.classes.GetByID(ctx, in.ClassID)
	if err != nil {
		return nil, fmt.Errorf("failed to load class %v for order: %v", in.ClassID, err.Error())
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	discount, err := s.lookupDiscount(ctx, conn, in.DiscountCode)
	if err != nil {
		return nil, err
	}

	breakdown, items, err := s.price(class, in, discount)
	if err != nil {
		return nil, fmt.Errorf("failed to price order: %v", err.Error())
	}

	order := &models.Order{
		ID:                 uuid.NewString(),
		Number:             fmt.Sprintf("ORD-%v", randstr.Hex(5)),
		ClassID:            in.ClassID,
		SubtotalCents:      breakdown.SubtotalCents,
		DiscountCents:      breakdown.DiscountCents,
		ProcessingFeeCents: breakdown.ProcessingFeeCents,
		TotalCents:         breakdown.TotalCents,
		Discount:           discount,
		LineItems:          items,
		Status:             "pending",
	}

	err = s.insert(ctx, conn, order, in)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Store) insert(ctx context.Context, conn *pgx.Conn, order *models.Order, in checkout.CreateOrderInput) error {
	childIDs, err := json.Marshal(in.ChildIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal child ids: %v", err.Error())
	}
	feesJSON, err := feesToJSON(in.FeesByChild)
	if err != nil {
		return err
	}
	lineItems, err := json.Marshal(order.LineItems)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %v", err.Error())
	}
	discountCode, discountType := "", ""
	discountValue := float64(0)
	if order.Discount != nil {
		discountCode = order.Discount.Code
		discountType = order.Discount.Type
		discountValue = order.Discount.Value
	}
	_, err = conn.Exec(
		ctx,
		`insert into orders(id, number, class_id, child_ids, fees_by_child, payment_method,
			subtotal_cents, discount_cents, processing_fee_cents, total_cents, discount_code,
			discount_type, discount_value, line_items, status, created_at)
		values($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		order.ID,
		order.Number,
		order.ClassID,
		string(childIDs),
		feesJSON,
		string(in.PaymentMethod),
		order.SubtotalCents,
		order.DiscountCents,
		order.ProcessingFeeCents,
		order.TotalCents,
		discountCode,
		discountType,
		discountValue,
		string(lineItems),
		order.Status,
		time.Now().UnixNano()/1000000,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order %v: %v", order.ID, err.Error())
	}
	return nil
}

func (s *Store) load(ctx context.Context, conn *pgx.Conn, orderID string) (*models.Order, checkout.CreateOrderInput, error) {
	var (
		order        models.Order
		in           checkout.CreateOrderInput
		childIDsJSON string
		feesJSON     string
		lineItems    string
		method       string
		discountCode string
		discountType string
		discountVal  float64
	)
	err := conn.QueryRow(
		ctx,
		`select id, number, class_id, child_ids, fees_by_child, payment_method, subtotal_cents,
			discount_cents, processing_fee_cents, total_cents, discount_code, discount_type,
			discount_value, line_items, status
		from orders where id=$1`,
		orderID,
	).Scan(
		&order.ID,
		&order.Number,
		&order.ClassID,
		&childIDsJSON,
		&feesJSON,
		&method,
		&order.SubtotalCents,
		&order.DiscountCents,
		&order.ProcessingFeeCents,
		&order.TotalCents,
		&discountCode,
		&discountType,
		&discountVal,
		&lineItems,
		&order.Status,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, in, fmt.Errorf("order %v not found", orderID)
		}
		return nil, in, fmt.Errorf("failed to query order %v: %v", orderID, err.Error())
	}
	if err := json.Unmarshal([]byte(childIDsJSON), &in.ChildIDs); err != nil {
		return nil, in, fmt.Errorf("failed to unmarshal child ids for order %v: %v", orderID, err.Error())
	}
	in.FeesByChild, err = feesFromJSON(feesJSON)
	if err != nil {
		return nil, in, fmt.Errorf("failed to read fee selections for order %v: %v", orderID, err.Error())
	}
	if err := json.Unmarshal([]byte(lineItems), &order.LineItems); err != nil {
		return nil, in, fmt.Errorf("failed to unmarshal line items for order %v: %v", orderID, err.Error())
	}
	if discountCode != "" {
		order.Discount = &models.Discount{Code: discountCode, Type: discountType, Value: discountVal}
	}
	in.ClassID = order.ClassID
	in.PaymentMethod = checkout.PaymentMethod(method)
	in.DiscountCode = discountCode
	return &order, in, nil
}

// reprice recomputes an existing order with a different discount and
// persists the new figures.
func (s *Store) reprice(ctx context.Context, conn *pgx.Conn, order *models.Order, in checkout.CreateOrderInput, discount *models.Discount) (*models.Order, error) {
	class, err := s.classes.GetByID(ctx, order.ClassID)
	if err != nil {
		return nil, fmt.Errorf("failed to load class %v for repricing: %v", order.ClassID, err.Error())
	}
	breakdown, items, err := s.price(class, in, discount)
	if err != nil {
		return nil, fmt.Errorf("failed to reprice order %v: %v", order.ID, err.Error())
	}
	order.SubtotalCents = breakdown.SubtotalCents
	order.DiscountCents = breakdown.DiscountCents
	order.ProcessingFeeCents = breakdown.ProcessingFeeCents
	order.TotalCents = breakdown.TotalCents
	order.Discount = discount
	order.LineItems = items

	lineItems, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal line items: %v", err.Error())
	}
	discountCode, discountType := "", ""
	discountValue := float64(0)
	if discount != nil {
		discountCode = discount.Code
		discountType = discount.Type
		discountValue = discount.Value
	}
	_, err = conn.Exec(
		ctx,
		`update orders set subtotal_cents=$1, discount_cents=$2, processing_fee_cents=$3,
			total_cents=$4, discount_code=$5, discount_type=$6, discount_value=$7, line_items=$8
		where id=$9`,
		order.SubtotalCents,
		order.DiscountCents,
		order.ProcessingFeeCents,
		order.TotalCents,
		discountCode,
		discountType,
		discountValue,
		string(lineItems),
		order.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update order %v: %v", order.ID, err.Error())
	}
	return order, nil
}

func (s *Store) ApplyDiscount(ctx context.Context, orderID, code string) (*models.Order, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	order, in, err := s.load(ctx, conn, orderID)
	if err != nil {
		return nil, err
	}
	discount, err := s.lookupDiscount(ctx, conn, code)
	if err != nil {
		return nil, err
	}
	return s.reprice(ctx, conn, order, in, discount)
}

func (s *Store) RemoveDiscount(ctx context.Context, orderID string) (*models.Order, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	order, in, err := s.load(ctx, conn, orderID)
	if err != nil {
		return nil, err
	}
	return s.reprice(ctx, conn, order, in, nil)
}
