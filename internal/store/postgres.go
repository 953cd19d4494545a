package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maison-living/backend-maison/internal/coupon"
	"github.com/maison-living/backend-maison/internal/inventory"
	"github.com/maison-living/backend-maison/internal/money"
	"github.com/maison-living/backend-maison/internal/order"
	"github.com/maison-living/backend-maison/internal/shipping"
	"github.com/maison-living/backend-maison/internal/wholesale"
)

// Postgres implements the persistence interfaces of the order, coupon,
// wholesale, shipping and inventory packages on a single pgx pool.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

const orderColumns = `id, customer_id, channel, status, payment_status, fulfillment_status,
	subtotal, discount, shipping, total, currency, coupon_code,
	lines, address, tracking, cancel_reason, version, created_at, updated_at`

// GetOrder loads one order by id.
func (p *Postgres) GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error) {
	row := p.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, order.ErrNotFound
	}
	return o, err
}

// CreateOrder inserts the frozen checkout snapshot.
func (p *Postgres) CreateOrder(ctx context.Context, o order.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("encode order lines: %w", err)
	}
	address, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("encode order address: %w", err)
	}
	var tracking []byte
	if o.Tracking != nil {
		if tracking, err = json.Marshal(o.Tracking); err != nil {
			return fmt.Errorf("encode order tracking: %w", err)
		}
	}
	_, err = p.Pool.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, channel, status, payment_status, fulfillment_status,
			subtotal, discount, shipping, total, currency, coupon_code,
			lines, address, tracking, cancel_reason, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		o.ID, o.CustomerID, o.Channel, o.Status, o.Payment, o.Fulfillment,
		o.Subtotal.Amount, o.Discount.Amount, o.Shipping.Amount, o.Total.Amount,
		o.Currency, nullIfEmpty(o.CouponCode),
		lines, address, tracking, nullIfEmpty(o.CancelReason),
		o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// UpdateOrder persists a lifecycle mutation guarded by the version the caller
// loaded. A concurrent writer bumps the version first, the WHERE clause
// misses, and the caller gets ErrConflict to reload and retry.
func (p *Postgres) UpdateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	var tracking []byte
	if o.Tracking != nil {
		var err error
		if tracking, err = json.Marshal(o.Tracking); err != nil {
			return order.Order{}, fmt.Errorf("encode order tracking: %w", err)
		}
	}
	now := time.Now().UTC()
	tag, err := p.Pool.Exec(ctx, `
		UPDATE orders SET
			status = $2, payment_status = $3, fulfillment_status = $4,
			tracking = $5, cancel_reason = $6,
			version = version + 1, updated_at = $7
		WHERE id = $1 AND version = $8`,
		o.ID, o.Status, o.Payment, o.Fulfillment,
		tracking, nullIfEmpty(o.CancelReason), now, o.Version,
	)
	if err != nil {
		return order.Order{}, fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.GetOrder(ctx, o.ID); errors.Is(err, order.ErrNotFound) {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, order.ErrConflict
	}
	o.Version++
	o.UpdatedAt = now
	return o, nil
}

// ListOrdersByCustomer returns a customer's orders, newest first.
func (p *Postgres) ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int32) ([]order.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, customerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (order.Order, error) {
	var o order.Order
	var subtotal, discount, shippingAmt, total int64
	var couponCode, cancelNote *string
	var lines, address, trackng []byte
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Channel, &o.Status, &o.Payment, &o.Fulfillment,
		&subtotal, &discount, &shippingAmt, &total, &o.Currency, &couponCode,
		&lines, &address, &trackng, &cancelNote, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	o.Subtotal = money.Cents(subtotal, o.Currency)
	o.Discount = money.Cents(discount, o.Currency)
	o.Shipping = money.Cents(shippingAmt, o.Currency)
	o.Total = money.Cents(total, o.Currency)
	if couponCode != nil {
		o.CouponCode = *couponCode
	}
	if cancelNote != nil {
		o.CancelReason = *cancelNote
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return order.Order{}, fmt.Errorf("decode order lines: %w", err)
	}
	if err := json.Unmarshal(address, &o.Address); err != nil {
		return order.Order{}, fmt.Errorf("decode order address: %w", err)
	}
	if len(trackng) > 0 {
		o.Tracking = &order.Tracking{}
		if err := json.Unmarshal(trackng, o.Tracking); err != nil {
			return order.Order{}, fmt.Errorf("decode order tracking: %w", err)
		}
	}
	return o, nil
}

// GetCouponByCode loads a coupon by its normalised code.
func (p *Postgres) GetCouponByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	var c coupon.Coupon
	var amount, minSubtotal int64
	var currency string
	var expires *time.Time
	err := p.Pool.QueryRow(ctx, `
		SELECT code, kind, percent_bps, amount, min_subtotal, currency, expires_at
		FROM coupons WHERE code = $1`, code,
	).Scan(&c.Code, &c.Kind, &c.PercentBps, &amount, &minSubtotal, &currency, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return coupon.Coupon{}, coupon.ErrNotFound
	}
	if err != nil {
		return coupon.Coupon{}, fmt.Errorf("load coupon: %w", err)
	}
	c.Amount = money.Cents(amount, currency)
	c.MinSubtotal = money.Cents(minSubtotal, currency)
	c.ExpiresAt = expires
	return c, nil
}

// GetCustomerTier returns the customer's wholesale tier, nil when none is
// assigned.
func (p *Postgres) GetCustomerTier(ctx context.Context, customerID uuid.UUID) (*wholesale.Tier, error) {
	var raw string
	err := p.Pool.QueryRow(ctx,
		`SELECT tier FROM wholesale_tiers WHERE customer_id = $1`, customerID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load customer tier: %w", err)
	}
	tier, err := wholesale.ParseTier(raw)
	if err != nil {
		return nil, fmt.Errorf("stored tier %q: %w", raw, err)
	}
	return &tier, nil
}

// SetCustomerTier assigns or replaces the customer's tier.
func (p *Postgres) SetCustomerTier(ctx context.Context, customerID uuid.UUID, tier wholesale.Tier) error {
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO wholesale_tiers (customer_id, tier, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (customer_id) DO UPDATE SET tier = EXCLUDED.tier, updated_at = now()`,
		customerID, tier,
	)
	if err != nil {
		return fmt.Errorf("set customer tier: %w", err)
	}
	return nil
}

// RemoveCustomerTier drops the customer's tier assignment.
func (p *Postgres) RemoveCustomerTier(ctx context.Context, customerID uuid.UUID) error {
	if _, err := p.Pool.Exec(ctx,
		`DELETE FROM wholesale_tiers WHERE customer_id = $1`, customerID,
	); err != nil {
		return fmt.Errorf("remove customer tier: %w", err)
	}
	return nil
}

// GetShippingOptions returns the options configured for a destination.
func (p *Postgres) GetShippingOptions(ctx context.Context, country, regionID string) ([]shipping.Option, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT id, name, description, price, currency, etd_min_days, etd_max_days
		FROM shipping_options WHERE country = $1 AND region_id = $2`,
		country, regionID)
	if err != nil {
		return nil, fmt.Errorf("load shipping options: %w", err)
	}
	defer rows.Close()
	var out []shipping.Option
	for rows.Next() {
		var (
			opt      shipping.Option
			price    int64
			currency string
			desc     *string
		)
		if err := rows.Scan(&opt.ID, &opt.Name, &desc, &price, &currency, &opt.ETDMinDays, &opt.ETDMaxDays); err != nil {
			return nil, fmt.Errorf("scan shipping option: %w", err)
		}
		if desc != nil {
			opt.Description = *desc
		}
		opt.Price = money.Cents(price, currency)
		out = append(out, opt)
	}
	return out, rows.Err()
}

// GetStock returns the current quantity for a variant.
func (p *Postgres) GetStock(ctx context.Context, productID, variantID string) (int, error) {
	var quantity int
	err := p.Pool.QueryRow(ctx, `
		SELECT quantity FROM stock_levels
		WHERE product_id = $1 AND variant_id = $2`,
		productID, variantID,
	).Scan(&quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, inventory.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load stock: %w", err)
	}
	return quantity, nil
}

// AdjustStock applies a signed delta atomically, clamped at zero, and returns
// the resulting quantity.
func (p *Postgres) AdjustStock(ctx context.Context, productID, variantID string, delta int) (int, error) {
	var quantity int
	err := p.Pool.QueryRow(ctx, `
		UPDATE stock_levels
		SET quantity = GREATEST(quantity + $3, 0), updated_at = now()
		WHERE product_id = $1 AND variant_id = $2
		RETURNING quantity`,
		productID, variantID, delta,
	).Scan(&quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, inventory.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("adjust stock: %w", err)
	}
	return quantity, nil
}

// GetCustomerEmail resolves the customer's notification address.
func (p *Postgres) GetCustomerEmail(ctx context.Context, customerID uuid.UUID) (string, error) {
	var email string
	err := p.Pool.QueryRow(ctx,
		`SELECT email FROM customers WHERE id = $1`, customerID,
	).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("customer %s not found", customerID)
	}
	if err != nil {
		return "", fmt.Errorf("load customer email: %w", err)
	}
	return email, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
