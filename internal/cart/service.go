package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/maison-living/backend-maison/internal/coupon"
)

// ErrNotFound indicates the requested cart could not be located or has expired.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// Service keeps cart sessions in Redis as JSON documents with a sliding TTL.
type Service struct {
	R        *redis.Client
	TTL      time.Duration
	Currency string
	Now      func() time.Time
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cartKey(id string) string {
	return "cart:" + id
}

// Create initialises an empty cart, optionally bound to a customer.
func (s *Service) Create(ctx context.Context, customerID string) (Cart, error) {
	if s == nil || s.R == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	c := Cart{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Currency:   s.Currency,
		UpdatedAt:  s.now(),
	}
	if err := s.save(ctx, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Get loads a cart by id.
func (s *Service) Get(ctx context.Context, id string) (Cart, error) {
	if s == nil || s.R == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	raw, err := s.R.Get(ctx, cartKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, fmt.Errorf("load cart: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	return c, nil
}

// AddLine inserts a line or increments the quantity of an existing variant.
func (s *Service) AddLine(ctx context.Context, id string, line Line) (Cart, error) {
	if line.Qty <= 0 {
		return Cart{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	if line.VariantID == "" || line.ProductID == "" {
		return Cart{}, fmt.Errorf("product and variant are required: %w", ErrInvalidInput)
	}
	if line.UnitPrice.Amount < 0 {
		return Cart{}, fmt.Errorf("unit price must not be negative: %w", ErrInvalidInput)
	}
	return s.mutate(ctx, id, func(c *Cart) error {
		if line.UnitPrice.Currency != c.Currency {
			return fmt.Errorf("line currency %q does not match cart currency %q: %w", line.UnitPrice.Currency, c.Currency, ErrInvalidInput)
		}
		for i := range c.Lines {
			if c.Lines[i].VariantID == line.VariantID {
				c.Lines[i].Qty += line.Qty
				return nil
			}
		}
		c.Lines = append(c.Lines, line)
		return nil
	})
}

// UpdateLineQty sets the quantity for a variant already in the cart.
func (s *Service) UpdateLineQty(ctx context.Context, id, variantID string, qty int) (Cart, error) {
	if qty <= 0 {
		return Cart{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	return s.mutate(ctx, id, func(c *Cart) error {
		for i := range c.Lines {
			if c.Lines[i].VariantID == variantID {
				c.Lines[i].Qty = qty
				return nil
			}
		}
		return fmt.Errorf("variant %s not in cart: %w", variantID, ErrNotFound)
	})
}

// RemoveLine drops a variant from the cart.
func (s *Service) RemoveLine(ctx context.Context, id, variantID string) (Cart, error) {
	return s.mutate(ctx, id, func(c *Cart) error {
		for i := range c.Lines {
			if c.Lines[i].VariantID == variantID {
				c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("variant %s not in cart: %w", variantID, ErrNotFound)
	})
}

// ApplyCoupon records a normalised coupon code on the cart. Validation
// against the coupon store happens at pricing time; the cart only remembers
// the choice.
func (s *Service) ApplyCoupon(ctx context.Context, id, code string) (Cart, error) {
	normalized := coupon.Normalize(code)
	if normalized == "" {
		return Cart{}, fmt.Errorf("coupon code is required: %w", ErrInvalidInput)
	}
	return s.mutate(ctx, id, func(c *Cart) error {
		c.CouponCode = normalized
		return nil
	})
}

// RemoveCoupon clears any applied coupon.
func (s *Service) RemoveCoupon(ctx context.Context, id string) (Cart, error) {
	return s.mutate(ctx, id, func(c *Cart) error {
		c.CouponCode = ""
		return nil
	})
}

// SetDestination records where the cart would ship and resets any previously
// selected option, since options are scoped to the destination.
func (s *Service) SetDestination(ctx context.Context, id string, dest Destination) (Cart, error) {
	if dest.Country == "" || dest.RegionID == "" {
		return Cart{}, fmt.Errorf("country and region are required: %w", ErrInvalidInput)
	}
	return s.mutate(ctx, id, func(c *Cart) error {
		c.Destination = &dest
		c.ShippingOptionID = ""
		return nil
	})
}

// SelectShipping records the caller's chosen option id.
func (s *Service) SelectShipping(ctx context.Context, id, optionID string) (Cart, error) {
	if optionID == "" {
		return Cart{}, fmt.Errorf("option id is required: %w", ErrInvalidInput)
	}
	return s.mutate(ctx, id, func(c *Cart) error {
		if c.Destination == nil {
			return fmt.Errorf("destination must be set before selecting shipping: %w", ErrInvalidInput)
		}
		c.ShippingOptionID = optionID
		return nil
	})
}

// Clear destroys the cart. Checkout completion and explicit clears both end
// here.
func (s *Service) Clear(ctx context.Context, id string) error {
	if s == nil || s.R == nil {
		return errors.New("cart service not configured")
	}
	if err := s.R.Del(ctx, cartKey(id)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (s *Service) mutate(ctx context.Context, id string, fn func(*Cart) error) (Cart, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return Cart{}, err
	}
	if err := fn(&c); err != nil {
		return Cart{}, err
	}
	c.UpdatedAt = s.now()
	if err := s.save(ctx, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, c Cart) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.R.Set(ctx, cartKey(c.ID), raw, s.ttl()).Err(); err != nil {
		return fmt.Errorf("store cart: %w", err)
	}
	return nil
}
