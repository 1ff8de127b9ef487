package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

var customersTracer = otel.Tracer("salon.internal.customers")

// maxMergeHops bounds how far AddPoints follows merged_into links.
const maxMergeHops = 4

// Directory resolves customers and is the only writer of point balances.
type Directory struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
	newID  func() string
}

func NewDirectory(store Store, logger *logging.Logger) *Directory {
	if store == nil {
		panic("customers: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Directory{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
}

// FindOrCreate resolves the customer for a booking. A LINE identity is the
// preferred key; unmerged phone balances for the same number are folded into
// it exactly once.
func (d *Directory) FindOrCreate(ctx context.Context, data CustomerData, lineUserID string) (*FindOrCreateResult, error) {
	ctx, span := customersTracer.Start(ctx, "customers.find_or_create")
	defer span.End()

	lineUserID = strings.TrimSpace(lineUserID)
	data.FullName = strings.TrimSpace(data.FullName)
	data.Phone = NormalizePhone(data.Phone)
	data.Email = strings.TrimSpace(data.Email)
	span.SetAttributes(attribute.Bool("salon.customer.has_line_id", lineUserID != ""))

	var (
		result *FindOrCreateResult
		err    error
	)
	if lineUserID != "" {
		result, err = d.findOrCreateByLine(ctx, data, lineUserID)
	} else {
		result, err = d.findOrCreateByPhone(ctx, data)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if result.MergedPoints > 0 {
		d.logger.Info("customers: merged legacy points", "customer_id", result.CustomerID, "points", result.MergedPoints)
	}
	return result, nil
}

func (d *Directory) findOrCreateByLine(ctx context.Context, data CustomerData, lineUserID string) (*FindOrCreateResult, error) {
	result := &FindOrCreateResult{CustomerID: lineUserID}
	err := d.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		now := d.now()
		cust, err := tx.GetByID(ctx, lineUserID)
		switch {
		case errors.Is(err, ErrNotFound):
			cust = &Customer{
				ID:         lineUserID,
				LineUserID: lineUserID,
				Status:     StatusActive,
				CreatedAt:  now,
			}
			result.Created = true
		case err != nil:
			return err
		}
		applyProfile(cust, data)
		cust.UpdatedAt = now

		// Existing LINE customers merge too, so a phone balance recorded after
		// the first login still reaches them. Merged sources are skipped.
		if data.Phone != "" {
			merged, err := d.mergePhoneBalances(ctx, tx, cust, data.Phone, now)
			if err != nil {
				return err
			}
			result.MergedPoints = merged
		}

		if result.Created {
			return tx.Insert(ctx, cust)
		}
		return tx.Update(ctx, cust)
	})
	if err != nil {
		return nil, fmt.Errorf("customers: find or create by line: %w", err)
	}
	return result, nil
}

// mergePhoneBalances moves the legacy phone_points balance and any phone-only
// customer balance into target. Sources are marked merged in the same
// transaction, so a second call finds nothing to merge.
func (d *Directory) mergePhoneBalances(ctx context.Context, tx Tx, target *Customer, phone string, now time.Time) (int64, error) {
	var total int64

	legacy, err := tx.GetPhonePoints(ctx, phone)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if legacy != nil && legacy.Status != StatusMerged {
		amount := legacy.Points
		if amount < 0 {
			amount = 0
		}
		target.Points += amount
		target.MergedFrom = append(target.MergedFrom, MergeRecord{SourcePhone: phone, Points: amount, MergedAt: now})
		legacy.Status = StatusMerged
		legacy.MergedInto = target.ID
		legacy.MergedAt = &now
		if err := tx.UpdatePhonePoints(ctx, legacy); err != nil {
			return 0, err
		}
		total += amount
	}

	other, err := tx.GetByPhone(ctx, phone)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if other != nil && other.ID != target.ID && other.LineUserID == "" {
		amount := other.Points
		target.Points += amount
		target.MergedFrom = append(target.MergedFrom, MergeRecord{SourcePhone: phone, SourceID: other.ID, Points: amount, MergedAt: now})
		if target.FullName == "" {
			target.FullName = other.FullName
		}
		if target.Address == "" {
			target.Address = other.Address
		}
		other.Points = 0
		other.Status = StatusMerged
		other.MergedInto = target.ID
		other.UpdatedAt = now
		if err := tx.Update(ctx, other); err != nil {
			return 0, err
		}
		total += amount
	}
	return total, nil
}

func (d *Directory) findOrCreateByPhone(ctx context.Context, data CustomerData) (*FindOrCreateResult, error) {
	if data.Phone == "" {
		return nil, fmt.Errorf("%w: phone or LINE identity required", ErrInvalidInput)
	}
	result := &FindOrCreateResult{}
	err := d.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		now := d.now()
		cust, err := tx.GetByPhone(ctx, data.Phone)
		switch {
		case errors.Is(err, ErrNotFound):
			cust = &Customer{
				ID:        d.newID(),
				Status:    StatusActive,
				CreatedAt: now,
				UpdatedAt: now,
			}
			applyProfile(cust, data)
			result.CustomerID = cust.ID
			result.Created = true
			return tx.Insert(ctx, cust)
		case err != nil:
			return err
		}
		applyProfile(cust, data)
		cust.UpdatedAt = now
		result.CustomerID = cust.ID
		return tx.Update(ctx, cust)
	})
	if err != nil {
		return nil, fmt.Errorf("customers: find or create by phone: %w", err)
	}
	return result, nil
}

func applyProfile(c *Customer, data CustomerData) {
	if data.FullName != "" {
		c.FullName = data.FullName
	}
	if data.Phone != "" {
		c.Phone = data.Phone
	}
	if data.Email != "" {
		c.Email = data.Email
	}
	if data.Address != "" {
		c.Address = strings.TrimSpace(data.Address)
	}
}

// AddPoints applies delta to the customer's balance inside a locking
// transaction and returns the new balance. Merged customers forward to the
// record they were merged into.
func (d *Directory) AddPoints(ctx context.Context, customerID string, delta int64, reason string) (int64, error) {
	balance, _, err := d.addPoints(ctx, customerID, "", delta, reason)
	return balance, err
}

// AddPointsOnce is AddPoints guarded by awardKey. The key is recorded in the
// same transaction as the balance change; when it already exists nothing is
// written and applied is false.
func (d *Directory) AddPointsOnce(ctx context.Context, customerID, awardKey string, delta int64, reason string) (balance int64, applied bool, err error) {
	if strings.TrimSpace(awardKey) == "" {
		return 0, false, fmt.Errorf("%w: award key required", ErrInvalidInput)
	}
	return d.addPoints(ctx, customerID, awardKey, delta, reason)
}

func (d *Directory) addPoints(ctx context.Context, customerID, awardKey string, delta int64, reason string) (int64, bool, error) {
	ctx, span := customersTracer.Start(ctx, "customers.add_points")
	defer span.End()
	span.SetAttributes(
		attribute.String("salon.customer_id", customerID),
		attribute.Int64("salon.points.delta", delta),
	)

	if strings.TrimSpace(customerID) == "" {
		return 0, false, fmt.Errorf("%w: customer id required", ErrInvalidInput)
	}
	var (
		balance    int64
		resolvedID string
		applied    bool
	)
	err := d.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cust, err := tx.GetByID(ctx, customerID)
		if err != nil {
			return err
		}
		for hops := 0; cust.Status == StatusMerged && cust.MergedInto != ""; hops++ {
			if hops >= maxMergeHops {
				return fmt.Errorf("customers: merge chain too long for %s", customerID)
			}
			if cust, err = tx.GetByID(ctx, cust.MergedInto); err != nil {
				return err
			}
		}
		balance = cust.Points
		resolvedID = cust.ID
		if awardKey != "" {
			fresh, err := tx.RecordAward(ctx, awardKey, cust.ID, delta)
			if err != nil || !fresh {
				return err
			}
		}
		if cust.Points+delta < 0 {
			return ErrNegativeBalance
		}
		cust.Points += delta
		cust.UpdatedAt = d.now()
		balance = cust.Points
		applied = true
		return tx.Update(ctx, cust)
	})
	if err != nil {
		span.RecordError(err)
		return 0, false, fmt.Errorf("customers: add points: %w", err)
	}
	if !applied {
		d.logger.Info("customers: award already applied", "customer_id", resolvedID, "award_key", awardKey)
		return balance, false, nil
	}
	d.logger.Info("customers: points updated", "customer_id", resolvedID, "delta", delta, "balance", balance, "reason", reason)
	return balance, true, nil
}

// Get returns a customer by id.
func (d *Directory) Get(ctx context.Context, id string) (*Customer, error) {
	var out *Customer
	err := d.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := tx.GetByID(ctx, id)
		out = c
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("customers: get: %w", err)
	}
	return out, nil
}

// GetByPhone returns the active customer holding phone.
func (d *Directory) GetByPhone(ctx context.Context, phone string) (*Customer, error) {
	phone = NormalizePhone(phone)
	var out *Customer
	err := d.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := tx.GetByPhone(ctx, phone)
		out = c
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("customers: get by phone: %w", err)
	}
	return out, nil
}

// List pages through customers for the admin console.
func (d *Directory) List(ctx context.Context, limit, offset int) ([]Customer, error) {
	out, err := d.store.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("customers: list: %w", err)
	}
	return out, nil
}
