package customers

import (
	"context"
	"sort"
	"sync"
)

// Tx is the set of reads and writes available inside one directory transaction.
// Reads lock the returned rows until the transaction ends.
type Tx interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
	GetByPhone(ctx context.Context, phone string) (*Customer, error)
	GetPhonePoints(ctx context.Context, phone string) (*PhonePoints, error)
	Insert(ctx context.Context, c *Customer) error
	Update(ctx context.Context, c *Customer) error
	UpdatePhonePoints(ctx context.Context, p *PhonePoints) error
	// RecordAward stores key once and reports whether it was new.
	RecordAward(ctx context.Context, key, customerID string, points int64) (bool, error)
}

// Store runs fn atomically. An error from fn discards every write.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	List(ctx context.Context, limit, offset int) ([]Customer, error)
}

// MemoryStore serializes all transactions behind one mutex.
type MemoryStore struct {
	mu          sync.Mutex
	customers   map[string]Customer
	phonePoints map[string]PhonePoints
	awards      map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers:   make(map[string]Customer),
		phonePoints: make(map[string]PhonePoints),
		awards:      make(map[string]string),
	}
}

// Len reports how many customer records exist, merged ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.customers)
}

// SeedPhonePoints loads a legacy phone balance.
func (m *MemoryStore) SeedPhonePoints(p PhonePoints) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Status == "" {
		p.Status = StatusActive
	}
	p.Phone = NormalizePhone(p.Phone)
	m.phonePoints[p.Phone] = p
}

// PhonePointsRecord returns the legacy record for phone.
func (m *MemoryStore) PhonePointsRecord(phone string) (PhonePoints, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phonePoints[NormalizePhone(phone)]
	return p, ok
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		customers:   make(map[string]Customer, len(m.customers)),
		phonePoints: make(map[string]PhonePoints, len(m.phonePoints)),
		awards:      make(map[string]string, len(m.awards)),
	}
	for k, v := range m.customers {
		tx.customers[k] = v
	}
	for k, v := range m.phonePoints {
		tx.phonePoints[k] = v
	}
	for k, v := range m.awards {
		tx.awards[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.customers = tx.customers
	m.phonePoints = tx.phonePoints
	m.awards = tx.awards
	return nil
}

func (m *MemoryStore) List(_ context.Context, limit, offset int) ([]Customer, error) {
	m.mu.Lock()
	out := make([]Customer, 0, len(m.customers))
	for _, c := range m.customers {
		out = append(out, cloneCustomer(c))
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if offset > len(out) {
		return []Customer{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type memoryTx struct {
	customers   map[string]Customer
	phonePoints map[string]PhonePoints
	awards      map[string]string
}

func cloneCustomer(c Customer) Customer {
	c.MergedFrom = append([]MergeRecord(nil), c.MergedFrom...)
	return c
}

func (t *memoryTx) GetByID(_ context.Context, id string) (*Customer, error) {
	c, ok := t.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	c = cloneCustomer(c)
	return &c, nil
}

func (t *memoryTx) GetByPhone(_ context.Context, phone string) (*Customer, error) {
	var found *Customer
	for _, c := range t.customers {
		if c.Phone != phone || c.Status != StatusActive {
			continue
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) {
			cp := cloneCustomer(c)
			found = &cp
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (t *memoryTx) GetPhonePoints(_ context.Context, phone string) (*PhonePoints, error) {
	p, ok := t.phonePoints[phone]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memoryTx) Insert(_ context.Context, c *Customer) error {
	if _, exists := t.customers[c.ID]; exists {
		return ErrInvalidInput
	}
	t.customers[c.ID] = cloneCustomer(*c)
	return nil
}

func (t *memoryTx) Update(_ context.Context, c *Customer) error {
	if _, exists := t.customers[c.ID]; !exists {
		return ErrNotFound
	}
	t.customers[c.ID] = cloneCustomer(*c)
	return nil
}

func (t *memoryTx) UpdatePhonePoints(_ context.Context, p *PhonePoints) error {
	if _, exists := t.phonePoints[p.Phone]; !exists {
		return ErrNotFound
	}
	t.phonePoints[p.Phone] = *p
	return nil
}

func (t *memoryTx) RecordAward(_ context.Context, key, customerID string, _ int64) (bool, error) {
	if _, exists := t.awards[key]; exists {
		return false, nil
	}
	t.awards[key] = customerID
	return true, nil
}
