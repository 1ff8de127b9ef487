// Package catalog is the authoritative source of service pricing and duration.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrServiceNotFound is returned when a service id is unknown.
var ErrServiceNotFound = errors.New("catalog: service not found")

// AddOn is an optional extra sold with a service.
type AddOn struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Duration int    `json:"duration"`
}

// Service is a bookable salon service. Prices are whole baht, durations minutes.
type Service struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    int64   `json:"price"`
	Duration int     `json:"duration"`
	ImageURL string  `json:"image_url,omitempty"`
	AddOns   []AddOn `json:"add_ons,omitempty"`
	Active   bool    `json:"active"`
}

// FindAddOn looks up an add-on by name, ignoring case and surrounding space.
func (s *Service) FindAddOn(name string) (AddOn, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, a := range s.AddOns {
		if strings.ToLower(strings.TrimSpace(a.Name)) == want {
			return a, true
		}
	}
	return AddOn{}, false
}

// Catalog resolves services by id.
type Catalog interface {
	GetService(ctx context.Context, id string) (*Service, error)
	ListServices(ctx context.Context) ([]Service, error)
}

// MemoryCatalog is a mutex-guarded catalog used for local runs and tests.
type MemoryCatalog struct {
	mu       sync.RWMutex
	services map[string]Service
}

func NewMemoryCatalog(services ...Service) *MemoryCatalog {
	c := &MemoryCatalog{services: make(map[string]Service)}
	for _, s := range services {
		c.Put(s)
	}
	return c
}

// Put inserts or replaces a service.
func (c *MemoryCatalog) Put(s Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.AddOns = append([]AddOn(nil), s.AddOns...)
	c.services[s.ID] = s
}

func (c *MemoryCatalog) GetService(_ context.Context, id string) (*Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.services[id]
	if !ok || !s.Active {
		return nil, ErrServiceNotFound
	}
	s.AddOns = append([]AddOn(nil), s.AddOns...)
	return &s, nil
}

func (c *MemoryCatalog) ListServices(context.Context) ([]Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Service, 0, len(c.services))
	for _, s := range c.services {
		if s.Active {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
