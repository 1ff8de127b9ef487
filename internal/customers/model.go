// Package customers resolves customer identity and owns point balances.
package customers

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("customers: not found")
	ErrInvalidInput    = errors.New("customers: invalid input")
	ErrNegativeBalance = errors.New("customers: points balance cannot go negative")
)

// Status of a customer or legacy phone points record. Merged is terminal.
type Status string

const (
	StatusActive Status = "active"
	StatusMerged Status = "merged"
)

// MergeRecord is the provenance of points folded into a customer.
type MergeRecord struct {
	SourcePhone string    `json:"source_phone"`
	SourceID    string    `json:"source_id,omitempty"`
	Points      int64     `json:"points"`
	MergedAt    time.Time `json:"merged_at"`
}

// Customer is keyed by LINE user id when known, else by a generated uuid.
type Customer struct {
	ID         string        `json:"id"`
	FullName   string        `json:"full_name"`
	Phone      string        `json:"phone"`
	Email      string        `json:"email,omitempty"`
	Address    string        `json:"address,omitempty"`
	LineUserID string        `json:"line_user_id,omitempty"`
	Points     int64         `json:"points"`
	Status     Status        `json:"status"`
	MergedInto string        `json:"merged_into,omitempty"`
	MergedFrom []MergeRecord `json:"merged_from,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// PhonePoints is a legacy balance collected before LINE login existed.
type PhonePoints struct {
	Phone      string     `json:"phone"`
	Points     int64      `json:"points"`
	Status     Status     `json:"status"`
	MergedInto string     `json:"merged_into,omitempty"`
	MergedAt   *time.Time `json:"merged_at,omitempty"`
}

// CustomerData carries the mutable profile fields supplied at booking time.
type CustomerData struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address,omitempty"`
}

// FindOrCreateResult reports the resolved id and any points merged in.
type FindOrCreateResult struct {
	CustomerID   string `json:"customer_id"`
	MergedPoints int64  `json:"merged_points"`
	Created      bool   `json:"created"`
}

// NormalizePhone keeps digits only and rewrites the +66 country prefix to the
// domestic leading zero.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "66") && len(digits) == 11 {
		digits = "0" + digits[2:]
	}
	return digits
}
