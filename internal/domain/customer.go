package domain

import (
	"math"
	"time"
)

// DateLayout is the wire format for birth dates.
const DateLayout = "2006-01-02"

// ============================================================
// Customer
// ============================================================

// Customer is a registered natural person (pessoa física).
type Customer struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	CPF          string    `json:"national_id"`
	BirthDate    time.Time `json:"birth_date"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// Age returns the number of whole years between the birth date and now.
func (c *Customer) Age(now time.Time) int {
	return AgeAt(c.BirthDate, now)
}

// AgeAt computes whole years from the birth calendar date to the calendar
// date of now, as seen in now's own location.
func AgeAt(birth, now time.Time) int {
	if birth.IsZero() {
		return 0
	}
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// CustomerInput is the body for POST /customers and PUT /customers/{id}.
// Update is a full overwrite, so both operations share the same shape.
type CustomerInput struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	CPF       string `json:"national_id"`
	BirthDate Date   `json:"birth_date"`
	Password  string `json:"password"`
}

// CustomerResponse is the public representation of a customer.
// The password hash is never part of it.
type CustomerResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CPF       string `json:"national_id"`
	BirthDate Date   `json:"birth_date"`
	Age       int    `json:"age"`
}

// NewCustomerResponse maps a stored customer to its public representation.
func NewCustomerResponse(c *Customer, now time.Time) CustomerResponse {
	return CustomerResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		CPF:       c.CPF,
		BirthDate: Date{Time: c.BirthDate},
		Age:       c.Age(now),
	}
}

// ============================================================
// Pagination
// ============================================================

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageRequest selects a 0-based page of results.
type PageRequest struct {
	Page int
	Size int
}

// Normalize applies defaults to out-of-range values.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	// keep Page*Size within int so offsets never wrap negative
	if p.Page > math.MaxInt32/p.Size {
		p.Page = math.MaxInt32 / p.Size
	}
	return p
}

// Offset returns the number of rows to skip.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// CustomerPage is the paged body for GET /customers.
type CustomerPage struct {
	Content       []CustomerResponse `json:"content"`
	Page          int                `json:"page"`
	Size          int                `json:"size"`
	TotalElements int64              `json:"total_elements"`
	TotalPages    int                `json:"total_pages"`
}

// NewCustomerPage builds a page body from a slice of stored customers.
func NewCustomerPage(items []Customer, total int64, req PageRequest, now time.Time) *CustomerPage {
	content := make([]CustomerResponse, 0, len(items))
	for i := range items {
		content = append(content, NewCustomerResponse(&items[i], now))
	}
	totalPages := 0
	if req.Size > 0 {
		totalPages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return &CustomerPage{
		Content:       content,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    totalPages,
	}
}
