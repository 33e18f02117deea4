// Package state holds the application state, mutated only by dispatching
// actions and persisted after every dispatch.
package state

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a buyer known to a business.
type Customer struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id,omitempty"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone,omitempty"`
	Email      string    `json:"email,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Product is a catalogue item with its stock on hand.
type Product struct {
	ID         string          `json:"id"`
	BusinessID string          `json:"business_id,omitempty"`
	CategoryID string          `json:"category_id,omitempty"`
	Name       string          `json:"name"`
	SKU        string          `json:"sku,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Cost       decimal.Decimal `json:"cost"`
	Quantity   int             `json:"quantity"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Sale is one line of a sale. Lines of the same sale share SaleGroupID.
type Sale struct {
	ID          string          `json:"id"`
	SaleGroupID string          `json:"sale_group_id"`
	BusinessID  string          `json:"business_id,omitempty"`
	CustomerID  string          `json:"customer_id,omitempty"`
	ProductID   string          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
	Paid        decimal.Decimal `json:"paid"`
	Due         decimal.Decimal `json:"due"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Expense is money spent by a business.
type Expense struct {
	ID          string          `json:"id"`
	BusinessID  string          `json:"business_id,omitempty"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// StockEntry records one stock receipt.
type StockEntry struct {
	ID         string          `json:"id"`
	BusinessID string          `json:"business_id,omitempty"`
	Supplier   string          `json:"supplier,omitempty"`
	Note       string          `json:"note,omitempty"`
	Total      decimal.Decimal `json:"total"`
	CreatedAt  time.Time       `json:"created_at"`
}

// StockItem is one line of a stock receipt.
type StockItem struct {
	ID        string          `json:"id"`
	EntryID   string          `json:"entry_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	CreatedAt time.Time       `json:"created_at"`
}

// Category groups products.
type Category struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id,omitempty"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Business is a tenant.
type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a team member of a business.
type User struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id,omitempty"`
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	Role       string    `json:"role,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AppState is the whole in-memory state of a session.
type AppState struct {
	Customers    []Customer   `json:"customers"`
	Products     []Product    `json:"products"`
	Sales        []Sale       `json:"sales"`
	Expenses     []Expense    `json:"expenses"`
	StockHistory []StockEntry `json:"stock_history"`
	StockItems   []StockItem  `json:"stock_items"`
	Categories   []Category   `json:"categories"`
	Businesses   []Business   `json:"businesses"`
	Users        []User       `json:"users"`
}

// DefaultState returns a state with every collection empty.
func DefaultState() AppState {
	var s AppState
	s.normalize()
	return s
}

// normalize replaces missing collections with empty ones, so a state saved
// before a collection existed loads cleanly.
func (s *AppState) normalize() {
	if s.Customers == nil {
		s.Customers = []Customer{}
	}
	if s.Products == nil {
		s.Products = []Product{}
	}
	if s.Sales == nil {
		s.Sales = []Sale{}
	}
	if s.Expenses == nil {
		s.Expenses = []Expense{}
	}
	if s.StockHistory == nil {
		s.StockHistory = []StockEntry{}
	}
	if s.StockItems == nil {
		s.StockItems = []StockItem{}
	}
	if s.Categories == nil {
		s.Categories = []Category{}
	}
	if s.Businesses == nil {
		s.Businesses = []Business{}
	}
	if s.Users == nil {
		s.Users = []User{}
	}
}

// Clone returns a copy sharing no slice with s. Elements are plain values.
func (s AppState) Clone() AppState {
	return AppState{
		Customers:    cloneSlice(s.Customers),
		Products:     cloneSlice(s.Products),
		Sales:        cloneSlice(s.Sales),
		Expenses:     cloneSlice(s.Expenses),
		StockHistory: cloneSlice(s.StockHistory),
		StockItems:   cloneSlice(s.StockItems),
		Categories:   cloneSlice(s.Categories),
		Businesses:   cloneSlice(s.Businesses),
		Users:        cloneSlice(s.Users),
	}
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}
