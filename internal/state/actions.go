package state

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/kilupskalvis/bizstore/internal/dberr"
)

// Action is a state transition. The set of actions is closed.
type Action interface {
	Kind() string
	apply(s *AppState, env env) error
}

// env supplies ids and timestamps to actions.
type env struct {
	now   func() time.Time
	newID func() string
}

// stamp fills a missing id and timestamp. Add actions keep a caller-supplied
// id and reject one the collection already holds.
func (e env) stamp(id *string, at *time.Time) {
	if *id == "" {
		*id = e.newID()
	}
	if at.IsZero() {
		*at = e.now().UTC()
	}
}

var (
	ErrInvalidAction     = errors.New("invalid action")
	ErrUnknownAction     = errors.New("unknown action kind")
	ErrUnknownCollection = errors.New("unknown collection")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAction, fmt.Sprintf(format, args...))
}

// AddCustomer adds a customer.
type AddCustomer struct{ Customer Customer }

func (AddCustomer) Kind() string { return "add_customer" }

func (a AddCustomer) apply(s *AppState, e env) error {
	if a.Customer.Name == "" {
		return invalid("customer name is required")
	}
	c := a.Customer
	e.stamp(&c.ID, &c.CreatedAt)
	if hasID(s.Customers, c.ID, func(v Customer) string { return v.ID }) {
		return dberr.Conflict("customers", c.ID)
	}
	s.Customers = append(s.Customers, c)
	return nil
}

// AddProduct adds a product to the catalogue.
type AddProduct struct{ Product Product }

func (AddProduct) Kind() string { return "add_product" }

func (a AddProduct) apply(s *AppState, e env) error {
	if a.Product.Name == "" {
		return invalid("product name is required")
	}
	p := a.Product
	e.stamp(&p.ID, &p.CreatedAt)
	if hasID(s.Products, p.ID, func(v Product) string { return v.ID }) {
		return dberr.Conflict("products", p.ID)
	}
	s.Products = append(s.Products, p)
	return nil
}

// AddExpense records an expense.
type AddExpense struct{ Expense Expense }

func (AddExpense) Kind() string { return "add_expense" }

func (a AddExpense) apply(s *AppState, e env) error {
	if a.Expense.Amount.IsNegative() {
		return invalid("expense amount must not be negative")
	}
	x := a.Expense
	e.stamp(&x.ID, &x.CreatedAt)
	if hasID(s.Expenses, x.ID, func(v Expense) string { return v.ID }) {
		return dberr.Conflict("expenses", x.ID)
	}
	s.Expenses = append(s.Expenses, x)
	return nil
}

// AddCategory adds a product category.
type AddCategory struct{ Category Category }

func (AddCategory) Kind() string { return "add_category" }

func (a AddCategory) apply(s *AppState, e env) error {
	if a.Category.Name == "" {
		return invalid("category name is required")
	}
	c := a.Category
	e.stamp(&c.ID, &c.CreatedAt)
	if hasID(s.Categories, c.ID, func(v Category) string { return v.ID }) {
		return dberr.Conflict("categories", c.ID)
	}
	s.Categories = append(s.Categories, c)
	return nil
}

// AddBusiness registers a business.
type AddBusiness struct{ Business Business }

func (AddBusiness) Kind() string { return "add_business" }

func (a AddBusiness) apply(s *AppState, e env) error {
	if a.Business.Name == "" {
		return invalid("business name is required")
	}
	b := a.Business
	e.stamp(&b.ID, &b.CreatedAt)
	if hasID(s.Businesses, b.ID, func(v Business) string { return v.ID }) {
		return dberr.Conflict("businesses", b.ID)
	}
	s.Businesses = append(s.Businesses, b)
	return nil
}

// AddUser adds a team member.
type AddUser struct{ User User }

func (AddUser) Kind() string { return "add_user" }

func (a AddUser) apply(s *AppState, e env) error {
	if a.User.Email == "" {
		return invalid("user email is required")
	}
	u := a.User
	e.stamp(&u.ID, &u.CreatedAt)
	if hasID(s.Users, u.ID, func(v User) string { return v.ID }) {
		return dberr.Conflict("users", u.ID)
	}
	s.Users = append(s.Users, u)
	return nil
}

// SaleItem is one product line of an AddSale.
type SaleItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
}

// AddSale records a sale as one Sale line per item. Paid is apportioned
// across lines by each line's share of Total, and sold quantities are taken
// off the products.
type AddSale struct {
	BusinessID string          `json:"business_id"`
	CustomerID string          `json:"customer_id"`
	Total      decimal.Decimal `json:"total"`
	Paid       decimal.Decimal `json:"paid"`
	Items      []SaleItem      `json:"items"`
}

func (AddSale) Kind() string { return "add_sale" }

func (a AddSale) apply(s *AppState, e env) error {
	if len(a.Items) == 0 {
		return invalid("sale has no items")
	}
	if a.Paid.IsNegative() {
		return invalid("paid amount must not be negative")
	}

	total := a.Total
	totals := make([]decimal.Decimal, len(a.Items))
	for i, it := range a.Items {
		totals[i] = it.Total
	}
	if total.IsZero() {
		total = decimal.Sum(decimal.Zero, totals...)
	}

	paid := Apportion(a.Paid, total, totals)
	group := e.newID()
	at := e.now().UTC()
	for i, it := range a.Items {
		s.Sales = append(s.Sales, Sale{
			ID:          e.newID(),
			SaleGroupID: group,
			BusinessID:  a.BusinessID,
			CustomerID:  a.CustomerID,
			ProductID:   it.ProductID,
			Quantity:    it.Quantity,
			Total:       it.Total,
			Paid:        paid[i],
			Due:         it.Total.Sub(paid[i]),
			CreatedAt:   at,
		})
		if p := s.product(it.ProductID); p != nil {
			p.Quantity -= it.Quantity
		}
	}
	return nil
}

// Apportion gives each part its share amount*part/total, rounded to cents.
// Rounding drift lands on the last part, so the shares sum to the rounded
// proportional whole: exactly amount when the parts add up to total. A zero
// total gives the whole amount to the last part.
func Apportion(amount, total decimal.Decimal, parts []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(parts))
	if len(parts) == 0 {
		return out
	}
	last := len(parts) - 1
	if total.IsZero() {
		for i := range out {
			out[i] = decimal.Zero
		}
		out[last] = amount
		return out
	}

	sum := decimal.Sum(decimal.Zero, parts...)
	whole := amount
	if !sum.Equal(total) {
		whole = amount.Mul(sum).Div(total).Round(2)
	}

	assigned := decimal.Zero
	for i := 0; i < last; i++ {
		out[i] = amount.Mul(parts[i]).Div(total).Round(2)
		assigned = assigned.Add(out[i])
	}
	out[last] = whole.Sub(assigned)
	return out
}

// StockLine is one product line of a ReceiveStock.
type StockLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// ReceiveStock records a stock receipt and adds the received quantities to
// the products.
type ReceiveStock struct {
	BusinessID string      `json:"business_id"`
	Supplier   string      `json:"supplier"`
	Note       string      `json:"note"`
	Items      []StockLine `json:"items"`
}

func (ReceiveStock) Kind() string { return "receive_stock" }

func (a ReceiveStock) apply(s *AppState, e env) error {
	if len(a.Items) == 0 {
		return invalid("stock receipt has no items")
	}
	for _, it := range a.Items {
		if it.Quantity <= 0 {
			return invalid("received quantity must be positive")
		}
	}

	entry := StockEntry{
		ID:         e.newID(),
		BusinessID: a.BusinessID,
		Supplier:   a.Supplier,
		Note:       a.Note,
		Total:      decimal.Zero,
		CreatedAt:  e.now().UTC(),
	}
	for _, it := range a.Items {
		entry.Total = entry.Total.Add(it.UnitCost.Mul(decimal.NewFromInt(int64(it.Quantity))))
		s.StockItems = append(s.StockItems, StockItem{
			ID:        e.newID(),
			EntryID:   entry.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitCost:  it.UnitCost,
			CreatedAt: entry.CreatedAt,
		})
		if p := s.product(it.ProductID); p != nil {
			p.Quantity += it.Quantity
		}
	}
	s.StockHistory = append(s.StockHistory, entry)
	return nil
}

// UpdateProduct changes the set fields of a product.
type UpdateProduct struct {
	ID         string           `json:"id"`
	Name       *string          `json:"name,omitempty"`
	CategoryID *string          `json:"category_id,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Cost       *decimal.Decimal `json:"cost,omitempty"`
	Quantity   *int             `json:"quantity,omitempty"`
}

func (UpdateProduct) Kind() string { return "update_product" }

func (a UpdateProduct) apply(s *AppState, _ env) error {
	p := s.product(a.ID)
	if p == nil {
		return dberr.NotFound("products", a.ID)
	}
	if a.Name != nil {
		p.Name = *a.Name
	}
	if a.CategoryID != nil {
		p.CategoryID = *a.CategoryID
	}
	if a.Price != nil {
		p.Price = *a.Price
	}
	if a.Cost != nil {
		p.Cost = *a.Cost
	}
	if a.Quantity != nil {
		p.Quantity = *a.Quantity
	}
	return nil
}

// RemoveEntity deletes the record with ID from a named collection.
type RemoveEntity struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

func (RemoveEntity) Kind() string { return "remove_entity" }

func (a RemoveEntity) apply(s *AppState, _ env) error {
	var removed bool
	switch a.Collection {
	case "customers":
		s.Customers, removed = removeByID(s.Customers, a.ID, func(v Customer) string { return v.ID })
	case "products":
		s.Products, removed = removeByID(s.Products, a.ID, func(v Product) string { return v.ID })
	case "sales":
		s.Sales, removed = removeByID(s.Sales, a.ID, func(v Sale) string { return v.ID })
	case "expenses":
		s.Expenses, removed = removeByID(s.Expenses, a.ID, func(v Expense) string { return v.ID })
	case "stock_history":
		s.StockHistory, removed = removeByID(s.StockHistory, a.ID, func(v StockEntry) string { return v.ID })
	case "stock_items":
		s.StockItems, removed = removeByID(s.StockItems, a.ID, func(v StockItem) string { return v.ID })
	case "categories":
		s.Categories, removed = removeByID(s.Categories, a.ID, func(v Category) string { return v.ID })
	case "businesses":
		s.Businesses, removed = removeByID(s.Businesses, a.ID, func(v Business) string { return v.ID })
	case "users":
		s.Users, removed = removeByID(s.Users, a.ID, func(v User) string { return v.ID })
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCollection, a.Collection)
	}
	if !removed {
		return dberr.NotFound(a.Collection, a.ID)
	}
	return nil
}

func hasID[T any](in []T, id string, idOf func(T) string) bool {
	for _, v := range in {
		if idOf(v) == id {
			return true
		}
	}
	return false
}

func removeByID[T any](in []T, id string, idOf func(T) string) ([]T, bool) {
	for i, v := range in {
		if idOf(v) == id {
			return append(in[:i:i], in[i+1:]...), true
		}
	}
	return in, false
}

// ReplaceState swaps in a whole state. Used for the initial load.
type ReplaceState struct{ State AppState }

func (ReplaceState) Kind() string { return "replace_state" }

func (a ReplaceState) apply(s *AppState, _ env) error {
	*s = a.State.Clone()
	s.normalize()
	return nil
}

func (s *AppState) product(id string) *Product {
	for i := range s.Products {
		if s.Products[i].ID == id {
			return &s.Products[i]
		}
	}
	return nil
}

var decoders = map[string]func([]byte) (Action, error){
	"add_customer":   decodeInto[AddCustomer](func(a *AddCustomer) any { return &a.Customer }),
	"add_product":    decodeInto[AddProduct](func(a *AddProduct) any { return &a.Product }),
	"add_expense":    decodeInto[AddExpense](func(a *AddExpense) any { return &a.Expense }),
	"add_category":   decodeInto[AddCategory](func(a *AddCategory) any { return &a.Category }),
	"add_business":   decodeInto[AddBusiness](func(a *AddBusiness) any { return &a.Business }),
	"add_user":       decodeInto[AddUser](func(a *AddUser) any { return &a.User }),
	"add_sale":       decodeInto[AddSale](func(a *AddSale) any { return a }),
	"receive_stock":  decodeInto[ReceiveStock](func(a *ReceiveStock) any { return a }),
	"update_product": decodeInto[UpdateProduct](func(a *UpdateProduct) any { return a }),
	"remove_entity":  decodeInto[RemoveEntity](func(a *RemoveEntity) any { return a }),
	"replace_state":  decodeInto[ReplaceState](func(a *ReplaceState) any { return &a.State }),
}

func decodeInto[T Action](target func(*T) any) func([]byte) (Action, error) {
	return func(data []byte) (Action, error) {
		var a T
		if err := json.Unmarshal(data, target(&a)); err != nil {
			return nil, fmt.Errorf("decode %s: %w", a.Kind(), err)
		}
		return a, nil
	}
}

// DecodeAction builds an action of kind from its JSON body. Entity actions
// take the entity itself as the body.
func DecodeAction(kind string, data []byte) (Action, error) {
	dec, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, kind)
	}
	return dec(data)
}

// ActionKinds lists the kinds DecodeAction accepts.
func ActionKinds() []string {
	return []string{
		"add_customer", "add_product", "add_expense", "add_category", "add_business",
		"add_user", "add_sale", "receive_stock", "update_product", "remove_entity",
		"replace_state",
	}
}
