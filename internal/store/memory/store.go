// Package memory is a concurrent in-memory shop.Store for demos and tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/codewandler/shopassist-go/shop"
)

type Store struct {
	mu        sync.RWMutex
	customers map[int64]shop.Customer
	orders    map[int64]shop.Order
	items     map[int64][]shop.OrderItem
	nextItem  int64

	// Calls counts mutating calls by method name.
	calls map[string]int
}

func New() *Store {
	return &Store{
		customers: make(map[int64]shop.Customer),
		orders:    make(map[int64]shop.Order),
		items:     make(map[int64][]shop.OrderItem),
		nextItem:  1,
		calls:     make(map[string]int),
	}
}

// Seeded returns a store with a few customers, orders and items.
func Seeded(now time.Time) *Store {
	s := New()
	s.PutCustomer(shop.Customer{ID: 1, Name: "John Doe", Email: "john@example.com", Phone: "555-0100"})
	s.PutCustomer(shop.Customer{ID: 2, Name: "Jane Smith", Email: "jane@example.com", Phone: "555-0101"})
	s.PutCustomer(shop.Customer{ID: 42, Name: "Ada Lovelace", Email: "ada@example.com", Phone: "555-0142"})

	day := 24 * time.Hour
	s.PutOrder(shop.Order{ID: 1001, CustomerID: 1, Date: now.Add(-3 * day), Status: shop.StatusShipped, EstimatedDelivery: now.Add(2 * day)})
	s.PutOrder(shop.Order{ID: 1002, CustomerID: 1, Date: now.Add(-10 * day), Status: shop.StatusDelivered, EstimatedDelivery: now.Add(-5 * day)})
	s.PutOrder(shop.Order{ID: 2001, CustomerID: 2, Date: now.Add(-1 * day), Status: shop.StatusPending, EstimatedDelivery: now.Add(4 * day)})
	s.PutOrder(shop.Order{ID: 4201, CustomerID: 42, Date: now.Add(-2 * day), Status: shop.StatusPending, EstimatedDelivery: now.Add(3 * day)})

	ctx := context.Background()
	_ = s.AddItem(ctx, 1001, "Organic Milk", 2, 3.49)
	_ = s.AddItem(ctx, 1001, "Whole Wheat Bread", 1, 2.99)
	_ = s.AddItem(ctx, 1002, "Cheddar Cheese", 1, 5.25)
	_ = s.AddItem(ctx, 2001, "Bananas", 6, 0.25)
	_ = s.AddItem(ctx, 4201, "Analytical Engine Manual", 1, 19.99)
	clear(s.calls)
	return s
}

func (s *Store) PutCustomer(c shop.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

func (s *Store) PutOrder(o shop.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
}

// Calls returns how often the mutating method was called.
func (s *Store) Calls(method string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[method]
}

func (s *Store) Customer(_ context.Context, id int64) (shop.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return shop.Customer{}, shop.ErrNotFound
	}
	return c, nil
}

func (s *Store) Orders(_ context.Context, customerID int64) ([]shop.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []shop.Order
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b shop.Order) int {
		return b.Date.Compare(a.Date)
	})
	return out, nil
}

func (s *Store) OrderDetails(_ context.Context, orderID, customerID int64) (shop.OrderDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok || o.CustomerID != customerID {
		return shop.OrderDetails{}, shop.ErrNotFound
	}
	return shop.OrderDetails{
		EstimatedDelivery: o.EstimatedDelivery,
		Status:            o.Status,
		OrderDate:         o.Date,
	}, nil
}

func (s *Store) OrderItems(_ context.Context, orderID int64) ([]shop.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items[orderID]), nil
}

func (s *Store) AddItem(_ context.Context, orderID int64, productName string, quantity int, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["AddItem"]++

	if _, ok := s.orders[orderID]; !ok {
		return shop.ErrNotFound
	}
	s.items[orderID] = append(s.items[orderID], shop.OrderItem{
		ID:          s.nextItem,
		OrderID:     orderID,
		ProductName: productName,
		Quantity:    quantity,
		Price:       price,
	})
	s.nextItem++
	return nil
}

func (s *Store) UpdateItem(_ context.Context, customerID, orderID, itemID int64, newName *string, newQuantity *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["UpdateItem"]++

	if o, ok := s.orders[orderID]; !ok || o.CustomerID != customerID {
		return shop.ErrNotFound
	}
	if newName == nil && newQuantity == nil {
		return shop.ErrNoChanges
	}

	items := s.items[orderID]
	for i := range items {
		if items[i].ID != itemID {
			continue
		}
		if newName != nil {
			items[i].ProductName = *newName
		}
		if newQuantity != nil {
			items[i].Quantity = *newQuantity
		}
		return nil
	}
	return shop.ErrNotFound
}

func (s *Store) CancelOrder(_ context.Context, customerID, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["CancelOrder"]++

	o, ok := s.orders[orderID]
	if !ok || o.CustomerID != customerID {
		return shop.ErrNotFound
	}
	o.Status = shop.StatusCancelled
	s.orders[orderID] = o
	return nil
}

func (s *Store) UpdateCustomerField(_ context.Context, customerID int64, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["UpdateCustomerField"]++

	f, ok := shop.ValidField(field)
	if !ok {
		return shop.ErrInvalidField
	}
	c, ok := s.customers[customerID]
	if !ok {
		return shop.ErrNotFound
	}
	switch f {
	case "name":
		c.Name = value
	case "email":
		c.Email = value
	case "phone":
		c.Phone = value
	}
	s.customers[customerID] = c
	return nil
}

var _ shop.Store = (*Store)(nil)
