// Package shop holds the business operations the assistant's tools act on:
// customers, their orders and the product catalogue.
package shop

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidField = errors.New("invalid field")
	ErrNoChanges    = errors.New("no changes requested")
)

// Order statuses used by the stores.
const (
	StatusPending   = "Pending"
	StatusShipped   = "Shipped"
	StatusDelivered = "Delivered"
	StatusCancelled = "Cancelled"

	// StatusNotFound and StatusError are reported by Details when the
	// order could not be loaded.
	StatusNotFound = "Not Found"
	StatusError    = "Error"
)

// UpdatableFields are the customer fields UpdateCustomerField accepts.
var UpdatableFields = []string{"name", "email", "phone"}

type Customer struct {
	ID    int64  `json:"customer_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Order struct {
	ID                int64     `json:"order_id"`
	CustomerID        int64     `json:"customer_id"`
	Date              time.Time `json:"order_date"`
	Status            string    `json:"status"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
}

type OrderItem struct {
	ID          int64   `json:"item_id"`
	OrderID     int64   `json:"order_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

func (i OrderItem) Subtotal() float64 {
	return i.Price * float64(i.Quantity)
}

type OrderDetails struct {
	EstimatedDelivery time.Time
	Status            string
	OrderDate         time.Time
}

// Product is a search hit. Unknown catalogue attributes are "Unknown".
type Product struct {
	Name        string  `json:"product_name"`
	Brand       string  `json:"brand"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Size        string  `json:"size"`
	Department  string  `json:"department"`
	Subcategory string  `json:"subcategory"`
	Score       float64 `json:"score"`
}

// Store is the relational side of the shop. Implementations must be safe for
// concurrent use by many sessions. Mutations report ErrNotFound when nothing
// matched, including orders that belong to another customer.
type Store interface {
	Customer(ctx context.Context, id int64) (Customer, error)
	// Orders returns the customer's orders, newest first.
	Orders(ctx context.Context, customerID int64) ([]Order, error)
	OrderDetails(ctx context.Context, orderID, customerID int64) (OrderDetails, error)
	OrderItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	AddItem(ctx context.Context, orderID int64, productName string, quantity int, price float64) error
	// UpdateItem changes name and/or quantity; with neither set it returns
	// ErrNoChanges.
	UpdateItem(ctx context.Context, customerID, orderID, itemID int64, newName *string, newQuantity *int) error
	CancelOrder(ctx context.Context, customerID, orderID int64) error
	// UpdateCustomerField only accepts UpdatableFields and returns
	// ErrInvalidField otherwise.
	UpdateCustomerField(ctx context.Context, customerID int64, field, value string) error
}

// ProductSearch ranks catalogue products by relevance to a free text query.
type ProductSearch interface {
	Search(ctx context.Context, query string, topK int) ([]Product, error)
}

// Details loads order details and never fails: a missing order reports
// StatusNotFound, any other failure StatusError, both with an estimated
// delivery five days from now.
func Details(ctx context.Context, store Store, orderID, customerID int64, now time.Time) OrderDetails {
	d, err := store.OrderDetails(ctx, orderID, customerID)
	if err == nil {
		return d
	}

	status := StatusError
	if errors.Is(err, ErrNotFound) {
		status = StatusNotFound
	}
	return OrderDetails{
		EstimatedDelivery: now.AddDate(0, 0, 5),
		Status:            status,
		OrderDate:         now,
	}
}

// OwnsOrder reports whether orderID is one of the customer's orders.
func OwnsOrder(ctx context.Context, store Store, customerID, orderID int64) (bool, error) {
	orders, err := store.Orders(ctx, customerID)
	if err != nil {
		return false, err
	}
	for _, o := range orders {
		if o.ID == orderID {
			return true, nil
		}
	}
	return false, nil
}

// ValidField normalizes field and reports whether it may be updated.
func ValidField(field string) (string, bool) {
	f := strings.ToLower(strings.TrimSpace(field))
	for _, allowed := range UpdatableFields {
		if f == allowed {
			return f, true
		}
	}
	return f, false
}
