package shop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/codewandler/shopassist-go/tool"
)

// Keys of the per-session tool state.
const (
	StateCustomerID    = "customer_id"
	StateSearchResults = "last_search_results"
)

const defaultTopK = 5

const identifyFirst = "Please identify yourself first. What's your customer ID?"

const notYourOrder = "This order doesn't belong to you."

// Toolset binds the customer service tools to a store and a product search.
type Toolset struct {
	Store  Store
	Search ProductSearch
	// Now defaults to time.Now.
	Now  func() time.Time
	TopK int
}

func NewToolset(store Store, search ProductSearch) *Toolset {
	return &Toolset{Store: store, Search: search}
}

func (t *Toolset) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func idProp(what string) tool.Property {
	return tool.String(fmt.Sprintf("The unique identifier for the %s", what))
}

// Bindings returns every tool, ready for Session.AddTools.
func (t *Toolset) Bindings() []tool.Binding {
	return []tool.Binding{
		{
			Tool: tool.Function("identify_customer", "Identify which customer is speaking", tool.Properties{
				"customer_id": tool.String(""),
			}, "customer_id"),
			Handler: t.identifyCustomer,
		},
		{
			Tool: tool.Function("get_customer_info", "Retrieve information about a specific customer", tool.Properties{
				"customer_id": idProp("customer"),
			}, "customer_id"),
			Handler: t.getCustomerInfo,
		},
		{
			Tool: tool.Function("check_order_status", "Check the status of a customer's order", tool.Properties{
				"customer_id": idProp("customer"),
				"order_id":    idProp("order"),
			}, "customer_id", "order_id"),
			Handler: t.checkOrderStatus,
		},
		{
			Tool: tool.Function("process_return", "Initiate a return process for a customer's order", tool.Properties{
				"customer_id": idProp("customer"),
				"order_id":    tool.String("The unique identifier for the order to be returned"),
				"reason":      tool.String("The reason for the return"),
			}, "customer_id", "order_id", "reason"),
			Handler: t.processReturn,
		},
		{
			Tool: tool.Function("get_product_info", "Retrieve information about a specific product", tool.Properties{
				"customer_id": idProp("customer"),
				"product_id":  idProp("product"),
			}, "customer_id", "product_id"),
			Handler: t.getProductInfo,
		},
		{
			Tool: tool.Function("update_account_info", "Update a customer's account information", tool.Properties{
				"customer_id": idProp("customer"),
				"field":       tool.String("The account field to be updated (e.g., 'email', 'phone', 'name')"),
				"value":       tool.String("The new value for the specified field"),
			}, "customer_id", "field", "value"),
			Handler: t.updateAccountInfo,
		},
		{
			Tool: tool.Function("cancel_order", "Cancel a customer's order before it is processed", tool.Properties{
				"customer_id": idProp("customer"),
				"order_id":    tool.String("The unique identifier of the order to be cancelled"),
				"reason":      tool.String("The reason for cancelling the order"),
			}, "customer_id", "order_id", "reason"),
			Handler: t.cancelOrder,
		},
		{
			Tool: tool.Function("schedule_callback", "Schedule a callback with a customer service representative", tool.Properties{
				"customer_id":   idProp("customer"),
				"callback_time": tool.String("Preferred time for the callback in ISO 8601 format"),
			}, "customer_id", "callback_time"),
			Handler: t.scheduleCallback,
		},
		{
			Tool: tool.Function("update_order_item", "Update an item in a customer's order", tool.Properties{
				"customer_id":      idProp("customer"),
				"order_id":         idProp("order"),
				"item_id":          tool.String("The unique identifier for the item to update"),
				"new_product_name": tool.String("The new product name (optional)"),
				"new_quantity":     tool.Integer("The new quantity (optional)"),
			}, "customer_id", "order_id", "item_id"),
			Handler: t.updateOrderItem,
		},
		{
			Tool: tool.Function("get_order_item", "Get details of a specific item in an order", tool.Properties{
				"item_id":  idProp("item"),
				"order_id": tool.String("The unique identifier for the order (optional)"),
			}, "item_id"),
			Handler: t.getOrderItem,
		},
		{
			Tool: tool.Function("product_search", "Search for products in the supermarket inventory", tool.Properties{
				"query": tool.String("The product query from the customer (e.g., 'Do you have cheese?', 'Show me organic milk', 'I need gluten-free bread')"),
			}, "query"),
			Handler: t.productSearch,
		},
		{
			Tool: tool.Function("add_item_to_order", "Add a new item to an existing order", tool.Properties{
				"order_id":      tool.String(""),
				"product_name":  tool.String(""),
				"quantity":      tool.Integer(""),
				"price":         tool.Number(""),
				"search_result": tool.Integer("Number of the product in the last search results, instead of product_name and price (optional)"),
			}, "order_id", "quantity"),
			Handler: t.addItemToOrder,
		},
		{
			Tool: tool.Function("list_order_items", "List all items in a customer's order", tool.Properties{
				"customer_id": tool.String(""),
				"order_id":    tool.String(""),
			}, "customer_id", "order_id"),
			Handler: t.listOrderItems,
		},
	}
}

// id reads a numeric identifier. Models send ids as strings or numbers.
func id(args tool.Args, name string) (int64, string, error) {
	raw, err := args.String(name)
	if err != nil {
		return 0, "", err
	}
	raw = strings.TrimSpace(raw)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, raw, tool.ArgumentError(name, fmt.Errorf("%q is not a valid id", raw))
	}
	return n, raw, nil
}

func sessionCustomer(s *tool.State) (int64, bool) {
	raw, ok := tool.Value[string](s, StateCustomerID)
	if !ok || raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	return n, err == nil
}

func (t *Toolset) identifyCustomer(ctx context.Context, call *tool.Call) (any, error) {
	raw, err := call.Args.String("customer_id")
	if err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(raw)
	call.State.Set(StateCustomerID, raw)

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Result{Text: "Customer not found. Please check your customer ID."}, nil
	}
	c, err := t.Store.Customer(ctx, n)
	if errors.Is(err, ErrNotFound) {
		return Result{Text: "Customer not found. Please check your customer ID."}, nil
	}
	if err != nil {
		return nil, err
	}
	return Result{Text: fmt.Sprintf("Hello %s! I can now help you with your orders.", c.Name)}, nil
}

func (t *Toolset) getCustomerInfo(ctx context.Context, call *tool.Call) (any, error) {
	n, raw, err := id(call.Args, "customer_id")
	if err != nil {
		return nil, err
	}
	c, err := t.Store.Customer(ctx, n)
	if errors.Is(err, ErrNotFound) {
		return Result{Text: fmt.Sprintf("Customer with ID %s not found.", raw)}, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(map[string]string{
		"customer_id": raw,
		"name":        c.Name,
		"email":       c.Email,
		"phone":       c.Phone,
	})
	if err != nil {
		return nil, err
	}
	return Result{Text: string(data)}, nil
}

func (t *Toolset) checkOrderStatus(ctx context.Context, call *tool.Call) (any, error) {
	customerID, rawCustomer, err := id(call.Args, "customer_id")
	if err != nil {
		return nil, err
	}
	orderID, rawOrder, err := id(call.Args, "order_id")
	if err != nil {
		return nil, err
	}

	d := Details(ctx, t.Store, orderID, customerID, t.now())
	return Result{
		Text: fmt.Sprintf("Order %s status for customer %s: %s", rawOrder, rawCustomer, d.Status),
		Receipt: &Receipt{
			Kind:              ReceiptOrderStatus,
			Caption:           "Here is the detail of your order",
			CustomerID:        rawCustomer,
			OrderID:           rawOrder,
			Status:            d.Status,
			OrderDate:         d.OrderDate,
			EstimatedDelivery: d.EstimatedDelivery,
		},
	}, nil
}

func (t *Toolset) processReturn(ctx context.Context, call *tool.Call) (any, error) {
	customerID, err := call.Args.String("customer_id")
	if err != nil {
		return nil, err
	}
	orderID, err := call.Args.String("order_id")
	if err != nil {
		return nil, err
	}
	reason, err := call.Args.String("reason")
	if err != nil {
		return nil, err
	}
	return Result{Text: fmt.Sprintf(
		"Return for order %s initiated by customer %s. Reason: %s. Please expect a refund within 5-7 business days.",
		orderID, customerID, reason,
	)}, nil
}

type catalogEntry struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

var catalog = map[string]catalogEntry{
	"P001": {Name: "Wireless Earbuds", Price: 79.99, Stock: 50},
	"P002": {Name: "Smart Watch", Price: 199.99, Stock: 30},
	"P003": {Name: "Laptop Backpack", Price: 49.99, Stock: 100},
}

func (t *Toolset) getProductInfo(ctx context.Context, call *tool.Call) (any, error) {
	customerID, err := call.Args.String("customer_id")
	if err != nil {
		return nil, err
	}
	productID, err := call.Args.String("product_id")
	if err != nil {
		return nil, err
	}

	var info any = "Product not found"
	if p, ok := catalog[strings.ToUpper(strings.TrimSpace(productID))]; ok {
		info = p
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	return Result{Text: fmt.Sprintf("Product information for customer %s: %s", customerID, data)}, nil
}

func (t *Toolset) updateAccountInfo(ctx context.Context, call *tool.Call) (any, error) {
	customerID, rawCustomer, err := id(call.Args, "customer_id")
	if err != nil {
		return nil, err
	}
	field, err := call.Args.String("field")
	if err != nil {
		return nil, err
	}
	value, err := call.Args.String("value")
	if err != nil {
		return nil, err
	}

	failed := Result{Text: fmt.Sprintf(
		"Failed to update %s for customer %s. Please check if the customer exists and the field is valid.",
		field, rawCustomer,
	)}

	f, ok := ValidField(field)
	if !ok {
		return failed, nil
	}
	err = t.Store.UpdateCustomerField(ctx, customerID, f, value)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidField) {
		return failed, nil
	}
	if err != nil {
		return nil, err
	}
	return Result{Text: fmt.Sprintf(
		"Account information updated for customer %s. %s changed to: %s",
		rawCustomer, strings.ToUpper(f[:1])+f[1:], value,
	)}, nil
}

func (t *Toolset) cancelOrder(ctx context.Context, call *tool.Call) (any, error) {
	customerID, rawCustomer, err := id(call.Args, "customer_id")
	if err != nil {
		return nil, err
	}
	orderID, rawOrder, err := id(call.Args, "order_id")
	if err != nil {
		return nil, err
	}
	reason, err := call.Args.String("reason")
	if err != nil {
		return nil, err
	}

	err = t.Store.CancelOrder(ctx, customerID, orderID)
	if errors.Is(err, ErrNotFound) {
		return Result{Text: fmt.Sprintf(
			"Failed to cancel order %s. Please check if the order exists and belongs to customer %s.",
			rawOrder, rawCustomer,
		)}, nil
	}
	if err != nil {
		return nil, err
	}

	// refund what was paid for the items; an unreadable order refunds 0
	var refund float64
	if items, err := t.Store.OrderItems(ctx, orderID); err == nil {
		for _, it := range items {
			refund += it.Subtotal()
		}
	}

	return Result{
		Text: fmt.Sprintf(
			"Order %s for customer %s has been cancelled. Reason: %s. A confirmation email has been sent.",
			rawOrder, rawCustomer, reason,
		),
		Receipt: &Receipt{
			Kind:             ReceiptOrderCancellation,
			Caption:          "Your order has been cancelled. Here are the details:",
			CustomerID:       rawCustomer,
			OrderID:          rawOrder,
			Status:           StatusCancelled,
			CancellationDate: t.now(),
			RefundAmount:     refund,
		},
	}, nil
}

func (t *Toolset) scheduleCallback(ctx context.Context, call *tool.Call) (any, error) {
	customerID, err := call.Args.String("customer_id")
	if err != nil {
		return nil, err
	}
	when, err := call.Args.String("callback_time")
	if err != nil {
		return nil, err
	}

	return Result{
		Text: fmt.Sprintf(
			"Callback scheduled for customer %s at %s. A representative will contact you then.",
			customerID, when,
		),
		Receipt: &Receipt{
			Kind:         ReceiptCallback,
			Caption:      "Your callback has been scheduled. Here are the details:",
			CustomerID:   customerID,
			CallbackTime: when,
		},
	}, nil
}

func (t *Toolset) updateOrderItem(ctx context.Context, call *tool.Call) (any, error) {
	customerID, _, err := id(call.Args, "customer_id")
	if err != nil {
		return nil, err
	}
	orderID, rawOrder, err := id(call.Args, "order_id")
	if err != nil {
		return nil, err
	}
	itemID, rawItem, err := id(call.Args, "item_id")
	if err != nil {
		return nil, err
	}

	var (
		newName *string
		newQty  *int
	)
	if name, ok, err := call.Args.OptString("new_product_name"); err != nil {
		return nil, err
	} else if ok {
		newName = &name
	}
	if qty, ok, err := call.Args.OptInt("new_quantity"); err != nil {
		return nil, err
	} else if ok {
		if qty < 1 {
			return nil, tool.ArgumentError("new_quantity", fmt.Errorf("quantity must be at least 1, got %d", qty))
		}
		newQty = &qty
	}

	err = t.Store.UpdateItem(ctx, customerID, orderID, itemID, newName, newQty)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoChanges) {
		return Result{Text: fmt.Sprintf("Failed to update order %s, item %s. Please check the IDs.", rawOrder, rawItem)}, nil
	}
	if err != nil {
		return nil, err
	}
	return Result{Text: fmt.Sprintf("Order %s, item %s has been updated successfully.", rawOrder, rawItem)}, nil
}

// getOrderItem looks in the given order, or in every order of the session's
// customer when no order is named.
func (t *Toolset) getOrderItem(ctx context.Context, call *tool.Call) (any, error) {
	itemID, rawItem, err := id(call.Args, "item_id")
	if err != nil {
		return nil, err
	}

	var orderIDs []int64
	rawOrder := ""
	if call.Args.Has("order_id") {
		var orderID int64
		orderID, rawOrder, err = id(call.Args, "order_id")
		if err != nil {
			return nil, err
		}
		orderIDs = append(orderIDs, orderID)
	} else {
		customerID, ok := sessionCustomer(call.State)
		if !ok {
			return Result{Text: identifyFirst}, nil
		}
		orders, err := t.Store.Orders(ctx, customerID)
		if err != nil {
			return nil, err
		}
		for _, o := range orders {
			orderIDs = append(orderIDs, o.ID)
		}
	}

	for _, orderID := range orderIDs {
		items, err := t.Store.OrderItems(ctx, orderID)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if it.ID != itemID {
				continue
			}
			data, err := json.Marshal(it)
			if err != nil {
				return nil, err
			}
			return Result{Text: string(data)}, nil
		}
	}

	msg := fmt.Sprintf("No item found with ID %s", rawItem)
	if rawOrder != "" {
		msg += fmt.Sprintf(" in order %s", rawOrder)
	}
	return Result{Text: msg}, nil
}

func (t *Toolset) productSearch(ctx context.Context, call *tool.Call) (any, error) {
	query, err := call.Args.String("query")
	if err != nil {
		return nil, err
	}
	if t.Search == nil {
		return Result{Text: "I encountered an error while searching for products."}, nil
	}

	topK := t.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	results, err := t.Search.Search(ctx, query, topK)
	if err != nil {
		return Result{Text: "I encountered an error while searching for products."}, nil
	}
	if len(results) == 0 {
		return Result{Text: "I'm sorry, I couldn't find any matching products in our inventory."}, nil
	}

	call.State.Set(StateSearchResults, results)

	var b strings.Builder
	fmt.Fprintf(&b, "I found %d products matching '%s':\n\n", len(results), query)
	for i, p := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p.Name)
		if known(p.Brand) {
			fmt.Fprintf(&b, "   Brand: %s\n", p.Brand)
		}
		if known(p.Department) {
			fmt.Fprintf(&b, "   Department: %s\n", p.Department)
		}
		fmt.Fprintf(&b, "   Price: $%.2f\n", p.Price)
		if known(p.Size) {
			fmt.Fprintf(&b, "   Size: %s\n", p.Size)
		}
		fmt.Fprintf(&b, "   Match Score: %.2f\n\n", p.Score)
	}
	b.WriteString("Would you like to add any of these to your order?")
	return Result{Text: b.String()}, nil
}

func known(s string) bool {
	return s != "" && s != "Unknown"
}

func (t *Toolset) addItemToOrder(ctx context.Context, call *tool.Call) (any, error) {
	customerID, ok := sessionCustomer(call.State)
	if !ok {
		return Result{Text: identifyFirst}, nil
	}

	orderID, rawOrder, err := id(call.Args, "order_id")
	if err != nil {
		return nil, err
	}
	qty, err := call.Args.Int("quantity")
	if err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, tool.ArgumentError("quantity", fmt.Errorf("quantity must be at least 1, got %d", qty))
	}
	name, price, err := productToAdd(call)
	if err != nil {
		return nil, err
	}

	owned, err := OwnsOrder(ctx, t.Store, customerID, orderID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return Result{Text: notYourOrder}, nil
	}

	if err := t.Store.AddItem(ctx, orderID, name, qty, price); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Result{Text: "Failed to add item to order"}, nil
		}
		return nil, err
	}
	return Result{Text: fmt.Sprintf("Added %d %s to order %s at $%.2f each.", qty, name, rawOrder, price)}, nil
}

// productToAdd takes name and price from the arguments, or from the session's
// last search results when search_result is given.
func productToAdd(call *tool.Call) (string, float64, error) {
	if n, ok, err := call.Args.OptInt("search_result"); err != nil {
		return "", 0, err
	} else if ok {
		results, _ := tool.Value[[]Product](call.State, StateSearchResults)
		if n < 1 || n > len(results) {
			return "", 0, tool.ArgumentError("search_result", fmt.Errorf("%d is not one of the %d last search results", n, len(results)))
		}
		p := results[n-1]
		return p.Name, p.Price, nil
	}

	name, err := call.Args.String("product_name")
	if err != nil {
		return "", 0, err
	}
	price, err := call.Args.Float("price")
	if err != nil {
		return "", 0, err
	}
	if price < 0 {
		return "", 0, tool.ArgumentError("price", fmt.Errorf("price must not be negative, got %.2f", price))
	}
	return name, price, nil
}

func (t *Toolset) listOrderItems(ctx context.Context, call *tool.Call) (any, error) {
	customerID, _, err := id(call.Args, "customer_id")
	if err != nil {
		return nil, err
	}
	orderID, rawOrder, err := id(call.Args, "order_id")
	if err != nil {
		return nil, err
	}

	owned, err := OwnsOrder(ctx, t.Store, customerID, orderID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return Result{Text: notYourOrder}, nil
	}

	items, err := t.Store.OrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return Result{Text: fmt.Sprintf("Order %s is empty.", rawOrder)}, nil
	}

	var (
		b     strings.Builder
		total float64
	)
	fmt.Fprintf(&b, "Order %s contains the following items:\n\n", rawOrder)
	for _, it := range items {
		sub := it.Subtotal()
		fmt.Fprintf(&b, "• %s\n", it.ProductName)
		fmt.Fprintf(&b, "  Quantity: %d\n", it.Quantity)
		fmt.Fprintf(&b, "  Price per item: $%.2f\n", it.Price)
		fmt.Fprintf(&b, "  Subtotal: $%.2f\n\n", sub)
		total += sub
	}
	fmt.Fprintf(&b, "Order Total: $%.2f", total)
	return Result{Text: b.String()}, nil
}
