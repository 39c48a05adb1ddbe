package models

import (
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusAccepted       OrderStatus = "accepted"
	OrderStatusRejected       OrderStatus = "rejected"
)

// transitions is the complete order state machine. Statuses with no entry
// are terminal.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment: {OrderStatusPending, OrderStatusAccepted, OrderStatusRejected},
	OrderStatusPending:        {OrderStatusAccepted, OrderStatusRejected},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPending, OrderStatusAccepted, OrderStatusRejected:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCOD      PaymentMethod = "cod"
	PaymentMethodBkash    PaymentMethod = "bkash"
	PaymentMethodPayFirst PaymentMethod = "pay_first"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodBkash, PaymentMethodPayFirst:
		return true
	}
	return false
}

// InitialStatus is pending for cash on delivery and pending_payment for
// methods that need an online payment confirmation first.
func (m PaymentMethod) InitialStatus() OrderStatus {
	if m == PaymentMethodCOD {
		return OrderStatusPending
	}
	return OrderStatusPendingPayment
}

type CustomerInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// LineItem is a snapshot of a product at checkout time.
type LineItem struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Size      string  `json:"size,omitempty"`
}

type Order struct {
	ID             int64         `json:"id"`
	OrderID        string        `json:"order_id"`
	Customer       CustomerInfo  `json:"customer_info"`
	Products       []LineItem    `json:"products"`
	Total          float64       `json:"total"`
	Discount       float64       `json:"discount"`
	ShippingCharge float64       `json:"shipping_charge"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	Status         OrderStatus   `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ComputeTotal returns subtotal minus discount plus shipping, rounded to cents.
func (o *Order) ComputeTotal() float64 {
	subtotal := 0.0
	for _, item := range o.Products {
		subtotal += item.Price * float64(item.Quantity)
	}
	total := subtotal - o.Discount + o.ShippingCharge
	if total < 0 {
		total = 0
	}
	return math.Round(total*100) / 100
}

// Validate reports every missing or malformed field at once.
func (o *Order) Validate() error {
	details := map[string]string{}

	if strings.TrimSpace(o.Customer.Name) == "" {
		details["customer_info.name"] = "Name is required"
	}
	if strings.TrimSpace(o.Customer.Email) == "" {
		details["customer_info.email"] = "Email is required"
	} else if _, err := mail.ParseAddress(o.Customer.Email); err != nil {
		details["customer_info.email"] = "Email is invalid"
	}
	if strings.TrimSpace(o.Customer.Phone) == "" {
		details["customer_info.phone"] = "Phone is required"
	}
	if strings.TrimSpace(o.Customer.Address) == "" {
		details["customer_info.address"] = "Address is required"
	}
	if !o.PaymentMethod.Valid() {
		details["payment_method"] = "Payment method must be one of cod, bkash, pay_first"
	}
	if o.Discount < 0 {
		details["discount"] = "Discount cannot be negative"
	}
	if o.ShippingCharge < 0 {
		details["shipping_charge"] = "Shipping charge cannot be negative"
	}
	if len(o.Products) == 0 {
		details["products"] = "At least one product is required"
	}
	for i, item := range o.Products {
		if item.ProductID == "" {
			details[fmt.Sprintf("products[%d].product_id", i)] = "Product is required"
		}
		if item.Quantity <= 0 {
			details[fmt.Sprintf("products[%d].quantity", i)] = "Quantity must be greater than zero"
		}
	}

	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

type StatusChange struct {
	OrderID    string      `json:"order_id"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status"`
	ActorID    int64       `json:"actor_id"`
	CreatedAt  time.Time   `json:"created_at"`
}

// OrderFilter narrows an order listing. Zero values are ignored.
type OrderFilter struct {
	OrderID string
	Status  OrderStatus
	Email   string
	Date    *time.Time
	From    *time.Time
	To      *time.Time
	Search  string
}

type CreateOrderRequest struct {
	Customer       CustomerInfo  `json:"customer_info"`
	Products       []LineItem    `json:"products"`
	Discount       float64       `json:"discount"`
	ShippingCharge float64       `json:"shipping_charge"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
}

// ItemRef identifies stock requested by one line of an order.
type ItemRef struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
}

func ItemRefs(items []LineItem) []ItemRef {
	refs := make([]ItemRef, len(items))
	for i, item := range items {
		refs[i] = ItemRef{ProductID: item.ProductID, Quantity: item.Quantity, Size: item.Size}
	}
	return refs
}

type ValidateProductsRequest struct {
	OrderID  string    `json:"orderId" binding:"required"`
	Products []ItemRef `json:"products"`
}

type OrderAction string

const (
	OrderActionAccept OrderAction = "accept"
	OrderActionReject OrderAction = "reject"
)

type OrderActionRequest struct {
	OrderID string      `json:"orderId" binding:"required"`
	Action  OrderAction `json:"action" binding:"required,oneof=accept reject"`
}

type BulkOrderActionRequest struct {
	OrderIDs []string    `json:"orderIds" binding:"required,min=1"`
	Action   OrderAction `json:"action" binding:"required,oneof=accept reject"`
}

type OrderEvent struct {
	OrderID   string        `json:"order_id"`
	Status    OrderStatus   `json:"status"`
	Email     string        `json:"email"`
	Total     float64       `json:"total"`
	Method    PaymentMethod `json:"payment_method"`
	ActorID   int64         `json:"actor_id,omitempty"`
	EventType string        `json:"event_type"` // order_created, order_accepted, order_rejected, order_payment_confirmed
}

type PaymentEvent struct {
	OrderID       string `json:"order_id"`
	EventType     string `json:"event_type"` // payment_success, payment_failed
	TransactionID string `json:"transaction_id"`
}
