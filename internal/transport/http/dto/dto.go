// Package dto holds the wire representations of orders and the mapping
// from business error kinds to HTTP status codes.
package dto

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mediguard/order/internal/service/errs"
	"github.com/mediguard/order/internal/service/models/order"
	"github.com/mediguard/order/internal/service/models/orderitem"
)

type CreateOrderRequest struct {
	UserID          string                   `json:"userId"`
	ShippingAddress string                   `json:"shippingAddress"`
	PaymentMethod   string                   `json:"paymentMethod"`
	Items           []CreateOrderItemRequest `json:"items"`
}

type CreateOrderItemRequest struct {
	MedicationID string `json:"medicationId"`
	Quantity     int    `json:"quantity"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type OrderItemResponse struct {
	ID             int64  `json:"id"`
	MedicationID   string `json:"medicationId"`
	MedicationName string `json:"medicationName"`
	Quantity       int    `json:"quantity"`
	PriceCents     int64  `json:"priceCents"`
	SubtotalCents  int64  `json:"subtotalCents"`
	Currency       string `json:"currency"`
}

type OrderResponse struct {
	ID                   string              `json:"id"`
	UserID               string              `json:"userId"`
	Status               string              `json:"status"`
	ShippingAddress      string              `json:"shippingAddress,omitempty"`
	PaymentMethod        string              `json:"paymentMethod,omitempty"`
	TotalPriceCents      int64               `json:"totalPriceCents"`
	Currency             string              `json:"currency"`
	PaymentTransactionID string              `json:"paymentTransactionId,omitempty"`
	ShippedAt            *time.Time          `json:"shippedAt,omitempty"`
	DeliveredAt          *time.Time          `json:"deliveredAt,omitempty"`
	CreatedAt            time.Time           `json:"createdAt"`
	Items                []OrderItemResponse `json:"items"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

// FromOrder converts a service layer order to its wire representation.
func FromOrder(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.OrderItems))
	for _, item := range o.OrderItems {
		items = append(items, fromOrderItem(item))
	}

	return OrderResponse{
		ID:                   o.ID.String(),
		UserID:               o.UserID,
		Status:               o.Status.String(),
		ShippingAddress:      o.ShippingAddress,
		PaymentMethod:        o.PaymentMethod,
		TotalPriceCents:      o.TotalPriceCents,
		Currency:             o.TotalPriceCurrency.String(),
		PaymentTransactionID: o.PaymentTransactionID,
		ShippedAt:            o.ShippedAt,
		DeliveredAt:          o.DeliveredAt,
		CreatedAt:            o.CreatedAt,
		Items:                items,
	}
}

// FromOrders converts a list of orders, preserving order.
func FromOrders(orders []order.Order) []OrderResponse {
	result := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		result = append(result, FromOrder(&orders[i]))
	}

	return result
}

func fromOrderItem(item orderitem.OrderItem) OrderItemResponse {
	return OrderItemResponse{
		ID:             item.ID,
		MedicationID:   item.MedicationID,
		MedicationName: item.MedicationName,
		Quantity:       item.Quantity,
		PriceCents:     item.PriceCents,
		SubtotalCents:  item.SubtotalCents,
		Currency:       item.PriceCurrency.String(),
	}
}

// WriteJSON writes v as a JSON response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error writing response", "error", err)
	}
}

// WriteError maps a business error to its HTTP status. Errors without a
// known kind are reported as a generic 500 so no internal detail leaks.
func WriteError(w http.ResponseWriter, err error) {
	var status int
	message := err.Error()

	switch errs.KindOf(err) {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindConflict:
		status = http.StatusConflict
	case errs.KindPayment:
		status = http.StatusBadGateway
	case errs.KindUnauthorized:
		// Not-owned orders are reported as absent.
		status = http.StatusNotFound
		message = "order not found"
	default:
		status = http.StatusInternalServerError
		message = "internal server error"
	}

	WriteJSON(w, status, ErrorResponse{Message: message})
}
