package createorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mediguard/order/internal/service/models/order"
	"github.com/mediguard/order/internal/service/services/ordersvc"
	"github.com/mediguard/order/internal/transport/http/dto"
)

// service is an interface for the service layer.
type service interface {
	CreateOrder(ctx context.Context, input ordersvc.CreateOrderInput) (*order.Order, error)
}

// CreateOrder handles the order creation request.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	var req dto.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dto.WriteJSON(w, http.StatusBadRequest, dto.ErrorResponse{Message: "invalid request body"})
		slog.Error("Error decoding create order request", "error", err)

		return
	}

	input := ordersvc.CreateOrderInput{
		UserID:          req.UserID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Items:           make([]ordersvc.CreateOrderItemInput, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, ordersvc.CreateOrderItemInput{
			MedicationID: item.MedicationID,
			Quantity:     item.Quantity,
		})
	}

	created, err := service.CreateOrder(r.Context(), input)
	if err != nil {
		dto.WriteError(w, err)
		slog.Error("Error creating order", "error", err)

		return
	}

	w.Header().Set("Location", "/api/order/"+created.ID.String())
	dto.WriteJSON(w, http.StatusCreated, dto.FromOrder(created))
}
