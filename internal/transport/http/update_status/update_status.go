package updatestatus

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mediguard/order/internal/service/models/order"
	"github.com/mediguard/order/internal/transport/http/dto"
)

// service is an interface for the service layer.
type service interface {
	UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus order.Status) error
}

// UpdateStatus handles the order status transition request.
func UpdateStatus(w http.ResponseWriter, r *http.Request, service service) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		dto.WriteJSON(w, http.StatusBadRequest, dto.ErrorResponse{Message: "invalid order id"})

		return
	}

	var req dto.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dto.WriteJSON(w, http.StatusBadRequest, dto.ErrorResponse{Message: "invalid request body"})

		return
	}

	newStatus, err := order.ParseStatus(req.Status)
	if err != nil {
		dto.WriteJSON(w, http.StatusBadRequest, dto.ErrorResponse{Message: "unknown order status: " + req.Status})

		return
	}

	if err := service.UpdateStatus(r.Context(), orderID, newStatus); err != nil {
		dto.WriteError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
