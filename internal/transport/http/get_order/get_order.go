package getorder

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mediguard/order/internal/service/models/order"
	"github.com/mediguard/order/internal/transport/http/dto"
)

// service is an interface for the service layer.
type service interface {
	GetOrder(ctx context.Context, orderID uuid.UUID, requestingUserID string) (*order.Order, error)
}

// GetOrder handles the order detail request. The caller identity is injected
// by the gateway in the X-User-Id header; orders owned by another user are
// reported as absent.
func GetOrder(w http.ResponseWriter, r *http.Request, service service) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		dto.WriteJSON(w, http.StatusBadRequest, dto.ErrorResponse{Message: "invalid order id"})

		return
	}

	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		dto.WriteJSON(w, http.StatusBadRequest, dto.ErrorResponse{Message: "user id is required"})

		return
	}

	ord, err := service.GetOrder(r.Context(), orderID, userID)
	if err != nil {
		dto.WriteError(w, err)

		return
	}

	dto.WriteJSON(w, http.StatusOK, dto.FromOrder(ord))
}
