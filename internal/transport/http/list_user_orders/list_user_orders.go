package listuserorders

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mediguard/order/internal/service/models/order"
	"github.com/mediguard/order/internal/transport/http/dto"
)

// service is an interface for the service layer.
type service interface {
	GetUserOrders(ctx context.Context, userID string) ([]order.Order, error)
}

// ListUserOrders handles the request for a user's order history.
func ListUserOrders(w http.ResponseWriter, r *http.Request, service service) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		dto.WriteJSON(w, http.StatusBadRequest, dto.ErrorResponse{Message: "user id is required"})

		return
	}

	orders, err := service.GetUserOrders(r.Context(), userID)
	if err != nil {
		dto.WriteError(w, err)

		return
	}

	dto.WriteJSON(w, http.StatusOK, dto.FromOrders(orders))
}
