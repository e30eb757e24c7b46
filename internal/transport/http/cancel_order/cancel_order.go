package cancelorder

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mediguard/order/internal/transport/http/dto"
)

// service is an interface for the service layer.
type service interface {
	CancelOrder(ctx context.Context, orderID uuid.UUID, requestingUserID string) error
}

// CancelOrder handles the order cancellation request. The caller identity is
// injected by the gateway in the X-User-Id header.
func CancelOrder(w http.ResponseWriter, r *http.Request, service service) {
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

	if err := service.CancelOrder(r.Context(), orderID, userID); err != nil {
		dto.WriteError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
