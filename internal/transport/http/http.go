package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/mediguard/order/internal/service/models/order"
	"github.com/mediguard/order/internal/service/services/ordersvc"
	cancelorder "github.com/mediguard/order/internal/transport/http/cancel_order"
	createorder "github.com/mediguard/order/internal/transport/http/create_order"
	getorder "github.com/mediguard/order/internal/transport/http/get_order"
	listuserorders "github.com/mediguard/order/internal/transport/http/list_user_orders"
	updatestatus "github.com/mediguard/order/internal/transport/http/update_status"
	"github.com/mediguard/order/pkg/http/middleware/trace"
	"github.com/mediguard/order/pkg/logger"
	"github.com/spf13/viper"
)

type service interface {
	CreateOrder(ctx context.Context, input ordersvc.CreateOrderInput) (*order.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, requestingUserID string) (*order.Order, error)
	GetUserOrders(ctx context.Context, userID string) ([]order.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus order.Status) error
	CancelOrder(ctx context.Context, orderID uuid.UUID, requestingUserID string) error
}

type HTTPTransport struct {
	server  *http.Server
	router  *chi.Mux
	service service
}

func NewHTTPTransport(service service) *HTTPTransport {
	router := newRouter()
	server := newServer(router)
	return &HTTPTransport{
		server:  server,
		router:  router,
		service: service,
	}
}

func (h *HTTPTransport) Run() error {
	return h.server.ListenAndServe()
}

func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Route("/api/order", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/user/{userId}", h.listUserOrders)
		r.Get("/{orderId}", h.getOrder)
		r.Put("/{orderId}/status", h.updateStatus)
		r.Post("/{orderId}/cancel", h.cancelOrder)
	})
}

func (h *HTTPTransport) createOrder(w http.ResponseWriter, r *http.Request) {
	createorder.CreateOrder(w, r, h.service)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, h.service)
}

func (h *HTTPTransport) listUserOrders(w http.ResponseWriter, r *http.Request) {
	listuserorders.ListUserOrders(w, r, h.service)
}

func (h *HTTPTransport) updateStatus(w http.ResponseWriter, r *http.Request) {
	updatestatus.UpdateStatus(w, r, h.service)
}

func (h *HTTPTransport) cancelOrder(w http.ResponseWriter, r *http.Request) {
	cancelorder.CancelOrder(w, r, h.service)
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(trace.NewTraceMiddleware(viper.GetString("service.name")))
	router.Use(logger.NewLoggerMiddleware(slog.Default()))

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:    "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler: router,
	}
}
