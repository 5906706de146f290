package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pasalhub/pasalmart-backend/api/controllers"
	"github.com/pasalhub/pasalmart-backend/api/middleware"
	"github.com/pasalhub/pasalmart-backend/internal/address"
	"github.com/pasalhub/pasalmart-backend/internal/cart"
	checkoutsvc "github.com/pasalhub/pasalmart-backend/internal/checkout"
	"github.com/pasalhub/pasalmart-backend/internal/notifications"
	"github.com/pasalhub/pasalmart-backend/internal/orders"
	"github.com/pasalhub/pasalmart-backend/internal/products"
	"github.com/pasalhub/pasalmart-backend/internal/settlement"
	"github.com/pasalhub/pasalmart-backend/pkg/config"
	"github.com/pasalhub/pasalmart-backend/pkg/db"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
	"github.com/pasalhub/pasalmart-backend/pkg/redis"
)

// Deps bundles everything the router wires into handlers. Webhook and
// verify endpoints stay outside the identity middleware since providers
// call them server-to-server.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         *redis.Client
	Products      products.Service
	Cart          cart.Service
	Checkout      checkoutsvc.Service
	Settlement    settlement.Service
	Orders        orders.Service
	Addresses     address.Repository
	Notifications notifications.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	// Catalog browse and provider callbacks carry no user identity.
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ListProducts(deps.Products, logg))
		r.Get("/{productId}", controllers.ProductDetail(deps.Products, logg))
	})
	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Get("/verify", controllers.VerifyPayment(deps.Settlement, logg))
		r.Post("/webhook", controllers.PaymentWebhook(deps.Settlement, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(logg))
		if deps.Redis != nil {
			r.Use(middleware.Idempotency(deps.Redis, logg))
		}

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(deps.Cart, logg))
			r.Delete("/", controllers.CartClear(deps.Cart, logg))
			r.Route("/items", func(r chi.Router) {
				r.Post("/", controllers.CartAddItem(deps.Cart, logg))
				r.Put("/{productId}", controllers.CartSetQuantity(deps.Cart, logg))
				r.Delete("/{productId}", controllers.CartRemoveItem(deps.Cart, logg))
				r.Post("/{productId}/save-for-later", controllers.CartSaveForLater(deps.Cart, logg))
				r.Post("/{productId}/move-to-cart", controllers.CartMoveToCart(deps.Cart, logg))
			})
		})

		r.Post("/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(deps.Orders, logg))
		})

		r.Route("/addresses", func(r chi.Router) {
			r.Get("/", controllers.ListAddresses(deps.Addresses, logg))
			r.Post("/", controllers.CreateAddress(deps.Addresses, logg))
			r.Delete("/{addressId}", controllers.DeleteAddress(deps.Addresses, logg))
		})

		r.Get("/notifications", controllers.ListNotifications(deps.Notifications, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole("staff", logg))
			r.Get("/ping", controllers.AdminPing())
			r.Post("/payments/{orderId}/refund", controllers.RefundPayment(deps.Settlement, logg))
		})
	})

	return r
}
