package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/orders"
	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/internal/address"
	"github.com/angelmondragon/marketplace-backend/internal/auth"
	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

// Deps is everything the HTTP surface needs. Redis-backed middleware is
// skipped when its store is nil.
type Deps struct {
	Auth      auth.Service
	Products  products.Service
	Cart      cart.Service
	Addresses address.Service
	Orders    orders.Service

	Idempotency redis.IdempotencyStore
	RateLimiter redis.RateLimiter

	ReadinessChecks map[string]controllers.Pinger
	HTTPMetrics     *metrics.HTTPMetrics
	MetricsHandler  http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.CORS),
		middleware.HTTPMetrics(deps.HTTPMetrics),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.ReadinessChecks, logg))
	})
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(middleware.LoginRateLimitPolicy(cfg.AuthRateLimit), deps.RateLimiter, logg)).
			Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.With(middleware.AuthRateLimit(middleware.RegisterRateLimitPolicy(cfg.AuthRateLimit), deps.RateLimiter, logg)).
			Post("/register", controllers.AuthRegister(deps.Auth, logg))
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ProductList(deps.Products, logg))
		r.Get("/{productId}", controllers.ProductDetail(deps.Products, logg))
		r.With(middleware.Auth(cfg.JWT, logg)).Post("/", controllers.ProductCreate(deps.Products, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(deps.Cart, logg))
			r.Delete("/", cartcontrollers.CartClear(deps.Cart, logg))
			r.Post("/items", cartcontrollers.CartAddItem(deps.Cart, logg))
			r.Put("/items", cartcontrollers.CartUpdateQuantity(deps.Cart, logg))
			r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(deps.Cart, logg))
		})

		r.Route("/addresses", func(r chi.Router) {
			r.Get("/", controllers.AddressList(deps.Addresses, logg))
			r.Post("/", controllers.AddressCreate(deps.Addresses, logg))
			r.Put("/{addressId}", controllers.AddressUpdate(deps.Addresses, logg))
			r.Delete("/{addressId}", controllers.AddressDelete(deps.Addresses, logg))
			r.Patch("/{addressId}/default", controllers.AddressSetDefault(deps.Addresses, logg))
		})

		r.Post("/checkout", ordercontrollers.Checkout(deps.Orders, logg))
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.History(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			r.Post("/{orderId}/return-request", ordercontrollers.RequestReturn(deps.Orders, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Post("/complete", ordercontrollers.AdminComplete(deps.Orders, logg))
			r.Post("/return-request/resolve", ordercontrollers.AdminResolveReturn(deps.Orders, logg))
		})
	})

	return r
}
