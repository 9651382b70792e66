package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jordanmaier/copperline-backend/api/controllers"
	webhookcontrollers "github.com/jordanmaier/copperline-backend/api/controllers/webhooks"
	"github.com/jordanmaier/copperline-backend/api/middleware"
	"github.com/jordanmaier/copperline-backend/internal/auth"
	cartsvc "github.com/jordanmaier/copperline-backend/internal/cart"
	"github.com/jordanmaier/copperline-backend/internal/catalog"
	checkoutsvc "github.com/jordanmaier/copperline-backend/internal/checkout"
	"github.com/jordanmaier/copperline-backend/internal/orders"
	stripewebhook "github.com/jordanmaier/copperline-backend/internal/webhooks/stripe"
	"github.com/jordanmaier/copperline-backend/pkg/auth/session"
	"github.com/jordanmaier/copperline-backend/pkg/config"
	"github.com/jordanmaier/copperline-backend/pkg/db"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
	"github.com/jordanmaier/copperline-backend/pkg/redis"
	"github.com/jordanmaier/copperline-backend/pkg/stripe"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessionManager sessionManager,
	authService auth.Service,
	registerService auth.RegisterService,
	catalogService catalog.Service,
	cartService cartsvc.Service,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	metricsRegistry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	refreshPolicy := middleware.NewAuthRateLimitPolicy(
		"refresh",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(dbP, redisClient, logg))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(authService, logg))
		r.With(
			middleware.AuthRateLimit(registerPolicy, redisClient, logg),
			middleware.Idempotency(redisClient, logg),
		).Post("/register", controllers.AuthRegister(registerService, authService, logg))
		r.With(middleware.AuthRateLimit(refreshPolicy, redisClient, logg)).Post("/refresh", controllers.AuthRefresh(sessionManager, cfg.JWT, logg))
		r.Post("/logout", controllers.AuthLogout(sessionManager, cfg.JWT, logg))
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ProductList(catalogService, logg))
		r.Get("/{productId}", controllers.ProductDetail(catalogService, logg))
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, sessionManager, logg))
		r.Get("/", controllers.CartGet(cartService, logg))
		r.Delete("/", controllers.CartClear(cartService, logg))
		r.Route("/items", func(r chi.Router) {
			r.Post("/", controllers.CartAddItem(cartService, logg))
			r.Patch("/{itemId}", controllers.CartUpdateItem(cartService, logg))
			r.Delete("/{itemId}", controllers.CartRemoveItem(cartService, logg))
		})
	})

	r.Route("/api/v1/checkout/session", func(r chi.Router) {
		r.With(
			middleware.OptionalAuth(cfg.JWT, sessionManager, logg),
			middleware.Idempotency(redisClient, logg),
		).Post("/", controllers.CheckoutCreateSession(checkoutService, logg))
		r.Get("/verify", controllers.CheckoutVerifySession(checkoutService, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Post("/track", controllers.OrdersTrack(ordersService, logg))
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, sessionManager, logg))
			r.Get("/", controllers.OrdersList(ordersService, logg))
			r.Get("/{orderId}", controllers.OrderDetail(ordersService, logg))
		})
	})

	return r
}
