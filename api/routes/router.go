package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devanshkukreja/looms-backend/api/controllers"
	"github.com/devanshkukreja/looms-backend/api/middleware"
	authsvc "github.com/devanshkukreja/looms-backend/internal/auth"
	"github.com/devanshkukreja/looms-backend/internal/cart"
	"github.com/devanshkukreja/looms-backend/internal/checkout"
	"github.com/devanshkukreja/looms-backend/internal/orders"
	"github.com/devanshkukreja/looms-backend/pkg/auth/session"
	"github.com/devanshkukreja/looms-backend/pkg/config"
	"github.com/devanshkukreja/looms-backend/pkg/db"
	"github.com/devanshkukreja/looms-backend/pkg/logger"
	"github.com/devanshkukreja/looms-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessionChecker session.AccessSessionChecker,
	authService authsvc.Service,
	cartStore *cart.Store,
	orchestrator *checkout.Orchestrator,
	ordersService orders.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	sendPolicy := middleware.NewAuthRateLimitPolicy(
		"otp_send",
		cfg.AuthRateLimit.SendWindow,
		cfg.AuthRateLimit.SendIPLimit,
		cfg.AuthRateLimit.SendEmailLimit,
	)
	verifyPolicy := middleware.NewAuthRateLimitPolicy(
		"otp_verify",
		cfg.AuthRateLimit.VerifyWindow,
		cfg.AuthRateLimit.VerifyIPLimit,
		cfg.AuthRateLimit.VerifyEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(sendPolicy, redisClient, logg)).Post("/send-otp", controllers.AuthSendOTP(authService, logg))
		r.With(middleware.AuthRateLimit(verifyPolicy, redisClient, logg)).Post("/verify-otp", controllers.AuthVerifyOTP(authService, logg))
		r.Post("/logout", controllers.AuthLogout(authService, logg))
	})

	// Cart and checkout work for anonymous shoppers too; the owner middleware
	// resolves who the cart belongs to either way.
	r.Group(func(r chi.Router) {
		r.Use(middleware.CartOwner(cfg.JWT, logg))

		r.Route("/api/v1/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(cartStore, logg))
			r.Post("/lines", controllers.CartAddLine(cartStore, logg))
			r.Post("/lines/decrement", controllers.CartDecrementLine(cartStore, logg))
			r.Post("/lines/remove", controllers.CartRemoveLine(cartStore, logg))
			r.Delete("/", controllers.CartClear(cartStore, logg))
		})

		r.Route("/api/v1/checkout", func(r chi.Router) {
			r.Post("/", controllers.CheckoutBegin(orchestrator, logg))
			r.Route("/{sessionId}", func(r chi.Router) {
				r.Get("/", controllers.CheckoutGet(orchestrator, logg))
				r.Post("/submit", controllers.CheckoutSubmit(orchestrator, logg))
				r.Post("/gateway/success", controllers.CheckoutGatewaySuccess(orchestrator, logg))
				r.Post("/gateway/failure", controllers.CheckoutGatewayFailure(orchestrator, logg))
				r.Post("/gateway/cancel", controllers.CheckoutGatewayCancel(orchestrator, logg))
				r.Post("/abandon", controllers.CheckoutAbandon(orchestrator, logg))
			})
		})
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
		r.Get("/{orderId}", controllers.OrderDetail(ordersService, logg))
	})

	return r
}
