package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aurelle/storefront-backend/api/controllers"
	"github.com/aurelle/storefront-backend/api/middleware"
	"github.com/aurelle/storefront-backend/internal/cart"
	"github.com/aurelle/storefront-backend/internal/catalog"
	checkoutsvc "github.com/aurelle/storefront-backend/internal/checkout"
	"github.com/aurelle/storefront-backend/internal/coupons"
	"github.com/aurelle/storefront-backend/internal/notifications"
	"github.com/aurelle/storefront-backend/internal/orders"
	"github.com/aurelle/storefront-backend/internal/returns"
	"github.com/aurelle/storefront-backend/internal/stockledger"
	"github.com/aurelle/storefront-backend/internal/users"
	"github.com/aurelle/storefront-backend/pkg/config"
	"github.com/aurelle/storefront-backend/pkg/db"
	"github.com/aurelle/storefront-backend/pkg/logger"
	"github.com/aurelle/storefront-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	userService users.Service,
	catalogService catalog.Service,
	cartService cart.Service,
	couponService coupons.Service,
	checkoutService checkoutsvc.Service,
	orderService orders.Service,
	returnService returns.Service,
	ledgerService stockledger.Service,
	notificationService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	// A typed nil would defeat the handler's interface nil check.
	var redisP redis.Pinger
	if redisClient != nil {
		redisP = redisClient
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	// Public storefront surface.
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", controllers.AuthRegister(userService, logg))
		r.Post("/auth/login", controllers.AuthLogin(userService, logg))

		r.Get("/products", controllers.ListProducts(catalogService, logg))
		r.Get("/products/{productId}", controllers.GetProduct(catalogService, logg))

		r.Post("/orders/track", controllers.TrackOrder(orderService, logg))

		// Authenticated customer surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Get("/auth/me", controllers.AuthMe(userService, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.GetCart(cartService, logg))
				r.Post("/items", controllers.AddCartItem(cartService, logg))
				r.Put("/items/{itemId}", controllers.UpdateCartItem(cartService, logg))
				r.Delete("/items/{itemId}", controllers.RemoveCartItem(cartService, logg))
			})

			r.Post("/coupons/validate", controllers.ValidateCoupon(couponService, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", controllers.PlaceOrder(checkoutService, logg))
				r.Get("/mine", controllers.ListMyOrders(orderService, logg))
				r.Get("/{orderId}", controllers.GetOrder(orderService, logg))
			})

			r.Route("/returns", func(r chi.Router) {
				r.Post("/", controllers.CreateReturn(returnService, logg))
				r.Get("/mine", controllers.ListMyReturns(returnService, logg))
				r.Get("/{returnId}", controllers.GetReturn(returnService, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(notificationService, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationService, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationService, logg))
			})
		})
	})

	// Staff surface.
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAdmin(logg))

		r.Route("/products", func(r chi.Router) {
			r.Post("/", controllers.AdminCreateProduct(catalogService, logg))
			r.Put("/{productId}", controllers.AdminUpdateProduct(catalogService, logg))
			r.Delete("/{productId}", controllers.AdminDeleteProduct(catalogService, logg))
			r.Put("/{productId}/stock", controllers.AdminAdjustStock(catalogService, logg))
			r.Get("/{productId}/stock-log", controllers.AdminStockLog(ledgerService, logg))
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Get("/", controllers.AdminListCoupons(couponService, logg))
			r.Post("/", controllers.AdminCreateCoupon(couponService, logg))
			r.Put("/{couponId}", controllers.AdminUpdateCoupon(couponService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminListOrders(orderService, logg))
			r.Get("/user/{userId}", controllers.AdminListUserOrders(orderService, logg))
			r.Put("/{orderId}/status", controllers.AdminSetOrderStatus(orderService, logg))
			r.Put("/{orderId}/paid", controllers.AdminMarkOrderPaid(orderService, logg))
			r.Put("/{orderId}/refund", controllers.AdminRefundOrder(orderService, logg))
			r.Put("/{orderId}/items/{itemId}/cancel", controllers.AdminCancelOrderItem(orderService, logg))
			r.Delete("/{orderId}", controllers.AdminDeleteOrder(orderService, logg))
		})

		r.Route("/returns", func(r chi.Router) {
			r.Get("/", controllers.AdminListReturns(returnService, logg))
			r.Put("/{returnId}/decision", controllers.AdminDecideReturn(returnService, logg))
			r.Put("/{returnId}/status", controllers.AdminUpdateReturnStatus(returnService, logg))
			r.Put("/{returnId}/resolve", controllers.AdminResolveReturn(returnService, logg))
		})
	})

	return r
}
