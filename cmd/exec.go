package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"booking-system/config"
	"booking-system/internal/handlers"
	"booking-system/internal/services"
	"booking-system/monitoring"
	"booking-system/security"
	"booking-system/utils"

	_ "booking-system/migrations"

	"github.com/labstack/echo/v5"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub (outbound user notifications)
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	store := services.NewPBStore(app)
	notifier := services.NewNotifier(pn)
	catalogService := services.NewCatalogService(store)
	waitlistService := services.NewWaitlistService(store, notifier, cfg)
	bookingService := services.NewBookingService(store, catalogService, waitlistService, notifier, cfg)
	slotService := services.NewSlotService(store)
	responseCache := services.NewResponseCache(redisClient, cfg.CacheTTL)

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(app, bookingService)
	slotHandler := handlers.NewSlotHandler(app, slotService)
	waitlistHandler := handlers.NewWaitlistHandler(app, waitlistService)
	paymentHandler := handlers.NewPaymentHandler(app, bookingService, cfg)
	catalogHandler := handlers.NewCatalogHandler(app, catalogService, responseCache)

	rateLimiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Inbound payment confirmations over the realtime feed
	if cfg.PaymentFeedSubKey != "" {
		feed := services.NewPaymentFeed(cfg)
		go feed.Run(ctx)
		go func() {
			for confirmation := range feed.Confirmations() {
				if _, err := bookingService.ConfirmFromPayment(ctx, confirmation); err != nil {
					slog.Error("payment confirmation rejected",
						"payment_ref", confirmation.PaymentRef, "error", err)
				}
			}
		}()
	}

	// Prometheus scrape endpoint on its own listener, away from the API port
	if cfg.EnableMetrics {
		go func() {
			metricsSrv := echo.New()
			metricsSrv.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
			if err := metricsSrv.Start(":" + cfg.MetricsPort); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		go monitoring.NewMonitor(app, redisClient).Run(ctx)

		// Catalog endpoints
		e.Router.GET("/api/v1/services", catalogHandler.ListServices)
		e.Router.GET("/api/v1/services/{serviceId}", catalogHandler.GetService)
		e.Router.GET("/api/v1/services/{serviceId}/quote", catalogHandler.QuotePrice)
		e.Router.GET("/api/v1/services/{serviceId}/slots", slotHandler.ListSlots)

		// Slot endpoints
		e.Router.GET("/api/v1/slots/{slotId}", slotHandler.GetSlot)

		// Booking endpoints
		e.Router.POST("/api/v1/bookings", rateLimiter.Wrap(bookingHandler.CreateBooking))
		e.Router.GET("/api/v1/bookings", bookingHandler.ListBookings)
		e.Router.GET("/api/v1/bookings/{bookingId}", bookingHandler.GetBooking)
		e.Router.POST("/api/v1/bookings/{bookingId}/cancel", rateLimiter.Wrap(bookingHandler.CancelBooking))
		e.Router.POST("/api/v1/bookings/{bookingId}/complete", bookingHandler.CompleteBooking)

		// Waitlist endpoints
		e.Router.POST("/api/v1/waitlist", rateLimiter.Wrap(waitlistHandler.JoinWaitlist))
		e.Router.DELETE("/api/v1/waitlist/{entryId}", waitlistHandler.LeaveWaitlist)

		// Payment webhook
		e.Router.POST("/api/v1/payments/webhook", paymentHandler.Webhook)

		// Admin endpoints
		e.Router.POST("/api/v1/admin/slots", slotHandler.CreateSlot)
		e.Router.POST("/api/v1/admin/slots/bulk", slotHandler.CreateSlotsBulk)
		e.Router.DELETE("/api/v1/admin/slots/{slotId}", slotHandler.DeleteSlot)
		e.Router.PATCH("/api/v1/admin/slots/{slotId}/availability", slotHandler.SetSlotAvailability)
		e.Router.GET("/api/v1/admin/waitlist/{serviceId}", waitlistHandler.ListWaitlist)
		e.Router.POST("/api/v1/admin/waitlist/{serviceId}/advance", waitlistHandler.AdvanceWaitlist)
		e.Router.POST("/api/v1/admin/waitlist/expire", waitlistHandler.ExpireWaitlist)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		setupCatalogHooks(app, responseCache)

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// setupCatalogHooks invalidates cached catalog responses whenever a service or
// coupon record changes through the admin UI or API.
func setupCatalogHooks(app *pocketbase.PocketBase, cache *services.ResponseCache) {
	invalidate := func(e *core.RecordRequestEvent) error {
		cache.Invalidate(e.Request.Context(), "/api/v1/services")
		slog.Info("catalog cache invalidated", "collection", e.Record.Collection().Name, "record", e.Record.Id)
		return e.Next()
	}

	for _, collection := range []string{"services", "coupons"} {
		app.OnRecordCreateRequest(collection).BindFunc(invalidate)
		app.OnRecordUpdateRequest(collection).BindFunc(invalidate)
		app.OnRecordDeleteRequest(collection).BindFunc(invalidate)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
