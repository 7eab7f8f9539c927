package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/tradevault/internal/cache"
	"github.com/example/tradevault/internal/config"
	"github.com/example/tradevault/internal/handlers"
	"github.com/example/tradevault/internal/middleware"
	"github.com/example/tradevault/internal/services"
	"github.com/example/tradevault/internal/store"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	payments := store.NewGormStore(db)
	offers := store.NewGormOffers(db)

	notifier := services.NewNotifier(services.NotifierConfig{
		TelegramBotToken:  cfg.TelegramBotToken,
		TelegramAdminChat: cfg.TelegramAdminChat,
		MailAPIURL:        cfg.MailAPIURL,
		MailAPIKey:        cfg.MailAPIKey,
		MailFrom:          cfg.MailFrom,
		MaxAttempts:       cfg.NotifyMaxAttempts,
	})
	orchestrator := services.NewOrchestrator(
		payments,
		offers,
		services.NewInvoiceService(db),
		services.NewEntitlementService(db),
		notifier,
	)
	verifier := services.NewTransactionVerifier(payments)

	var replayer cache.Replayer
	if cfg.RedisAddr != "" {
		replayer = cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword)
	}

	paymentHandler := handlers.NewPaymentHandler(payments, offers, orchestrator, verifier, replayer)
	offerHandler := handlers.NewOfferHandler(db)
	adminHandler := handlers.NewAdminHandler(db)

	api := app.Group("/api")

	// Offer catalog; browsing is public, management is staff-only.
	api.Get("/offers", offerHandler.ListOffers)
	api.Get("/offers/:id", offerHandler.GetOffer)

	authed := api.Group("", middleware.AuthMiddleware(cfg))

	// User-facing claim flow.
	authed.Post("/pending-payments", paymentHandler.CreateClaim)
	authed.Patch("/pending-payments/:id/reference", paymentHandler.AttachReference)

	// Back-office reconciliation queue.
	staff := authed.Group("", middleware.RequireStaff())
	staff.Get("/pending-payments", paymentHandler.ListQueue)
	staff.Get("/pending-payments/:id", paymentHandler.GetPayment)
	staff.Post("/pending-payments/:id/contacted", paymentHandler.MarkContacted)
	staff.Post("/pending-payments/:id/confirm", paymentHandler.Confirm)
	staff.Post("/pending-payments/:id/cancel", paymentHandler.Cancel)
	staff.Post("/pending-payments/:id/fulfillment/resume", paymentHandler.ResumeFulfillment)

	staff.Post("/offers", offerHandler.CreateOffer)
	staff.Put("/offers/:id", offerHandler.UpdateOffer)
	staff.Delete("/offers/:id", offerHandler.DeactivateOffer)

	staff.Get("/admin/dashboard", adminHandler.DashboardStats)
	staff.Get("/admin/incomplete-fulfillment", adminHandler.ListIncompleteFulfillment)
}
