package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"event-sales-platform/internal/config"
	"event-sales-platform/internal/database"
	"event-sales-platform/internal/handlers"
	"event-sales-platform/internal/middleware"
	"event-sales-platform/internal/repositories"
	"event-sales-platform/internal/scheduler"
	"event-sales-platform/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize database connection
	db, err := database.NewConnection(database.Config{
		URL:      cfg.Database.URL,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()
	log.Println("Database connection established")

	if err := db.RunMigrations(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Create session store for the counter surface
	sessionStore := sessions.NewCookieStore([]byte(cfg.Session.Secret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400, // 1 day, a cashier shift never outlives this
		HttpOnly: true,
		Secure:   cfg.Server.Env == "production",
		SameSite: http.SameSiteLaxMode,
	}

	// Initialize repositories
	tempRegRepo := repositories.NewTempRegistrationRepository(db.DB)
	orderRepo := repositories.NewOrderRepository(db.DB)
	cashSessionRepo := repositories.NewCashSessionRepository(db.DB)
	eventSettingsRepo := repositories.NewEventSettingsRepository(db.DB)

	// Initialize email service (falls back to logging without an API key)
	emailService := services.NewMockEmailService(&services.ResendConfig{
		APIKey:    cfg.Resend.APIKey,
		FromEmail: cfg.Resend.FromEmail,
		FromName:  cfg.Resend.FromName,
		BaseURL:   cfg.Server.BaseURL,
	})

	// Initialize gateway drivers and the dispatcher
	paystack := services.NewPaystackGateway(services.PaystackConfig{
		SecretKey:   cfg.Paystack.SecretKey,
		PublicKey:   cfg.Paystack.PublicKey,
		Environment: cfg.Paystack.Environment,
		CallbackURL: cfg.Paystack.CallbackURL,
	})
	pesapal := services.NewPesapalGateway(services.PesapalConfig{
		ConsumerKey:    cfg.Pesapal.ConsumerKey,
		ConsumerSecret: cfg.Pesapal.ConsumerSecret,
		Environment:    cfg.Pesapal.Environment,
		CallbackURL:    cfg.Pesapal.CallbackURL,
		IPNURL:         cfg.Pesapal.IPNURL,
	})
	dispatcher := services.NewDispatcher(paystack, pesapal)

	// Initialize services
	registrationService := services.NewRegistrationService(tempRegRepo, dispatcher, cfg.Checkout.SessionTTL)
	paymentService := services.NewPaymentService(orderRepo, tempRegRepo, dispatcher, emailService)
	abandonedCartService := services.NewAbandonedCartService(tempRegRepo, orderRepo, eventSettingsRepo, emailService, cfg.Checkout.ReminderMinAge)
	pendingChecker := services.NewPendingPaymentChecker(tempRegRepo, paymentService, pesapal.Name())
	cashSessionService := services.NewCashSessionService(cashSessionRepo, orderRepo)

	// Register background jobs
	sched := scheduler.New()
	jobs := []scheduler.JobConfig{
		{
			Name:     "abandoned-cart-reminders",
			Interval: cfg.Scheduler.AbandonedCartInterval,
			Enabled:  true,
			EnvKey:   "ABANDONED_CART_INTERVAL",
			Task: func(ctx context.Context) error {
				_, err := abandonedCartService.SendReminders(ctx)
				return err
			},
		},
		{
			Name:     "expired-session-cleanup",
			Interval: cfg.Scheduler.CleanupInterval,
			Enabled:  true,
			EnvKey:   "SESSION_CLEANUP_INTERVAL",
			Task:     abandonedCartService.CleanupExpired,
		},
		{
			Name:     "pending-payment-check",
			Interval: cfg.Scheduler.PendingPaymentInterval,
			Enabled:  true,
			EnvKey:   "PENDING_PAYMENT_INTERVAL",
			Task: func(ctx context.Context) error {
				_, err := pendingChecker.Run(ctx)
				return err
			},
		},
	}
	for _, job := range jobs {
		if err := sched.RegisterJob(job); err != nil {
			log.Fatal("Failed to register job:", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler:", err)
	}
	defer sched.Stop()

	// Initialize handlers
	checkoutHandler := handlers.NewCheckoutHandler(registrationService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	counterHandler := handlers.NewCounterHandler(cashSessionService, sessionStore)
	adminHandler := handlers.NewAdminHandler(sched, eventSettingsRepo)

	// Set up router
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggingMiddleware)

	r.Get("/health", adminHandler.Health)
	r.Route("/admin", func(r chi.Router) {
		r.Get("/jobs", adminHandler.Jobs)
		r.Get("/events/{eventID}/settings", adminHandler.GetEventSettings)
		r.Put("/events/{eventID}/settings", adminHandler.UpdateEventSettings)
	})

	r.Route("/checkout/sessions", func(r chi.Router) {
		r.Post("/", checkoutHandler.Create)
		r.Get("/{sessionID}", checkoutHandler.Get)
		r.Patch("/{sessionID}", checkoutHandler.Update)
		r.Post("/{sessionID}/pay", checkoutHandler.InitiatePayment)
		r.Delete("/{sessionID}", checkoutHandler.Delete)
	})

	r.Route("/payment", func(r chi.Router) {
		r.Post("/webhook/{gateway}", paymentHandler.Webhook)
		r.Post("/verify", paymentHandler.Verify)
		r.Post("/sessions/{sessionID}/verify", paymentHandler.VerifySession)
		r.Get("/status/{sessionID}", paymentHandler.Status)
	})

	r.Route("/counter", func(r chi.Router) {
		r.Post("/sessions", counterHandler.StartSession)
		r.Post("/sessions/{id}/close", counterHandler.CloseSession)
		r.Get("/sessions/{id}/report", counterHandler.SessionReport)
		r.Post("/sales", counterHandler.RecordSale)
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
