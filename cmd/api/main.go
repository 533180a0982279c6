package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anjiri1684/estate_portal/clock"
	config "github.com/anjiri1684/estate_portal/configs"
	"github.com/anjiri1684/estate_portal/database"
	"github.com/anjiri1684/estate_portal/handlers"
	"github.com/anjiri1684/estate_portal/jobs"
	"github.com/anjiri1684/estate_portal/logger"
	"github.com/anjiri1684/estate_portal/mq"
	"github.com/anjiri1684/estate_portal/notifications"
	"github.com/anjiri1684/estate_portal/obs"
	"github.com/anjiri1684/estate_portal/payments"
	"github.com/anjiri1684/estate_portal/ratelimit"
	"github.com/anjiri1684/estate_portal/routes"
	"github.com/anjiri1684/estate_portal/services"
	"github.com/anjiri1684/estate_portal/websocket"
	"github.com/anjiri1684/estate_portal/workers"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("🔥 invalid configuration")
	}
	logger.Init(cfg.LogLevel, cfg.IsProduction())
	for _, w := range cfg.Warnings {
		logger.Log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer("estate-portal", cfg.OTelEndpoint, cfg.Env)
	if err != nil {
		logger.Log.WithError(err).Warn("tracing disabled")
	} else {
		defer func() { _ = shutdownTracer(context.Background()) }()
	}

	if err := database.ConnectDB(cfg.DatabaseURL); err != nil {
		logger.Log.WithError(err).Fatal("🔥 database unavailable")
	}
	if err := database.Migrate(); err != nil {
		logger.Log.WithError(err).Fatal("🔥 migration failed")
	}
	if err := database.SeedAdmin(database.DB, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminFullName); err != nil {
		logger.Log.WithError(err).Error("failed to seed admin")
	}

	clk := clock.NewSystem()
	hub := websocket.NewHub()
	go hub.Run(ctx)

	email := notifications.NewBrevoService(cfg.BrevoAPIKey, cfg.EmailSender, cfg.EmailSenderName)
	if email == nil {
		logger.Log.Warn("Brevo not configured, emails will be skipped")
	}
	whatsapp := notifications.NewWhatsAppService(cfg.WhatsAppEnabled, cfg.WhatsAppPhoneNumberID, cfg.WhatsAppAccessToken)
	worker := workers.NewNotificationWorker(database.DB, email, whatsapp, hub, cfg.AdminEmail)

	var events services.EventPublisher
	if cfg.RabbitURL != "" {
		pub, err := mq.NewPublisher(cfg.RabbitURL, cfg.EventExchange)
		if err != nil {
			logger.Log.WithError(err).Fatal("🔥 rabbitmq publisher unavailable")
		}
		defer pub.Close()
		events = pub

		consumer, err := mq.NewConsumer(cfg.RabbitURL, cfg.EventExchange, cfg.NotificationQueue, workers.Bindings, 16)
		if err != nil {
			logger.Log.WithError(err).Fatal("🔥 rabbitmq consumer unavailable")
		}
		defer consumer.Close()
		go func() {
			if err := worker.RunRabbit(ctx, consumer); err != nil {
				logger.Log.WithError(err).Error("notification consumer stopped")
			}
		}()
	} else {
		bus := mq.NewLocalBus(256, worker.Handle)
		go bus.Run(ctx)
		events = bus
		logger.Log.Info("RABBIT_URL not set, delivering events in process")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = ratelimit.NewClient(cfg.RedisURL)
		if err != nil {
			logger.Log.WithError(err).Fatal("🔥 invalid REDIS_URL")
		}
		defer rdb.Close()
	} else {
		logger.Log.Warn("REDIS_URL not set, rate limiting and lockout are disabled")
	}
	var guard *ratelimit.Guard
	if rdb != nil {
		guard = ratelimit.New(rdb, cfg.RateLimitFailOpen, clk)
	}

	gateway := payments.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	bookings := services.NewBookingService(database.DB, clk, events)
	opts := []services.PaymentOption{services.WithAutoConfirm(cfg.AutoConfirmBookingOnPayment)}
	if cfg.CloudinaryURL != "" {
		invoices, err := services.NewInvoiceService(cfg.CloudinaryURL, cfg.FrontendURL)
		if err != nil {
			logger.Log.WithError(err).Warn("invoice uploads disabled")
		} else {
			opts = append(opts, services.WithInvoices(invoices))
		}
	}
	paymentService := services.NewPaymentService(database.DB, gateway, bookings, clk, events, opts...)

	runner := &jobs.Runner{
		DB:         database.DB,
		Bookings:   bookings,
		Payments:   paymentService,
		Email:      email,
		WhatsApp:   whatsapp,
		Clock:      clk,
		BookingTTL: cfg.BookingPendingTTL,
		PaymentTTL: cfg.PaymentPendingTTL,
	}
	scheduler := cron.New()
	if err := runner.Schedule(scheduler, cfg.ExpiryCron, cfg.ReminderCron); err != nil {
		logger.Log.WithError(err).Fatal("🔥 invalid cron schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()
	logger.Log.Info("✅ Expiry and reminder jobs scheduled")

	handlers.Setup(handlers.Deps{
		DB:            database.DB,
		Slots:         services.NewSlotChecker(database.DB),
		Bookings:      bookings,
		Payments:      paymentService,
		Guard:         guard,
		Events:        events,
		Feed:          hub,
		Clock:         clk,
		JWTSecret:     cfg.JWTSecret,
		JWTTTL:        cfg.JWTTTL,
		WebhookSecret: cfg.RazorpayWebhookSecret,
		CloudinaryURL: cfg.CloudinaryURL,
	})

	app := fiber.New(fiber.Config{
		AppName:       "Estate Portal",
		CaseSensitive: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			logger.Log.WithError(err).WithField("path", c.Path()).WithField("method", c.Method()).Error("request failed")
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.FrontendURL,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Razorpay-Signature, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		MaxAge:       86400,
	}))
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	routes.Setup(app, routes.Config{JWTSecret: cfg.JWTSecret, Guard: guard})

	go func() {
		<-ctx.Done()
		logger.Log.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Log.WithError(err).Error("server shutdown")
		}
	}()

	logger.Log.Infof("✅ Server is running on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Log.WithError(err).Fatal("🔥 Server failed to start")
	}
}
