package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	dummyRazorpayKeyID     = "rzp_test_dummy"
	dummyRazorpayKeySecret = "dummy_secret"
)

type Settings struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	JWTSecret string        `envconfig:"JWT_SECRET"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"72h"`

	RazorpayKeyID         string `envconfig:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret     string `envconfig:"RAZORPAY_KEY_SECRET"`
	RazorpayWebhookSecret string `envconfig:"RAZORPAY_WEBHOOK_SECRET"`

	RedisURL          string `envconfig:"REDIS_URL"`
	RateLimitFailOpen bool   `envconfig:"RATE_LIMIT_FAIL_OPEN" default:"true"`

	RabbitURL         string `envconfig:"RABBIT_URL"`
	EventExchange     string `envconfig:"EVENT_EXCHANGE" default:"estate.events"`
	NotificationQueue string `envconfig:"NOTIFICATION_QUEUE" default:"estate.notifications.q"`

	BookingPendingTTL           time.Duration `envconfig:"BOOKING_PENDING_TTL" default:"48h"`
	PaymentPendingTTL           time.Duration `envconfig:"PAYMENT_PENDING_TTL" default:"30m"`
	AutoConfirmBookingOnPayment bool          `envconfig:"AUTO_CONFIRM_BOOKING_ON_PAYMENT" default:"true"`
	ExpiryCron                  string        `envconfig:"EXPIRY_CRON" default:"*/10 * * * *"`
	ReminderCron                string        `envconfig:"REMINDER_CRON" default:"0 9 * * *"`

	OTelEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	CloudinaryURL string `envconfig:"CLOUDINARY_URL"`

	BrevoAPIKey     string `envconfig:"BREVO_API_KEY"`
	EmailSender     string `envconfig:"EMAIL_SENDER"`
	EmailSenderName string `envconfig:"EMAIL_SENDER_NAME"`

	WhatsAppEnabled       bool   `envconfig:"WHATSAPP_ENABLED" default:"false"`
	WhatsAppPhoneNumberID string `envconfig:"WHATSAPP_PHONE_NUMBER_ID"`
	WhatsAppAccessToken   string `envconfig:"WHATSAPP_ACCESS_TOKEN"`

	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`

	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
	AdminFullName string `envconfig:"ADMIN_FULL_NAME" default:"Site Admin"`

	// Warnings collects non-fatal findings from Validate so the caller can log them
	// once the logger is configured.
	Warnings []string `ignored:"true"`
}

// Load reads .env (when present) and the process environment into Settings
// and validates the result.
func Load() (Settings, error) {
	var s Settings
	envErr := godotenv.Load(".env")

	if err := envconfig.Process("", &s); err != nil {
		return s, fmt.Errorf("read environment: %w", err)
	}
	if envErr != nil {
		s.Warnings = append(s.Warnings, ".env file not found, reading from system environment variables")
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (s Settings) IsProduction() bool {
	return strings.EqualFold(s.Env, "production")
}

// Validate enforces the startup requirements. Outside production missing
// gateway credentials are replaced with dummy values.
func (s *Settings) Validate() error {
	if s.IsProduction() {
		var missing []string
		required := map[string]string{
			"DATABASE_URL":        s.DatabaseURL,
			"JWT_SECRET":          s.JWTSecret,
			"RAZORPAY_KEY_ID":     s.RazorpayKeyID,
			"RAZORPAY_KEY_SECRET": s.RazorpayKeySecret,
			"REDIS_URL":           s.RedisURL,
		}
		for _, key := range []string{"DATABASE_URL", "JWT_SECRET", "RAZORPAY_KEY_ID", "RAZORPAY_KEY_SECRET", "REDIS_URL"} {
			if required[key] == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
		}
	} else {
		if s.RazorpayKeyID == "" {
			s.RazorpayKeyID = dummyRazorpayKeyID
			s.Warnings = append(s.Warnings, "RAZORPAY_KEY_ID not set, using dummy key")
		}
		if s.RazorpayKeySecret == "" {
			s.RazorpayKeySecret = dummyRazorpayKeySecret
			s.Warnings = append(s.Warnings, "RAZORPAY_KEY_SECRET not set, using dummy secret")
		}
		if s.JWTSecret == "" {
			s.JWTSecret = "dev-secret"
			s.Warnings = append(s.Warnings, "JWT_SECRET not set, using development secret")
		}
	}

	if s.BookingPendingTTL <= 0 || s.PaymentPendingTTL <= 0 {
		return errors.New("pending TTLs must be positive")
	}
	return nil
}
