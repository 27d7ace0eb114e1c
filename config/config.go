package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL        string `env:"DATABASE_URL"`
	Port               string `env:"PORT, default=8080"`
	GoEnv              string `env:"GO_ENV, default=development"`
	LogLevel           string `env:"LOG_LEVEL, default=info"`
	CORSOrigins        string `env:"CORS_ORIGINS, default=*"`
	Auth0Domain        string `env:"AUTH0_DOMAIN"`
	Auth0Audience      string `env:"AUTH0_AUDIENCE"`
	AWSRegion          string `env:"AWS_REGION, default=us-east-1"`
	AWSS3Bucket        string `env:"AWS_S3_BUCKET"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	RedisURL           string `env:"REDIS_URL"`
	NATSURL            string `env:"NATS_URL"`
	NATSSubjectPrefix  string `env:"NATS_SUBJECT_PREFIX, default=cribmatch"`

	WhatsApp     WhatsAppConfig
	Conversation ConversationConfig
}

// WhatsAppConfig holds the Cloud API and Flows settings
type WhatsAppConfig struct {
	APIToken           string        `env:"WHATSAPP_API_TOKEN"`
	PhoneNumberID      string        `env:"WHATSAPP_PHONE_NUMBER_ID"`
	VerifyToken        string        `env:"WHATSAPP_VERIFY_TOKEN"`
	AppSecret          string        `env:"WHATSAPP_APP_SECRET"`
	SignatureRequired  bool          `env:"WHATSAPP_SIGNATURE_REQUIRED, default=true"`
	APIBaseURL         string        `env:"WHATSAPP_API_BASE_URL, default=https://graph.facebook.com"`
	APIVersion         string        `env:"WHATSAPP_API_VERSION, default=v24.0"`
	HTTPTimeout        time.Duration `env:"WHATSAPP_HTTP_TIMEOUT, default=10s"`
	SendRate           float64       `env:"WHATSAPP_SEND_RATE, default=20"`
	FlowPrivateKey     string        `env:"WHATSAPP_FLOW_PRIVATE_KEY"`
	FlowPrivateKeyPath string        `env:"WHATSAPP_FLOW_PRIVATE_KEY_PATH"`
	FlowID             string        `env:"WHATSAPP_FLOW_ID"`
	FlowSearch         bool          `env:"WHATSAPP_FLOW_SEARCH, default=false"`
	FlowIVMode         string        `env:"WHATSAPP_FLOW_IV_MODE, default=flip"`
}

// ConversationConfig holds the chatbot tuning knobs
type ConversationConfig struct {
	FreeWindowMs       int64         `env:"FREE_MESSAGE_WINDOW_MS, default=86400000"`
	DraftTTL           time.Duration `env:"CONVERSATION_DRAFT_TTL, default=24h"`
	DedupTTL           time.Duration `env:"DEDUP_TTL, default=10m"`
	SearchResultLimit  int           `env:"SEARCH_RESULT_LIMIT, default=3"`
	ContactFee         float64       `env:"CONTACT_FEE, default=1.00"`
	ContactCurrency    string        `env:"CONTACT_CURRENCY, default=USD"`
	DefaultCountryCode string        `env:"DEFAULT_COUNTRY_CODE, default=263"`
}

// FreeWindow returns the free-form message window as a duration
func (c ConversationConfig) FreeWindow() time.Duration {
	return time.Duration(c.FreeWindowMs) * time.Millisecond
}

var appConfig *Config

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	// Determine which environment file to load
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Try to load environment-specific file first
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		// If environment-specific file doesn't exist, try .env
		if err := godotenv.Load(); err != nil {
			// In production, environment variables are set directly
			// so it's okay if .env files don't exist
			log.Printf("No .env file found, using system environment variables")
		}
	} else {
		log.Printf("Loaded configuration from %s", envFile)
	}

	config := &Config{}
	if err := envconfig.Process(context.Background(), config); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	appConfig = config
	return config, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch strings.ToLower(c.WhatsApp.FlowIVMode) {
	case "flip", "reverse":
	default:
		return fmt.Errorf("WHATSAPP_FLOW_IV_MODE must be 'flip' or 'reverse', got %q", c.WhatsApp.FlowIVMode)
	}
	if c.Conversation.FreeWindowMs <= 0 {
		return fmt.Errorf("FREE_MESSAGE_WINDOW_MS must be positive")
	}
	if c.Conversation.SearchResultLimit <= 0 {
		return fmt.Errorf("SEARCH_RESULT_LIMIT must be positive")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// GetDatabaseURL returns the database URL
func (c *Config) GetDatabaseURL() string {
	return c.DatabaseURL
}

// HasWhatsAppCredentials reports whether outbound sends can be attempted
func (c *Config) HasWhatsAppCredentials() bool {
	return c.WhatsApp.APIToken != "" && c.WhatsApp.PhoneNumberID != ""
}

// GetConfig returns the most recently loaded configuration
func GetConfig() *Config {
	return appConfig
}

// SetConfig sets the configuration instance (primarily for testing)
func SetConfig(cfg *Config) {
	appConfig = cfg
}
