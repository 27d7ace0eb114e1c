package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Roland735/cribmatch-website-sub000/config"
	"github.com/Roland735/cribmatch-website-sub000/controllers"
	"github.com/Roland735/cribmatch-website-sub000/logger"
	"github.com/Roland735/cribmatch-website-sub000/middleware"
	"github.com/Roland735/cribmatch-website-sub000/models"
	"github.com/Roland735/cribmatch-website-sub000/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	keyPrefix   = "cribmatch"
	turnLockTTL = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	log.Info("starting CribMatch API server", "env", cfg.GoEnv)

	// Connect to database
	if err := config.ConnectDatabase(); err != nil {
		log.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}

	db := config.GetDB()
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.WithError(err).Error("failed to migrate database")
		os.Exit(1)
	}
	log.Info("database migration completed")

	app, err := newApp(context.Background(), cfg, db, log)
	if err != nil {
		log.WithError(err).Error("failed to initialise services")
		os.Exit(1)
	}
	defer app.Close()

	router := newRouter(cfg, app, log)

	addr := ":" + cfg.Port
	log.Info("server is running", "addr", addr)
	if err := router.Run(addr); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}

// application holds the wired controllers and whatever must be closed on shutdown
type application struct {
	webhook       *controllers.WebhookController
	conversations *controllers.ConversationController
	auth          gin.HandlerFunc
	closers       []func()
}

// newApp wires the services. Redis, NATS, S3, the Flow key and Auth0 are optional;
// without them the in-process fallbacks are used and the matching routes stay off.
func newApp(ctx context.Context, cfg *config.Config, db *gorm.DB, log *logger.Logger) (*application, error) {
	app := &application{}

	var cache services.HandledCache
	var locker services.TurnLocker
	if cfg.RedisURL != "" {
		client, err := services.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, using in-process dedup cache and turn locks")
		} else {
			app.closers = append(app.closers, func() { _ = client.Close() })
			cache = services.NewRedisHandledCache(client, cfg.Conversation.DedupTTL, keyPrefix)
			locker = services.NewRedisTurnLocker(client, keyPrefix, turnLockTTL)
		}
	}
	if cache == nil {
		cache = services.NewMemoryHandledCache(cfg.Conversation.DedupTTL)
	}

	var publisher services.EventPublisher = services.NoopPublisher{}
	if cfg.NATSURL != "" {
		js, err := services.NewJetStreamPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			log.WithError(err).Warn("nats unavailable, webhook events will not be streamed")
		} else {
			app.closers = append(app.closers, js.Close)
			publisher = js
		}
	}

	images := services.NewImageService(nil)
	if cfg.AWSS3Bucket != "" {
		s3Service, err := services.InitS3Service(ctx, cfg)
		if err != nil {
			return nil, err
		}
		images = services.NewImageService(s3Service)
	}

	if !cfg.HasWhatsAppCredentials() {
		log.Warn("WHATSAPP_API_TOKEN or WHATSAPP_PHONE_NUMBER_ID missing, replies will not be delivered")
	}

	flowKey, err := services.LoadFlowPrivateKey(cfg.WhatsApp.FlowPrivateKey, cfg.WhatsApp.FlowPrivateKeyPath)
	if err != nil {
		// encrypted Flow requests answer 500 until a key is configured
		log.WithError(err).Warn("flow private key not loaded")
	}
	codec := services.NewFlowCodec(flowKey, services.ParseIVMode(cfg.WhatsApp.FlowIVMode))

	listings := services.NewListingService(db)
	store := services.NewConversationStore(db)
	bot := services.NewChatbotService(services.ChatbotDeps{
		Store:    store,
		Messages: services.NewMessageLog(db),
		Dedup:    services.NewDedupGuard(db, cache, log),
		Locker:   locker,
		Sender:   services.NewWhatsAppService(cfg.WhatsApp, log),
		Listings: listings,
		Payments: services.NewPaymentService(db, cfg.Conversation.ContactFee, cfg.Conversation.ContactCurrency),
		Images:   images,
		Log:      log,
	}, cfg.Conversation, cfg.WhatsApp)

	app.webhook = controllers.NewWebhookController(controllers.WebhookDeps{
		VerifyToken: cfg.WhatsApp.VerifyToken,
		Bot:         bot,
		Flows:       services.NewFlowService(listings, bot, cfg.Conversation.SearchResultLimit, log),
		Codec:       codec,
		Recorder:    services.NewWebhookRecorder(db, publisher, log),
		Log:         log,
	})
	app.conversations = controllers.NewConversationController(store, cfg.Conversation.DefaultCountryCode)

	if cfg.Auth0Domain != "" {
		auth, err := middleware.EnsureValidToken(cfg, log)
		if err != nil {
			return nil, err
		}
		app.auth = auth
	} else {
		log.Warn("AUTH0_DOMAIN not set, conversation review routes are disabled")
	}

	return app, nil
}

// Close releases external connections
func (a *application) Close() {
	for _, closer := range a.closers {
		closer()
	}
}

func newRouter(cfg *config.Config, app *application, log *logger.Logger) *gin.Engine {
	router := gin.Default()
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	// WhatsApp webhook and Flow endpoint
	router.GET("/webhooks/whatsapp", app.webhook.Verify)
	router.POST("/webhooks/whatsapp", middleware.VerifyWebhookSignature(cfg.WhatsApp, log), app.webhook.Receive)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", databaseStatus)

		if app.auth != nil {
			conversations := v1.Group("/conversations")
			conversations.Use(app.auth, middleware.RequireScope(middleware.ScopeReadConversations), middleware.RequireReviewer())
			{
				conversations.GET("/:phone", app.conversations.GetConversation)
				conversations.GET("/:phone/messages", app.conversations.ListConversationMessages)
			}
		}
	}

	return router
}

func corsConfig(origins string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization")
	if strings.TrimSpace(origins) == "" || strings.TrimSpace(origins) == "*" {
		c.AllowAllOrigins = true
		return c
	}
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			c.AllowOrigins = append(c.AllowOrigins, origin)
		}
	}
	return c
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "CribMatch API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Database is not connected",
			},
		})
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	query := "SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename"
	if config.IsSQLite(db) {
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	}

	var tables []string
	if err := db.Raw(query).Scan(&tables).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
