package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/api/handlers"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/api/middleware"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/cache"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/captcha"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/config"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/db"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/email"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/repository"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/services"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/storage"
)

const rateLimiterCleanupInterval = 5 * time.Minute

// SetupRouter configures and returns the main Gin engine. stop ends the background
// cleanup of the rate limiter.
func SetupRouter(
	cfg *config.Config,
	mongoClient *mongo.Client,
	database *mongo.Database,
	rdb *redis.Client,
	imageStorage storage.IImageStorage,
	dispatcher services.ITaskDispatcher,
	stop <-chan struct{},
) *gin.Engine {
	tx := db.NewTransactor(mongoClient, cfg.MongoTransactions)

	users := repository.NewUserRepository(database)
	contractors := repository.NewContractorRepository(database)
	properties := repository.NewPropertyRepository(database)
	offers := repository.NewOfferRepository(database)
	transitions := repository.NewTransitionRepository(database)
	completionImages := repository.NewCompletionImageRepository(database)

	propertyCache := cache.NewPropertyCache(rdb, cfg.PublicCacheTTL)
	tokens := cache.NewTokenStore(rdb)

	userService := services.NewUserService(cfg, tx, users, contractors, tokens)
	contractorService := services.NewContractorService(cfg, contractors)
	propertyService := services.NewPropertyService(cfg, tx, properties, transitions, imageStorage, propertyCache, dispatcher)
	offerService := services.NewOfferService(cfg, tx, properties, transitions, offers, propertyCache, dispatcher)
	completionService := services.NewCompletionService(cfg, tx, properties, transitions, completionImages, imageStorage, propertyCache, dispatcher)

	r := gin.New()
	// Multipart bodies beyond this spill to temporary files.
	r.MaxMultipartMemory = int64(cfg.ImageMaxSizeMB) << 20

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg.RateLimitRefillRate, cfg.RateLimitBucketSize)
	if stop != nil {
		rateLimiter.StartCleanup(rateLimiterCleanupInterval, stop)
	}
	loginLimiter := middleware.NewRedisLimiter(rdb)

	// Order matters: the request id must exist before anything logs.
	r.Use(middleware.RequestIDMiddleware())
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(cfg.CorsAllowedOrigins))
	r.Use(rateLimiter.Limit())

	userHandler := handlers.NewRestUserHandler(userService)
	contractorHandler := handlers.NewRestContractorHandler(contractorService)
	propertyHandler := handlers.NewRestPropertyHandler(propertyService, completionService)
	offerHandler := handlers.NewRestOfferHandler(offerService)

	requireAuth := middleware.AuthMiddleware(cfg.JwtSecret, tokens)
	optionalAuth := middleware.OptionalAuthMiddleware(cfg.JwtSecret, tokens)
	loginLimit := loginLimiter.LimitByIP("login", cfg.LoginRateLimit, cfg.LoginRateWindow)
	requireHuman := middleware.CaptchaMiddleware(captcha.NewTurnstileVerifier(cfg))

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		v1.POST("/signup", loginLimit, requireHuman, userHandler.Signup)
		v1.POST("/login", loginLimit, userHandler.Login)

		// Public reads, scoped further when a token is present.
		public := v1.Group("/", optionalAuth)
		{
			public.GET("/properties", propertyHandler.ListProperties)
			public.GET("/properties/:id", propertyHandler.GetProperty)
			public.GET("/properties/:id/completion_images", propertyHandler.ListCompletionImages)
		}

		authRequired := v1.Group("/", requireAuth)
		{
			authRequired.POST("/logout", userHandler.Logout)
			authRequired.GET("/me", userHandler.Me)

			authRequired.POST("/properties", propertyHandler.CreateProperty)
			authRequired.POST("/properties/:id/images", propertyHandler.AddImages)
			authRequired.POST("/properties/:id/transition", propertyHandler.Transition)
			authRequired.POST("/properties/:id/mark_completed", propertyHandler.MarkCompleted)
			authRequired.GET("/properties/:id/history", propertyHandler.History)

			authRequired.GET("/price-offers", offerHandler.ListOffers)
			authRequired.POST("/price-offers", offerHandler.SubmitOffer)
			authRequired.GET("/price-offers/:id", offerHandler.GetOffer)
			authRequired.POST("/price-offers/:id/accept", offerHandler.AcceptOffer)
			authRequired.POST("/price-offers/:id/reject", offerHandler.RejectOffer)

			authRequired.GET("/contractors", contractorHandler.ListContractors)
			authRequired.GET("/contractors/:id", contractorHandler.GetContractor)
		}
	}

	return r
}

// testEmailPollAttempts bounds how long getTestEmail waits for a notification worker.
const (
	testEmailPollAttempts = 10
	testEmailPollInterval = 200 * time.Millisecond
)

// SetupServiceRouter configures the internal service API used by operators and
// end-to-end tests.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				log.Println("WARN: shutdown already signaled")
			}
		case "getTestEmail":
			getTestEmail(c, rdb, req.Arguments)
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}

// getTestEmail returns and deletes the mock e-mail of a notification kind sent to an
// address. Arguments are ["<kind>", "<email>"].
func getTestEmail(c *gin.Context, rdb *redis.Client, raw json.RawMessage) {
	var args []string
	if err := json.Unmarshal(raw, &args); err != nil || len(args) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [kind, email]"})
		return
	}
	key := email.MockEmailKey(args[1], args[0])

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var data string
	for i := 0; i < testEmailPollAttempts; i++ {
		val, err := rdb.GetDel(ctx, key).Result()
		if err == nil {
			data = val
			break
		}
		if err != redis.Nil {
			log.Printf("ERROR: service API failed to read %s: %v", key, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
			return
		}
		time.Sleep(testEmailPollInterval)
	}
	if data == "" {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", key)})
		return
	}

	var emailData map[string]interface{}
	if err := json.Unmarshal([]byte(data), &emailData); err != nil {
		log.Printf("ERROR: service API failed to parse %s: %v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})
}
