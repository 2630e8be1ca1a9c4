package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bookworm/config"
	"bookworm/etl"
	"bookworm/models"
	"bookworm/services"
	"bookworm/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ratingsUpsertedCounter prometheus.Counter
	etlRunsCounter         prometheus.Counter
	etlRowsLoadedCounter   prometheus.Counter
)

func init() {
	ratingsUpsertedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ratings_upserted_total",
			Help: "Total number of rating submissions accepted.",
		},
	)
	etlRunsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "etl_runs_total",
			Help: "Total number of completed ETL runs.",
		},
	)
	etlRowsLoadedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "etl_rows_loaded_total",
			Help: "Total number of rows loaded into the store by the ETL.",
		},
	)
	prometheus.MustRegister(ratingsUpsertedCounter, etlRunsCounter, etlRowsLoadedCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	if cfg.DBDriver == "postgres" {
		return gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return gorm.Open(sqlite.Open(cfg.DBPath), gormCfg)
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to library database", zap.String("driver", cfg.DBDriver))

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(&models.Book{}, &models.Copy{}, &models.User{}, &models.Rating{}, &models.EtlRun{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Setup Services
	var s3Client *awss3.Client
	if cfg.S3Enabled() {
		s3Client, err = storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
	}
	loader := etl.NewLoader(cfg, db, s3Client, logging)
	recommender := services.NewRecommender(db, logging)
	ratingService := services.NewRatingService(db, logging)

	if cfg.EtlOnStart {
		runEtl(context.Background(), loader, logging)
	}

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Setup Routes
	setupBookRoutes(router, db, logging)
	setupUserRoutes(router, db, recommender, ratingService, logging)
	setupRatingRoutes(router, ratingService, logging)
	setupTopBookRoutes(router, recommender, cfg, logging)
	setupEtlRoutes(router, db, loader, logging)
	setupDashboardRoutes(router, db, recommender, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled ETL refresh...")
		runEtl(context.Background(), loader, logging)
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func runEtl(ctx context.Context, loader *etl.Loader, log *zap.Logger) {
	report, err := loader.Run(ctx)
	if err != nil {
		log.Error("ETL run failed", zap.Error(err))
		return
	}
	etlRunsCounter.Inc()
	etlRowsLoadedCounter.Add(float64(report.RowsLoaded()))
}

// intQuery parses an integer query parameter with a default, clamped to
// [min, max].
func intQuery(c *gin.Context, name string, def, min, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func setupBookRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/books")

	// Catalog listing with the basic filters the dashboard needs.
	rg.GET("", func(c *gin.Context) {
		query := db.Model(&models.Book{})

		if q := c.Query("q"); q != "" {
			// LOWER on both sides keeps the search case-insensitive on
			// postgres too, not just sqlite.
			like := "%" + strings.ToLower(q) + "%"
			query = query.Where("LOWER(title) LIKE ? OR LOWER(authors) LIKE ?", like, like)
		}
		if lang := c.Query("language_code"); lang != "" {
			query = query.Where("language_code = ?", lang)
		}
		if raw := c.Query("year_from"); raw != "" {
			if year, err := strconv.Atoi(raw); err == nil {
				query = query.Where("original_publication_year >= ?", year)
			}
		}
		if raw := c.Query("year_to"); raw != "" {
			if year, err := strconv.Atoi(raw); err == nil {
				query = query.Where("original_publication_year <= ?", year)
			}
		}

		limit := intQuery(c, "limit", 20, 1, 100)
		offset := intQuery(c, "offset", 0, 0, 1<<30)

		var books []models.Book
		err := query.
			Order("COALESCE(original_publication_year, 0) DESC").
			Order("title ASC").
			Limit(limit).
			Offset(offset).
			Find(&books).Error
		if err != nil {
			log.Error("Database query for books failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, books)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var book models.Book
		if err := db.First(&book, "book_id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
				return
			}
			log.Error("DB error fetching book", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, book)
	})
}

func setupUserRoutes(router *gin.Engine, db *gorm.DB, recommender *services.Recommender, ratingService *services.RatingService, log *zap.Logger) {
	rg := router.Group("/users")

	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var user models.User
		if err := db.First(&user, "user_id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			log.Error("DB error fetching user", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, user)
	})

	rg.GET("/:id/ratings", func(c *gin.Context) {
		userID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		ratings, err := ratingService.UserRatings(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if ratings == nil {
			ratings = []services.UserRating{}
		}
		c.JSON(http.StatusOK, ratings)
	})

	rg.GET("/:id/recommendations", func(c *gin.Context) {
		userID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}

		// The engine treats unknown users as having no prior ratings; the
		// 404 contract for unknown ids lives here, not in the engine.
		var count int64
		if err := db.Model(&models.User{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			log.Error("DB error checking user", zap.Int("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if count == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}

		n := intQuery(c, "n", 10, 1, 50)
		minRatings := intQuery(c, "min_ratings", 20, 1, 1000)
		recs, err := recommender.RecommendForUser(c.Request.Context(), userID, n, minRatings)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if recs == nil {
			recs = []services.ScoredBook{}
		}
		c.JSON(http.StatusOK, recs)
	})
}

func setupRatingRoutes(router *gin.Engine, ratingService *services.RatingService, log *zap.Logger) {
	rg := router.Group("/ratings")

	rg.POST("", func(c *gin.Context) {
		var req struct {
			UserID int `json:"user_id" binding:"required"`
			CopyID int `json:"copy_id" binding:"required"`
			Rating int `json:"rating" binding:"required,min=1,max=5"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		rating, err := ratingService.Upsert(c.Request.Context(), req.UserID, req.CopyID, req.Rating)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrUnknownUser),
				errors.Is(err, services.ErrUnknownCopy),
				errors.Is(err, services.ErrRatingOutOfRange):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			}
			return
		}

		ratingsUpsertedCounter.Inc()
		c.JSON(http.StatusCreated, gin.H{
			"user_id": rating.UserID,
			"copy_id": rating.CopyID,
			"rating":  rating.Rating,
		})
	})
}

func setupTopBookRoutes(router *gin.Engine, recommender *services.Recommender, cfg *config.Config, log *zap.Logger) {
	rg := router.Group("/top-books")

	rg.GET("/global", func(c *gin.Context) {
		n := intQuery(c, "n", 10, 1, 50)
		minRatings := intQuery(c, "min_ratings", 50, 1, 1000)
		top, err := recommender.TopGlobal(c.Request.Context(), n, minRatings)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if top == nil {
			top = []services.ScoredBook{}
		}
		c.JSON(http.StatusOK, top)
	})

	rg.GET("/language/:code", func(c *gin.Context) {
		n := intQuery(c, "n", 10, 1, 50)
		minRatings := intQuery(c, "min_ratings", 20, 1, 1000)
		top, err := recommender.TopByLanguage(c.Request.Context(), c.Param("code"), n, minRatings)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if top == nil {
			top = []services.ScoredBook{}
		}
		c.JSON(http.StatusOK, top)
	})

	rg.GET("/age-range", func(c *gin.Context) {
		ageMinRaw, ageMaxRaw := c.Query("age_min"), c.Query("age_max")
		if ageMinRaw == "" || ageMaxRaw == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "age_min and age_max are required"})
			return
		}
		ageMin, errMin := strconv.Atoi(ageMinRaw)
		ageMax, errMax := strconv.Atoi(ageMaxRaw)
		if errMin != nil || errMax != nil || ageMin < 0 || ageMax < ageMin {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid age range"})
			return
		}

		n := intQuery(c, "n", 10, 1, 50)
		minRatings := intQuery(c, "min_ratings", 5, 1, 1000)
		top, err := recommender.TopByAgeRange(c.Request.Context(), ageMin, ageMax, n, minRatings, cfg.AgeReferenceYear)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if top == nil {
			top = []services.ScoredBook{}
		}
		c.JSON(http.StatusOK, top)
	})
}

func setupEtlRoutes(router *gin.Engine, db *gorm.DB, loader *etl.Loader, log *zap.Logger) {
	rg := router.Group("/etl")

	rg.POST("/run", func(c *gin.Context) {
		go runEtl(context.Background(), loader, log)
		c.JSON(http.StatusAccepted, gin.H{"message": "ETL run triggered."})
	})

	rg.GET("/runs", func(c *gin.Context) {
		limit := intQuery(c, "limit", 20, 1, 100)
		var runs []models.EtlRun
		if err := db.Order("started_at desc").Limit(limit).Find(&runs).Error; err != nil {
			log.Error("Database query for ETL runs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, runs)
	})
}
