package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/repovitals/reviver/internal/adapters"
	"github.com/repovitals/reviver/internal/analysis"
	"github.com/repovitals/reviver/internal/cache"
	"github.com/repovitals/reviver/internal/errors"
	"github.com/repovitals/reviver/internal/features"
	"github.com/repovitals/reviver/internal/ml"
	"github.com/repovitals/reviver/internal/monitoring"
	"github.com/repovitals/reviver/internal/ratelimit"
	"github.com/repovitals/reviver/internal/store"
	"github.com/repovitals/reviver/internal/types"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment with defaults
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	githubToken := os.Getenv("GITHUB_TOKEN")
	port := getEnvOrDefault("PORT", "8080")
	redisAddr := os.Getenv("REDIS_ADDR")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := getEnvIntOrDefault("REDIS_DB", 0)
	cacheTTL := getEnvDurationOrDefault("CACHE_TTL", 15*time.Minute)
	defaultConfidence := getEnvFloatOrDefault("ML_CONFIDENCE_THRESHOLD", 0.7)

	db, err := store.NewDB(dataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := store.NewRepository(db)

	appMetrics := monitoring.NewMetrics()
	appLogger := monitoring.NewLogger()

	trainer := ml.NewTrainer(repo, ml.DefaultTrainerConfig(), logger)
	predictor, err := ml.NewPredictor(repo, logger)
	if err != nil {
		slog.Error("Failed to initialize predictor", "error", err)
		os.Exit(1)
	}

	scorer := analysis.NewScorer()
	extractor := features.NewExtractor()
	githubAdapter := adapters.NewGitHubAdapter(githubToken)
	defer githubAdapter.Close()

	redisClient, err := ratelimit.NewRedisClient(redisAddr, redisPassword, redisDB)
	if err != nil {
		slog.Warn("Redis unavailable, continuing with in-memory rate limiting", "error", err)
	}
	defer redisClient.Close()
	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), appMetrics)

	appCache := cache.NewCache(cacheTTL)

	r := gin.New()
	r.Use(monitoring.MonitoringMiddleware(appMetrics, appLogger))
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(limiter.IPRateLimitMiddleware())
	r.Use(appCache.Middleware(appMetrics))

	r.GET("/health", func(c *gin.Context) {
		sampleCount, _ := repo.SampleCount()
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   "1.0.0",
			"models": gin.H{
				"available": predictor.Available(),
			},
			"samples":    sampleCount,
			"github":     githubAdapter.Stats(),
			"rate_limit": limiter.GetStats(),
			"cache":      appCache.Stats(),
			"metrics":    appMetrics.GetStats(),
		})
	})

	r.GET("/ratelimit/status", limiter.HandleRateLimitStatus())
	r.POST("/admin/ratelimit/invalidate/:ip", limiter.HandleInvalidateIP())

	r.POST("/api/analyze", limiter.AnalyzeRateLimitMiddleware(), func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		var req types.AnalyzeRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.NewValidationError("invalid request body", err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		start := time.Now()
		slog.Info("Starting analysis", "owner", req.Owner, "repo", req.Repo, "use_ml", req.UseML, "ip", c.ClientIP())

		snap, err := githubAdapter.FetchSnapshot(ctx, req.Owner, req.Repo)
		appMetrics.IncrementGitHubCalls()
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			appLogger.ExternalAPILogger("GitHub", "GET", "/repos", appErr.HTTPStatus, time.Since(start), false)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		// Partial activity data degrades the score, not the request.
		activity, err := githubAdapter.FetchActivity(ctx, req.Owner, req.Repo)
		appMetrics.IncrementGitHubCalls()
		if err != nil {
			slog.Warn("Continuing analysis without activity signals", "repository", snap.FullName, "error", err)
			activity = nil
		}

		deps := req.Dependencies
		if deps != nil && !deps.Valid() {
			slog.Warn("Ignoring malformed dependency health summary", "repository", snap.FullName)
			deps = nil
		}

		heuristic := scorer.Score(snap, activity, deps)

		var pred *ml.Prediction
		if req.UseML {
			threshold := req.ConfidenceThreshold
			if threshold <= 0 {
				threshold = defaultConfidence
			}
			vector := extractor.Extract(snap, activity, deps)
			pred, err = predictor.Predict(vector, threshold)
			if err != nil {
				appErr := errors.ToAppError(err)
				errors.LogError(c, appErr)
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}
			appMetrics.IncrementPredictions()
		}

		result := analysis.Blend(snap.FullName, heuristic, pred)
		appMetrics.IncrementAnalyses()
		appLogger.AnalysisLogger(result.Repository, string(result.Method), result.AbandonmentScore, result.RevivalPotential, time.Since(start))

		c.JSON(http.StatusOK, result)
	})

	r.POST("/api/train", limiter.TrainRateLimitMiddleware(), func(c *gin.Context) {
		start := time.Now()

		samples, err := repo.LoadSamples()
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		reports, err := trainer.TrainAll(samples)
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		if err := predictor.Reload(); err != nil {
			slog.Error("Failed to reload models after training", "error", err)
		}

		persisted := 0
		for _, report := range reports {
			if report.Persisted {
				persisted++
			}
		}
		appMetrics.IncrementTrainingRuns()
		appLogger.TrainingLogger(len(samples), persisted, time.Since(start))

		c.JSON(http.StatusOK, gin.H{
			"sample_count": len(samples),
			"reports":      reports,
			"duration_ms":  time.Since(start).Milliseconds(),
		})
	})

	r.GET("/api/models", func(c *gin.Context) {
		models := predictor.Models()
		sort.Slice(models, func(i, j int) bool { return models[i].TargetName < models[j].TargetName })
		c.JSON(http.StatusOK, gin.H{
			"available": predictor.Available(),
			"models":    models,
		})
	})

	r.POST("/api/samples", func(c *gin.Context) {
		var req struct {
			Samples []*ml.TrainingSample `json:"samples" binding:"required"`
		}
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.NewValidationError("invalid request body", err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		if len(req.Samples) == 0 {
			appErr := errors.NewValidationError("at least one sample is required", nil)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		now := time.Now()
		for _, sample := range req.Samples {
			if sample.ID == "" {
				sample.ID = uuid.New().String()
			}
			if sample.ObservedAt.IsZero() {
				sample.ObservedAt = now
			}
		}

		if err := repo.SaveSamples(req.Samples); err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		total, _ := repo.SampleCount()
		c.JSON(http.StatusCreated, gin.H{
			"stored":        len(req.Samples),
			"total_samples": total,
		})
	})

	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, appMetrics.GetStats())
	})

	r.GET("/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, appCache.Stats())
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
