// Package api wires together all HTTP routes for the ML lifecycle service.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated probes.
//   - /api/scratch/:scratchkey/... is unauthenticated. The scratch key is
//     itself the credential, handed out only to the project owner.
//   - POST /api/sessionusers is unauthenticated and only registered when the
//     session users class is enabled.
//   - /api/classes/:classid/... requires a bearer token (session JWT or IdP
//     token) for a member of the class; credential, policy and classifier
//     maintenance and deleting the class additionally require a supervisor.
//   - /api/admin/... requires a site administrator.
package api

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"

	"github.com/IBM/taxinomitis-sub001/internal/api/admin"
	"github.com/IBM/taxinomitis-sub001/internal/api/classifiers"
	"github.com/IBM/taxinomitis-sub001/internal/api/projectctx"
	"github.com/IBM/taxinomitis-sub001/internal/api/scratchkeys"
	"github.com/IBM/taxinomitis-sub001/internal/api/sessions"
	"github.com/IBM/taxinomitis-sub001/internal/api/teardown"
	"github.com/IBM/taxinomitis-sub001/internal/auth"
	"github.com/IBM/taxinomitis-sub001/internal/cleanup"
	"github.com/IBM/taxinomitis-sub001/internal/config"
	"github.com/IBM/taxinomitis-sub001/internal/crypto"
	"github.com/IBM/taxinomitis-sub001/internal/db/repositories"
	"github.com/IBM/taxinomitis-sub001/internal/jobs"
	"github.com/IBM/taxinomitis-sub001/internal/middleware"
	"github.com/IBM/taxinomitis-sub001/internal/pendingjobs"
	"github.com/IBM/taxinomitis-sub001/internal/pool"
	"github.com/IBM/taxinomitis-sub001/internal/safego"
	"github.com/IBM/taxinomitis-sub001/internal/scratch"
	"github.com/IBM/taxinomitis-sub001/internal/sessionusers"
	"github.com/IBM/taxinomitis-sub001/internal/storage"
	"github.com/IBM/taxinomitis-sub001/internal/training"

	// Import storage backends to register them
	_ "github.com/IBM/taxinomitis-sub001/internal/storage/azure"
	_ "github.com/IBM/taxinomitis-sub001/internal/storage/gcs"
	_ "github.com/IBM/taxinomitis-sub001/internal/storage/local"
	_ "github.com/IBM/taxinomitis-sub001/internal/storage/s3"
)

// Version is reported by /version. It is overridden at build time with
// -ldflags "-X github.com/IBM/taxinomitis-sub001/internal/api.Version=...".
var Version = "dev"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	pendingJobs *jobs.PendingJobRunner
	sweepers    []*jobs.Sweeper
	stopLimiter func()
	cancel      context.CancelFunc
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.pendingJobs != nil {
		bg.pendingJobs.Stop()
	}
	for _, s := range bg.sweepers {
		s.Stop()
	}
	if bg.stopLimiter != nil {
		bg.stopLimiter()
	}
	if bg.cancel != nil {
		bg.cancel()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router and starts the background
// jobs that keep classifiers, session users and the object store tidy.
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	clock := clockwork.NewRealClock()
	router := gin.New()

	// Initialize storage backend
	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}
	log.Printf("Initialized storage backend: %s", cfg.Storage.DefaultBackend)

	// Credentials and scratch key secrets are sealed at rest
	cipher, err := crypto.NewSecretCipherFromKey(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize credentials cipher (is ENCRYPTION_KEY set?): %v", err)
	}

	// Initialize repositories
	sqlxDB := sqlx.NewDb(db, "postgres")
	credentialsRepo := repositories.NewCredentialsRepository(sqlxDB, cipher)
	classifierRepo := repositories.NewClassifierRepository(sqlxDB)
	tenantRepo := repositories.NewTenantRepository(sqlxDB)
	projectRepo := repositories.NewProjectRepository(sqlxDB)
	scratchKeyRepo := repositories.NewScratchKeyRepository(sqlxDB, cipher)
	sessionUserRepo := repositories.NewSessionUserRepository(sqlxDB)
	pendingJobRepo := repositories.NewPendingJobRepository(sqlxDB)

	// Domain services
	credentialsPool := pool.NewManager(credentialsRepo, cfg.Pool, clock)
	issuer := scratch.NewIssuer(scratchKeyRepo, classifierRepo, tenantRepo, credentialsPool, clock)
	trainingClient := training.NewClient(cfg.Training)
	tracker := training.NewTracker(trainingClient, credentialsPool, classifierRepo, tenantRepo, issuer, clock)
	queue := pendingjobs.NewQueue(pendingJobRepo, clock)
	cascade := sessionusers.NewProjectCascade(projectRepo, tenantRepo, tracker)
	fullCache := sessionusers.NewFullCache(clock, cfg.SessionUsers.CheckWindow)
	gate := sessionusers.NewGate(sessionUserRepo, cascade, queue, fullCache, cfg.SessionUsers, clock)
	deleter := cleanup.NewDeleter(cleanup.Stores{
		Projects:       projectRepo,
		ClassifierRows: classifierRepo,
		KeyRows:        scratchKeyRepo,
		Classifiers:    classifierRepo,
		Credentials:    credentialsRepo,
		Tenants:        tenantRepo,
	}, tracker, queue)

	// Authentication
	signer, err := auth.NewSessionSigner(cfg.Auth.Session, clock)
	if err != nil {
		log.Fatalf("Failed to initialize session signer: %v", err)
	}
	var idp middleware.IdentityVerifier
	if cfg.Auth.OIDC.Enabled {
		verifier, err := auth.NewOIDCVerifier(context.Background(), &cfg.Auth.OIDC)
		if err != nil {
			log.Fatalf("Failed to initialize OIDC verifier: %v", err)
		}
		idp = verifier
		log.Printf("OIDC bearer tokens accepted from %s", cfg.Auth.OIDC.IssuerURL)
	}
	authRequired := middleware.AuthMiddleware(signer, gate, idp)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, storageBackend))
	router.GET("/version", versionHandler())

	bg := &BackgroundServices{}

	apiGroup := router.Group("/api")
	if cfg.Security.RateLimiting.Enabled {
		limiter, stop := middleware.NewLimiter(cfg.Security.RateLimiting, clock)
		bg.stopLimiter = stop
		apiGroup.Use(middleware.RateLimitMiddleware(limiter))
	}

	// Handlers
	sessionHandlers := sessions.NewHandlers(gate, signer)
	scratchHandlers := scratchkeys.NewHandlers(issuer)
	modelHandlers := classifiers.NewHandlers(tracker, classifierRepo, tenantRepo)
	credentialHandlers := admin.NewCredentialsHandlers(credentialsPool, tracker, trainingClient, tenantRepo)
	teardownHandlers := teardown.NewHandlers(deleter)

	apiGroup.GET("/scratch/:scratchkey/status", scratchHandlers.GetStatus)

	if cfg.SessionUsers.Enabled {
		apiGroup.POST("/sessionusers", sessionHandlers.CreateSessionUser)
	}

	classGroup := apiGroup.Group("/classes/:classid")
	classGroup.Use(authRequired, middleware.RequireClassAccess())
	{
		classGroup.DELETE("/sessionusers/:studentid", sessionHandlers.DeleteSessionUser)

		projectGroup := classGroup.Group("/students/:studentid/projects/:projectid")
		projectGroup.Use(projectctx.LoadProject(projectRepo))
		{
			projectGroup.DELETE("", teardownHandlers.DeleteProject)
			projectGroup.GET("/scratchkeys", scratchHandlers.GetScratchKeys)
			projectGroup.GET("/models", modelHandlers.GetModels)
			projectGroup.POST("/models", modelHandlers.NewModel)
			projectGroup.DELETE("/models/:modelid", modelHandlers.DeleteModel)
		}

		supervisorGroup := classGroup.Group("")
		supervisorGroup.Use(middleware.RequireSupervisor())
		{
			supervisorGroup.DELETE("", teardownHandlers.DeleteClass)
			supervisorGroup.GET("/classifiers", modelHandlers.GetClassifiers)
			supervisorGroup.DELETE("/classifiers/:classifierid", modelHandlers.DeleteClassifier)
			supervisorGroup.PUT("/policy", modelHandlers.UpdatePolicy)
			supervisorGroup.GET("/credentials", credentialHandlers.ListClassCredentials)
			supervisorGroup.POST("/credentials", credentialHandlers.AddClassCredentials)
			supervisorGroup.DELETE("/credentials/:credentialsid", credentialHandlers.DeleteClassCredentials)
		}
	}

	adminGroup := apiGroup.Group("/admin")
	adminGroup.Use(authRequired, middleware.RequireSiteAdmin())
	{
		adminGroup.POST("/pool", credentialHandlers.AddPooledCredentials)
		adminGroup.DELETE("/pool/:credentialsid", credentialHandlers.RetirePooledCredentials)
	}

	// Background jobs
	ctx, cancel := context.WithCancel(context.Background())
	bg.cancel = cancel

	if cfg.PendingJobs.Enabled {
		bg.pendingJobs = jobs.NewPendingJobRunner(queue, pendingjobs.NewProcessor(storageBackend), &cfg.PendingJobs, clock)
		safego.Go("pending-jobs", func() { bg.pendingJobs.Start(ctx) })
		log.Printf("Pending jobs runner started (every %s)", cfg.PendingJobs.PollInterval)
	}

	expirySweeper := jobs.NewClassifierExpirySweeper(tracker, cfg.Training.ExpiredSweepInterval, clock)
	safego.Go("classifier-expiry", func() { expirySweeper.Start(ctx) })
	bg.sweepers = append(bg.sweepers, expirySweeper)

	if cfg.SessionUsers.Enabled {
		sessionSweeper := jobs.NewSessionUserSweeper(gate, cfg.SessionUsers.CleanupInterval, clock)
		safego.Go("session-users", func() { sessionSweeper.Start(ctx) })
		bg.sweepers = append(bg.sweepers, sessionSweeper)
	}

	return router, bg
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the object store so
// that a readiness gate fails when queued cleanup would error.
func readinessHandler(db *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Probe with a known-absent key. Exists() exercises authentication
		// and network connectivity without creating any state.
		if _, err := storageBackend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the service version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}
