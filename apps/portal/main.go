package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"grievance/libs/backend"
	"grievance/libs/mailer"
	"grievance/libs/supabase"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	sessionCookieName          = "grievance_session"
	supabaseTokenCookieName    = "grievance_sb_token"
	pkceCookieName             = "grievance_pkce"
	chatSessionCookieName      = "grievance_chat"
	sessionDuration            = 8 * time.Hour
	pkceCookieMaxAge           = 10 * time.Minute
	rateLimitWindow            = 5 * time.Minute
	complaintRateLimitRequests = 10
	loginRateLimitRequests     = 10
	forumPostRateLimitRequests = 6
	forumVoteRateLimitRequests = 30
	rateLimiterCleanupInterval = time.Minute
	backendRequestTimeout      = 30 * time.Second
	shutdownTimeout            = 15 * time.Second
	placeholderAPIBaseURL      = "http://localhost:8000"
	placeholderSupabaseURL     = "https://placeholder.supabase.co"
	placeholderSupabaseKey     = "placeholder-anon-key"
	defaultStorageBucket       = "forum-images"
	defaultTimezone            = "Asia/Kolkata"
	minSigningSecretLength     = 16
	devCORSOriginLocalhost     = "http://localhost:5173"
	devCORSOriginLoopback      = "http://127.0.0.1:5173"
	trustedProxyLoopbackIPv4   = "127.0.0.1"
	trustedProxyLoopbackIPv6   = "::1"
)

type Config struct {
	Addr             string
	Env              string
	LogLevel         string
	PublicBaseURL    string
	AppSigningSecret string

	APIBaseURL      string
	BackendAPIToken string

	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	SupabaseJWTSecret  string
	StorageBucket      string
	SupabaseConfigured bool

	AdminEmails []string
	DatabaseURL string
	RedisURL    string

	MapboxAccessToken string
	GeocoderProvider  string

	ResendAPIKey        string
	MailerFromAddresses map[string]string
	MailerReplyTo       string
	SendReceiptEmails   bool

	SchedulerEnabled          bool
	FollowupSchedule          string
	FollowupDaysWithoutUpdate int
	MonitoringSchedule        string
	UploadCleanupSchedule     string
	Timezone                  string

	// Warnings lists the placeholder substitutions made while loading.
	Warnings []string
}

type App struct {
	cfg *Config
	db  *sql.DB
	log *slog.Logger

	backend     *backend.Client
	supabase    *supabase.Client
	storage     objectStorage
	ledger      uploadLedger
	store       *pgStore
	geocoder    Geocoder
	mailer      *mailer.Mailer
	transcripts TranscriptStore
	metrics     *Metrics
	gatherer    prometheus.Gatherer
	validate    *validator.Validate
	templates   *templateRenderer

	rateLimiterMu sync.Mutex
	rateBuckets   map[string]rateBucket

	locOnce sync.Once
	loc     *time.Location

	// test hooks
	recordStatusChangeHook  func(ctx context.Context, change StatusChange) error
	recentStatusChangesHook func(ctx context.Context, limit int) ([]StatusChangeRecord, error)
	newObjectName           func(ext string) string
}

type rateBucket struct {
	start time.Time
	count int
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

func main() {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))
	for _, warning := range cfg.Warnings {
		logger.Warn("configuration placeholder in use", "detail", warning)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := newApp(cfg, logger, registry)
	if err != nil {
		panic(err)
	}
	defer app.close()

	ctx := context.Background()
	if app.db != nil {
		if err := app.runMigrations(ctx); err != nil {
			panic(err)
		}
	}

	logger.Info(
		"runtime configuration",
		"env", cfg.Env,
		"addr", cfg.Addr,
		"api_base_url", cfg.APIBaseURL,
		"auth_enabled", cfg.SupabaseConfigured,
		"audit_enabled", app.db != nil,
		"transcripts", fmt.Sprintf("%T", app.transcripts),
	)

	if len(os.Args) > 1 && os.Args[1] != "serve" {
		if err := app.runCommand(ctx, os.Args[1], os.Args[2:]); err != nil {
			logger.Error("command failed", "command", os.Args[1], "err", err)
			os.Exit(1)
		}
		return
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	app.startRateLimiterCleanup(cleanupCtx, rateLimiterCleanupInterval)

	if cfg.SchedulerEnabled {
		scheduler, err := newScheduler(app)
		if err != nil {
			panic(err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	r := gin.New()
	if err := r.SetTrustedProxies([]string{trustedProxyLoopbackIPv4, trustedProxyLoopbackIPv6}); err != nil {
		panic(err)
	}
	app.registerRoutes(r)

	if err := app.serve(r); err != nil {
		panic(err)
	}
}

// serve runs the HTTP server until SIGINT or SIGTERM, then lets in-flight
// requests finish for up to shutdownTimeout.
func (a *App) serve(handler http.Handler) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("starting portal", "addr", a.cfg.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down portal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newApp(cfg *Config, logger *slog.Logger, registry *prometheus.Registry) (*App, error) {
	metrics := newMetrics(registry)
	httpClient := &http.Client{Timeout: backendRequestTimeout}

	app := &App{
		cfg:         cfg,
		log:         logger,
		metrics:     metrics,
		gatherer:    registry,
		validate:    newFormValidator(),
		templates:   newTemplateRenderer(cfg.Env),
		rateBuckets: make(map[string]rateBucket),
		backend: backend.New(cfg.APIBaseURL, httpClient,
			backend.WithBearerToken(cfg.BackendAPIToken),
			backend.WithObserver(metrics.observeBackend),
		),
	}

	if cfg.SupabaseConfigured {
		app.supabase = supabase.New(supabase.Config{
			URL:        cfg.SupabaseURL,
			AnonKey:    cfg.SupabaseAnonKey,
			ServiceKey: cfg.SupabaseServiceKey,
			JWTSecret:  cfg.SupabaseJWTSecret,
		}, httpClient)
		app.storage = app.supabase
	}

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		app.db = db
		app.store = newPGStore(db)
		app.ledger = app.store
	}

	transcripts, err := newTranscriptStore(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	app.transcripts = transcripts

	mapbox := &MapboxGeocoder{AccessToken: cfg.MapboxAccessToken, Client: httpClient}
	nominatim := &NominatimGeocoder{UserAgent: "GrievancePortal/1.0 (" + cfg.PublicBaseURL + ")", Client: httpClient}
	switch cfg.GeocoderProvider {
	case "mapbox":
		app.geocoder = mapbox
	case "nominatim":
		app.geocoder = nominatim
	default:
		if cfg.MapboxAccessToken != "" {
			app.geocoder = &FallbackGeocoder{Primary: mapbox, Secondary: nominatim}
		} else {
			app.geocoder = nominatim
		}
	}

	var mailProvider mailer.Provider
	if cfg.ResendAPIKey != "" {
		mailProvider = mailer.NewResendProvider(cfg.ResendAPIKey)
	} else {
		mailProvider = mailer.NewLogProvider(logger)
	}
	app.mailer = mailer.New(mailProvider, cfg.MailerFromAddresses[mailProvider.Name()]).WithReplyTo(cfg.MailerReplyTo)
	logger.Info("mailer initialized", "provider", app.mailer.ProviderName())

	return app, nil
}

func (a *App) close() {
	if closer, ok := a.transcripts.(io.Closer); ok {
		_ = closer.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) registerRoutes(r *gin.Engine) {
	r.Use(gin.CustomRecoveryWithWriter(io.Discard, a.recoveryHandler))
	r.Use(a.loggingMiddleware())
	r.Use(a.corsMiddleware())

	staticFS, err := staticFileSystem(a.cfg.Env)
	if err != nil {
		panic(err)
	}
	r.StaticFS("/static", staticFS)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", a.readinessHandler)
	r.GET("/metrics", a.metricsHandler())

	r.GET("/", a.homePageHandler)
	r.POST("/language", a.languageSubmitHandler)

	r.GET("/login", a.loginPageHandler)
	r.POST("/login", a.loginSubmitHandler)
	r.GET("/signup", a.signupPageHandler)
	r.POST("/signup", a.signupSubmitHandler)
	r.GET("/login/oauth/:provider", a.oauthStartHandler)
	r.GET("/auth/callback", a.authCallbackHandler)
	r.POST("/logout", a.logoutSubmitHandler)

	r.GET("/complaints/new", a.complaintFormPageHandler)
	r.POST("/complaints", a.complaintSubmitHandler)
	r.GET("/status", a.statusPageHandler)

	a.registerForumRoutes(r)
	a.registerAdminRoutes(r)

	r.GET("/ws/voice", a.voiceSocketHandler)

	api := r.Group("/api/v1")
	{
		api.GET("/session", a.sessionAPIHandler)
		api.GET("/complaints/:id/status", a.statusAPIHandler)
		api.GET("/geocode/reverse", a.reverseGeocodeHandler)
		api.POST("/chat", a.chatQueryHandler)
		api.GET("/chat/transcript", a.chatTranscriptHandler)
		api.DELETE("/chat/transcript", a.chatResetHandler)
	}
}

func (a *App) runCommand(ctx context.Context, name string, args []string) error {
	switch name {
	case "run-followups":
		days := a.cfg.FollowupDaysWithoutUpdate
		if len(args) > 0 {
			parsed, err := strconv.Atoi(args[0])
			if err != nil || parsed < 1 {
				return fmt.Errorf("invalid days: %s", args[0])
			}
			days = parsed
		}
		return a.runFollowupsJob(ctx, days)
	case "run-monitoring":
		return a.runMonitoringJob(ctx)
	case "cleanup-uploads":
		_, err := a.cleanupOrphanedUploads(ctx)
		return err
	default:
		return fmt.Errorf("unknown command %q (expected serve, run-followups, run-monitoring or cleanup-uploads)", name)
	}
}

func loadConfig() (*Config, error) {
	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "development"
	}
	production := strings.EqualFold(env, "production")

	cfg := &Config{
		Addr:               valueOrDefault("GIN_ADDR", ":8080"),
		Env:                env,
		LogLevel:           valueOrDefault("LOG_LEVEL", "info"),
		PublicBaseURL:      strings.TrimRight(valueOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		BackendAPIToken:    strings.TrimSpace(os.Getenv("BACKEND_API_TOKEN")),
		SupabaseServiceKey: valueFromEnvKeys("SUPABASE_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseJWTSecret:  strings.TrimSpace(os.Getenv("SUPABASE_JWT_SECRET")),
		StorageBucket:      valueOrDefault("SUPABASE_STORAGE_BUCKET", defaultStorageBucket),
		AdminEmails:        parseEmailList(os.Getenv("ADMIN_EMAILS")),
		DatabaseURL:        databaseURLFromEnv(),
		RedisURL:           strings.TrimSpace(os.Getenv("REDIS_URL")),
		MapboxAccessToken:  strings.TrimSpace(os.Getenv("MAPBOX_ACCESS_TOKEN")),
		GeocoderProvider:   strings.TrimSpace(os.Getenv("GEOCODER_PROVIDER")),
		ResendAPIKey:       strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		MailerFromAddresses: map[string]string{
			"resend": valueOrDefault("MAILER_FROM_ADDRESS_RESEND", "noreply@grievance.example.in"),
			"log":    valueOrDefault("MAILER_FROM_ADDRESS_LOG", "noreply@grievance.local"),
		},
		MailerReplyTo:         strings.TrimSpace(os.Getenv("MAILER_REPLY_TO")),
		FollowupSchedule:      valueOrDefault("FOLLOWUP_SCHEDULE", "0 9 * * *"),
		MonitoringSchedule:    valueOrDefault("MONITORING_SCHEDULE", "*/30 * * * *"),
		UploadCleanupSchedule: valueOrDefault("UPLOAD_CLEANUP_SCHEDULE", "@hourly"),
		Timezone:              valueOrDefault("DEFAULT_TIMEZONE", defaultTimezone),
	}

	secret := strings.TrimSpace(os.Getenv("APP_SIGNING_SECRET"))
	if secret == "" && !production {
		generated, err := randomSecret()
		if err != nil {
			return nil, err
		}
		secret = generated
		cfg.Warnings = append(cfg.Warnings, "APP_SIGNING_SECRET not set; generated a random secret, sessions end on restart")
	}
	if len(secret) < minSigningSecretLength {
		return nil, fmt.Errorf("APP_SIGNING_SECRET must be at least %d characters", minSigningSecretLength)
	}
	cfg.AppSigningSecret = secret

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("API_BASE_URL")), "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = placeholderAPIBaseURL
		cfg.Warnings = append(cfg.Warnings, "API_BASE_URL not set; using "+placeholderAPIBaseURL)
	}

	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/")
	cfg.SupabaseAnonKey = valueFromEnvKeys("SUPABASE_KEY", "SUPABASE_ANON_KEY")
	cfg.SupabaseConfigured = cfg.SupabaseURL != "" && cfg.SupabaseAnonKey != ""
	if cfg.SupabaseURL == "" {
		cfg.SupabaseURL = placeholderSupabaseURL
		cfg.Warnings = append(cfg.Warnings, "SUPABASE_URL not set; authentication and image uploads are disabled")
	}
	if cfg.SupabaseAnonKey == "" {
		cfg.SupabaseAnonKey = placeholderSupabaseKey
		cfg.Warnings = append(cfg.Warnings, "SUPABASE_KEY not set; authentication and image uploads are disabled")
	}
	if cfg.SupabaseConfigured && cfg.SupabaseJWTSecret == "" {
		cfg.Warnings = append(cfg.Warnings, "SUPABASE_JWT_SECRET not set; access tokens are checked against the auth server instead")
	}
	if len(cfg.AdminEmails) == 0 {
		cfg.Warnings = append(cfg.Warnings, "ADMIN_EMAILS not set; nobody can open the admin dashboard")
	}
	if cfg.DatabaseURL == "" {
		cfg.Warnings = append(cfg.Warnings, "DATABASE_URL not set; status audit and upload ledger are disabled")
	}
	if cfg.RedisURL == "" {
		cfg.Warnings = append(cfg.Warnings, "REDIS_URL not set; chat transcripts are kept in memory")
	}

	switch cfg.GeocoderProvider {
	case "", "fallback", "mapbox", "nominatim":
	default:
		return nil, fmt.Errorf("GEOCODER_PROVIDER must be one of mapbox, nominatim, fallback")
	}

	var err error
	if cfg.SendReceiptEmails, err = boolFromEnv("SEND_RECEIPT_EMAILS", true); err != nil {
		return nil, err
	}
	if cfg.SchedulerEnabled, err = boolFromEnv("SCHEDULER_ENABLED", false); err != nil {
		return nil, err
	}

	cfg.FollowupDaysWithoutUpdate = 3
	if raw := strings.TrimSpace(os.Getenv("FOLLOWUP_DAYS_WITHOUT_UPDATE")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("FOLLOWUP_DAYS_WITHOUT_UPDATE must be a valid number")
		}
		if parsed < 1 {
			return nil, fmt.Errorf("FOLLOWUP_DAYS_WITHOUT_UPDATE must be >= 1")
		}
		cfg.FollowupDaysWithoutUpdate = parsed
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("DEFAULT_TIMEZONE is not a known time zone: %w", err)
	}

	return cfg, nil
}

func databaseURLFromEnv() string {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL != "" {
		return databaseURL
	}
	host := valueFromEnvKeys("PGHOST", "POSTGRES_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := valueFromEnvKeys("PGPORT", "POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	dbname := valueFromEnvKeys("PGDATABASE", "POSTGRES_DB")
	user := valueFromEnvKeys("PGUSER", "POSTGRES_USER")
	password := valueFromEnvKeys("PGPASSWORD", "POSTGRES_PASSWORD")
	sslmode := valueFromEnvKeys("PGSSLMODE", "POSTGRES_SSLMODE")
	if sslmode == "" {
		sslmode = "disable"
	}
	if dbname == "" || user == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, dbname, sslmode)
}

func parseEmailList(raw string) []string {
	emails := []string{}
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		email := strings.ToLower(strings.TrimSpace(part))
		if email == "" {
			continue
		}
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		emails = append(emails, email)
	}
	return emails
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate signing secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false", key)
	}
	return parsed, nil
}

func valueOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func valueFromEnvKeys(keys ...string) string {
	for _, key := range keys {
		value := strings.TrimSpace(os.Getenv(key))
		if value != "" {
			return value
		}
	}
	return ""
}

func (a *App) runMigrations(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return err
	}

	if _, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		var exists bool
		if err := a.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, file).Scan(&exists); err != nil {
			return err
		}
		if exists {
			continue
		}

		content, err := migrationFiles.ReadFile(filepath.ToSlash(filepath.Join("migrations", file)))
		if err != nil {
			return err
		}

		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, file); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		a.log.Info("applied migration", "file", file)
	}

	return nil
}

func (a *App) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		a.metrics.observeHTTP(c.Request.Method, route, c.Writer.Status(), duration)
		a.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", duration.Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

func (a *App) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if a.isAllowedCORSOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *App) isAllowedCORSOrigin(origin string) bool {
	if origin == "" || a.cfg == nil {
		return false
	}
	if a.cfg.PublicBaseURL != "" && origin == a.cfg.PublicBaseURL {
		return true
	}
	if !strings.EqualFold(a.cfg.Env, "development") {
		return false
	}
	return origin == devCORSOriginLocalhost || origin == devCORSOriginLoopback
}

// recoveryHandler is the top-level boundary for panics raised while handling
// or rendering a request.
func (a *App) recoveryHandler(c *gin.Context, recovered any) {
	stack := string(debug.Stack())
	a.log.Error("panic recovered", "path", c.Request.URL.Path, "panic", fmt.Sprint(recovered), "stack", stack)
	if c.Writer.Written() {
		c.Abort()
		return
	}

	lang := a.languageFromRequest(c)
	data := errorViewData{
		baseViewData: a.baseData(c, "page_title_error", ""),
		Message:      t(lang, "error_unexpected"),
		ReloadURL:    sanitizeRedirectTarget(c.Request.URL.RequestURI(), "/"),
	}
	if !strings.EqualFold(a.cfg.Env, "production") {
		data.Details = fmt.Sprintf("%v\n\n%s", recovered, stack)
	}
	a.renderTemplate(c, http.StatusInternalServerError, templateErrorPath, data)
	c.Abort()
}

func (a *App) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{"backend": "ok"}
	status := http.StatusOK
	if err := a.backend.Health(ctx); err != nil {
		checks["backend"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}

func writeAPIError(c *gin.Context, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Code, "message": apiErr.Message})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
}

// backendErrorMessage returns the backend's own error text when it sent one and
// the localized fallback otherwise.
func backendErrorMessage(err error, lang, fallbackKey string) string {
	var backendErr *backend.Error
	if errors.As(err, &backendErr) && strings.TrimSpace(backendErr.Message) != "" {
		return backendErr.Message
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	if errors.Is(err, backend.ErrUnavailable) {
		return t(lang, "error_network")
	}
	return t(lang, fallbackKey)
}

func statusForBackendError(err error) int {
	var backendErr *backend.Error
	if errors.As(err, &backendErr) {
		if backendErr.Status >= http.StatusBadRequest {
			return backendErr.Status
		}
		return http.StatusBadRequest
	}
	if errors.Is(err, backend.ErrUnavailable) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (a *App) timeLocation() *time.Location {
	a.locOnce.Do(func() {
		name := defaultTimezone
		if a.cfg != nil && a.cfg.Timezone != "" {
			name = a.cfg.Timezone
		}
		location, err := time.LoadLocation(name)
		if err != nil {
			a.loc = time.UTC
			return
		}
		a.loc = location
	})
	return a.loc
}
