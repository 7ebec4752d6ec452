package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edirooss/livepush/internal/config"
	"github.com/edirooss/livepush/internal/credstore"
	"github.com/edirooss/livepush/internal/encoder"
	"github.com/edirooss/livepush/internal/http/handler"
	mw "github.com/edirooss/livepush/internal/http/middleware"
	"github.com/edirooss/livepush/internal/logsink"
	"github.com/edirooss/livepush/internal/provisioner"
	"github.com/edirooss/livepush/internal/repo"
	"github.com/edirooss/livepush/internal/repo/pgstore"
	"github.com/edirooss/livepush/internal/scheduler"
)

var configPath string

func init() {
	// Handle version display
	handleVersion()
}

func main() {
	// Read env
	isDev := os.Getenv("ENV") == "dev"

	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Create Zap logger
	log := buildLogger()
	defer log.Sync()
	log = log.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable collections
	rdb := repo.NewRedisClient(log, repo.Options(cfg.RedisAddr, 0))
	defer rdb.Close()
	if err := rdb.Ping(ctx); err != nil {
		log.Warn("redis unreachable at startup; durable writes will degrade", zap.Error(err))
	}
	rp := repo.NewRepository(log, rdb)

	var logStore logsink.Store = rp.Logs
	if cfg.LogStore == "postgres" {
		pg, err := pgstore.Open(ctx, log, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("postgres log store open failed", zap.Error(err))
		}
		defer pg.Close()
		logStore = pg
	}
	sink := logsink.New(ctx, log, logStore, logsink.Options{TailCapacity: cfg.LogTailCapacity})

	// Operator files
	var channels *config.Channels
	if cfg.ChannelsFile != "" {
		if channels, err = config.LoadChannels(cfg.ChannelsFile); err != nil {
			log.Fatal("channels file load failed", zap.Error(err))
		}
	}
	var oauthClient *config.OAuthClient
	if cfg.OAuthClientFile != "" {
		if oauthClient, err = config.LoadOAuthClient(cfg.OAuthClientFile); err != nil {
			log.Fatal("oauth client file load failed", zap.Error(err))
		}
	}

	// Components
	yt := provisioner.NewYouTube()
	creds := credstore.New(log, rp.Credentials, credstore.Options{
		Client:         oauthClient,
		Identify:       yt.Identify,
		HTTPClient:     &http.Client{Timeout: cfg.Provisioner.RequestTimeout},
		RefreshTimeout: cfg.Provisioner.RequestTimeout,
	})
	if n := creds.Import(ctx, channels); n > 0 {
		log.Info("credentials imported from channels file", zap.Int("count", n))
	}
	prov := provisioner.New(log, creds, yt, provisioner.Options{RequestTimeout: cfg.Provisioner.RequestTimeout})
	enc := encoder.New(log, sink, encoder.Options{
		Binary:        cfg.Encoder.Binary,
		IngestBase:    cfg.Encoder.IngestBase,
		StopGrace:     cfg.Encoder.StopGrace,
		MaxConcurrent: cfg.Encoder.MaxConcurrent,
	})

	defaults := config.DefaultSetting{Privacy: "public"}
	if channels != nil {
		defaults = channels.Defaults
	}
	sc, err := scheduler.New(ctx, log, scheduler.Deps{
		Repo:        rp.Sessions,
		Events:      sink,
		Encoder:     enc,
		Provisioner: prov,
		Credentials: creds,
	}, scheduler.Options{Channels: channels, AutoStartDue: cfg.AutoStartDue || defaults.AutoStart})
	if err != nil {
		log.Fatal("scheduler creation failed", zap.Error(err))
	}
	go sc.Run(ctx)

	// Create Gin router
	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = zap.NewStdLog(log.Named("gin")).Writer() // Configure Gin's logger to use Zap
	r := gin.New()

	states, err := handler.NewRedisOAuthStates(isDev, cfg.RedisAddr, []byte(cfg.SessionSecret))
	if err != nil {
		log.Fatal("oauth state store creation failed", zap.Error(err))
	}

	// Apply Gin middlewares
	{
		r.Use(gin.Recovery()) // Recovery first (outermost)
		r.Use(mw.RequestID()) // Attach request ID for tracing; early in the chain so it's available everywhere

		if isDev { // Enable CORS for local Vite dev
			r.Use(cors.New(cors.Config{
				AllowOrigins:     []string{"http://localhost:5173", "http://localhost:4173", "http://localhost:3000", "http://127.0.0.1:3000"},
				AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowHeaders:     []string{"X-Request-ID", "Content-Type"},
				ExposeHeaders:    []string{"X-Request-ID", "X-Total-Count", "Location"},
				AllowCredentials: true, // Allow cookies in dev
				MaxAge:           12 * time.Hour,
			}))
		} else { // Behind a TLS-terminating proxy
			r.SetTrustedProxies([]string{"127.0.0.1"})
			r.Use(secure.New(secure.Config{
				SSLProxyHeaders: map[string]string{
					"X-Forwarded-Proto": "https", // Fix scheme for secure cookies
				},
			}))
		}

		r.Use(states.Middleware())      // Cookie session carrying OAuth state
		r.Use(mw.AccessLog(log, isDev)) // Observability
		r.Use(mw.BodyLimit(10 << 20))   // Hard 10MB cap on request bodies
	}

	// Register route handlers
	{
		r.GET("/api/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

		requireValidID := mw.RequireValidID()
		remote := mw.LimitConcurrentRequests(4) // calls out to the remote platform

		{
			sesshndlr := handler.NewSessionsHandler(log, sc, sink, defaults)

			// --- Session collection ---
			r.GET("/api/sessions", sesshndlr.ListSessions)   // get list
			r.POST("/api/sessions", sesshndlr.CreateSession) // create one

			// --- Session resource ---
			r.GET("/api/sessions/:id", requireValidID, sesshndlr.GetSession)
			r.GET("/api/sessions/:id/logs", requireValidID, sesshndlr.GetSessionLogs)
			r.POST("/api/sessions/:id/schedule", requireValidID, sesshndlr.ScheduleSession)
			r.POST("/api/sessions/:id/start", requireValidID, remote, sesshndlr.StartSession)
			r.POST("/api/sessions/:id/stop", requireValidID, sesshndlr.StopSession)
			r.POST("/api/sessions/:id/cancel", requireValidID, sesshndlr.CancelSession)
			r.POST("/api/sessions/:id/provision", requireValidID, remote, sesshndlr.ProvisionSession)
		}

		{
			logshndlr := handler.NewLogsHandler(log, sink)
			r.GET("/api/logs", logshndlr.QueryLogs)
			r.GET("/api/logs/tail", logshndlr.TailLogs)
		}

		{
			chnlshndlr := handler.NewChannelsHandler(log, channels, creds, prov)
			r.GET("/api/channels", chnlshndlr.GetChannelList)
			r.GET("/api/channels/default", chnlshndlr.GetDefaultChannel)
			r.DELETE("/api/channels/:id/credential", requireValidID, chnlshndlr.DisconnectChannel)
			r.POST("/api/channels/:id/ingest-key", requireValidID, remote, chnlshndlr.CreateIngestKey)
			r.GET("/api/channels/:id/info", requireValidID, remote, chnlshndlr.GetChannelInfo)
		}

		{
			oauthhndlr := handler.NewOAuthHandler(log, creds, states)
			r.GET("/api/oauth/begin", oauthhndlr.Begin)
			r.GET("/api/oauth/callback", oauthhndlr.Callback)
		}
	}

	httpsrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 2 * time.Second,  // kills header-drip Slowloris
		ReadTimeout:       10 * time.Second, // full request read (incl. body)
		WriteTimeout:      60 * time.Second, // start/provision wait on the remote platform
		IdleTimeout:       60 * time.Second, // keep-alive cap
		MaxHeaderBytes:    1 << 20,          // 1MB cap
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpsrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown incomplete", zap.Error(err))
		}
	}()

	log.Info("running HTTP server", zap.String("addr", httpsrv.Addr))
	if err := httpsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", zap.Error(err))
	}

	// Encoders are children of this process; reap them before exiting.
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Encoder.StopGrace+5*time.Second)
	defer cancel()
	enc.StopAll(stopCtx)
	log.Info("server closed")
}

// handleVersion prints build metadata and exits when -v/--version is provided.
// It also parses -config.
func handleVersion() {
	v := flag.Bool("v", false, "print version and exit")
	flag.BoolVar(v, "version", false, "print version and exit")
	flag.StringVar(&configPath, "config", config.DefaultPath, "path to the server config file")
	flag.Parse()

	if *v {
		fmt.Printf("livepush %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildDate)
		os.Exit(0)
	}
}

// helpers

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level.SetLevel(zap.DebugLevel)
	return zap.Must(logConfig.Build())
}
