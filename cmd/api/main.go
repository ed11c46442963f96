package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callcenter-routing/internal/audit"
	"callcenter-routing/internal/auth"
	"callcenter-routing/internal/callqueue"
	"callcenter-routing/internal/config"
	"callcenter-routing/internal/history"
	"callcenter-routing/internal/httpapi"
	"callcenter-routing/internal/notify"
	"callcenter-routing/internal/presence"
	"callcenter-routing/internal/telephony"
	"callcenter-routing/pkg/logger"
	"callcenter-routing/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const presenceTTL = 30 * time.Second

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Persistence.
	callRepo := callqueue.NewPostgresRepo(db)
	histSvc := history.NewService(history.NewPostgresRepo(db))
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	presReg := presence.NewRedisRegistry(rdb, presenceTTL)

	// Telephony boundary: one adapter per provider type, config from DB.
	pbxAdapter := telephony.NewPBXAdapter()
	adapters := telephony.NewRegistry(
		telephony.NewGatewayAdapter(),
		pbxAdapter,
		telephony.NewMockAdapter(),
	)
	pgResolver := telephony.NewPostgresResolver(db)
	// Process-wide secrets act as fallbacks for tenants whose provider rows
	// omit them; per-tenant values always win.
	configDefaults := telephony.ConfigDefaults{
		telephony.ProviderHostedGateway: {"webhook_secret": cfg.Gateway.WebhookSecret},
		telephony.ProviderSIPPBX: {
			"callback_token": cfg.PBX.CallbackToken,
			"stream_addr":    cfg.PBX.StreamAddr,
		},
	}
	resolver := telephony.WithDefaults(pgResolver, configDefaults)

	dispatcher := &telephony.Dispatcher{
		Registry: adapters,
		Resolver: resolver,
		Retry: telephony.RetryPolicy{
			MaxAttempts: cfg.Telephony.ControlRetryMax,
			BaseDelay:   cfg.Telephony.ControlRetryBase,
		},
		Log: log,
	}

	// Notification fan-out: in-process SSE subscribers plus external sinks.
	sinks := []notify.Publisher{notify.NewRedisPublisher(rdb)}
	if cfg.MQTT.Broker != "" {
		mq, err := notify.NewMQTTPublisher(notify.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
		})
		if err != nil {
			log.Error("mqtt sink init failed, continuing without", "broker", cfg.MQTT.Broker, "err", err)
		} else {
			sinks = append(sinks, mq)
		}
	}

	// The hub's catch-up snapshot reads through the call service; svc is
	// assigned before any subscriber can connect.
	var svc *callqueue.Service
	hub := notify.NewHub(func(ctx context.Context, tenantID string) ([]callqueue.CallQueueItem, error) {
		return svc.LiveQueue(ctx, tenantID)
	}, logger.Component(log, "fanout"), sinks...)
	defer hub.Close()

	deps := callqueue.Deps{
		Presence: presReg,
		Fanout:   hub,
		Controls: dispatcher,
		Audit:    callqueue.AuditAdapter{Audit: auditSvc, Log: log},
		Archive:  histSvc,
		Log:      log,
	}
	if limit := cfg.Telephony.TenantLiveCallCap; limit > 0 {
		deps.Cap = func(ctx context.Context, tenantID string) (bool, error) {
			return utils.AcquireLiveCallCap(ctx, rdb, "livecalls:"+tenantID, limit, time.Hour)
		}
		deps.CapRelease = func(ctx context.Context, tenantID string) error {
			return utils.ReleaseLiveCallCap(ctx, rdb, "livecalls:"+tenantID)
		}
	}

	svc = callqueue.NewService(callRepo, callqueue.ServiceConfig{
		RingTimeout:           cfg.Telephony.RingTimeout,
		TransferAcceptTimeout: cfg.Telephony.TransferAcceptTimeout,
	}, deps)

	dispatcher.OnPermanentFailure = func(tenantID, callID string, res telephony.CallResult) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := svc.MarkFailed(ctx, tenantID, callID, res.Detail); err != nil {
			log.Error("marking call failed after control failure", "tenant", tenantID, "call", callID, "err", err)
		}
	}

	inbox := callqueue.NewInbox(svc, 1024, logger.Component(log, "inbox"))
	go inbox.Run(rootCtx)

	startStreamRunners(rootCtx, pgResolver, configDefaults, resolver, pbxAdapter, inbox, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:     authManager,
		Calls:    svc,
		Hub:      hub,
		Presence: presReg,
		Inbox:    inbox,
		Resolver: resolver,
		Adapters: adapters,
		History:  histSvc,
		Log:      log,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

// startStreamRunners launches one manager-stream connection per tenant PBX
// provider configured for event-stream delivery.
func startStreamRunners(ctx context.Context, pg *telephony.PostgresResolver, defaults telephony.ConfigDefaults, resolver telephony.Resolver, pbx *telephony.PBXAdapter, inbox *callqueue.Inbox, log *slog.Logger) {
	cfgs, err := pg.StreamProviders(ctx)
	if err != nil {
		log.Error("listing stream providers failed", "err", err)
		return
	}
	for _, pc := range cfgs {
		pc = defaults.Apply(pc)
		if pc.Type != telephony.ProviderSIPPBX {
			log.Warn("stream mode configured for non-stream provider, skipping",
				"tenant", pc.TenantID, "provider", pc.Type)
			continue
		}
		runner := &telephony.StreamRunner{
			Adapter: pbx,
			Config:  pc,
			Sink:    streamSink(pc, resolver, inbox),
			Log:     logger.Component(log, "stream"),
		}
		go func(tenantID string) {
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("stream runner stopped", "tenant", tenantID, "err", err)
			}
		}(pc.TenantID)
	}
}

func streamSink(pc telephony.ProviderConfig, resolver telephony.Resolver, inbox *callqueue.Inbox) telephony.EventSink {
	return func(ctx context.Context, ev telephony.NormalizedCallEvent) error {
		phoneNumberID := ""
		if n, _, err := resolver.NumberByDialed(ctx, ev.CalledNumber); err == nil && n.TenantID == pc.TenantID {
			phoneNumberID = n.ID
		}
		if !inbox.Enqueue(ctx, callqueue.InboundEnvelope{
			TenantID:      pc.TenantID,
			PhoneNumberID: phoneNumberID,
			Provider:      pc.Type,
			Event:         ev,
		}) {
			return errors.New("inbox full")
		}
		return nil
	}
}
