package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/xela07ax/workflow-acl/internal/audit"
	"github.com/xela07ax/workflow-acl/internal/console/handler"
	"github.com/xela07ax/workflow-acl/internal/console/server"
	"github.com/xela07ax/workflow-acl/internal/console/service"
	"github.com/xela07ax/workflow-acl/internal/directory"
	"github.com/xela07ax/workflow-acl/internal/domain"
	"github.com/xela07ax/workflow-acl/internal/infra"
	"github.com/xela07ax/workflow-acl/internal/infra/auth"
	"github.com/xela07ax/workflow-acl/internal/policy"
	"github.com/xela07ax/workflow-acl/internal/repository/postgres"
	"github.com/xela07ax/workflow-acl/internal/workflows"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// 1. Storage. Without a database everything lives in memory and in the JSONL file.
	var (
		pool     *pgxpool.Pool
		grants   policy.GrantRepository
		grantW   service.GrantWriter
		users    auth.UserProvider = auth.StaticUsers(staticUsers(cfg.Auth.Users))
		notifier service.Notifier  = policy.NopNotifier{}
	)
	if cfg.Database.URL != "" {
		ctx, c := context.WithTimeout(appCtx, 5*time.Second)
		pool, err = postgres.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err == nil {
			err = postgres.EnsureSchema(ctx, pool)
		}
		c()
		if err != nil {
			logger.Fatal("database unreachable", zap.Error(err))
		}
		defer pool.Close()

		grantRepo := postgres.NewGrantRepo(pool)
		grants, grantW = grantRepo, grantRepo

		userRepo := postgres.NewUserRepo(pool)
		for name, hash := range cfg.Auth.Users {
			if err := userRepo.CreateUser(appCtx, name, hash); err != nil {
				logger.Fatal("seeding user failed", zap.String("username", name), zap.Error(err))
			}
		}
		users = userRepo
	}

	// 2. Policy store: defaults only when there is nothing to load.
	var store *policy.Store
	if grants == nil {
		store = policy.NewStore(nil, logger, policy.DefaultGrants()...)
	} else {
		store = policy.NewStore(grants, logger)
		if err := store.Refresh(appCtx); err != nil {
			logger.Fatal("initial policy load failed", zap.Error(err))
		}
	}
	engine := policy.NewEngine(store)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		notifier = policy.NewRedisNotifier(rdb, infra.RedisChanPolicyUpdate)
		if grants != nil {
			go policy.Listen(appCtx, rdb, store, infra.RedisChanPolicyUpdate, logger)
		}
	}

	// 3. Audit trail, mirrored to Postgres when available.
	auditMetrics := audit.NewMetrics(reg)
	logOpts := []audit.Option{audit.WithMetrics(auditMetrics)}
	var mirror *audit.Mirror
	if pool != nil {
		mirror = audit.NewMirror(postgres.NewAuditRepo(pool), cfg.Audit.MirrorBufferSize, cfg.Audit.MirrorFlushInterval, auditMetrics, logger)
		mirror.Start()
		logOpts = append(logOpts, audit.WithMirror(mirror))
	}
	auditLog := audit.NewLog(cfg.Audit.LogPath, logger, logOpts...)

	// 4. Workflow platform behind limiter, breaker and retries.
	rc := workflows.DefaultReliabilityConfig()
	rc.RateLimit = cfg.Catalog.RateLimit
	rc.RateBurst = cfg.Catalog.RateBurst
	rc.CBMaxRequests = cfg.Catalog.CBMaxRequests
	rc.CBInterval = cfg.Catalog.CBInterval
	rc.CBTimeout = cfg.Catalog.CBTimeout
	source := workflows.NewReliableSource(
		workflows.NewCatalog(workflows.SampleWorkflows(), workflows.SampleExecutions()),
		rc, workflows.NewMetrics(reg), logger)

	// 5. Session tokens
	privateKey, err := signingKey(cfg.Auth, logger)
	if err != nil {
		logger.Fatal("auth keys", zap.Error(err))
	}
	issuer := auth.NewTokenIssuer(privateKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	validator := auth.NewValidator(&privateKey.PublicKey, cfg.Auth.Issuer)

	// 6. Services and HTTP
	authSvc := service.NewAuthService(auth.NewBcryptVerifier(users), issuer, auditLog, logger)
	wfSvc := service.NewWorkflowService(source, engine, store, auditLog, logger)
	adminSvc := service.NewAdminService(service.AdminDeps{
		Store:             store,
		Repo:              grantW,
		Notifier:          notifier,
		Directory:         directory.NewService(store, engine),
		Authz:             engine,
		Audit:             auditLog,
		Reader:            auditLog,
		SummaryWindowDays: cfg.Audit.SummaryWindowDays,
	}, logger)

	consoleSrv := server.NewConsoleServer(logger, validator, reg,
		handler.NewAuthHandler(authSvc),
		handler.NewWorkflowHandler(wfSvc),
		handler.NewAdminHandler(adminSvc, cfg.Audit.RetentionDays),
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 7. gRPC health for orchestrator probes
	var grpcSrv *grpc.Server
	if cfg.GRPC.Addr != "" {
		grpcSrv = grpc.NewServer()
		hs := health.NewServer()
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcSrv, hs)

		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			logger.Fatal("failed to listen gRPC", zap.Error(err))
		}
		go func() {
			logger.Info("gRPC health server started", zap.String("addr", cfg.GRPC.Addr))
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("gRPC server stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		logger.Info("console API started",
			zap.String("addr", srv.Addr),
			zap.String("audit_log", auditLog.Path()),
			zap.Bool("database", pool != nil),
			zap.Bool("redis", rdb != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("console stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	cancel()
	// Requests are finished, so nothing appends to the mirror any more.
	if mirror != nil {
		mirror.Stop()
	}
	logger.Info("console exited properly")
}

// signingKey loads the configured RSA key or, if none is configured, generates a
// throwaway one. Tokens from a generated key do not survive a restart.
func signingKey(cfg infra.AuthConfig, logger *zap.Logger) (*rsa.PrivateKey, error) {
	if len(cfg.PrivateKey) > 0 {
		return auth.ParseRSAPrivateKey(cfg.PrivateKey)
	}
	logger.Warn("no auth.private_key_path configured; generating an ephemeral signing key")
	return rsa.GenerateKey(rand.Reader, 2048)
}

func staticUsers(hashes map[string]string) map[string]*domain.User {
	out := make(map[string]*domain.User, len(hashes))
	for name, hash := range hashes {
		out[name] = &domain.User{Username: name, PasswordHash: hash, CreatedAt: time.Now()}
	}
	return out
}
