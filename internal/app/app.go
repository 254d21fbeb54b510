package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/socialfeed/internal/auth"
	"github.com/hitoshi/socialfeed/internal/config"
	"github.com/hitoshi/socialfeed/internal/database"
	"github.com/hitoshi/socialfeed/internal/events"
	"github.com/hitoshi/socialfeed/internal/feed"
	"github.com/hitoshi/socialfeed/internal/handler"
	"github.com/hitoshi/socialfeed/internal/logger"
	"github.com/hitoshi/socialfeed/internal/metrics"
	"github.com/hitoshi/socialfeed/internal/middleware"
	"github.com/hitoshi/socialfeed/internal/repository"
	"github.com/hitoshi/socialfeed/internal/security"
	"github.com/hitoshi/socialfeed/internal/worker/cleanup"
)

const (
	shutdownTimeout   = 30 * time.Second
	cleanupInterval   = 24 * time.Hour
	issuedTokenExpiry = 24 * time.Hour
)

// 依存先ごとの型アサーション
var (
	_ feed.Recorder             = (*metrics.Collector)(nil)
	_ repository.CacheObserver  = (*metrics.Collector)(nil)
	_ middleware.StatusRecorder = (*metrics.Collector)(nil)
	_ events.Observer           = (*metrics.Collector)(nil)
	_ cleanup.Observer          = (*metrics.Collector)(nil)
	_ events.CountEvicter       = (*repository.RedisCountCache)(nil)
	_ middleware.TokenVerifier  = (*auth.HMACTokenService)(nil)
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("follow_graph", cfg.FollowGraphBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, args[1:])
	case CommandToken:
		return runToken(cfg, args[1:], os.Stdout)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	memberRepo := repository.NewPostgresMemberRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	socialRepo := repository.NewPostgresSocialRepo(db)

	graph, closeGraph, err := openFollowGraph(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeGraph()

	counts, closeCache, err := openCountProvider(ctx, cfg, socialRepo, collector)
	if err != nil {
		return err
	}
	defer closeCache()

	// 4. ドメインサービスの初期化
	selector := feed.NewSelector(graph, postRepo)
	assembler := feed.NewAssembler(counts, socialRepo, security.NewPostSanitizer(), slog.Default())
	feedService := feed.NewService(memberRepo, selector, assembler, policyFromConfig(cfg), collector, slog.Default())

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitFeed))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		TokenVerifier:     auth.NewHMACTokenService(cfg.JWTSecret, issuedTokenExpiry),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		StatusRecorder:    collector,
		HealthChecker:     db,
		MetricsGatherer:   registry,
		FeedService:       feedService,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server, "API server")
}

// runWorker はワーカーモードで起動する。
// リアクションイベントの購読（NATS_URLとREDIS_URLが設定されている場合）と、
// 無効ないいねの日次クリーンアップを実行する。/health と /metrics も公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. リアクションイベントの購読
	closeSubscriber, err := startReactionSubscriber(ctx, cfg, db, collector)
	if err != nil {
		return err
	}
	defer closeSubscriber()

	// 3. クリーンアップジョブを日次でバックグラウンド実行
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), collector)
	cleanupJob.RetentionDays = cfg.LikeRetentionDays
	go cleanupJob.Start(ctx, cleanupInterval)

	slog.Info("worker starting",
		slog.Int("like_retention_days", cfg.LikeRetentionDays),
		slog.Bool("reaction_events", cfg.NatsURL != "" && cfg.RedisURL != ""),
	)

	// 4. 運用エンドポイント
	ops := chi.NewRouter()
	ops.Get("/health", handler.NewHealthHandler(db))
	ops.Method(http.MethodGet, "/metrics", metrics.Handler(registry))

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           ops,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return serveUntilDone(ctx, server, "worker")
}

// startReactionSubscriber はNATSとRedisが設定されていればreaction.changedの購読を開始する。
// 返却するクローズ関数で購読とクライアントを解放する。
func startReactionSubscriber(ctx context.Context, cfg *config.Config, db *sql.DB, collector *metrics.Collector) (func(), error) {
	if cfg.NatsURL == "" {
		slog.Info("NATS_URL is not set, reaction events are disabled")
		return func() {}, nil
	}
	if cfg.RedisURL == "" {
		slog.Warn("NATS_URL is set but REDIS_URL is not, reaction events have no cache to invalidate")
		return func() {}, nil
	}

	rdb, err := openRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	nc, err := nats.Connect(cfg.NatsURL,
		nats.Name("socialfeed-worker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	cache := repository.NewRedisCountCache(rdb, repository.NewPostgresSocialRepo(db), cfg.CountCacheTTL, slog.Default(), collector)
	sub, err := events.NewReactionSubscriber(cache, slog.Default(), collector).Subscribe(nc)
	if err != nil {
		nc.Close()
		rdb.Close()
		return nil, err
	}

	slog.Info("listening for reaction events", slog.String("subject", events.ReactionSubject))

	return func() {
		if err := sub.Drain(); err != nil {
			slog.Warn("failed to drain NATS subscription", slog.String("error", err.Error()))
		}
		nc.Close()
		rdb.Close()
	}, nil
}

// openFollowGraph はFOLLOW_GRAPH_BACKENDに応じたフォローグラフを返す。
func openFollowGraph(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.FollowGraph, func(), error) {
	if cfg.FollowGraphBackend != config.FollowGraphNeo4j {
		return repository.NewPostgresFollowRepo(db), func() {}, nil
	}

	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	closeDriver := func() {
		if err := driver.Close(context.Background()); err != nil {
			slog.Warn("failed to close neo4j driver", slog.String("error", err.Error()))
		}
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		closeDriver()
		return nil, nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	graph := repository.NewNeo4jFollowGraph(driver)
	if err := graph.EnsureSchema(ctx); err != nil {
		closeDriver()
		return nil, nil, err
	}

	slog.Info("neo4j follow graph connected")
	return graph, closeDriver, nil
}

// openCountProvider はREDIS_URLが設定されていればRedisキャッシュ付きのカウント取得を返す。
// Redisに接続できない場合は起動を止めず、キャッシュなしで続行する。
func openCountProvider(ctx context.Context, cfg *config.Config, backing repository.SocialCountProvider, collector *metrics.Collector) (repository.SocialCountProvider, func(), error) {
	if cfg.RedisURL == "" {
		return backing, func() {}, nil
	}

	rdb, err := openRedis(ctx, cfg.RedisURL)
	if err != nil {
		slog.Warn("count cache disabled", slog.String("error", err.Error()))
		return backing, func() {}, nil
	}

	slog.Info("count cache enabled", slog.Duration("ttl", cfg.CountCacheTTL))
	cache := repository.NewRedisCountCache(rdb, backing, cfg.CountCacheTTL, slog.Default(), collector)
	return cache, func() { rdb.Close() }, nil
}

func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func policyFromConfig(cfg *config.Config) feed.Policy {
	return feed.Policy{
		FollowingRate:        cfg.FeedFollowingRate,
		RecommendRate:        cfg.FeedRecommendRate,
		RecommendSearchRange: cfg.FeedRecommendSearchRange,
		MaxPageSize:          cfg.FeedMaxPageSize,
	}
}

// serveUntilDone はHTTPサーバーを起動し、ctxのキャンセルでグレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしまたは up で未適用のマイグレーションをすべて適用し、down で1つ戻す。
func runMigrate(cfg *config.Config, args []string) error {
	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}

	slog.Info("running database migrations",
		slog.String("direction", direction),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch direction {
	case "up":
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case "down":
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown migrate direction: %q (want up or down)", direction)
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runToken は指定メンバーのアクセストークンを発行してoutに書き出す。
func runToken(cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: token <memberId>")
	}
	memberID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || memberID <= 0 {
		return fmt.Errorf("invalid member id: %q", args[0])
	}

	token, err := auth.NewHMACTokenService(cfg.JWTSecret, issuedTokenExpiry).Issue(memberID)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できないURLは全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
