// Package app 提供应用程序的初始化和配置功能.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yeisme/photovault/pkg/api"
	"github.com/yeisme/photovault/pkg/configs"
	pctx "github.com/yeisme/photovault/pkg/context"
	"github.com/yeisme/photovault/pkg/internal/events"
	"github.com/yeisme/photovault/pkg/internal/jobs"
	"github.com/yeisme/photovault/pkg/internal/service"
	"github.com/yeisme/photovault/pkg/internal/storage"
	"github.com/yeisme/photovault/pkg/log"
	"github.com/yeisme/photovault/pkg/metrics"
	"github.com/yeisme/photovault/pkg/middleware"
	"github.com/yeisme/photovault/pkg/scheduler"
	"github.com/yeisme/photovault/pkg/tracing"
)

// App 持有 HTTP 引擎与进程级资源.
type App struct {
	Engine   *gin.Engine
	Services *service.Services

	config  *configs.AppConfig
	manager *storage.Manager
	sched   *scheduler.Scheduler
	started bool
	logger  zerolog.Logger
}

// NewApp 按配置初始化全部组件. 返回错误时已创建的资源均已释放.
func NewApp(ctx context.Context, configPath string) (a *App, err error) {
	// 初始化配置
	if err := configs.InitConfig(configPath); err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}

	config := configs.GetConfig()
	l := *log.Logger()

	// 初始化追踪
	if err := tracing.InitTracer(config.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// 初始化监控
	if err := metrics.InitMetrics(config.Metrics); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	manager, err := storage.New(ctx, config, &l)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	a = &App{config: config, manager: manager, logger: l}

	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	deps, err := service.DepsFromContext(pctx.WithStorageManager(ctx, manager), config, l)
	if err != nil {
		return nil, err
	}

	a.Services = service.New(deps)

	if a.sched, err = scheduler.NewScheduler(l); err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	if err = jobs.RegisterCronJobs(ctx, a.sched, config.Jobs, a.Services.Trash, l); err != nil {
		return nil, fmt.Errorf("register jobs: %w", err)
	}

	if config.Events.Consume && manager.MQ != nil {
		events.NewConsumer(a.Services.Invalidator, service.InstanceID(), l).Register(manager.MQ)
	}

	gin.DefaultWriter = log.NewGinWriter(&l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(&l, zerolog.ErrorLevel)

	a.Engine = a.newEngine()

	return a, nil
}

func (a *App) newEngine() *gin.Engine {
	config := a.config
	engine := gin.New()

	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware(),
		middleware.GinLoggerMiddleware(a.logger),
		middleware.PrometheusMiddleware(),
		middleware.CORSMiddleware(config.Server, config.Auth),
	)

	if config.Server.Gzip {
		engine.Use(gzip.Gzip(gzip.DefaultCompression))
	}

	engine.Use(
		middleware.CircuitBreakerMiddleware(config.CircuitBreaker),
		middleware.StorageMiddleware(a.manager),
		middleware.SchedulerMiddleware(a.sched),
		middleware.AuthMiddleware(config.Auth),
		middleware.RoleMiddleware(config.Auth),
		middleware.RateLimitMiddleware(config.RateLimit),
	)

	return api.RegisterGroup(engine, a.Services)
}

// Run 启动 HTTP 服务、调度器与事件消费，阻塞到 ctx 取消后优雅退出.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer func() {
		if err := a.close(); err != nil {
			a.logger.Error().Err(err).Msg("close resources")
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port),
		Handler:           a.Engine,
		ReadHeaderTimeout: a.config.Server.GetTimeoutDuration(),
	}

	errCh := make(chan error, 3)

	go func() {
		a.logger.Info().Str("addr", srv.Addr).Msg("http server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	debugSrv := a.startDebugServer(errCh)

	if a.config.Events.Consume && a.manager.MQ != nil {
		go func() {
			if err := a.manager.MQ.Run(ctx); err != nil {
				errCh <- fmt.Errorf("event router: %w", err)
			}
		}()
	}

	a.sched.Start()
	a.started = true

	var runErr error

	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	a.logger.Info().Msg("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), a.config.Server.GetShutdownTimeout())
	defer stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http server shutdown")
	}

	if debugSrv != nil {
		_ = debugSrv.Shutdown(shutdownCtx)
	}

	return runErr
}

// startDebugServer 在独立端口挂载 /metrics 与 pprof.
func (a *App) startDebugServer(errCh chan<- error) *http.Server {
	if !a.config.Metrics.Enabled {
		return nil
	}

	debug := gin.New()
	debug.Use(gin.Recovery())

	_ = metrics.StartMetricsServer(a.config.Metrics, debug)

	srv := &http.Server{
		Addr:              a.config.Metrics.Endpoint,
		Handler:           debug,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("debug server: %w", err)
		}
	}()

	return srv
}

// close 依次停止调度器、追踪与存储.
func (a *App) close() error {
	var errs []error

	// 未启动的调度器无需停止
	if a.sched != nil && a.started {
		errs = append(errs, a.sched.Shutdown())
		a.started = false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs = append(errs, tracing.ShutdownTracer(ctx))

	if a.manager != nil {
		errs = append(errs, a.manager.Close())
		a.manager = nil
	}

	return errors.Join(errs...)
}
