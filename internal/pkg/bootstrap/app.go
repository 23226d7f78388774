// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"orderflow/internal/pkg/config"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/registry"
	"orderflow/internal/pkg/tracing"
)

// Runner 是需要随服务启停的后台组件（消费者、死信监听器等）。
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// AppInfo 描述一个服务的启动要素。
type AppInfo struct {
	ServiceName      string
	Port             int
	Config           *config.Config
	RegisterHandlers func(mux *http.ServeMux)
	Runners          []Runner
	OnShutdown       func(ctx context.Context)
}

// StartService 封装所有服务共同的启动和优雅关停流程。
// 阻塞直到收到 SIGINT/SIGTERM，然后按启动的反序清理。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logger.Ctx(ctx)

	tp, err := tracing.InitTracerProvider(info.ServiceName, info.Config.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 可选的 Nacos 服务注册
	var naming *registry.Client
	var ip string
	if addrs := info.Config.Nacos.ServerAddrs; addrs != "" {
		naming, err = registry.NewClient(addrs, info.Config.Nacos.Namespace, info.Config.Nacos.Group)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		ip, err = outboundIP()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to resolve outbound ip")
		}
		if err := naming.Register(info.ServiceName, ip, info.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to register service instance")
		}
		log.Info().Str("ip", ip).Int("port", info.Port).Msg("registered with nacos")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(mux)
	}

	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}

	g, runCtx := errgroup.WithContext(ctx)
	for _, r := range info.Runners {
		runner := r
		g.Go(func() error { return runner.Start(runCtx) })
	}
	g.Go(func() error {
		log.Info().Int("port", info.Port).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// 先从注册中心摘除，避免关停期间还接到新流量
	if naming != nil {
		if err := naming.Deregister(info.ServiceName, ip, info.Port); err != nil {
			log.Error().Err(err).Msg("failed to deregister from nacos")
		}
	}

	// 停止消费者：等在途消息处理完，分区所有权才会被释放
	cancel()
	for i := len(info.Runners) - 1; i >= 0; i-- {
		info.Runners[i].Stop(shutdownCtx)
	}

	if info.OnShutdown != nil {
		info.OnShutdown(shutdownCtx)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracer provider shutdown failed")
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("background component exited with error")
	}
	log.Info().Msg("service stopped")
}

// outboundIP 取本机对外的 IP，用于注册中心上报。
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
