package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"navcog-poi/algo"
	"navcog-poi/config"
	"navcog-poi/handler"
	"navcog-poi/model"
	"navcog-poi/registry"
	"navcog-poi/source"
	"navcog-poi/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "navcog-poi",
		Short:         "室内导航 POI 注册表服务",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "配置文件路径 (YAML)")
	root.AddCommand(newServeCmd(&cfgPath), newLoadCmd(&cfgPath))
	return root
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfgPath)
		},
	}
}

func newLoadCmd(cfgPath *string) *cobra.Command {
	var (
		lat, lng, floor float64
		timeout         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "以给定中心点加载一次 POI, 并以 GeoJSON 输出",
		RunE: func(cmd *cobra.Command, _ []string) error {
			center := model.NewLocation(lat, lng)
			if cmd.Flags().Changed("floor") {
				center = center.WithFloor(floor)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return loadOnce(ctx, *cfgPath, center, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "中心点纬度")
	cmd.Flags().Float64Var(&lng, "lng", 0, "中心点经度")
	cmd.Flags().Float64Var(&floor, "floor", 0, "中心点楼层")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "加载超时")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}

func setup(ctx context.Context, cfgPath string) (config.Config, *zap.Logger, registry.DataSource, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return cfg, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, nil, err
	}
	logger, err := utils.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return cfg, nil, nil, err
	}
	src, err := buildSource(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return cfg, nil, nil, err
	}
	return cfg, logger, src, nil
}

func serve(ctx context.Context, cfgPath string) error {
	cfg, logger, src, err := setup(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := handler.NewHub(64)
	reg := registry.New(src,
		registry.WithLogger(logger),
		registry.WithMetrics(registry.NewMetrics(promReg)),
		registry.WithObserver(registry.Observers{registry.LogObserver{Logger: logger}, hub}),
	)
	defer reg.Close()

	api := handler.NewAPI(reg, logger)
	if store := findStore(src); store != nil {
		api.Store = store
		logger.Info("POI 增删将写入数据库")
	}
	if es, ok := src.(source.EdgeSource); ok {
		graph, err := algo.Load(ctx, reg, es)
		if err != nil {
			logger.Warn("通路加载失败, 路径规划不可用", zap.Error(err))
		} else {
			api.SetGraph(graph)
			logger.Info("通路加载成功", zap.Int("edges", graph.EdgeCount()))
		}
	}

	auth := handler.NewAuth(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if pw := os.Getenv("POI_ADMIN_PASSWORD"); pw != "" {
		if _, err := auth.AddUser("admin", pw, ""); err != nil {
			return fmt.Errorf("创建管理员失败: %w", err)
		}
	}

	if cfg.Center != nil {
		reg.SetCenter(cfg.Center.Location())
		reg.LoadPOIs()
	}

	router := handler.NewRouter(api, auth, hub, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务器启动", zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("服务器启动失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("正在关闭服务器")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadResult 等待一次加载完成的观察者
type loadResult chan []model.POI

func (l loadResult) DidStartLoading() {}

func (l loadResult) DidPOIsLoaded(pois []model.POI) {
	select {
	case l <- pois:
	default:
	}
}

func (l loadResult) RequestInfo(string, model.POI, model.Location, map[string]any) {}

func loadOnce(ctx context.Context, cfgPath string, center model.Location, out io.Writer) error {
	_, logger, src, err := setup(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	done := make(loadResult, 1)
	reg := registry.New(src,
		registry.WithLogger(logger),
		registry.WithObserver(registry.Observers{registry.LogObserver{Logger: logger}, done}),
	)
	defer reg.Close()

	reg.SetCenter(center)
	reg.LoadPOIs()

	select {
	case pois := <-done:
		data, err := source.Encode(pois)
		if err != nil {
			return err
		}
		_, err = out.Write(append(data, '\n'))
		return err
	case <-ctx.Done():
		return fmt.Errorf("加载超时: %w", ctx.Err())
	}
}
