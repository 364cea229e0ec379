package main

import (
	"context"
	"fmt"
	"os"

	"navcog-poi/config"
	"navcog-poi/db"
	"navcog-poi/registry"
	"navcog-poi/source"

	"go.uber.org/zap"
)

// buildSource 按配置创建数据源, 多个数据源时并发获取后合并
func buildSource(ctx context.Context, cfg config.Config, logger *zap.Logger) (registry.DataSource, error) {
	var sources source.Multi
	for i, sc := range cfg.Sources {
		src, err := newSource(ctx, cfg, sc, logger)
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		logger.Info("数据源已配置", zap.Int("index", i), zap.String("kind", sc.Kind))
		sources = append(sources, src)
	}
	if len(sources) == 1 {
		return sources[0], nil
	}
	return sources, nil
}

func newSource(ctx context.Context, cfg config.Config, sc config.SourceConfig, logger *zap.Logger) (registry.DataSource, error) {
	switch sc.Kind {
	case config.SourceFile:
		return &source.File{Path: sc.Path, Radius: sc.Radius}, nil
	case config.SourceHTTP:
		return source.NewHTTP(sc.URL, sc.Radius, sc.Timeout), nil
	case config.SourceS3:
		return source.NewS3(ctx, source.S3Config{
			Region:          sc.S3.Region,
			Bucket:          sc.S3.Bucket,
			Key:             sc.S3.Key,
			Endpoint:        sc.S3.Endpoint,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			PathStyle:       sc.S3.PathStyle,
		}, sc.Radius)
	case config.SourcePostgres:
		gdb, err := db.Open(ctx, cfg.DB, logger)
		if err != nil {
			return nil, err
		}
		return &db.Source{DB: gdb, Radius: sc.Radius}, nil
	default:
		return nil, fmt.Errorf("未知的数据源类型 %q", sc.Kind)
	}
}

// findStore 返回配置中的 postgres 数据源, 用于持久化 API 的增删
func findStore(src registry.DataSource) *db.Source {
	switch s := src.(type) {
	case *db.Source:
		return s
	case source.Multi:
		for _, child := range s {
			if ds, ok := child.(*db.Source); ok {
				return ds
			}
		}
	}
	return nil
}
