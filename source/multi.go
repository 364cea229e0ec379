package source

import (
	"context"
	"fmt"

	"navcog-poi/model"
	"navcog-poi/registry"

	"golang.org/x/sync/errgroup"
)

// Multi 并发获取多个数据源, 按顺序拼接结果
// 任一数据源失败则整次获取失败, 不返回部分结果
type Multi []registry.DataSource

// FetchPOIs 实现 registry.DataSource
func (m Multi) FetchPOIs(ctx context.Context, center model.Location) ([]model.POI, error) {
	results := make([][]model.POI, len(m))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range m {
		i, src := i, src
		g.Go(func() error {
			pois, err := src.FetchPOIs(gctx, center)
			if err != nil {
				return fmt.Errorf("数据源 #%d: %w", i, err)
			}
			results[i] = pois
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []model.POI
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// FetchEdges 合并所有实现了 EdgeSource 的子数据源
func (m Multi) FetchEdges(ctx context.Context) ([]model.Edge, error) {
	var out []model.Edge
	for _, src := range m {
		es, ok := src.(EdgeSource)
		if !ok {
			continue
		}
		edges, err := es.FetchEdges(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, edges...)
	}
	return out, nil
}
