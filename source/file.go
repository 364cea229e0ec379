package source

import (
	"context"
	"fmt"
	"os"

	"navcog-poi/model"
)

// File 从本地 GeoJSON 文件读取 POI 和通路, 每次获取都重新读文件
type File struct {
	Path   string
	Radius float64 // 米, <= 0 表示不按距离过滤
}

func (f *File) load(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return Decode(data)
}

// FetchPOIs 实现 registry.DataSource
func (f *File) FetchPOIs(ctx context.Context, center model.Location) ([]model.POI, error) {
	ds, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	return FilterWithin(ds.POIs, center, f.Radius), nil
}

// FetchEdges 实现 EdgeSource
func (f *File) FetchEdges(ctx context.Context) ([]model.Edge, error) {
	ds, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	return ds.Edges, nil
}
