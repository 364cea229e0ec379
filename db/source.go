package db

import (
	"context"
	"fmt"

	"navcog-poi/model"
	"navcog-poi/utils"

	"gorm.io/gorm"
)

// Source 以 poi_records / edge_records 表为后端的数据源
type Source struct {
	DB     *gorm.DB
	Radius float64 // 米, <= 0 时返回全部记录
}

// FetchPOIs 先用外接矩形走索引, 再按实际距离过滤
func (s *Source) FetchPOIs(ctx context.Context, center model.Location) ([]model.POI, error) {
	q := s.DB.WithContext(ctx).Model(&POIRecord{})
	if s.Radius > 0 {
		b := utils.BoundAround(center, s.Radius)
		q = q.Where("lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?",
			b.Min.Lat(), b.Max.Lat(), b.Min.Lon(), b.Max.Lon())
	}

	var records []POIRecord
	if err := q.Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询 POI 失败: %w", err)
	}

	pois := make([]model.POI, 0, len(records))
	for _, r := range records {
		p := r.ToPOI()
		if utils.Within(center, p.Location, s.Radius) {
			pois = append(pois, p)
		}
	}
	return pois, nil
}

// FetchEdges 返回所有通路
func (s *Source) FetchEdges(ctx context.Context) ([]model.Edge, error) {
	var records []EdgeRecord
	if err := s.DB.WithContext(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询通路失败: %w", err)
	}
	edges := make([]model.Edge, 0, len(records))
	for _, r := range records {
		edges = append(edges, r.ToEdge())
	}
	return edges, nil
}

// SavePOI 写入 (或覆盖) 一个 POI
func (s *Source) SavePOI(ctx context.Context, p model.POI) error {
	rec := RecordFromPOI(p)
	if err := s.DB.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("保存 POI 失败: %w", err)
	}
	return nil
}

// DeletePOI 删除一个 POI, 不存在时不报错
func (s *Source) DeletePOI(ctx context.Context, id string) error {
	if err := s.DB.WithContext(ctx).Delete(&POIRecord{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("删除 POI 失败: %w", err)
	}
	return nil
}
