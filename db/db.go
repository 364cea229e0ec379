// Package db PostgreSQL 持久化: 连接、迁移、初始数据导入, 以及基于 gorm 的 POI 数据源
package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"navcog-poi/config"
	"navcog-poi/model"
	"navcog-poi/source"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// POIRecord poi_records 表
type POIRecord struct {
	ID         string         `gorm:"primaryKey"`
	Lat        float64        `gorm:"index"`
	Lng        float64        `gorm:"index"`
	Floor      *float64
	Attributes map[string]any `gorm:"serializer:json"`
	UpdatedAt  time.Time
}

// EdgeRecord edge_records 表
type EdgeRecord struct {
	ID    uint           `gorm:"primaryKey"`
	From  string         `gorm:"index"`
	To    string         `gorm:"index"`
	Dist  float64
	Modes pq.StringArray `gorm:"type:text[]"`
	Desc  string
}

// ToPOI 转换为 model.POI
func (r POIRecord) ToPOI() model.POI {
	loc := model.NewLocation(r.Lat, r.Lng)
	if r.Floor != nil {
		loc = loc.WithFloor(*r.Floor)
	}
	attrs := r.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	if model.IdentifierOf(attrs) == "" {
		attrs[model.KeyID] = r.ID
	}
	return model.POI{ID: r.ID, Attributes: attrs, Location: loc}
}

// RecordFromPOI 转换为数据库记录
func RecordFromPOI(p model.POI) POIRecord {
	rec := POIRecord{ID: p.ID, Lat: p.Location.Lat, Lng: p.Location.Lng, Attributes: p.Attributes}
	if p.Location.HasFloor {
		f := p.Location.Floor
		rec.Floor = &f
	}
	return rec
}

// ToEdge 转换为 model.Edge
func (r EdgeRecord) ToEdge() model.Edge {
	modes := []string(r.Modes)
	return model.Edge{
		From:     r.From,
		To:       r.To,
		Dist:     r.Dist,
		Modes:    modes,
		Desc:     r.Desc,
		ModeMask: model.ParseModes(modes),
	}
}

// Open 连接数据库 (带重试, Docker 启动时数据库可能还没准备好), 自动迁移并在为空时导入初始数据
func Open(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	retries := max(cfg.MaxRetries, 1)
	for i := 0; i < retries; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
		if err == nil {
			break
		}
		logger.Warn("等待数据库就绪", zap.Int("attempt", i+1), zap.Int("max", retries), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryInterval):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("无法连接数据库: %w", err)
	}

	// 自动迁移模式 (自动创建表结构)
	if err := db.WithContext(ctx).AutoMigrate(&model.User{}, &POIRecord{}, &EdgeRecord{}); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	if cfg.SeedFile != "" {
		var count int64
		if err := db.WithContext(ctx).Model(&POIRecord{}).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("统计 POI 失败: %w", err)
		}
		if count == 0 {
			logger.Info("检测到数据库为空, 正在导入初始数据", zap.String("file", cfg.SeedFile))
			if err := Import(ctx, db, cfg.SeedFile); err != nil {
				logger.Warn("导入初始数据失败", zap.Error(err))
			}
		}
	}

	logger.Info("数据库连接并初始化成功")
	return db, nil
}

// Import 从 GeoJSON 文件导入 POI 和通路
func Import(ctx context.Context, db *gorm.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取文件失败: %w", err)
	}
	ds, err := source.Decode(data)
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(ds.POIs) > 0 {
			records := make([]POIRecord, 0, len(ds.POIs))
			for _, p := range ds.POIs {
				records = append(records, RecordFromPOI(p))
			}
			if err := tx.CreateInBatches(records, 100).Error; err != nil {
				return fmt.Errorf("插入 POI 失败: %w", err)
			}
		}
		if len(ds.Edges) > 0 {
			edges := make([]EdgeRecord, 0, len(ds.Edges))
			for _, e := range ds.Edges {
				edges = append(edges, EdgeRecord{
					From:  e.From,
					To:    e.To,
					Dist:  e.Dist,
					Modes: pq.StringArray(e.Modes),
					Desc:  e.Desc,
				})
			}
			if err := tx.CreateInBatches(edges, 100).Error; err != nil {
				return fmt.Errorf("插入通路失败: %w", err)
			}
		}
		return nil
	})
}
