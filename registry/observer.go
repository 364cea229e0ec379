package registry

import (
	"navcog-poi/model"

	"go.uber.org/zap"
)

// Observer 接收加载生命周期通知和补充信息请求
// Registry 不持有 Observer 的生命周期, 未设置时所有通知都是空操作
type Observer interface {
	// DidStartLoading 在一次加载的任何数据到达之前调用
	DidStartLoading()
	// DidPOIsLoaded 每次逻辑加载只调用一次, 携带完整的结果列表 (可能为空)
	DidPOIsLoaded(pois []model.POI)
	// RequestInfo 需要某个 POI 的补充信息时调用, 由 Observer 决定如何获取
	RequestInfo(infoType string, poi model.POI, at model.Location, options map[string]any)
}

// ChangeKind 增量变更类型
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
)

// Change 单个 POI 的增量变更 (AddPOI / RemovePOI), 与批量加载通知区分
type Change struct {
	Kind ChangeKind `json:"kind"`
	POI  model.POI  `json:"poi"`
}

// ChangeObserver 可选接口, Observer 实现它即可收到增量变更
type ChangeObserver interface {
	DidPOIChange(change Change)
}

// Observers 把通知依次转发给多个 Observer
type Observers []Observer

func (obs Observers) DidStartLoading() {
	for _, o := range obs {
		o.DidStartLoading()
	}
}

func (obs Observers) DidPOIsLoaded(pois []model.POI) {
	for _, o := range obs {
		o.DidPOIsLoaded(pois)
	}
}

func (obs Observers) RequestInfo(infoType string, poi model.POI, at model.Location, options map[string]any) {
	for _, o := range obs {
		o.RequestInfo(infoType, poi, at, options)
	}
}

func (obs Observers) DidPOIChange(change Change) {
	for _, o := range obs {
		if co, ok := o.(ChangeObserver); ok {
			co.DidPOIChange(change)
		}
	}
}

// LogObserver 把所有通知写入日志
type LogObserver struct {
	Logger *zap.Logger
}

func (o LogObserver) DidStartLoading() {
	o.Logger.Info("开始加载 POI")
}

func (o LogObserver) DidPOIsLoaded(pois []model.POI) {
	o.Logger.Info("POI 加载完成", zap.Int("count", len(pois)))
}

func (o LogObserver) RequestInfo(infoType string, poi model.POI, at model.Location, _ map[string]any) {
	o.Logger.Info("请求 POI 补充信息",
		zap.String("type", infoType),
		zap.String("poi", poi.ID),
		zap.Float64("lat", at.Lat),
		zap.Float64("lng", at.Lng),
	)
}

func (o LogObserver) DidPOIChange(change Change) {
	o.Logger.Debug("POI 变更", zap.String("kind", string(change.Kind)), zap.String("poi", change.POI.ID))
}
