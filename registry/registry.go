// Package registry 维护已知 POI 及其派生的导航图节点
//
// 查询 (NodeByID / NodeForFacility) 和增删 (AddPOI / RemovePOI) 都是同步的,
// LoadPOIs 在后台获取数据, 通过 Observer 通知开始和完成.
// 加载期间再次调用 LoadPOIs 会合并到当前加载; 加载期间中心点变化会取消当前
// 请求并以新中心点重新获取, 仍属于同一次逻辑加载. 获取失败时保留原有数据.
// 加载期间的增删会在新结果生效后按顺序重放, 不会丢失.
//
// Observer 回调都在锁外执行, 回调中可以再次调用 Registry (例如在
// DidPOIsLoaded 中发起下一次加载). 因此同一次加载的开始一定先于完成,
// 但相邻两次加载的通知可能交错: 上一次的 DidPOIsLoaded 送达之前,
// 另一个 goroutine 发起的新加载可能已经发出 DidStartLoading.
package registry

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"navcog-poi/model"

	"go.uber.org/zap"
)

// OptionRequestInfo AddPOI 的选项: 插入后向 Observer 请求该类型的补充信息
const OptionRequestInfo = "request_info"

// ErrNoSource 未配置数据源
var ErrNoSource = errors.New("registry: no data source configured")

// DataSource 按中心点提供原始 POI 记录, 范围由数据源自己决定
type DataSource interface {
	FetchPOIs(ctx context.Context, center model.Location) ([]model.POI, error)
}

// DataSourceFunc 函数形式的 DataSource
type DataSourceFunc func(ctx context.Context, center model.Location) ([]model.POI, error)

func (f DataSourceFunc) FetchPOIs(ctx context.Context, center model.Location) ([]model.POI, error) {
	return f(ctx, center)
}

// Option Registry 构造选项
type Option func(*Registry)

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithObserver 设置初始 Observer
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithMetrics 设置 Prometheus 指标
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// loadCycle 一次逻辑加载, 可能包含多次获取 (中心点变化时重新获取)
type loadCycle struct {
	attempt   int
	cancel    context.CancelFunc
	journal   []mutation
	started   chan struct{} // DidStartLoading 返回后关闭
	startedAt time.Time
}

// Registry POI 注册表, 进程内构造一次后以引用传递给使用方
type Registry struct {
	mu        sync.RWMutex
	state     *state
	center    model.Location
	hasCenter bool
	observer  Observer
	source    DataSource
	load      *loadCycle

	logger  *zap.Logger
	metrics *Metrics
	wg      sync.WaitGroup
}

// New 创建一个空的 Registry, source 可以为 nil (加载会按失败处理)
func New(source DataSource, opts ...Option) *Registry {
	r := &Registry{
		state:  newState(),
		source: source,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetObserver 设置或清除 (nil) Observer
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	r.observer = o
	r.mu.Unlock()
}

// SetCenter 记录后续加载的中心点, 相同的值重复设置没有任何效果
// 加载进行中且中心点变化时, 取消当前请求并以新中心点重新获取
func (r *Registry) SetCenter(loc model.Location) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasCenter && r.center == loc {
		return
	}
	r.center = loc
	r.hasCenter = true

	if l := r.load; l != nil {
		r.logger.Info("中心点变化, 重新获取 POI",
			zap.Float64("lat", loc.Lat), zap.Float64("lng", loc.Lng))
		if l.cancel != nil {
			l.cancel()
		}
		r.startFetchLocked(l, loc)
	}
}

// Center 返回当前中心点
func (r *Registry) Center() (model.Location, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.center, r.hasCenter
}

// Loading 是否有进行中的加载
func (r *Registry) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load != nil
}

// LoadPOIs 异步加载中心点附近的 POI
func (r *Registry) LoadPOIs() {
	r.mu.Lock()
	if r.load != nil {
		r.mu.Unlock()
		r.logger.Debug("已有加载进行中, 合并请求")
		return
	}
	l := &loadCycle{started: make(chan struct{}), startedAt: time.Now()}
	r.load = l
	hasCenter, center := r.hasCenter, r.center
	if hasCenter {
		r.startFetchLocked(l, center)
	}
	r.mu.Unlock()

	r.notifyStart()
	close(l.started)

	if hasCenter {
		return
	}

	// 没有中心点: 不获取数据, 以当前数据结束本次加载
	// 如果期间设置了中心点, 已启动的获取负责结束
	r.mu.Lock()
	if r.load != l || l.attempt > 0 {
		r.mu.Unlock()
		return
	}
	r.load = nil
	pois := r.state.list()
	r.mu.Unlock()

	r.logger.Warn("未设置中心点, 跳过 POI 获取")
	r.metrics.observeLoad(outcomeNoCenter, l.startedAt)
	r.notifyLoaded(pois)
}

// startFetchLocked 为逻辑加载启动一次新的获取, 调用方持有写锁
func (r *Registry) startFetchLocked(l *loadCycle, center model.Location) {
	l.attempt++
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	r.wg.Add(1)
	go r.fetch(ctx, l, l.attempt, center)
}

func (r *Registry) fetch(ctx context.Context, l *loadCycle, attempt int, center model.Location) {
	defer r.wg.Done()

	var (
		pois []model.POI
		err  error
	)
	if r.source == nil {
		err = ErrNoSource
	} else {
		pois, err = r.source.FetchPOIs(ctx, center)
	}

	<-l.started

	r.mu.Lock()
	if r.load != l || l.attempt != attempt {
		// 已被取消或被新的获取替代
		r.mu.Unlock()
		return
	}
	r.load = nil
	l.cancel()

	outcome := outcomeOK
	if err != nil {
		outcome = outcomeFailed
		r.logger.Warn("获取 POI 失败, 保留原有数据", zap.Error(err))
	} else {
		next, skipped := buildState(pois)
		for _, m := range l.journal {
			next.apply(m)
		}
		r.state = next
		if skipped > 0 {
			r.logger.Warn("跳过无效的 POI 记录", zap.Int("skipped", skipped))
		}
		r.logger.Info("POI 数据已更新",
			zap.Int("pois", len(next.pois)),
			zap.Int("nodes", len(next.nodes)),
			zap.Int("replayed", len(l.journal)))
	}
	result := r.state.list()
	r.metrics.setSize(len(r.state.pois), len(r.state.nodes))
	r.mu.Unlock()

	r.metrics.observeLoad(outcome, l.startedAt)
	r.notifyLoaded(result)
}

// buildState 用获取到的记录构造新数据, 返回跳过的无效记录数
func buildState(pois []model.POI) (*state, int) {
	s := newState()
	skipped := 0
	for _, p := range pois {
		if p.ID == "" {
			p.ID = model.IdentifierOf(p.Attributes)
		}
		if p.ID == "" || !p.Location.Valid() {
			skipped++
			continue
		}
		s.put(p)
	}
	return s, skipped
}

// Cancel 放弃进行中的加载, 该次加载以当前数据结束
func (r *Registry) Cancel() {
	r.mu.Lock()
	l := r.load
	if l == nil {
		r.mu.Unlock()
		return
	}
	r.load = nil
	if l.cancel != nil {
		l.cancel()
	}
	pois := r.state.list()
	r.mu.Unlock()

	r.logger.Info("加载已取消")
	finish := func() {
		r.metrics.observeLoad(outcomeCanceled, l.startedAt)
		r.notifyLoaded(pois)
	}
	select {
	case <-l.started:
		finish()
	default:
		// 仍在 DidStartLoading 中, 完成通知必须排在开始之后
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			<-l.started
			finish()
		}()
	}
}

// Close 取消进行中的加载并等待后台任务退出
func (r *Registry) Close() {
	r.Cancel()
	r.wg.Wait()
}

// AddPOI 同步插入 (ID 相同则替换) 一个 POI 及其派生节点
// 不会触发 DidPOIsLoaded, 只发送增量变更
func (r *Registry) AddPOI(attributes map[string]any, loc model.Location, options map[string]any) {
	poi, err := model.NewPOI(attributes, loc)
	if err != nil {
		r.logger.Warn("忽略无效的 POI", zap.Error(err))
		return
	}
	if !loc.Valid() {
		r.logger.Warn("忽略坐标无效的 POI", zap.String("poi", poi.ID))
		return
	}

	r.mu.Lock()
	r.state.put(poi)
	if r.load != nil {
		p := poi
		r.load.journal = append(r.load.journal, mutation{add: &p})
	}
	r.metrics.setSize(len(r.state.pois), len(r.state.nodes))
	r.mu.Unlock()

	r.metrics.mutation(ChangeAdded)
	r.notifyChange(Change{Kind: ChangeAdded, POI: poi})

	if infoType := model.AttrString(options, OptionRequestInfo); infoType != "" {
		r.notifyRequestInfo(infoType, poi, loc, options)
	}
}

// RemovePOI 同步删除 POI 及其派生节点和设施映射, 不存在时什么也不做
func (r *Registry) RemovePOI(poi model.POI) {
	id := poi.ID
	if id == "" {
		id = model.IdentifierOf(poi.Attributes)
	}
	r.RemovePOIByID(id)
}

// RemovePOIByID 按 ID 删除 POI
func (r *Registry) RemovePOIByID(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	removed, ok := r.state.pois[id]
	r.state.remove(id)
	if r.load != nil {
		// 即使当前不存在也要记录, 新的加载结果里可能包含它
		r.load.journal = append(r.load.journal, mutation{removeID: id})
	}
	r.metrics.setSize(len(r.state.pois), len(r.state.nodes))
	r.mu.Unlock()

	if ok {
		r.metrics.mutation(ChangeRemoved)
		r.notifyChange(Change{Kind: ChangeRemoved, POI: removed})
	}
}

// NodeForFacility 返回服务该设施的节点
func (r *Registry) NodeForFacility(facility model.Facility) (model.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.state.facilities[facility.ID]
	if !ok {
		return model.Node{}, false
	}
	n, ok := r.state.nodes[e.NodeID]
	return n, ok
}

// NodeByID 按 ID 查找节点
func (r *Registry) NodeByID(id string) (model.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.state.nodes[id]
	return n, ok
}

// POI 按 ID 查找 POI
func (r *Registry) POI(id string) (model.POI, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.state.pois[id]
	return p, ok
}

// POIs 返回所有 POI 的快照
func (r *Registry) POIs() []model.POI {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.list()
}

// Nodes 返回所有节点的快照, 按 ID 排序
func (r *Registry) Nodes() []model.Node {
	r.mu.RLock()
	out := make([]model.Node, 0, len(r.state.nodes))
	for _, n := range r.state.nodes {
		out = append(out, n)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.Node) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Facilities 返回某个节点服务的所有设施
func (r *Registry) Facilities(nodeID string) []model.Facility {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Facility
	for _, e := range r.state.facilities {
		if e.NodeID == nodeID {
			out = append(out, e.Facility)
		}
	}
	slices.SortFunc(out, func(a, b model.Facility) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// RequestInfo 把某个 POI 的补充信息请求转发给 Observer
// POI 不存在或没有 Observer 时返回 false
func (r *Registry) RequestInfo(infoType, poiID string, at model.Location, options map[string]any) bool {
	r.mu.RLock()
	poi, ok := r.state.pois[poiID]
	o := r.observer
	r.mu.RUnlock()
	if !ok || o == nil {
		return false
	}
	o.RequestInfo(infoType, poi, at, options)
	return true
}

func (r *Registry) currentObserver() Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.observer
}

func (r *Registry) notifyStart() {
	if o := r.currentObserver(); o != nil {
		o.DidStartLoading()
	}
}

func (r *Registry) notifyLoaded(pois []model.POI) {
	if o := r.currentObserver(); o != nil {
		o.DidPOIsLoaded(pois)
	}
}

func (r *Registry) notifyChange(c Change) {
	if co, ok := r.currentObserver().(ChangeObserver); ok {
		co.DidPOIChange(c)
	}
}

func (r *Registry) notifyRequestInfo(infoType string, poi model.POI, at model.Location, options map[string]any) {
	if o := r.currentObserver(); o != nil {
		o.RequestInfo(infoType, poi, at, options)
	}
}
