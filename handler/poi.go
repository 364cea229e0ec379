package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"navcog-poi/algo"
	"navcog-poi/model"
	"navcog-poi/registry"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store 持久化 POI 增删, 配置了 postgres 数据源时由 db.Source 实现
type Store interface {
	SavePOI(ctx context.Context, p model.POI) error
	DeletePOI(ctx context.Context, id string) error
}

// API 注册表相关接口, Registry 由 main 构造后传入
// Store 非空时增删先写入存储, 成功后再修改注册表
type API struct {
	Registry *registry.Registry
	Store    Store
	Logger   *zap.Logger

	graph atomic.Pointer[algo.Graph]
}

// NewAPI 创建接口处理器
func NewAPI(reg *registry.Registry, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &API{Registry: reg, Logger: logger}
	a.graph.Store(algo.NewGraph(reg))
	return a
}

// SetGraph 替换路径规划使用的图
func (a *API) SetGraph(g *algo.Graph) {
	a.graph.Store(g)
}

// LocationRequest 请求中的位置
type LocationRequest struct {
	Lat   *float64 `json:"lat" binding:"required"`
	Lng   *float64 `json:"lng" binding:"required"`
	Floor *float64 `json:"floor"`
}

// Location 转换为 model.Location
func (l LocationRequest) Location() model.Location {
	loc := model.NewLocation(*l.Lat, *l.Lng)
	if l.Floor != nil {
		loc = loc.WithFloor(*l.Floor)
	}
	return loc
}

// AddPOIRequest 新增 POI 请求
type AddPOIRequest struct {
	LocationRequest
	Attributes map[string]any `json:"attributes"`
	Options    map[string]any `json:"options"`
}

// InfoRequestBody 补充信息请求
type InfoRequestBody struct {
	LocationRequest
	Type    string         `json:"type" binding:"required"`
	Options map[string]any `json:"options"`
}

// NodeResponse 节点信息
type NodeResponse struct {
	model.Node
	Facilities []model.Facility `json:"facilities"`
}

func (a *API) nodeResponse(n model.Node) NodeResponse {
	return NodeResponse{Node: n, Facilities: a.Registry.Facilities(n.ID)}
}

// ListPOIs 获取所有 POI
func (a *API) ListPOIs(c *gin.Context) {
	pois := a.Registry.POIs()
	c.JSON(http.StatusOK, gin.H{
		"count":   len(pois),
		"loading": a.Registry.Loading(),
		"pois":    pois,
	})
}

// GetPOI 根据 ID 获取 POI
func (a *API) GetPOI(c *gin.Context) {
	poi, ok := a.Registry.POI(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "POI 不存在"})
		return
	}
	c.JSON(http.StatusOK, poi)
}

// AddPOI 新增或替换 POI, 属性中没有 ID 时自动生成
func (a *API) AddPOI(c *gin.Context) {
	var req AddPOIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}
	loc := req.Location()
	if !loc.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "坐标无效"})
		return
	}

	attrs := req.Attributes
	if attrs == nil {
		attrs = make(map[string]any)
	}
	id := model.IdentifierOf(attrs)
	if id == "" {
		id = uuid.NewString()
		attrs[model.KeyID] = id
	}

	if a.Store != nil {
		poi, err := model.NewPOI(attrs, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := a.Store.SavePOI(c.Request.Context(), poi); err != nil {
			a.Logger.Error("保存 POI 失败", zap.String("poi", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "保存 POI 失败"})
			return
		}
	}

	a.Registry.AddPOI(attrs, loc, req.Options)
	a.Logger.Info("新增 POI", zap.String("poi", id), zap.String("user", c.GetString("username")))

	poi, _ := a.Registry.POI(id)
	c.JSON(http.StatusCreated, gin.H{
		"poi":     poi,
		"node_id": registry.NodeIDFor(poi),
	})
}

// RemovePOI 删除 POI, 不存在时同样返回成功
func (a *API) RemovePOI(c *gin.Context) {
	id := c.Param("id")
	if a.Store != nil {
		if err := a.Store.DeletePOI(c.Request.Context(), id); err != nil {
			a.Logger.Error("删除 POI 失败", zap.String("poi", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "删除 POI 失败"})
			return
		}
	}
	a.Registry.RemovePOIByID(id)
	c.Status(http.StatusNoContent)
}

// RequestInfo 请求某个 POI 的补充信息, 结果由订阅事件的客户端获取
func (a *API) RequestInfo(c *gin.Context) {
	var req InfoRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}
	if !a.Registry.RequestInfo(req.Type, c.Param("id"), req.Location(), req.Options) {
		c.JSON(http.StatusNotFound, gin.H{"error": "POI 不存在"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "已转发"})
}

// GetCenter 获取当前中心点
func (a *API) GetCenter(c *gin.Context) {
	loc, ok := a.Registry.Center()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "未设置中心点"})
		return
	}
	c.JSON(http.StatusOK, loc)
}

// SetCenter 设置中心点
func (a *API) SetCenter(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}
	loc := req.Location()
	if !loc.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "坐标无效"})
		return
	}
	a.Registry.SetCenter(loc)
	c.JSON(http.StatusOK, loc)
}

// Load 触发异步加载, 结果通过事件流推送
func (a *API) Load(c *gin.Context) {
	a.Registry.LoadPOIs()
	c.JSON(http.StatusAccepted, gin.H{"loading": a.Registry.Loading()})
}

// CancelLoad 取消进行中的加载
func (a *API) CancelLoad(c *gin.Context) {
	a.Registry.Cancel()
	c.JSON(http.StatusAccepted, gin.H{"loading": a.Registry.Loading()})
}

// GetNodes 获取所有节点信息
func (a *API) GetNodes(c *gin.Context) {
	nodes := a.Registry.Nodes()
	c.JSON(http.StatusOK, gin.H{
		"count": len(nodes),
		"nodes": nodes,
	})
}

// GetNodeByID 根据 ID 获取节点信息
func (a *API) GetNodeByID(c *gin.Context) {
	node, ok := a.Registry.NodeByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "节点不存在"})
		return
	}
	c.JSON(http.StatusOK, a.nodeResponse(node))
}

// SearchNodes 按名称或 ID 搜索节点 (不区分大小写)
func (a *API) SearchNodes(c *gin.Context) {
	query := strings.ToLower(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少搜索关键词"})
		return
	}

	results := make([]model.Node, 0)
	for _, node := range a.Registry.Nodes() {
		if strings.Contains(strings.ToLower(node.Name), query) || strings.Contains(strings.ToLower(node.ID), query) {
			results = append(results, node)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

// NearestNode 查找离给定坐标最近的节点 (?lat=&lng=[&floor=])
func (a *API) NearestNode(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少或无效的坐标"})
		return
	}
	loc := model.NewLocation(lat, lng)
	if f := c.Query("floor"); f != "" {
		floor, err := strconv.ParseFloat(f, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的楼层"})
			return
		}
		loc = loc.WithFloor(floor)
	}

	node, ok := algo.FindNearestNode(a.Registry.Nodes(), loc)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "附近没有节点"})
		return
	}
	c.JSON(http.StatusOK, a.nodeResponse(node))
}

// FacilityNode 获取服务某个设施的节点
func (a *API) FacilityNode(c *gin.Context) {
	node, ok := a.Registry.NodeForFacility(model.Facility{ID: c.Param("id")})
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "设施没有对应的节点"})
		return
	}
	c.JSON(http.StatusOK, a.nodeResponse(node))
}
