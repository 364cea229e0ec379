package handler

import (
	"net/http"

	"navcog-poi/algo"
	"navcog-poi/model"

	"github.com/gin-gonic/gin"
)

// PathRequest 路径规划请求
// 起终点可以是节点 ID、设施 ID 或坐标 (取最近节点), 优先级依次降低
type PathRequest struct {
	StartID       string           `json:"start_id"`
	EndID         string           `json:"end_id"`
	StartFacility string           `json:"start_facility"`
	EndFacility   string           `json:"end_facility"`
	Start         *LocationRequest `json:"start"`
	End           *LocationRequest `json:"end"`
	Modes         []string         `json:"modes"` // 为空时允许全部通行方式
	Avoid         []string         `json:"avoid"` // 需要避开的通行方式, 如 ["stairs", "escalator"]
}

// PathResponse 路径规划响应
type PathResponse struct {
	Found         bool               `json:"found"`
	Path          []model.Node       `json:"path,omitempty"`
	Segments      []algo.PathSegment `json:"segments,omitempty"`
	Distance      float64            `json:"distance,omitempty"`       // 总距离 (米)
	EstimatedTime float64            `json:"estimated_time,omitempty"` // 预计时间 (秒)
	Message       string             `json:"message,omitempty"`
}

// resolveEndpoint 把请求中的一端解析为节点 ID
func (a *API) resolveEndpoint(nodeID, facilityID string, loc *LocationRequest) string {
	if nodeID != "" {
		return nodeID
	}
	if facilityID != "" {
		if n, ok := a.Registry.NodeForFacility(model.Facility{ID: facilityID}); ok {
			return n.ID
		}
		return ""
	}
	if loc != nil && loc.Lat != nil && loc.Lng != nil {
		if n, ok := algo.FindNearestNode(a.Registry.Nodes(), loc.Location()); ok {
			return n.ID
		}
	}
	return ""
}

// FindPath 路径规划接口
func (a *API) FindPath(c *gin.Context) {
	var req PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	startID := a.resolveEndpoint(req.StartID, req.StartFacility, req.Start)
	endID := a.resolveEndpoint(req.EndID, req.EndFacility, req.End)
	if startID == "" || endID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "起点或终点未指定"})
		return
	}
	if _, ok := a.Registry.NodeByID(startID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "起点不存在: " + startID})
		return
	}
	if _, ok := a.Registry.NodeByID(endID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "终点不存在: " + endID})
		return
	}

	modeMask := model.ModeAll
	if len(req.Modes) > 0 {
		modeMask = model.ParseModes(req.Modes)
	}
	modeMask &^= model.ParseModes(req.Avoid)
	if modeMask == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未指定有效的通行方式"})
		return
	}

	result := a.graph.Load().Dijkstra(startID, endID, modeMask)
	if !result.Found {
		c.JSON(http.StatusOK, PathResponse{
			Found:   false,
			Message: "未找到符合条件的路径",
		})
		return
	}

	pathNodes := make([]model.Node, 0, len(result.Path))
	for _, id := range result.Path {
		if n, ok := a.Registry.NodeByID(id); ok {
			pathNodes = append(pathNodes, n)
		}
	}

	c.JSON(http.StatusOK, PathResponse{
		Found:         true,
		Path:          pathNodes,
		Segments:      result.Segments,
		Distance:      result.Distance,
		EstimatedTime: result.EstimatedTime,
		Message:       "路径规划成功",
	})
}
