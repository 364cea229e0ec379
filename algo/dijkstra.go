package algo

import (
	"container/heap"
	"fmt"
	"math"
	"slices"
	"strings"

	"navcog-poi/model"
)

// PathSegment 路径段信息
type PathSegment struct {
	FromID   string   `json:"from_id"`
	ToID     string   `json:"to_id"`
	Distance float64  `json:"distance"`
	Time     float64  `json:"time"`      // 预计时间 (秒)
	Modes    []string `json:"modes"`     // 可用的通行方式
	UsedMode string   `json:"used_mode"` // 实际使用的通行方式
	Desc     string   `json:"desc,omitempty"`
}

// PathResult 路径规划结果
type PathResult struct {
	Path          []string      // 节点 ID 序列
	Segments      []PathSegment // 路径段详情
	Distance      float64       // 总距离 (米)
	EstimatedTime float64       // 预计总时间 (秒)
	Found         bool          // 是否找到路径
}

// PriorityQueueItem 优先队列中的元素
type PriorityQueueItem struct {
	NodeID string
	Cost   float64 // 时间成本 (秒)
	Mode   string  // 到达该节点使用的通行方式
	Index  int     // 在堆中的索引
}

// PriorityQueue 实现 heap.Interface 接口的优先队列
type PriorityQueue []*PriorityQueueItem

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	return pq[i].Cost < pq[j].Cost
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].Index = i
	pq[j].Index = j
}

func (pq *PriorityQueue) Push(x any) {
	item := x.(*PriorityQueueItem)
	item.Index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // 避免内存泄漏
	item.Index = -1 // 标记为已移除
	*pq = old[0 : n-1]
	return item
}

// Dijkstra 寻找允许的通行方式下用时最短的路径
func (g *Graph) Dijkstra(startID, endID string, modeMask int) PathResult {
	if _, ok := g.Nodes.NodeByID(startID); !ok {
		return PathResult{Found: false}
	}
	if _, ok := g.Nodes.NodeByID(endID); !ok {
		return PathResult{Found: false}
	}

	timeCost := map[string]float64{startID: 0}
	prev := make(map[string]string)
	prevEdge := make(map[string]*model.Edge)
	visited := make(map[string]bool)

	cost := func(id string) float64 {
		if c, ok := timeCost[id]; ok {
			return c
		}
		return math.Inf(1)
	}

	pq := make(PriorityQueue, 0)
	heap.Init(&pq)
	heap.Push(&pq, &PriorityQueueItem{NodeID: startID})

	for pq.Len() > 0 {
		current := heap.Pop(&pq).(*PriorityQueueItem)
		currentID := current.NodeID

		if visited[currentID] {
			continue
		}
		visited[currentID] = true

		// 如果到达终点，提前退出
		if currentID == endID {
			break
		}

		for _, edge := range g.GetNeighbors(currentID, modeMask) {
			availableModes := model.FilterModesByMask(edge.Modes, modeMask)
			if len(availableModes) == 0 {
				continue
			}

			edgeTime, usedMode := model.EstimateSegmentTime(g.edgeDist(edge), availableModes, current.Mode)
			newCost := cost(currentID) + edgeTime
			if newCost < cost(edge.To) {
				timeCost[edge.To] = newCost
				prev[edge.To] = currentID
				prevEdge[edge.To] = edge
				heap.Push(&pq, &PriorityQueueItem{
					NodeID: edge.To,
					Cost:   newCost,
					Mode:   usedMode,
				})
			}
		}
	}

	if math.IsInf(cost(endID), 1) {
		return PathResult{Found: false}
	}

	// 回溯路径
	path := []string{}
	for at := endID; at != ""; at = prev[at] {
		path = append(path, at)
		if at == startID {
			break
		}
	}
	slices.Reverse(path)

	var totalTime, totalDist float64
	segments := []PathSegment{}
	currentMode := ""
	for i := 0; i < len(path)-1; i++ {
		edge := prevEdge[path[i+1]]
		if edge == nil {
			continue
		}
		dist := g.edgeDist(edge)
		actualModes := model.FilterModesByMask(edge.Modes, modeMask)
		segTime, usedMode := model.EstimateSegmentTime(dist, actualModes, currentMode)
		totalTime += segTime
		totalDist += dist

		segments = append(segments, PathSegment{
			FromID:   path[i],
			ToID:     path[i+1],
			Distance: dist,
			Time:     segTime,
			Modes:    actualModes,
			UsedMode: usedMode,
			Desc:     edge.Desc,
		})
		currentMode = usedMode
	}

	return PathResult{
		Path:          path,
		Segments:      segments,
		Distance:      totalDist,
		EstimatedTime: totalTime,
		Found:         true,
	}
}

// FormatPath 格式化路径结果为可读字符串 (用于语音播报前的调试输出)
func (g *Graph) FormatPath(result PathResult) string {
	if !result.Found {
		return "未找到路径"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "总距离: %.1f 米\n", result.Distance)
	fmt.Fprintf(&b, "预计时间: %.0f 秒 (%.1f 分钟)\n", result.EstimatedTime, result.EstimatedTime/60)
	b.WriteString("路径:\n")
	for i, nodeID := range result.Path {
		name := nodeID
		if node, ok := g.Nodes.NodeByID(nodeID); ok && node.Name != "" {
			name = node.Name
		}
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, name, nodeID)
	}
	return b.String()
}
