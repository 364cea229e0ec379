package algo

import (
	"context"
	"fmt"

	"navcog-poi/model"
	"navcog-poi/source"
	"navcog-poi/utils"
)

// NodeResolver 按 ID 查找节点, 通常是 registry.Registry
type NodeResolver interface {
	NodeByID(id string) (model.Node, bool)
}

// Graph 图结构，用于路径规划
// 节点不复制, 每次都通过 Nodes 解析, 注册表中删除的节点自动不可达
type Graph struct {
	Nodes   NodeResolver
	AdjList map[string][]*model.Edge // 邻接表 (ID -> 边列表)
}

// NewGraph 创建一个只有节点解析器的空图
func NewGraph(nodes NodeResolver) *Graph {
	return &Graph{
		Nodes:   nodes,
		AdjList: make(map[string][]*model.Edge),
	}
}

// Load 从数据源读取通路构建图
func Load(ctx context.Context, nodes NodeResolver, src source.EdgeSource) (*Graph, error) {
	edges, err := src.FetchEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载通路失败: %w", err)
	}
	g := NewGraph(nodes)
	g.AddEdges(edges)
	return g, nil
}

// AddEdges 加入通路, 并计算 ModeMask
func (g *Graph) AddEdges(edges []model.Edge) {
	for i := range edges {
		edge := edges[i]
		edge.ModeMask = model.ParseModes(edge.Modes)
		g.AdjList[edge.From] = append(g.AdjList[edge.From], &edge)

		// 为步行/坡道/楼梯/电梯自动添加反向边, 扶梯是单向的
		if edge.ModeMask&model.BidirectionalMask == 0 {
			continue
		}
		reverseExists := false
		for _, existing := range g.AdjList[edge.To] {
			if existing.To == edge.From {
				reverseExists = true
				break
			}
		}
		if !reverseExists {
			g.AdjList[edge.To] = append(g.AdjList[edge.To], &model.Edge{
				From:     edge.To,
				To:       edge.From,
				Dist:     edge.Dist,
				Modes:    model.BidirectionalModes(edge.Modes),
				ModeMask: edge.ModeMask & model.BidirectionalMask,
				Desc:     edge.Desc,
			})
		}
	}
}

// EdgeCount 边的数量 (含自动添加的反向边)
func (g *Graph) EdgeCount() int {
	n := 0
	for _, edges := range g.AdjList {
		n += len(edges)
	}
	return n
}

// GetNeighbors 获取指定节点在允许的通行方式下的邻居边, 终点不在注册表中的边跳过
func (g *Graph) GetNeighbors(nodeID string, modeMask int) []*model.Edge {
	var validEdges []*model.Edge
	for _, edge := range g.AdjList[nodeID] {
		if edge.ModeMask&modeMask == 0 {
			continue
		}
		if _, ok := g.Nodes.NodeByID(edge.To); !ok {
			continue
		}
		validEdges = append(validEdges, edge)
	}
	return validEdges
}

// edgeDist 通路距离, 未填写时按两端节点坐标计算
func (g *Graph) edgeDist(edge *model.Edge) float64 {
	if edge.Dist > 0 {
		return edge.Dist
	}
	from, ok1 := g.Nodes.NodeByID(edge.From)
	to, ok2 := g.Nodes.NodeByID(edge.To)
	if !ok1 || !ok2 {
		return 0
	}
	return utils.HaversineDistance(from.Location, to.Location)
}

// FindNearestNode 找到离给定坐标最近的节点
// 双方都有楼层信息时只考虑同一楼层
func FindNearestNode(nodes []model.Node, loc model.Location) (model.Node, bool) {
	var nearest model.Node
	found := false
	minDist := -1.0

	for _, node := range nodes {
		if !loc.SameFloor(node.Location) {
			continue
		}
		dist := utils.HaversineDistance(loc, node.Location)
		if minDist < 0 || dist < minDist {
			minDist = dist
			nearest = node
			found = true
		}
	}
	return nearest, found
}
