package registry

import (
	"fmt"

	"navcog-poi/model"
)

// facilityLink 设施到节点的映射
type facilityLink struct {
	Facility model.Facility
	NodeID   string
}

// derivation 一个 POI 派生出的节点和设施
type derivation struct {
	Nodes      []model.Node
	Facilities []facilityLink
}

// NodeIDFor 返回 POI 主节点的 ID ("node_id" 属性, 默认为 POI ID)
func NodeIDFor(poi model.POI) string {
	if id := poi.String(model.KeyNodeID); id != "" {
		return id
	}
	return poi.ID
}

// FacilityFor 返回 POI 本身对应的设施
func FacilityFor(poi model.POI) model.Facility {
	id := poi.String(model.KeyFacilityID)
	if id == "" {
		id = poi.ID
	}
	return model.Facility{
		ID:       id,
		Category: poi.String(model.KeyCategory),
		Name:     poi.String(model.KeyName),
	}
}

// EntranceFacilityID 第 n 个入口 (从 1 开始) 的设施 ID
func EntranceFacilityID(facilityID string, n int) string {
	return fmt.Sprintf("%s#entrance%d", facilityID, n)
}

// derive 根据 POI 属性计算节点和设施
func derive(poi model.POI) derivation {
	facility := FacilityFor(poi)
	loc := poi.Location
	if !loc.HasFloor {
		if f, ok := model.AttrFloat(poi.Attributes, model.KeyFloor); ok {
			loc = loc.WithFloor(f)
		}
	}

	primary := model.Node{
		ID:       NodeIDFor(poi),
		Name:     facility.Name,
		Type:     facility.Category,
		Location: loc,
	}
	d := derivation{
		Nodes:      []model.Node{primary},
		Facilities: []facilityLink{{Facility: facility, NodeID: primary.ID}},
	}

	seen := map[string]bool{primary.ID: true}
	for i, e := range entrances(poi.Attributes) {
		n := i + 1
		nodeID := model.AttrString(e, model.KeyNodeID)
		if nodeID == "" {
			nodeID = fmt.Sprintf("%s#entrance%d", primary.ID, n)
		}
		eloc := loc
		lat, okLat := model.AttrFloat(e, model.KeyLat)
		lng, okLng := model.AttrFloat(e, model.KeyLng)
		if okLat && okLng {
			eloc = model.NewLocation(lat, lng)
			if loc.HasFloor {
				eloc = eloc.WithFloor(loc.Floor)
			}
		}
		if f, ok := model.AttrFloat(e, model.KeyFloor); ok {
			eloc = eloc.WithFloor(f)
		}

		if !seen[nodeID] {
			seen[nodeID] = true
			d.Nodes = append(d.Nodes, model.Node{
				ID:       nodeID,
				Name:     facility.Name,
				Type:     "entrance",
				Location: eloc,
			})
		}
		d.Facilities = append(d.Facilities, facilityLink{
			Facility: model.Facility{
				ID:       EntranceFacilityID(facility.ID, n),
				Category: "entrance",
				Name:     facility.Name,
			},
			NodeID: nodeID,
		})
	}
	return d
}

// entrances 兼容 JSON 解码后的 []any 和代码中直接构造的 []map[string]any
func entrances(attributes map[string]any) []map[string]any {
	switch t := attributes[model.KeyEntrances].(type) {
	case []map[string]any:
		return t
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, v := range t {
			if m, ok := v.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}
