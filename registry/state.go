package registry

import (
	"slices"

	"navcog-poi/model"
)

// facilityEntry 设施映射, 记录声明它的 POI
type facilityEntry struct {
	Facility model.Facility
	NodeID   string
	POIID    string
}

// state Registry 的全部数据, 只在持有写锁时修改
// 节点和设施都可能由多个 POI 共同派生, 按所有者计数;
// 当前值取自仍存在的最后一个所有者, 已删除 POI 的数据不会残留
type state struct {
	pois           map[string]model.POI
	order          []string // POI 插入顺序, 加载结果按数据源顺序返回
	nodes          map[string]model.Node
	owners         map[string][]string // 节点 ID -> 派生出它的 POI ID, 按派生顺序
	facilities     map[string]facilityEntry
	facilityOwners map[string][]string // 设施 ID -> 声明它的 POI ID, 按声明顺序
	derived        map[string]derivation
}

func newState() *state {
	return &state{
		pois:           make(map[string]model.POI),
		nodes:          make(map[string]model.Node),
		owners:         make(map[string][]string),
		facilities:     make(map[string]facilityEntry),
		facilityOwners: make(map[string][]string),
		derived:        make(map[string]derivation),
	}
}

// put 插入或替换 POI, 替换时保留原来的位置
func (s *state) put(poi model.POI) {
	_, existed := s.pois[poi.ID]
	if existed {
		s.detach(poi.ID)
	} else {
		s.order = append(s.order, poi.ID)
	}
	s.pois[poi.ID] = poi
	s.attach(poi)
}

// remove 删除 POI, 不存在时返回 false
func (s *state) remove(id string) bool {
	if _, ok := s.pois[id]; !ok {
		return false
	}
	s.detach(id)
	delete(s.pois, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return true
}

func (s *state) attach(poi model.POI) {
	d := derive(poi)
	s.derived[poi.ID] = d
	for _, n := range d.Nodes {
		s.owners[n.ID] = appendOwner(s.owners[n.ID], poi.ID)
		s.nodes[n.ID] = n
	}
	for _, f := range d.Facilities {
		s.facilityOwners[f.Facility.ID] = appendOwner(s.facilityOwners[f.Facility.ID], poi.ID)
		s.facilities[f.Facility.ID] = facilityEntry{Facility: f.Facility, NodeID: f.NodeID, POIID: poi.ID}
	}
}

// detach 去掉 POI 派生出的节点和设施
// 还有其他所有者时, 节点和设施改用最后一个剩余所有者派生的值
func (s *state) detach(id string) {
	d, ok := s.derived[id]
	if !ok {
		return
	}
	delete(s.derived, id)

	for _, n := range d.Nodes {
		owners := removeOwner(s.owners[n.ID], id)
		if len(owners) == 0 {
			delete(s.owners, n.ID)
			delete(s.nodes, n.ID)
			continue
		}
		s.owners[n.ID] = owners
		if node, ok := s.derivedNode(owners[len(owners)-1], n.ID); ok {
			s.nodes[n.ID] = node
		}
	}

	for _, f := range d.Facilities {
		fid := f.Facility.ID
		owners := removeOwner(s.facilityOwners[fid], id)
		if len(owners) == 0 {
			delete(s.facilityOwners, fid)
			delete(s.facilities, fid)
			continue
		}
		s.facilityOwners[fid] = owners
		last := owners[len(owners)-1]
		if link, ok := s.derivedFacility(last, fid); ok {
			s.facilities[fid] = facilityEntry{Facility: link.Facility, NodeID: link.NodeID, POIID: last}
		}
	}
}

func (s *state) derivedNode(poiID, nodeID string) (model.Node, bool) {
	for _, n := range s.derived[poiID].Nodes {
		if n.ID == nodeID {
			return n, true
		}
	}
	return model.Node{}, false
}

func (s *state) derivedFacility(poiID, facilityID string) (facilityLink, bool) {
	for _, f := range s.derived[poiID].Facilities {
		if f.Facility.ID == facilityID {
			return f, true
		}
	}
	return facilityLink{}, false
}

// appendOwner 记录所有者, 同一 POI 派生多次 (如两个入口共用节点) 只记一次
func appendOwner(owners []string, id string) []string {
	if slices.Contains(owners, id) {
		return owners
	}
	return append(owners, id)
}

func removeOwner(owners []string, id string) []string {
	if i := slices.Index(owners, id); i >= 0 {
		return slices.Delete(owners, i, i+1)
	}
	return owners
}

// list 按顺序返回所有 POI 的新切片
func (s *state) list() []model.POI {
	out := make([]model.POI, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.pois[id])
	}
	return out
}

func (s *state) apply(m mutation) {
	if m.add != nil {
		s.put(*m.add)
		return
	}
	s.remove(m.removeID)
}

// mutation 加载期间记录的增删操作, 加载结果生效后按顺序重放
type mutation struct {
	add      *model.POI
	removeID string
}
