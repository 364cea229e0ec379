package model

import "math"

// Location 代表一个经纬度点 (WGS84), 可选楼层
// 构造后不可修改, 所有 With* 方法都返回新值
type Location struct {
	Lat      float64 `json:"lat"`             // 纬度
	Lng      float64 `json:"lng"`             // 经度
	Floor    float64 `json:"floor,omitempty"` // 楼层 (仅当 HasFloor 为 true 时有效)
	HasFloor bool    `json:"has_floor,omitempty"`
}

// NewLocation 创建一个不带楼层的位置
func NewLocation(lat, lng float64) Location {
	return Location{Lat: lat, Lng: lng}
}

// WithFloor 返回带楼层的副本
func (l Location) WithFloor(floor float64) Location {
	l.Floor = floor
	l.HasFloor = true
	return l
}

// Valid 判断坐标是否在合法范围内
func (l Location) Valid() bool {
	if math.IsNaN(l.Lat) || math.IsNaN(l.Lng) {
		return false
	}
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// SameFloor 两个位置都有楼层信息时比较楼层, 否则视为同层
func (l Location) SameFloor(o Location) bool {
	if !l.HasFloor || !o.HasFloor {
		return true
	}
	return l.Floor == o.Floor
}

// Node 对应导航图上的一个点 (入口、电梯、房间等)
// 由 POI 派生, 通过稳定的字符串 ID 寻址
type Node struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"` // 如: "elevator", "entrance", "room"
	Location Location `json:"location"`
}
