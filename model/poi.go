package model

import (
	"fmt"
	"maps"
	"strconv"
)

// POI 属性中约定的键
const (
	KeyID         = "id"
	KeyAltID      = "_id"
	KeyNodeID     = "node_id"
	KeyFacilityID = "facility_id"
	KeyCategory   = "category"
	KeyName       = "name"
	KeyFloor      = "floor"
	KeyEntrances  = "entrances"
	KeyLat        = "lat"
	KeyLng        = "lng"
)

// POI 兴趣点: 外部数据源提供的一条记录 (任意属性 + 位置)
// 身份由属性中的要素 ID 决定, 而不是对象本身
type POI struct {
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
	Location   Location       `json:"location"`
}

// NewPOI 从属性和位置构造 POI, 属性会被复制
// 属性中没有 ID 时返回错误
func NewPOI(attributes map[string]any, loc Location) (POI, error) {
	id := IdentifierOf(attributes)
	if id == "" {
		return POI{}, fmt.Errorf("POI 缺少标识属性 %q", KeyID)
	}
	return POI{ID: id, Attributes: maps.Clone(attributes), Location: loc}, nil
}

// String 返回属性中的字符串值
func (p POI) String(key string) string {
	return AttrString(p.Attributes, key)
}

// Facility 语义上的导航目的地 (电梯、入口、房间...)
// 一个设施最多对应一个图节点
type Facility struct {
	ID       string `json:"id"`
	Category string `json:"category,omitempty"`
	Name     string `json:"name,omitempty"`
}

// IdentifierOf 读取属性中的要素 ID ("id", 其次 "_id")
func IdentifierOf(attributes map[string]any) string {
	if id := AttrString(attributes, KeyID); id != "" {
		return id
	}
	return AttrString(attributes, KeyAltID)
}

// AttrString 把属性值转换为字符串, 支持数字 ID
func AttrString(attributes map[string]any, key string) string {
	v, ok := attributes[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// AttrFloat 读取数值属性
func AttrFloat(attributes map[string]any, key string) (float64, bool) {
	switch t := attributes[key].(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
