// Package source 提供 registry.DataSource 的各种实现 (文件、HTTP、S3、组合)
// 数据格式统一为 GeoJSON FeatureCollection:
// Point / Polygon 要素是 POI, 带 from/to 属性的 LineString 要素是通路 (Edge)
package source

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"navcog-poi/model"
	"navcog-poi/utils"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// ErrBadFeature 要素无法转换为 POI 或 Edge
var ErrBadFeature = errors.New("source: unusable feature")

// EdgeSource 提供导航图的通路
type EdgeSource interface {
	FetchEdges(ctx context.Context) ([]model.Edge, error)
}

// Dataset 一个 FeatureCollection 解码后的结果
type Dataset struct {
	POIs    []model.POI
	Edges   []model.Edge
	Skipped int // 无法识别的要素数量
}

// Decode 解析 GeoJSON FeatureCollection
func Decode(data []byte) (*Dataset, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("解析 GeoJSON 失败: %w", err)
	}

	ds := &Dataset{}
	for _, f := range fc.Features {
		if ls, ok := f.Geometry.(orb.LineString); ok {
			e, err := edgeFromFeature(f, ls)
			if err != nil {
				ds.Skipped++
				continue
			}
			ds.Edges = append(ds.Edges, e)
			continue
		}
		p, err := poiFromFeature(f)
		if err != nil {
			ds.Skipped++
			continue
		}
		ds.POIs = append(ds.POIs, p)
	}
	return ds, nil
}

// poiFromFeature Point 直接取坐标, 面要素取外接矩形中心
func poiFromFeature(f *geojson.Feature) (model.POI, error) {
	var pt orb.Point
	switch g := f.Geometry.(type) {
	case orb.Point:
		pt = g
	case orb.Polygon, orb.MultiPolygon, orb.MultiPoint:
		pt = g.Bound().Center()
	default:
		return model.POI{}, fmt.Errorf("%w: geometry %T", ErrBadFeature, f.Geometry)
	}

	attrs := maps.Clone(map[string]any(f.Properties))
	if attrs == nil {
		attrs = make(map[string]any)
	}
	if model.IdentifierOf(attrs) == "" && f.ID != nil {
		attrs[model.KeyID] = model.AttrString(map[string]any{model.KeyID: f.ID}, model.KeyID)
	}

	loc := utils.FromPoint(pt)
	if floor, ok := model.AttrFloat(attrs, model.KeyFloor); ok {
		loc = loc.WithFloor(floor)
	}
	if !loc.Valid() {
		return model.POI{}, fmt.Errorf("%w: invalid coordinate %v", ErrBadFeature, pt)
	}
	p, err := model.NewPOI(attrs, loc)
	if err != nil {
		return model.POI{}, fmt.Errorf("%w: %v", ErrBadFeature, err)
	}
	return p, nil
}

func edgeFromFeature(f *geojson.Feature, ls orb.LineString) (model.Edge, error) {
	props := map[string]any(f.Properties)
	e := model.Edge{
		From: model.AttrString(props, "from"),
		To:   model.AttrString(props, "to"),
		Desc: model.AttrString(props, "desc"),
	}
	if e.From == "" || e.To == "" {
		return model.Edge{}, fmt.Errorf("%w: edge without from/to", ErrBadFeature)
	}
	if raw, ok := props["modes"].([]any); ok {
		for _, m := range raw {
			if s, ok := m.(string); ok {
				e.Modes = append(e.Modes, s)
			}
		}
	}
	if len(e.Modes) == 0 {
		e.Modes = []string{"walk"}
	}
	if d, ok := model.AttrFloat(props, "dist"); ok {
		e.Dist = d
	} else if len(ls) > 1 {
		e.Dist = geo.LengthHaversine(ls)
	}
	e.ModeMask = model.ParseModes(e.Modes)
	return e, nil
}

// Encode 把 POI 编码为 GeoJSON FeatureCollection
func Encode(pois []model.POI) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, p := range pois {
		f := geojson.NewFeature(utils.ToPoint(p.Location))
		f.ID = p.ID
		for k, v := range p.Attributes {
			f.Properties[k] = v
		}
		if p.Location.HasFloor {
			f.Properties[model.KeyFloor] = p.Location.Floor
		}
		fc.Append(f)
	}
	return fc.MarshalJSON()
}

// FilterWithin 保留 center 周围 radius 米以内的 POI, radius <= 0 时全部保留
func FilterWithin(pois []model.POI, center model.Location, radius float64) []model.POI {
	if radius <= 0 {
		return pois
	}
	out := make([]model.POI, 0, len(pois))
	for _, p := range pois {
		if utils.Within(center, p.Location, radius) {
			out = append(out, p)
		}
	}
	return out
}
