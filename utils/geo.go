package utils

import (
	"math"

	"navcog-poi/model"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// EarthRadius WGS84 参考椭球长半轴 (米)
const EarthRadius = 6378137.0

// DegreesToRadians 角度转弧度
func DegreesToRadians(d float64) float64 {
	return d * math.Pi / 180.0
}

// HaversineDistance Haversine 公式 (直接计算两点间球面距离)
// 用于路径规划中计算 Edge 的距离, 楼层不计入
func HaversineDistance(p1, p2 model.Location) float64 {
	lat1 := DegreesToRadians(p1.Lat)
	lon1 := DegreesToRadians(p1.Lng)
	lat2 := DegreesToRadians(p2.Lat)
	lon2 := DegreesToRadians(p2.Lng)

	dLat := lat2 - lat1
	dLon := lon2 - lon1
	// a = sin²(Δlat/2) + cos(lat1) * cos(lat2) * sin²(Δlon/2)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	// c = 2 * atan2(√a, √(1-a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// ToPoint 转换为 orb 坐标 (经度在前)
func ToPoint(l model.Location) orb.Point {
	return orb.Point{l.Lng, l.Lat}
}

// FromPoint 从 orb 坐标构造位置
func FromPoint(p orb.Point) model.Location {
	return model.NewLocation(p.Lat(), p.Lon())
}

// BoundAround 以 center 为中心、radius 米为半径的外接矩形
func BoundAround(center model.Location, radius float64) orb.Bound {
	return geo.NewBoundAroundPoint(ToPoint(center), radius)
}

// Within 判断 p 是否在 center 周围 radius 米以内, radius <= 0 表示不限制
func Within(center, p model.Location, radius float64) bool {
	if radius <= 0 {
		return true
	}
	return HaversineDistance(center, p) <= radius
}
