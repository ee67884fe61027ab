// Package geo answers the geometric questions the round engine asks about a
// click: is it inside a region, how far is it from the region's border, how far
// is it from a landmark.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"github.com/hericmr/geosantos-sub000/internal/geosantos"
)

const metersPerDegree = orb.EarthRadius * math.Pi / 180

func toOrb(p geosantos.Point) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

func fromOrb(p orb.Point) geosantos.Point {
	return geosantos.Point{Lat: p.Lat(), Lng: p.Lon()}
}

// Distance is the great-circle distance between a and b in meters.
func Distance(a, b geosantos.Point) float64 {
	return geo.DistanceHaversine(toOrb(a), toOrb(b))
}

// Contains reports whether p falls inside shape, holes excluded.
func Contains(shape orb.MultiPolygon, p geosantos.Point) bool {
	return planar.MultiPolygonContains(shape, toOrb(p))
}

// NearestBorderPoint walks every edge of every ring in shape and returns the
// closest point on the border to p with its great-circle distance. ok is false
// when shape has no edges.
func NearestBorderPoint(shape orb.MultiPolygon, p geosantos.Point) (nearest geosantos.Point, dist float64, ok bool) {
	dist = math.Inf(1)
	origin := toOrb(p)
	for _, poly := range shape {
		for _, ring := range poly {
			for i := 0; i+1 < len(ring); i++ {
				q := closestOnSegment(origin, ring[i], ring[i+1])
				if d := geo.DistanceHaversine(origin, q); d < dist {
					dist, nearest, ok = d, fromOrb(q), true
				}
			}
		}
	}
	if !ok {
		return geosantos.Point{}, 0, false
	}
	return nearest, dist, true
}

// closestOnSegment projects o onto segment ab in a local equirectangular frame
// centred on o, which is accurate at city scale.
func closestOnSegment(o, a, b orb.Point) orb.Point {
	kx := math.Cos(o.Lat() * math.Pi / 180)

	ax, ay := (a.Lon()-o.Lon())*kx, a.Lat()-o.Lat()
	bx, by := (b.Lon()-o.Lon())*kx, b.Lat()-o.Lat()
	dx, dy := bx-ax, by-ay

	t := 0.0
	if l2 := dx*dx + dy*dy; l2 > 0 {
		t = -(ax*dx + ay*dy) / l2
		t = math.Max(0, math.Min(1, t))
	}

	x, y := ax+t*dx, ay+t*dy
	if kx == 0 {
		return orb.Point{o.Lon(), o.Lat() + y}
	}
	return orb.Point{o.Lon() + x/kx, o.Lat() + y}
}

// Centroid returns the area-weighted centre of shape.
func Centroid(shape orb.MultiPolygon) geosantos.Point {
	c, _ := planar.CentroidArea(shape)
	return fromOrb(c)
}

// Offset moves p by east and north meters. It is used to build test fixtures
// and demo shapes around a known point.
func Offset(p geosantos.Point, east, north float64) geosantos.Point {
	lat := p.Lat + north/metersPerDegree
	lng := p.Lng + east/(metersPerDegree*math.Cos(p.Lat*math.Pi/180))
	return geosantos.Point{Lat: lat, Lng: lng}
}

// Bearing is the initial compass bearing in degrees from a to b.
func Bearing(a, b geosantos.Point) float64 {
	return geo.Bearing(toOrb(a), toOrb(b))
}
