package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/hericmr/geosantos-sub000/internal/geosantos"
)

// Praça Mauá, Santos.
var origin = geosantos.Point{Lat: -23.9335, Lng: -46.3280}

// square returns a closed ring of side meters with its south-west corner at p.
func square(p geosantos.Point, side float64) orb.Polygon {
	sw := p
	se := Offset(p, side, 0)
	ne := Offset(p, side, side)
	nw := Offset(p, 0, side)
	return orb.Polygon{{toOrb(sw), toOrb(se), toOrb(ne), toOrb(nw), toOrb(sw)}}
}

func TestContains(t *testing.T) {
	shape := orb.MultiPolygon{square(origin, 1000)}

	tests := []struct {
		name string
		p    geosantos.Point
		want bool
	}{
		{"centre", Offset(origin, 500, 500), true},
		{"just inside", Offset(origin, 10, 10), true},
		{"east of it", Offset(origin, 1500, 500), false},
		{"south of it", Offset(origin, 500, -200), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Contains(shape, tt.p); got != tt.want {
				t.Errorf("Contains = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNearestBorderPoint(t *testing.T) {
	shape := orb.MultiPolygon{square(origin, 1000)}
	click := Offset(origin, 1300, 500)

	nearest, dist, ok := NearestBorderPoint(shape, click)
	if !ok {
		t.Fatal("expected a border point")
	}
	if math.Abs(dist-300) > 3 {
		t.Fatalf("distance = %.1f, want ~300", dist)
	}
	if got := Distance(click, nearest); math.Abs(got-dist) > 1e-6 {
		t.Fatalf("reported distance %.3f does not match nearest point %.3f", dist, got)
	}

	// The nearest point should sit on the eastern edge, level with the click.
	east := Offset(origin, 1000, 500)
	if d := Distance(nearest, east); d > 3 {
		t.Fatalf("nearest point is %.1fm from the expected edge point", d)
	}
}

func TestNearestBorderPointCorner(t *testing.T) {
	shape := orb.MultiPolygon{square(origin, 1000)}
	click := Offset(origin, -300, -400)

	_, dist, ok := NearestBorderPoint(shape, click)
	if !ok {
		t.Fatal("expected a border point")
	}
	if math.Abs(dist-500) > 5 {
		t.Fatalf("distance = %.1f, want ~500 to the corner", dist)
	}
}

func TestNearestBorderPointEmpty(t *testing.T) {
	if _, _, ok := NearestBorderPoint(nil, origin); ok {
		t.Fatal("empty shape should report no border")
	}
}

func TestAtlasRegions(t *testing.T) {
	a := NewAtlas()
	if err := a.AddRegion("gonzaga", "Gonzaga", square(origin, 800)); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}

	in, err := a.PointInRegion(Offset(origin, 400, 400), "gonzaga")
	if err != nil || !in {
		t.Fatalf("PointInRegion = %v, %v", in, err)
	}

	_, dist, err := a.NearestBorderPoint(Offset(origin, 400, 1000), "gonzaga")
	if err != nil {
		t.Fatalf("NearestBorderPoint: %v", err)
	}
	if math.Abs(dist-200) > 3 {
		t.Fatalf("distance = %.1f, want ~200", dist)
	}

	if _, err := a.PointInRegion(origin, "nope"); !errors.Is(err, ErrUnknownRegion) {
		t.Fatalf("err = %v, want ErrUnknownRegion", err)
	}

	target, err := a.Target(geosantos.TargetRegion, "gonzaga")
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if d := Distance(target.Location, Offset(origin, 400, 400)); d > 5 {
		t.Fatalf("centroid is %.1fm off the square's centre", d)
	}
}

func TestAtlasRejectsDegenerateRegion(t *testing.T) {
	a := NewAtlas()
	err := a.AddRegion("line", "Line", orb.Polygon{{toOrb(origin), toOrb(Offset(origin, 10, 0))}})
	if !errors.Is(err, ErrEmptyGeometry) {
		t.Fatalf("err = %v, want ErrEmptyGeometry", err)
	}
	if err := a.AddRegion("pt", "Point", orb.Point{}); err == nil {
		t.Fatal("expected an error for a point geometry")
	}
}

func TestAtlasLandmarks(t *testing.T) {
	a := NewAtlas()
	a.AddLandmark("pele", "Museu Pelé", origin)

	d, err := a.DistanceToLandmark(Offset(origin, 0, 250), "pele")
	if err != nil {
		t.Fatalf("DistanceToLandmark: %v", err)
	}
	if math.Abs(d-250) > 2 {
		t.Fatalf("distance = %.1f, want ~250", d)
	}
	if _, err := a.DistanceToLandmark(origin, "nope"); !errors.Is(err, ErrUnknownLandmark) {
		t.Fatalf("err = %v, want ErrUnknownLandmark", err)
	}
}

func TestLoadGeoJSON(t *testing.T) {
	data := []byte(`{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "id": "centro",
			 "properties": {"name": "Centro"},
			 "geometry": {"type": "Polygon", "coordinates": [[[-46.34,-23.94],[-46.32,-23.94],[-46.32,-23.92],[-46.34,-23.92],[-46.34,-23.94]]]}},
			{"type": "Feature",
			 "properties": {"id": "aquario", "name": "Aquário de Santos"},
			 "geometry": {"type": "Point", "coordinates": [-46.3166, -23.9876]}}
		]
	}`)

	a := NewAtlas()
	if err := a.LoadGeoJSON(data); err != nil {
		t.Fatalf("LoadGeoJSON: %v", err)
	}
	if got := len(a.Regions()); got != 1 {
		t.Fatalf("regions = %d, want 1", got)
	}
	if got := a.Landmarks(); len(got) != 1 || got[0].Name != "Aquário de Santos" {
		t.Fatalf("landmarks = %+v", got)
	}
	in, err := a.PointInRegion(geosantos.Point{Lat: -23.93, Lng: -46.33}, "centro")
	if err != nil || !in {
		t.Fatalf("PointInRegion = %v, %v", in, err)
	}
}

func TestLoadGeoJSONMissingID(t *testing.T) {
	data := []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[0,0]}}]}`)
	if err := NewAtlas().LoadGeoJSON(data); err == nil {
		t.Fatal("expected an error for a feature without id")
	}
}
