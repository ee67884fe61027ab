package geo

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/hericmr/geosantos-sub000/internal/geosantos"
)

var (
	ErrUnknownRegion   = errors.New("unknown region")
	ErrUnknownLandmark = errors.New("unknown landmark")
	ErrEmptyGeometry   = errors.New("region has no boundary")
)

type Region struct {
	ID       string
	Name     string
	Shape    orb.MultiPolygon
	Centroid geosantos.Point
}

type Landmark struct {
	ID       string
	Name     string
	Location geosantos.Point
}

// Atlas is an in-memory set of regions and landmarks. It is safe for
// concurrent use; sessions share one Atlas.
type Atlas struct {
	mu        sync.RWMutex
	regions   map[string]*Region
	landmarks map[string]Landmark
}

func NewAtlas() *Atlas {
	return &Atlas{
		regions:   make(map[string]*Region),
		landmarks: make(map[string]Landmark),
	}
}

// AddRegion registers a polygonal region, replacing any region with the same id.
func (a *Atlas) AddRegion(id, name string, shape orb.Geometry) error {
	var mp orb.MultiPolygon
	switch g := shape.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{g}
	case orb.MultiPolygon:
		mp = g
	default:
		return fmt.Errorf("region %q: unsupported geometry %T", id, shape)
	}
	if len(mp) == 0 || len(mp[0]) == 0 || len(mp[0][0]) < 4 {
		return fmt.Errorf("region %q: %w", id, ErrEmptyGeometry)
	}

	a.mu.Lock()
	a.regions[id] = &Region{ID: id, Name: name, Shape: mp, Centroid: Centroid(mp)}
	a.mu.Unlock()
	return nil
}

func (a *Atlas) AddLandmark(id, name string, p geosantos.Point) {
	a.mu.Lock()
	a.landmarks[id] = Landmark{ID: id, Name: name, Location: p}
	a.mu.Unlock()
}

// LoadGeoJSON adds every feature of a FeatureCollection. Polygon features
// become regions and Point features become landmarks; the id comes from the
// feature id or the "id" property, the name from the "name" property.
func (a *Atlas) LoadGeoJSON(data []byte) error {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("decoding feature collection: %w", err)
	}

	for i, f := range fc.Features {
		id := f.Properties.MustString("id", "")
		if s, ok := f.ID.(string); ok && s != "" {
			id = s
		}
		if id == "" {
			return fmt.Errorf("feature %d: missing id", i)
		}
		name := f.Properties.MustString("name", id)

		switch g := f.Geometry.(type) {
		case orb.Point:
			a.AddLandmark(id, name, fromOrb(g))
		case orb.Polygon, orb.MultiPolygon:
			if err := a.AddRegion(id, name, g); err != nil {
				return err
			}
		default:
			return fmt.Errorf("feature %q: unsupported geometry %T", id, f.Geometry)
		}
	}
	return nil
}

func (a *Atlas) region(id string) (*Region, error) {
	a.mu.RLock()
	r, ok := a.regions[id]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("region %q: %w", id, ErrUnknownRegion)
	}
	return r, nil
}

func (a *Atlas) Region(id string) (Region, error) {
	r, err := a.region(id)
	if err != nil {
		return Region{}, err
	}
	return *r, nil
}

func (a *Atlas) Landmark(id string) (Landmark, error) {
	a.mu.RLock()
	l, ok := a.landmarks[id]
	a.mu.RUnlock()
	if !ok {
		return Landmark{}, fmt.Errorf("landmark %q: %w", id, ErrUnknownLandmark)
	}
	return l, nil
}

// Regions lists regions ordered by id.
func (a *Atlas) Regions() []Region {
	a.mu.RLock()
	out := make([]Region, 0, len(a.regions))
	for _, r := range a.regions {
		out = append(out, *r)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Landmarks lists landmarks ordered by id.
func (a *Atlas) Landmarks() []Landmark {
	a.mu.RLock()
	out := make([]Landmark, 0, len(a.landmarks))
	for _, l := range a.landmarks {
		out = append(out, l)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Target builds the round target for a region or landmark id.
func (a *Atlas) Target(kind geosantos.TargetKind, id string) (geosantos.RoundTarget, error) {
	switch kind {
	case geosantos.TargetRegion:
		r, err := a.region(id)
		if err != nil {
			return geosantos.RoundTarget{}, err
		}
		return geosantos.RoundTarget{Kind: kind, ID: r.ID, Name: r.Name, Location: r.Centroid}, nil
	case geosantos.TargetLandmark:
		l, err := a.Landmark(id)
		if err != nil {
			return geosantos.RoundTarget{}, err
		}
		return geosantos.RoundTarget{Kind: kind, ID: l.ID, Name: l.Name, Location: l.Location}, nil
	default:
		return geosantos.RoundTarget{}, fmt.Errorf("unknown target kind %q", kind)
	}
}

func (a *Atlas) PointInRegion(p geosantos.Point, regionID string) (bool, error) {
	r, err := a.region(regionID)
	if err != nil {
		return false, err
	}
	return Contains(r.Shape, p), nil
}

func (a *Atlas) NearestBorderPoint(p geosantos.Point, regionID string) (geosantos.Point, float64, error) {
	r, err := a.region(regionID)
	if err != nil {
		return geosantos.Point{}, 0, err
	}
	nearest, dist, ok := NearestBorderPoint(r.Shape, p)
	if !ok {
		return geosantos.Point{}, 0, fmt.Errorf("region %q: %w", regionID, ErrEmptyGeometry)
	}
	return nearest, dist, nil
}

func (a *Atlas) DistanceToLandmark(p geosantos.Point, landmarkID string) (float64, error) {
	l, err := a.Landmark(landmarkID)
	if err != nil {
		return 0, err
	}
	return Distance(p, l.Location), nil
}
