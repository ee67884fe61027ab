package server

import (
	"net/http"

	"github.com/paulmach/orb/geojson"

	"github.com/hericmr/geosantos-sub000/internal/geo"
	"github.com/hericmr/geosantos-sub000/internal/geosantos"
)

type LandmarkResponse struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Location geosantos.Point `json:"location"`
}

// handleRegions serves every region as a GeoJSON FeatureCollection for the
// map layer. Each feature carries its name and centroid.
func handleRegions(atlas *geo.Atlas) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fc := geojson.NewFeatureCollection()
		for _, region := range atlas.Regions() {
			f := geojson.NewFeature(region.Shape)
			f.ID = region.ID
			f.Properties["name"] = region.Name
			f.Properties["centroid"] = region.Centroid
			fc.Append(f)
		}

		data, err := fc.MarshalJSON()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode regions")
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func handleLandmarks(atlas *geo.Atlas) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		landmarks := atlas.Landmarks()
		out := make([]LandmarkResponse, 0, len(landmarks))
		for _, l := range landmarks {
			out = append(out, LandmarkResponse{ID: l.ID, Name: l.Name, Location: l.Location})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
