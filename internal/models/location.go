// internal/models/location.go
package models

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LocationRecord is one row of the location table. Records are looked up,
// never built by the dialogue.
type LocationRecord struct {
	Country     string      `json:"country"`
	City        string      `json:"city"`
	CityASCII   string      `json:"cityAscii"`
	Coordinates Coordinates `json:"coordinates"`
}

// BoundingBox is the analysis extent sent to the engine.
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

// DefaultBoundingBox is used when the request names no place.
var DefaultBoundingBox = BoundingBox{
	MinLat: -6.365,
	MinLon: 106.689,
	MaxLat: -6.089,
	MaxLon: 106.971,
}

// BoxAround returns a square box of +/- buffer degrees around the record.
func (r LocationRecord) BoxAround(buffer float64) BoundingBox {
	return BoundingBox{
		MinLat: r.Coordinates.Lat - buffer,
		MinLon: r.Coordinates.Lon - buffer,
		MaxLat: r.Coordinates.Lat + buffer,
		MaxLon: r.Coordinates.Lon + buffer,
	}
}
