package geo

import (
	"math"
	"sort"

	"github.com/mmcloughlin/geohash"
)

// DefaultGridPrecision gives cells of roughly 4.9km x 4.9km.
const DefaultGridPrecision uint = 5

// maxCoverCells bounds cell enumeration; wider queries fall back to walking
// every occupied cell.
const maxCoverCells = 4096

// Hit is one index entry matched by a radius query.
type Hit struct {
	ID         string
	DistanceKm float64
}

// GridIndex buckets points into geohash cells of a fixed precision. It is not
// safe for concurrent use; the owner guards it.
type GridIndex struct {
	precision uint
	cells     map[string]map[string]Point
	where     map[string]string
}

func NewGridIndex(precision uint) *GridIndex {
	if precision == 0 || precision > 12 {
		precision = DefaultGridPrecision
	}
	return &GridIndex{
		precision: precision,
		cells:     make(map[string]map[string]Point),
		where:     make(map[string]string),
	}
}

func (g *GridIndex) Len() int { return len(g.where) }

// Put inserts or moves id to p.
func (g *GridIndex) Put(id string, p Point) {
	g.Remove(id)
	cell := geohash.EncodeWithPrecision(p.Lat, normalizeLng(p.Lng), g.precision)
	bucket, ok := g.cells[cell]
	if !ok {
		bucket = make(map[string]Point)
		g.cells[cell] = bucket
	}
	bucket[id] = p
	g.where[id] = cell
}

func (g *GridIndex) Remove(id string) {
	cell, ok := g.where[id]
	if !ok {
		return
	}
	delete(g.where, id)
	bucket := g.cells[cell]
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(g.cells, cell)
	}
}

// Within returns every id whose point lies within radiusKm of center, nearest
// first. Containment is decided by exact haversine distance; cells only prune.
func (g *GridIndex) Within(center Point, radiusKm float64) []Hit {
	if radiusKm < 0 || len(g.where) == 0 {
		return nil
	}

	var hits []Hit
	collect := func(bucket map[string]Point) {
		for id, p := range bucket {
			d := Distance(center, p)
			if d <= radiusKm {
				hits = append(hits, Hit{ID: id, DistanceKm: d})
			}
		}
	}

	if cover, ok := g.cover(center, radiusKm); ok {
		for cell := range cover {
			if bucket, found := g.cells[cell]; found {
				collect(bucket)
			}
		}
	} else {
		for _, bucket := range g.cells {
			collect(bucket)
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceKm == hits[j].DistanceKm {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].DistanceKm < hits[j].DistanceKm
	})
	return hits
}

// cover enumerates the cells intersecting the bounding box of the query
// circle. ok is false when the box wraps a pole or is too large to enumerate.
func (g *GridIndex) cover(center Point, radiusKm float64) (map[string]struct{}, bool) {
	angular := radiusKm / EarthRadiusKm
	minLat := center.Lat - toDegrees(angular)
	maxLat := center.Lat + toDegrees(angular)
	if minLat <= -90 || maxLat >= 90 {
		return nil, false
	}

	ratio := math.Sin(angular) / math.Cos(toRadians(center.Lat))
	if ratio >= 1 {
		return nil, false
	}
	dLng := toDegrees(math.Asin(ratio))
	minLng := center.Lng - dLng
	maxLng := center.Lng + dLng

	box := geohash.BoundingBox(geohash.EncodeWithPrecision(center.Lat, normalizeLng(center.Lng), g.precision))
	cellH := box.MaxLat - box.MinLat
	cellW := box.MaxLng - box.MinLng

	rows := int(math.Ceil((maxLat-minLat)/cellH)) + 1
	cols := int(math.Ceil((maxLng-minLng)/cellW)) + 1
	if rows*cols > maxCoverCells {
		return nil, false
	}

	cover := make(map[string]struct{}, rows*cols)
	for i := 0; i <= rows; i++ {
		lat := math.Min(minLat+float64(i)*cellH, maxLat)
		for j := 0; j <= cols; j++ {
			lng := math.Min(minLng+float64(j)*cellW, maxLng)
			cover[geohash.EncodeWithPrecision(lat, normalizeLng(lng), g.precision)] = struct{}{}
		}
	}
	return cover, true
}

func normalizeLng(lng float64) float64 {
	for lng < -180 {
		lng += 360
	}
	for lng >= 180 {
		lng -= 360
	}
	return lng
}
