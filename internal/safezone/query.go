package safezone

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"safezone-api-server/internal/geo"
	"safezone-api-server/internal/metrics"
	"safezone-api-server/internal/models"
	"safezone-api-server/internal/store"
	"safezone-api-server/pkg/e"
)

const (
	DefaultRadiusKm     = 50.0
	DefaultPage         = 1
	DefaultLimit        = 50
	DefaultNearestLimit = 5
)

type SortKey string

const (
	SortDefault  SortKey = ""
	SortDistance SortKey = "distance"
	SortCapacity SortKey = "capacity"
	SortName     SortKey = "name"
	SortRating   SortKey = "rating"
)

func (k SortKey) valid() bool {
	switch k {
	case SortDefault, SortDistance, SortCapacity, SortName, SortRating:
		return true
	}
	return false
}

// Query selects, ranks and paginates safe zones. Zero values mean "not set".
type Query struct {
	Center        *geo.Point
	MaxDistanceKm float64
	Type          models.SafeZoneType
	Status        models.SafeZoneStatus
	District      string
	Province      string
	MinCapacity   *int
	// Amenities is a comma separated list of flags that must all be set.
	Amenities string
	SortBy    SortKey
	Page      int
	Limit     int
}

// View is a SafeZone as returned to callers: derived fields included and,
// when a reference point was given, its distance in km (2 decimals).
type View struct {
	models.SafeZone
	OccupancyPercentage int      `json:"occupancyPercentage"`
	AvailableSpots      int      `json:"availableSpots"`
	CapacityStatus      string   `json:"capacityStatus"`
	Distance            *float64 `json:"distance,omitempty"`
}

func NewView(z models.SafeZone, center *geo.Point) View {
	v := View{
		SafeZone:            z,
		OccupancyPercentage: z.OccupancyPercentage(),
		AvailableSpots:      z.AvailableSpots(),
		CapacityStatus:      z.CapacityStatus(),
	}
	if center != nil {
		d := geo.RoundKm(geo.Distance(*center, z.Location.Point()))
		v.Distance = &d
	}
	return v
}

type Page struct {
	Items      []View `json:"items"`
	Count      int    `json:"count"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	TotalPages int    `json:"totalPages"`
}

func checkCenter(op string, c *geo.Point) error {
	if c == nil {
		return nil
	}
	if !finite(c.Lat) || !finite(c.Lng) || c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return e.InvalidArgument(op, "coordinates out of range")
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func radiusKm(op string, km float64) (float64, error) {
	if !finite(km) {
		return 0, e.InvalidArgument(op, "maxDistance must be a finite number")
	}
	if km < 0 {
		return 0, e.InvalidArgument(op, "maxDistance must be positive")
	}
	if km == 0 {
		return DefaultRadiusKm, nil
	}
	// Half the circumference already covers the whole planet.
	return min(km, math.Pi*geo.EarthRadiusKm), nil
}

func parseAmenities(op, list string) ([]string, error) {
	var names []string
	for _, raw := range strings.Split(list, ",") {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, known := (models.Amenities{}).Has(name); !known {
			return nil, e.InvalidArgument(op, fmt.Sprintf("unknown amenity %q", name))
		}
		names = append(names, name)
	}
	return names, nil
}

// Search runs the query pipeline: candidates (radius or full active set),
// distance annotation, AND filters, sort, then the requested page.
func (s *Service) Search(ctx context.Context, q Query) (*Page, error) {
	const op = "safezone.Service.Search"
	start := time.Now()

	if err := checkCenter(op, q.Center); err != nil {
		return nil, err
	}
	if !q.SortBy.valid() {
		return nil, e.InvalidArgument(op, fmt.Sprintf("unknown sortBy %q", q.SortBy))
	}
	amenities, err := parseAmenities(op, q.Amenities)
	if err != nil {
		return nil, err
	}
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}

	var candidates []models.SafeZone
	kind := "all"
	if q.Center != nil {
		km, err := radiusKm(op, q.MaxDistanceKm)
		if err != nil {
			return nil, err
		}
		kind = "radius"
		candidates, err = s.repo.FindWithinRadius(ctx, *q.Center, km*1000)
		if err != nil {
			return nil, e.Wrap(op, err)
		}
	} else {
		candidates, err = s.repo.FindAll(ctx, store.Filter{Type: q.Type, Status: q.Status})
		if err != nil {
			return nil, e.Wrap(op, err)
		}
	}

	views := make([]View, 0, len(candidates))
	for _, z := range candidates {
		if matches(z, q, amenities) {
			views = append(views, NewView(z, q.Center))
		}
	}

	sortViews(views, q.SortBy, q.Center != nil)

	total := len(views)
	page := &Page{
		Items:      paginate(views, q.Page, q.Limit),
		Total:      total,
		Page:       q.Page,
		TotalPages: pageCount(total, q.Limit),
	}
	page.Count = len(page.Items)

	metrics.SearchDurationMs.WithLabelValues(kind).Observe(float64(time.Since(start).Microseconds()) / 1000)
	metrics.SearchResultsTotal.Observe(float64(total))
	return page, nil
}

func matches(z models.SafeZone, q Query, amenities []string) bool {
	if q.Type != "" && z.Type != q.Type {
		return false
	}
	if q.Status != "" && z.Status != q.Status {
		return false
	}
	if q.District != "" && !strings.EqualFold(z.Location.District, q.District) {
		return false
	}
	if q.Province != "" && !strings.EqualFold(z.Location.Province, q.Province) {
		return false
	}
	if q.MinCapacity != nil && z.AvailableSpots() < *q.MinCapacity {
		return false
	}
	for _, name := range amenities {
		if set, _ := z.Amenities.Has(name); !set {
			return false
		}
	}
	return true
}

// sortViews orders views in place. Ties keep the candidate order.
func sortViews(views []View, key SortKey, hasCenter bool) {
	if key == SortDefault && hasCenter {
		key = SortDistance
	}
	var less func(a, b *View) bool
	switch key {
	case SortDistance:
		if !hasCenter {
			return
		}
		less = func(a, b *View) bool { return *a.Distance < *b.Distance }
	case SortCapacity:
		less = func(a, b *View) bool { return a.AvailableSpots > b.AvailableSpots }
	case SortName:
		less = func(a, b *View) bool { return a.Name < b.Name }
	case SortRating:
		less = func(a, b *View) bool { return a.Rating.Average > b.Rating.Average }
	default:
		return
	}
	sort.SliceStable(views, func(i, j int) bool { return less(&views[i], &views[j]) })
}

// pageCount is ceil(total/limit) without the total+limit overflow.
func pageCount(total, limit int) int {
	n := total / limit
	if total%limit != 0 {
		n++
	}
	return n
}

// paginate never multiplies past len(views), so huge page or limit values
// yield an empty page instead of overflowing.
func paginate(views []View, page, limit int) []View {
	if page-1 >= pageCount(len(views), limit) {
		return []View{}
	}
	from := (page - 1) * limit
	to := len(views)
	if limit < to-from {
		to = from + limit
	}
	return views[from:to]
}

// Get returns one zone by ID, inactive ones included, annotated with the
// distance from center when given.
func (s *Service) Get(ctx context.Context, id string, center *geo.Point) (*View, error) {
	const op = "safezone.Service.Get"
	if err := checkCenter(op, center); err != nil {
		return nil, err
	}
	z, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	v := NewView(*z, center)
	return &v, nil
}

type NearestQuery struct {
	Center        *geo.Point
	MaxDistanceKm float64
	Limit         int
}

// FindNearest returns up to Limit zones closest to Center, skipping Closed
// ones, nearest first.
func (s *Service) FindNearest(ctx context.Context, q NearestQuery) ([]View, error) {
	const op = "safezone.Service.FindNearest"
	start := time.Now()

	if q.Center == nil {
		return nil, e.InvalidArgument(op, "latitude and longitude are required")
	}
	if err := checkCenter(op, q.Center); err != nil {
		return nil, err
	}
	km, err := radiusKm(op, q.MaxDistanceKm)
	if err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = DefaultNearestLimit
	}

	candidates, err := s.repo.FindWithinRadius(ctx, *q.Center, km*1000)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	views := make([]View, 0, min(q.Limit, len(candidates)))
	for _, z := range candidates {
		if z.Status == models.StatusClosed {
			continue
		}
		views = append(views, NewView(z, q.Center))
	}
	sortViews(views, SortDistance, true)
	if len(views) > q.Limit {
		views = views[:q.Limit]
	}

	metrics.SearchDurationMs.WithLabelValues("nearest").Observe(float64(time.Since(start).Microseconds()) / 1000)
	return views, nil
}
