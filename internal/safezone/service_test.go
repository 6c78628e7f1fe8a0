package safezone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safezone-api-server/internal/auth"
	"safezone-api-server/internal/events"
	"safezone-api-server/internal/geo"
	"safezone-api-server/internal/metrics"
	"safezone-api-server/internal/models"
	"safezone-api-server/internal/store"
	"safezone-api-server/pkg/e"
)

var colombo = geo.Point{Lat: 6.9271, Lng: 79.8612}

type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
	return nil
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.evs))
	for _, ev := range r.evs {
		out = append(out, ev.Type)
	}
	return out
}

type memStatsCache struct {
	val         *Stats
	invalidated int
}

func (c *memStatsCache) Get(context.Context) (Stats, bool, error) {
	if c.val == nil {
		return Stats{}, false, nil
	}
	return *c.val, true, nil
}

func (c *memStatsCache) Set(_ context.Context, s Stats) error {
	c.val = &s
	return nil
}

func (c *memStatsCache) Invalidate(context.Context) error {
	c.val = nil
	c.invalidated++
	return nil
}

type fakePhotos struct {
	keys []string
}

func (f *fakePhotos) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	_, _ = io.ReadAll(body)
	f.keys = append(f.keys, key)
	return "https://cdn.example.lk/" + key, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestService(t *testing.T, opts ...Option) (*Service, *store.Memory) {
	t.Helper()
	repo := store.NewMemory()
	opts = append([]Option{WithAuthorizer(auth.AllowAll{})}, opts...)
	return NewService(repo, discard(), opts...), repo
}

func zone(name string, lat, lng float64, current, max int) *models.SafeZone {
	return &models.SafeZone{
		Name:     name,
		Type:     models.TypeShelter,
		Location: models.NewLocation(lat, lng),
		Capacity: models.Capacity{Current: current, Max: max},
	}
}

func create(t *testing.T, s *Service, z *models.SafeZone) *View {
	t.Helper()
	v, err := s.Create(context.Background(), z)
	require.NoError(t, err)
	return v
}

func ids(views []View) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.ID)
	}
	return out
}

func intp(n int) *int { return &n }

// seedABC creates A (Colombo, ~2km), B (Gampaha district, ~70km) and
// C (Kalutara district, ~30km, Full).
func seedABC(t *testing.T, s *Service) (a, b, c *View) {
	t.Helper()
	za := zone("Colombo Town Hall", 6.9150, 79.8640, 120, 500)
	za.Location.District = "Colombo"
	za.Location.Province = "Western"
	za.Amenities = models.Amenities{Water: true, Medical: true, Food: true}
	za.Rating = models.Rating{Average: 3.5, Count: 10}

	zb := zone("Gampaha North School", 7.5500, 79.9500, 45, 200)
	zb.Type = models.TypeSchool
	zb.Location.District = "Gampaha"
	zb.Location.Province = "Western"
	zb.Amenities = models.Amenities{Water: true}
	zb.Rating = models.Rating{Average: 4.8, Count: 3}

	zc := zone("Kalutara Temple Hall", 6.6600, 79.9300, 200, 200)
	zc.Type = models.TypeReligiousCenter
	zc.Status = models.StatusFull
	zc.Location.District = "Kalutara"
	zc.Location.Province = "Western"
	zc.Amenities = models.Amenities{Water: true, Medical: true}
	zc.Rating = models.Rating{Average: 4.1, Count: 7}

	return create(t, s, za), create(t, s, zb), create(t, s, zc)
}

func TestSearch_EndToEndRadiusAndDistance(t *testing.T) {
	s, _ := newTestService(t)
	a, _, c := seedABC(t, s)

	page, err := s.Search(context.Background(), Query{Center: &colombo, MaxDistanceKm: 50, SortBy: SortDistance})
	require.NoError(t, err)

	assert.Equal(t, []string{a.ID, c.ID}, ids(page.Items))
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, 1, page.TotalPages)
	for _, v := range page.Items {
		require.NotNil(t, v.Distance)
		assert.LessOrEqual(t, *v.Distance, 50.0)
	}
	assert.Less(t, *page.Items[0].Distance, 5.0)
	assert.InDelta(t, 30, *page.Items[1].Distance, 2)
}

func TestSearch_DefaultsWithoutCenter(t *testing.T) {
	s, _ := newTestService(t)
	a, b, c := seedABC(t, s)

	page, err := s.Search(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ids(page.Items))
	assert.Equal(t, 1, page.Page)
	for _, v := range page.Items {
		assert.Nil(t, v.Distance)
	}

	// distance without a center keeps insertion order.
	page, err = s.Search(context.Background(), Query{SortBy: SortDistance})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ids(page.Items))
}

func TestSearch_Sorts(t *testing.T) {
	s, _ := newTestService(t)
	a, b, c := seedABC(t, s)
	ctx := context.Background()

	cases := []struct {
		key  SortKey
		want []string
	}{
		{SortCapacity, []string{a.ID, b.ID, c.ID}}, // 380, 155, 0 spots
		{SortName, []string{a.ID, b.ID, c.ID}},
		{SortRating, []string{b.ID, c.ID, a.ID}},
	}
	for _, tc := range cases {
		page, err := s.Search(ctx, Query{SortBy: tc.key})
		require.NoError(t, err)
		assert.Equal(t, tc.want, ids(page.Items), string(tc.key))
	}
}

func TestSearch_Filters(t *testing.T) {
	s, _ := newTestService(t)
	a, b, c := seedABC(t, s)
	ctx := context.Background()

	cases := []struct {
		name string
		q    Query
		want []string
	}{
		{"amenities AND", Query{Amenities: "water, medical"}, []string{a.ID, c.ID}},
		{"single amenity", Query{Amenities: "food"}, []string{a.ID}},
		{"district case-insensitive", Query{District: "gAmPaHa"}, []string{b.ID}},
		{"province", Query{Province: "western"}, []string{a.ID, b.ID, c.ID}},
		{"type", Query{Type: models.TypeSchool}, []string{b.ID}},
		{"status", Query{Status: models.StatusFull}, []string{c.ID}},
		{"min capacity", Query{MinCapacity: intp(150)}, []string{a.ID, b.ID}},
		{"no match", Query{District: "Jaffna"}, []string{}},
		{"radius + amenity", Query{Center: &colombo, Amenities: "medical", MinCapacity: intp(1)}, []string{a.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := s.Search(ctx, tc.q)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(page.Items))
			assert.Equal(t, len(tc.want), page.Total)
		})
	}
}

func TestSearch_InvalidArguments(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	for _, q := range []Query{
		{SortBy: "popularity"},
		{Amenities: "water,wifi"},
		{Center: &colombo, MaxDistanceKm: -1},
		{Center: &geo.Point{Lat: 91, Lng: 0}},
	} {
		_, err := s.Search(ctx, q)
		assert.True(t, errors.Is(err, e.ErrInvalidArgument), "%+v", q)
	}
}

func TestSearch_PaginationIsExhaustive(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 23; i++ {
		z := zone(fmt.Sprintf("Zone %02d", i), colombo.Lat+float64(i)*0.005, colombo.Lng, i, 100)
		create(t, s, z)
	}

	for _, limit := range []int{1, 4, 7, 23, 50} {
		first, err := s.Search(ctx, Query{Center: &colombo, Limit: limit})
		require.NoError(t, err)
		require.Equal(t, 23, first.Total)
		assert.Equal(t, (23+limit-1)/limit, first.TotalPages)

		seen := map[string]bool{}
		var all []string
		for p := 1; p <= first.TotalPages; p++ {
			page, err := s.Search(ctx, Query{Center: &colombo, Limit: limit, Page: p})
			require.NoError(t, err)
			assert.Equal(t, len(page.Items), page.Count)
			for _, v := range page.Items {
				assert.False(t, seen[v.ID], "duplicate %s", v.ID)
				seen[v.ID] = true
				all = append(all, v.ID)
			}
		}
		assert.Len(t, all, 23, "limit %d", limit)

		past, err := s.Search(ctx, Query{Center: &colombo, Limit: limit, Page: first.TotalPages + 1})
		require.NoError(t, err)
		assert.Empty(t, past.Items)
		assert.Equal(t, 0, past.Count)
	}

	empty, err := s.Search(ctx, Query{District: "nowhere"})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalPages)
	assert.NotNil(t, empty.Items)
}

func TestSearch_HugePageAndLimit(t *testing.T) {
	s, _ := newTestService(t)
	seedABC(t, s)
	ctx := context.Background()

	page, err := s.Search(ctx, Query{Page: 1, Limit: math.MaxInt})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.TotalPages)
	assert.Len(t, page.Items, 3)

	page, err = s.Search(ctx, Query{Page: 3, Limit: 1 << 62})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.TotalPages)

	page, err = s.Search(ctx, Query{Page: math.MaxInt, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 2, page.TotalPages)

	page, err = s.Search(ctx, Query{Page: 2, Limit: math.MaxInt - 1})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	near, err := s.FindNearest(ctx, NearestQuery{Center: &colombo, Limit: math.MaxInt})
	require.NoError(t, err)
	assert.Len(t, near, 2)
}

func TestQueries_RejectNonFiniteInput(t *testing.T) {
	s, _ := newTestService(t)
	a, _, _ := seedABC(t, s)
	ctx := context.Background()

	nan, inf := math.NaN(), math.Inf(1)
	for _, p := range []geo.Point{
		{Lat: nan, Lng: 79.86},
		{Lat: 6.92, Lng: nan},
		{Lat: inf, Lng: 79.86},
		{Lat: 6.92, Lng: math.Inf(-1)},
	} {
		_, err := s.Search(ctx, Query{Center: &p})
		assert.ErrorIs(t, err, e.ErrInvalidArgument, "search %+v", p)

		_, err = s.Get(ctx, a.ID, &p)
		assert.ErrorIs(t, err, e.ErrInvalidArgument, "get %+v", p)

		_, err = s.FindNearest(ctx, NearestQuery{Center: &p})
		assert.ErrorIs(t, err, e.ErrInvalidArgument, "nearest %+v", p)
	}

	for _, km := range []float64{nan, inf} {
		_, err := s.Search(ctx, Query{Center: &colombo, MaxDistanceKm: km})
		assert.ErrorIs(t, err, e.ErrInvalidArgument)

		_, err = s.FindNearest(ctx, NearestQuery{Center: &colombo, MaxDistanceKm: km})
		assert.ErrorIs(t, err, e.ErrInvalidArgument)
	}

	page, err := s.Search(ctx, Query{Center: &colombo, MaxDistanceKm: math.MaxFloat64})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
}

func TestSearch_SoftDeletedExcluded(t *testing.T) {
	s, _ := newTestService(t)
	a, b, c := seedABC(t, s)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, a.ID))

	page, err := s.Search(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, c.ID}, ids(page.Items))

	got, err := s.Get(ctx, a.ID, nil)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	err = s.Delete(ctx, a.ID)
	assert.True(t, errors.Is(err, e.ErrNotFound))
}

func TestGet_DistanceAnnotation(t *testing.T) {
	s, _ := newTestService(t)
	_, _, c := seedABC(t, s)
	ctx := context.Background()

	v, err := s.Get(ctx, c.ID, &colombo)
	require.NoError(t, err)
	require.NotNil(t, v.Distance)
	assert.InDelta(t, 30, *v.Distance, 2)
	assert.Equal(t, 100, v.OccupancyPercentage)
	assert.Equal(t, models.CapacityFull, v.CapacityStatus)

	v, err = s.Get(ctx, c.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, v.Distance)

	_, err = s.Get(ctx, "missing", nil)
	assert.True(t, errors.Is(err, e.ErrNotFound))
}

func TestFindNearest(t *testing.T) {
	s, _ := newTestService(t)
	a, _, c := seedABC(t, s)
	ctx := context.Background()

	closed := zone("Closed Hall", 6.9200, 79.8600, 0, 10)
	closed.Status = models.StatusClosed
	create(t, s, closed)

	got, err := s.FindNearest(ctx, NearestQuery{Center: &colombo})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, c.ID}, ids(got))

	got, err = s.FindNearest(ctx, NearestQuery{Center: &colombo, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids(got))

	got, err = s.FindNearest(ctx, NearestQuery{Center: &colombo, MaxDistanceKm: 100})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = s.FindNearest(ctx, NearestQuery{})
	assert.True(t, errors.Is(err, e.ErrInvalidArgument))
}

func TestSetOccupancy_Transitions(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name    string
		status  models.SafeZoneStatus
		current int
		max     int
		set     int
		want    models.SafeZoneStatus
	}{
		{"fill", models.StatusActive, 80, 100, 100, models.StatusFull},
		{"overfill", models.StatusActive, 80, 100, 130, models.StatusFull},
		{"reopen", models.StatusFull, 100, 100, 50, models.StatusActive},
		{"stay active", models.StatusActive, 10, 100, 99, models.StatusActive},
		{"closed stays closed", models.StatusClosed, 0, 100, 40, models.StatusClosed},
		{"unavailable fills", models.StatusTemporarilyUnavailable, 0, 100, 100, models.StatusFull},
		{"unavailable stays", models.StatusTemporarilyUnavailable, 0, 100, 5, models.StatusTemporarilyUnavailable},
		{"negative accepted", models.StatusActive, 5, 100, -3, models.StatusActive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			s, _ := newTestService(t, WithPublisher(rec))
			z := zone("Z", 7, 80, tc.current, tc.max)
			z.Status = tc.status
			created := create(t, s, z)

			v, err := s.SetOccupancy(ctx, created.ID, intp(tc.set))
			require.NoError(t, err)
			assert.Equal(t, tc.want, v.Status)
			assert.Equal(t, tc.set, v.Capacity.Current)

			got, err := s.Get(ctx, created.ID, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Status)

			last := rec.evs[len(rec.evs)-1]
			assert.Equal(t, events.OccupancyChanged, last.Type)
			assert.Equal(t, tc.status, last.From)
			assert.Equal(t, tc.want, last.To)
		})
	}
}

func TestSetOccupancy_CountsOnlyRealTransitions(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestService(t, WithPublisher(rec))
	ctx := context.Background()
	v := create(t, s, zone("Negombo Shelter", 7.21, 79.84, 10, 50))

	toFull := metrics.StatusTransitionsTotal.WithLabelValues(string(models.StatusActive), string(models.StatusFull))
	toActive := metrics.StatusTransitionsTotal.WithLabelValues(string(models.StatusFull), string(models.StatusActive))
	fullBefore, activeBefore := testutil.ToFloat64(toFull), testutil.ToFloat64(toActive)

	_, err := s.SetOccupancy(ctx, v.ID, intp(20))
	require.NoError(t, err)
	_, err = s.SetOccupancy(ctx, v.ID, intp(50))
	require.NoError(t, err)
	_, err = s.SetOccupancy(ctx, v.ID, intp(60))
	require.NoError(t, err)
	_, err = s.SetOccupancy(ctx, v.ID, intp(5))
	require.NoError(t, err)

	assert.Equal(t, fullBefore+1, testutil.ToFloat64(toFull))
	assert.Equal(t, activeBefore+1, testutil.ToFloat64(toActive))

	var changed int
	for _, ev := range rec.evs {
		if ev.Type == events.OccupancyChanged && ev.StatusChanged() {
			changed++
		}
	}
	assert.Equal(t, 2, changed)
}

func TestSetOccupancy_Errors(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	v := create(t, s, zone("Z", 7, 80, 0, 10))

	_, err := s.SetOccupancy(ctx, v.ID, nil)
	assert.True(t, errors.Is(err, e.ErrInvalidArgument))

	_, err = s.SetOccupancy(ctx, "missing", intp(1))
	assert.True(t, errors.Is(err, e.ErrNotFound))

	require.NoError(t, s.Delete(ctx, v.ID))
	_, err = s.SetOccupancy(ctx, v.ID, intp(1))
	assert.True(t, errors.Is(err, e.ErrNotFound))
}

func TestStats_ConsistencyAndCache(t *testing.T) {
	c := &memStatsCache{}
	s, _ := newTestService(t, WithStatsCache(c))
	ctx := context.Background()

	empty, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, empty)

	a, _, _ := seedABC(t, s)
	closed := zone("Closed Hall", 6.92, 79.86, 10, 40)
	closed.Status = models.StatusClosed
	create(t, s, closed)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, st.Total)
	assert.EqualValues(t, 2, st.Active)
	assert.EqualValues(t, 1, st.Full)
	assert.Equal(t, CapacityStats{Total: 940, Occupied: 375, Available: 565}, st.Capacity)
	assert.Equal(t, st.Capacity.Total-st.Capacity.Occupied, st.Capacity.Available)
	assert.GreaterOrEqual(t, st.Total, st.Active+st.Full)

	require.NotNil(t, c.val)
	assert.Equal(t, st, *c.val)

	_, err = s.SetOccupancy(ctx, a.ID, intp(500))
	require.NoError(t, err)
	assert.Nil(t, c.val)

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Active)
	assert.EqualValues(t, 2, st.Full)
	assert.EqualValues(t, 755, st.Capacity.Occupied)
}

func TestMutations_Authorization(t *testing.T) {
	repo := store.NewMemory()
	s := NewService(repo, discard())
	ctx := context.Background()

	_, err := s.Create(ctx, zone("Z", 7, 80, 0, 10))
	assert.True(t, errors.Is(err, e.ErrUnauthorized))

	operator := auth.WithCaller(ctx, auth.Caller{Email: "op@dmc.lk", Role: models.RoleOperator})
	_, err = s.Create(operator, zone("Z", 7, 80, 0, 10))
	assert.True(t, errors.Is(err, e.ErrForbidden))

	admin := auth.WithCaller(ctx, auth.Caller{Email: "admin@dmc.lk", Role: models.RoleAdmin})
	v, err := s.Create(admin, zone("Z", 7, 80, 0, 10))
	require.NoError(t, err)

	_, err = s.SetOccupancy(operator, v.ID, intp(4))
	assert.NoError(t, err)

	name := "Renamed"
	_, err = s.Update(operator, v.ID, models.SafeZonePatch{Name: &name})
	assert.True(t, errors.Is(err, e.ErrForbidden))
	assert.True(t, errors.Is(s.Delete(operator, v.ID), e.ErrForbidden))
}

func TestCreateUpdate_ValidationAndEvents(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestService(t, WithPublisher(rec))
	ctx := context.Background()

	_, err := s.Create(ctx, &models.SafeZone{Name: strings.Repeat("x", 101)})
	var verr *e.ValidationError
	require.True(t, errors.As(err, &verr))
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["type"])

	v := create(t, s, zone("Z", 7, 80, 0, 10))
	closed := models.StatusClosed
	updated, err := s.Update(ctx, v.ID, models.SafeZonePatch{Status: &closed})
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, updated.Status)

	_, err = s.Update(ctx, v.ID, models.SafeZonePatch{})
	assert.True(t, errors.Is(err, e.ErrInvalidArgument))

	bad := models.Capacity{Current: 0, Max: 0}
	_, err = s.Update(ctx, v.ID, models.SafeZonePatch{Capacity: &bad})
	assert.True(t, errors.Is(err, e.ErrValidation))

	assert.Equal(t, []events.Type{events.ZoneCreated, events.ZoneUpdated}, rec.types())
}

func TestAddPhoto(t *testing.T) {
	photos := &fakePhotos{}
	s, _ := newTestService(t, WithPhotoStore(photos))
	ctx := auth.WithCaller(context.Background(), auth.Caller{Email: "admin@dmc.lk", Role: models.RoleAdmin})
	v := create(t, s, zone("Z", 7, 80, 0, 10))

	got, err := s.AddPhoto(ctx, v.ID, PhotoUpload{FileName: "Front.JPG", ContentType: "image/jpeg", Body: strings.NewReader("jpeg")})
	require.NoError(t, err)
	require.Len(t, got.Photos, 1)
	assert.Equal(t, "admin@dmc.lk", got.Photos[0].UploadedBy)
	assert.True(t, strings.HasSuffix(photos.keys[0], ".jpg"))
	assert.True(t, strings.HasPrefix(got.Photos[0].URL, "https://cdn.example.lk/safezones/"+v.ID+"/"))

	_, err = s.AddPhoto(ctx, v.ID, PhotoUpload{FileName: "a.txt", ContentType: "text/plain", Body: strings.NewReader("x")})
	assert.True(t, errors.Is(err, e.ErrInvalidArgument))

	_, err = s.AddPhoto(ctx, "missing", PhotoUpload{FileName: "a.png", ContentType: "image/png", Body: strings.NewReader("x")})
	assert.True(t, errors.Is(err, e.ErrNotFound))
	assert.Len(t, photos.keys, 1)

	noStore, _ := newTestService(t)
	_, err = noStore.AddPhoto(ctx, v.ID, PhotoUpload{ContentType: "image/png", Body: strings.NewReader("x")})
	assert.True(t, errors.Is(err, e.ErrStorageUnavailable))
}
