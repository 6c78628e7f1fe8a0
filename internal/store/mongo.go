package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"safezone-api-server/internal/geo"
	"safezone-api-server/internal/models"
	"safezone-api-server/pkg/e"
)

const SafeZonesCollection = "safezones"

// MongoDB measures spherical distance with a 6378.1km radius while the
// service uses 6371km; queries are widened by this ratio and post-filtered.
const mongoRadiusRatio = 6378.1 / geo.EarthRadiusKm

type zoneDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	models.SafeZone `bson:",inline"`
}

func (d zoneDoc) toModel() models.SafeZone {
	z := d.SafeZone
	z.ID = d.ID.Hex()
	return z
}

type Mongo struct {
	coll    *mongo.Collection
	client  *mongo.Client
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewMongo(db *mongo.Database, timeout time.Duration, logger *slog.Logger) *Mongo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Mongo{
		coll:    db.Collection(SafeZonesCollection),
		client:  db.Client(),
		timeout: timeout,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Mongo) fail(ctx context.Context, op string, err error) error {
	wrapped := e.WrapMongo(ctx, op, err)
	if err != mongo.ErrNoDocuments {
		m.logger.Error("mongo operation failed", slog.String("op", op), slog.Any("error", err))
	}
	return wrapped
}

func (m *Mongo) FindWithinRadius(ctx context.Context, center geo.Point, radiusMeters float64) ([]models.SafeZone, error) {
	const op = "store.Mongo.FindWithinRadius"
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	filter := bson.M{
		"isActive": true,
		"location": bson.M{
			"$nearSphere": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": bson.A{center.Lng, center.Lat},
				},
				"$maxDistance": radiusMeters * mongoRadiusRatio,
			},
		},
	}

	zones, err := m.find(ctx, op, filter, nil)
	if err != nil {
		return nil, err
	}

	radiusKm := radiusMeters / 1000
	out := zones[:0]
	for _, z := range zones {
		if geo.Distance(center, z.Location.Point()) <= radiusKm {
			out = append(out, z)
		}
	}
	return out, nil
}

func (m *Mongo) FindAll(ctx context.Context, filter Filter) ([]models.SafeZone, error) {
	const op = "store.Mongo.FindAll"
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	return m.find(ctx, op, activeFilter(filter), opts)
}

func (m *Mongo) find(ctx context.Context, op string, filter bson.M, opts *options.FindOptions) ([]models.SafeZone, error) {
	var cursor *mongo.Cursor
	var err error
	if opts != nil {
		cursor, err = m.coll.Find(ctx, filter, opts)
	} else {
		cursor, err = m.coll.Find(ctx, filter)
	}
	if err != nil {
		return nil, m.fail(ctx, op, err)
	}
	defer cursor.Close(ctx)

	var docs []zoneDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, m.fail(ctx, op, err)
	}

	zones := make([]models.SafeZone, 0, len(docs))
	for _, d := range docs {
		zones = append(zones, d.toModel())
	}
	return zones, nil
}

func activeFilter(f Filter) bson.M {
	q := bson.M{"isActive": true}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.Type != "" {
		q["type"] = f.Type
	}
	return q
}

func (m *Mongo) FindByID(ctx context.Context, id string) (*models.SafeZone, error) {
	const op = "store.Mongo.FindByID"
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var doc zoneDoc
	if err := m.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, m.fail(ctx, op, err)
	}
	z := doc.toModel()
	return &z, nil
}

func (m *Mongo) Create(ctx context.Context, zone *models.SafeZone) (*models.SafeZone, error) {
	const op = "store.Mongo.Create"

	z := zone.Clone()
	z.ApplyDefaults()
	z.IsActive = true
	if err := z.Validate(); err != nil {
		return nil, e.Wrap(op, err)
	}
	now := m.now()
	z.CreatedAt = now
	z.UpdatedAt = now

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	doc := zoneDoc{ID: primitive.NewObjectID(), SafeZone: z}
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		return nil, m.fail(ctx, op, err)
	}

	out := doc.toModel()
	return &out, nil
}

// Update re-validates the merged record but only writes the patched fields,
// so a concurrent occupancy change is not clobbered by a metadata edit.
func (m *Mongo) Update(ctx context.Context, id string, patch models.SafeZonePatch) (*models.SafeZone, error) {
	const op = "store.Mongo.Update"
	current, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	merged := current.Clone()
	patch.Apply(&merged)
	merged.ApplyDefaults()
	if err := merged.Validate(); err != nil {
		return nil, e.Wrap(op, err)
	}

	set := bson.M{"updatedAt": m.now()}
	if patch.Name != nil {
		set["name"] = merged.Name
	}
	if patch.Type != nil {
		set["type"] = merged.Type
	}
	if patch.Location != nil {
		set["location"] = merged.Location
	}
	if patch.Capacity != nil {
		set["capacity"] = merged.Capacity
	}
	if patch.Amenities != nil {
		set["amenities"] = merged.Amenities
	}
	if patch.Status != nil {
		set["status"] = merged.Status
	}
	if patch.IsActive != nil {
		set["isActive"] = merged.IsActive
	}
	if patch.Rating != nil {
		set["rating"] = merged.Rating
	}
	if patch.ContactPhone != nil {
		set["contactPhone"] = merged.ContactPhone
	}
	if patch.Description != nil {
		set["description"] = merged.Description
	}

	oid, _ := primitive.ObjectIDFromHex(id)
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc zoneDoc
	if err := m.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(&doc); err != nil {
		return nil, m.fail(ctx, op, err)
	}
	z := doc.toModel()
	return &z, nil
}

func (m *Mongo) SoftDelete(ctx context.Context, id string) error {
	const op = "store.Mongo.SoftDelete"
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	res, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "isActive": true},
		bson.M{"$set": bson.M{"isActive": false, "updatedAt": m.now()}},
	)
	if err != nil {
		return m.fail(ctx, op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	return nil
}

// SetOccupancy applies models.NextStatus server side through a pipeline
// update, so the read of status/max and the write happen in one atomic step.
// The pre-image is returned by the driver; the post-image is derived from it.
func (m *Mongo) SetOccupancy(ctx context.Context, id string, current int) (*models.SafeZone, *models.SafeZone, error) {
	const op = "store.Mongo.SetOccupancy"
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	now := m.now()
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "status", Value: bson.D{{Key: "$switch", Value: bson.D{
				{Key: "branches", Value: bson.A{
					bson.D{
						{Key: "case", Value: bson.D{{Key: "$gte", Value: bson.A{current, "$capacity.max"}}}},
						{Key: "then", Value: string(models.StatusFull)},
					},
					bson.D{
						{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{"$status", string(models.StatusFull)}}}},
						{Key: "then", Value: string(models.StatusActive)},
					},
				}},
				{Key: "default", Value: "$status"},
			}}}},
			{Key: "capacity.current", Value: current},
			{Key: "updatedAt", Value: now},
		}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	var doc zoneDoc
	err = m.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid, "isActive": true}, update, opts).Decode(&doc)
	if err != nil {
		return nil, nil, m.fail(ctx, op, err)
	}

	before := doc.toModel()
	after := before.Clone()
	after.Status = models.NextStatus(before.Status, current, before.Capacity.Max)
	after.Capacity.Current = current
	after.UpdatedAt = now
	return &before, &after, nil
}

func (m *Mongo) AddPhoto(ctx context.Context, id string, photo models.MediaPointer) (*models.SafeZone, error) {
	const op = "store.Mongo.AddPhoto"
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{
		"$push": bson.M{"photos": photo},
		"$set":  bson.M{"updatedAt": m.now()},
	}
	var doc zoneDoc
	if err := m.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid, "isActive": true}, update, opts).Decode(&doc); err != nil {
		return nil, m.fail(ctx, op, err)
	}
	z := doc.toModel()
	return &z, nil
}

func (m *Mongo) CountActive(ctx context.Context, filter Filter) (int64, error) {
	const op = "store.Mongo.CountActive"
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	n, err := m.coll.CountDocuments(ctx, activeFilter(filter))
	if err != nil {
		return 0, m.fail(ctx, op, err)
	}
	return n, nil
}

func (m *Mongo) SumCapacity(ctx context.Context, filter Filter) (CapacityTotals, error) {
	const op = "store.Mongo.SumCapacity"
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: activeFilter(filter)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$capacity.max"}}},
			{Key: "occupied", Value: bson.D{{Key: "$sum", Value: "$capacity.current"}}},
		}}},
	}

	cursor, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return CapacityTotals{}, m.fail(ctx, op, err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Total    int64 `bson:"total"`
		Occupied int64 `bson:"occupied"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return CapacityTotals{}, m.fail(ctx, op, err)
	}
	if len(rows) == 0 {
		return CapacityTotals{}, nil
	}
	return CapacityTotals{Total: rows[0].Total, Occupied: rows[0].Occupied}, nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return e.WrapMongo(ctx, "store.Mongo.Ping", err)
	}
	return nil
}
