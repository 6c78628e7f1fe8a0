// Package safezone answers safe zone searches and applies every mutation:
// create, update, soft delete, occupancy changes and photos. Writes are
// authorized, published as events and invalidate the cached stats.
package safezone

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"safezone-api-server/internal/auth"
	"safezone-api-server/internal/events"
	"safezone-api-server/internal/metrics"
	"safezone-api-server/internal/models"
	"safezone-api-server/internal/store"
	"safezone-api-server/pkg/e"
)

// StatsCache holds the last computed Stats. *cache.RedisJSON[Stats]
// satisfies it.
type StatsCache interface {
	Get(ctx context.Context) (Stats, bool, error)
	Set(ctx context.Context, s Stats) error
	Invalidate(ctx context.Context) error
}

// PhotoStore uploads a photo and returns its URL. *s3.Uploader satisfies it.
type PhotoStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

type Service struct {
	repo   store.Repository
	authz  auth.Authorizer
	events events.Publisher
	stats  StatsCache
	photos PhotoStore
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithAuthorizer(a auth.Authorizer) Option { return func(s *Service) { s.authz = a } }
func WithPublisher(p events.Publisher) Option  { return func(s *Service) { s.events = p } }
func WithStatsCache(c StatsCache) Option       { return func(s *Service) { s.stats = c } }
func WithPhotoStore(p PhotoStore) Option       { return func(s *Service) { s.photos = p } }

// NewService defaults to role based authorization and no event sinks.
func NewService(repo store.Repository, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		authz:  auth.NewRoleAuthorizer(),
		events: events.Nop{},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) Create(ctx context.Context, zone *models.SafeZone) (*View, error) {
	const op = "safezone.Service.Create"
	if err := s.authz.Authorize(ctx, auth.OpCreate); err != nil {
		return nil, e.Wrap(op, err)
	}
	if zone == nil {
		return nil, e.InvalidArgument(op, "safe zone body is required")
	}

	created, err := s.repo.Create(ctx, zone)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	s.logger.Info("safe zone created", slog.String("id", created.ID), slog.String("name", created.Name))
	s.changed(ctx, events.Event{Type: events.ZoneCreated, ZoneID: created.ID, Zone: created})
	v := NewView(*created, nil)
	return &v, nil
}

func (s *Service) Update(ctx context.Context, id string, patch models.SafeZonePatch) (*View, error) {
	const op = "safezone.Service.Update"
	if err := s.authz.Authorize(ctx, auth.OpUpdate); err != nil {
		return nil, e.Wrap(op, err)
	}
	if patch.Empty() {
		return nil, e.InvalidArgument(op, "update has no fields")
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	s.logger.Info("safe zone updated", slog.String("id", id))
	s.changed(ctx, events.Event{Type: events.ZoneUpdated, ZoneID: id, Zone: updated})
	v := NewView(*updated, nil)
	return &v, nil
}

// Delete soft deletes the zone; it stays readable by ID.
func (s *Service) Delete(ctx context.Context, id string) error {
	const op = "safezone.Service.Delete"
	if err := s.authz.Authorize(ctx, auth.OpDelete); err != nil {
		return e.Wrap(op, err)
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return e.Wrap(op, err)
	}

	s.logger.Info("safe zone deactivated", slog.String("id", id))
	s.changed(ctx, events.Event{Type: events.ZoneDeleted, ZoneID: id})
	return nil
}

type PhotoUpload struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

func (s *Service) AddPhoto(ctx context.Context, id string, upload PhotoUpload) (*View, error) {
	const op = "safezone.Service.AddPhoto"
	if err := s.authz.Authorize(ctx, auth.OpUploadPhoto); err != nil {
		return nil, e.Wrap(op, err)
	}
	if s.photos == nil {
		return nil, fmt.Errorf("%s: photo storage is not configured: %w", op, e.ErrStorageUnavailable)
	}
	if upload.Body == nil {
		return nil, e.InvalidArgument(op, "photo file is required")
	}
	if !strings.HasPrefix(upload.ContentType, "image/") {
		return nil, e.InvalidArgument(op, "photo must be an image")
	}

	// Fail before uploading when the zone cannot take the photo.
	zone, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if !zone.IsActive {
		return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}

	photoID := uuid.NewString()
	key := fmt.Sprintf("safezones/%s/%s%s", id, photoID, strings.ToLower(path.Ext(upload.FileName)))
	url, err := s.photos.Upload(ctx, key, upload.Body, upload.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", op, err, e.ErrStorageUnavailable)
	}

	photo := models.MediaPointer{
		ID:       photoID,
		URL:      url,
		FileName: upload.FileName,
		FileType: upload.ContentType,
	}
	if c, ok := auth.CallerFrom(ctx); ok {
		photo.UploadedBy = c.Email
	}

	updated, err := s.repo.AddPhoto(ctx, id, photo)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	s.changed(ctx, events.Event{Type: events.PhotoAdded, ZoneID: id, Zone: updated})
	v := NewView(*updated, nil)
	return &v, nil
}

// changed publishes ev and drops the cached stats. Neither failure is
// returned: the mutation has already been committed.
func (s *Service) changed(ctx context.Context, ev events.Event) {
	ev.At = s.now()
	if c, ok := auth.CallerFrom(ctx); ok {
		ev.Actor = c.Email
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		metrics.EventPublishFailuresTotal.Inc()
		s.logger.Warn("publish event failed", slog.String("type", string(ev.Type)), slog.String("zone", ev.ZoneID), slog.Any("error", err))
	}
	if s.stats != nil {
		if err := s.stats.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate stats cache failed", slog.Any("error", err))
		}
	}
}
