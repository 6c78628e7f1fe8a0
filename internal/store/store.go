// Package store persists safe zones. Two implementations share one contract:
// Memory for development and tests, Mongo for deployments.
package store

import (
	"context"

	"safezone-api-server/internal/geo"
	"safezone-api-server/internal/models"
)

// Filter narrows CountActive, SumCapacity and FindAll. Empty fields match all.
type Filter struct {
	Status models.SafeZoneStatus
	Type   models.SafeZoneType
}

func (f Filter) match(z *models.SafeZone) bool {
	if f.Status != "" && z.Status != f.Status {
		return false
	}
	if f.Type != "" && z.Type != f.Type {
		return false
	}
	return true
}

type CapacityTotals struct {
	Total    int64 `json:"total"`
	Occupied int64 `json:"occupied"`
}

// Repository is the safe zone store. Every list operation only sees active
// records; FindByID also resolves soft-deleted ones. Returned values are
// copies owned by the caller.
type Repository interface {
	FindWithinRadius(ctx context.Context, center geo.Point, radiusMeters float64) ([]models.SafeZone, error)
	FindAll(ctx context.Context, filter Filter) ([]models.SafeZone, error)
	FindByID(ctx context.Context, id string) (*models.SafeZone, error)
	Create(ctx context.Context, zone *models.SafeZone) (*models.SafeZone, error)
	Update(ctx context.Context, id string, patch models.SafeZonePatch) (*models.SafeZone, error)
	SoftDelete(ctx context.Context, id string) error
	SetOccupancy(ctx context.Context, id string, current int) (before, after *models.SafeZone, err error)
	AddPhoto(ctx context.Context, id string, photo models.MediaPointer) (*models.SafeZone, error)
	CountActive(ctx context.Context, filter Filter) (int64, error)
	SumCapacity(ctx context.Context, filter Filter) (CapacityTotals, error)
	Ping(ctx context.Context) error
}

// UserRepository backs login and seeding.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	CountUsers(ctx context.Context, email string) (int64, error)
}
