// server/internal/database/seeder.go
package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"safezone-api-server/config"
	"safezone-api-server/internal/auth"
	"safezone-api-server/internal/models"
	"safezone-api-server/internal/store"
)

// SeedSuperAdmin creates the configured super admin when it does not exist.
// Without a configured password a random one is generated and logged once.
func SeedSuperAdmin(ctx context.Context, users store.UserRepository, cfg config.AdminConfig, logger *slog.Logger) error {
	count, err := users.CountUsers(ctx, cfg.Email)
	if err != nil {
		return fmt.Errorf("count super admin: %w", err)
	}
	if count > 0 {
		logger.Info("Super admin already exists. Seeding skipped.", slog.String("email", cfg.Email))
		return nil
	}

	logger.Info("Super admin not found. Seeding...", slog.String("email", cfg.Email))
	password := cfg.Password
	if password == "" {
		password = uuid.NewString()
		logger.Warn("ADMIN_PASSWORD not set, generated a one-time password", slog.String("password", password))
	}
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	superAdmin := &models.User{
		Email:    cfg.Email,
		Name:     cfg.Name,
		Password: hashedPassword,
		Role:     models.RoleSuperAdmin,
		Status:   "active",
	}
	if err := users.CreateUser(ctx, superAdmin); err != nil {
		return fmt.Errorf("create super admin: %w", err)
	}

	logger.Info("Super admin seeded successfully.")
	return nil
}

// SampleZones are well known relief sites across Sri Lanka used for demos.
func SampleZones() []models.SafeZone {
	zone := func(name string, typ models.SafeZoneType, lat, lng float64, city, district, province string, current, max int, a models.Amenities) models.SafeZone {
		loc := models.NewLocation(lat, lng)
		loc.City = city
		loc.District = district
		loc.Province = province
		return models.SafeZone{
			Name:      name,
			Type:      typ,
			Location:  loc,
			Capacity:  models.Capacity{Current: current, Max: max},
			Amenities: a,
		}
	}
	full := models.Amenities{Water: true, Food: true, Medical: true, Power: true, Shelter: true, Sanitation: true, Communication: true, Blankets: true, FirstAid: true}
	basic := models.Amenities{Water: true, Shelter: true, Sanitation: true}

	return []models.SafeZone{
		zone("Colombo Town Hall Relief Centre", models.TypeGovernmentBuilding, 6.9157, 79.8636, "Colombo", "Colombo", "Western", 120, 500, full),
		zone("Sugathadasa Stadium Shelter", models.TypeStadium, 6.9497, 79.8716, "Colombo", "Colombo", "Western", 40, 1500, basic),
		zone("National Hospital Colombo", models.TypeHospital, 6.9188, 79.8681, "Colombo", "Colombo", "Western", 300, 350, models.Amenities{Water: true, Medical: true, Power: true, FirstAid: true}),
		zone("Gampaha Central College", models.TypeSchool, 7.0873, 79.9990, "Gampaha", "Gampaha", "Western", 45, 200, basic),
		zone("Kalutara Bodhiya Hall", models.TypeReligiousCenter, 6.5854, 79.9607, "Kalutara", "Kalutara", "Western", 200, 200, models.Amenities{Water: true, Food: true, Blankets: true}),
		zone("Kandy City Community Centre", models.TypeCommunityCenter, 7.2906, 80.6337, "Kandy", "Kandy", "Central", 60, 400, full),
		zone("Galle Esplanade Shelter", models.TypeShelter, 6.0329, 80.2168, "Galle", "Galle", "Southern", 10, 250, basic),
		zone("Ratnapura Provincial Hospital", models.TypeHospital, 6.6828, 80.3992, "Ratnapura", "Ratnapura", "Sabaragamuwa", 150, 300, models.Amenities{Water: true, Medical: true, Power: true, FirstAid: true}),
		zone("Jaffna Hindu College", models.TypeSchool, 9.6684, 80.0074, "Jaffna", "Jaffna", "Northern", 0, 350, basic),
		zone("Batticaloa Kallady Shelter", models.TypeShelter, 7.7170, 81.7000, "Batticaloa", "Batticaloa", "Eastern", 85, 180, models.Amenities{Water: true, Food: true, Shelter: true}),
	}
}

// SeedSampleZones inserts SampleZones when the store has no active zone.
func SeedSampleZones(ctx context.Context, repo store.Repository, logger *slog.Logger) error {
	n, err := repo.CountActive(ctx, store.Filter{})
	if err != nil {
		return fmt.Errorf("count safe zones: %w", err)
	}
	if n > 0 {
		logger.Info("Safe zones already present. Sample seeding skipped.", slog.Int64("count", n))
		return nil
	}

	for _, z := range SampleZones() {
		created, err := repo.Create(ctx, &z)
		if err != nil {
			return fmt.Errorf("seed %q: %w", z.Name, err)
		}
		if created.Capacity.Current >= created.Capacity.Max {
			// Apply the occupancy rule so seeded full sites start as Full.
			if _, _, err := repo.SetOccupancy(ctx, created.ID, created.Capacity.Current); err != nil {
				return fmt.Errorf("seed %q occupancy: %w", z.Name, err)
			}
		}
	}
	logger.Info("Sample safe zones seeded.", slog.Int("count", len(SampleZones())))
	return nil
}
