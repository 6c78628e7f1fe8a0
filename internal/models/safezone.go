// server/internal/models/safezone.go
package models

import (
	"math"
	"time"

	"safezone-api-server/internal/geo"
)

type SafeZoneType string

const (
	TypeShelter            SafeZoneType = "Shelter"
	TypeHospital           SafeZoneType = "Hospital"
	TypeCommunityCenter    SafeZoneType = "Community Center"
	TypeSchool             SafeZoneType = "School"
	TypeReligiousCenter    SafeZoneType = "Religious Center"
	TypeGovernmentBuilding SafeZoneType = "Government Building"
	TypeStadium            SafeZoneType = "Stadium"
	TypeOther              SafeZoneType = "Other"
)

var SafeZoneTypes = []SafeZoneType{
	TypeShelter, TypeHospital, TypeCommunityCenter, TypeSchool,
	TypeReligiousCenter, TypeGovernmentBuilding, TypeStadium, TypeOther,
}

type SafeZoneStatus string

const (
	StatusActive                 SafeZoneStatus = "Active"
	StatusFull                   SafeZoneStatus = "Full"
	StatusClosed                 SafeZoneStatus = "Closed"
	StatusTemporarilyUnavailable SafeZoneStatus = "Temporarily Unavailable"
)

var SafeZoneStatuses = []SafeZoneStatus{
	StatusActive, StatusFull, StatusClosed, StatusTemporarilyUnavailable,
}

// Labels returned by SafeZone.CapacityStatus. They are advisory only and
// never drive business logic; the persisted Status does.
const (
	CapacityFull       = "Full"
	CapacityAlmostFull = "Almost Full"
	CapacityFillingUp  = "Filling Up"
	CapacityAvailable  = "Available"
)

// Location is a GeoJSON point plus the postal fields used for filtering.
// Coordinates are [longitude, latitude].
type Location struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates" validate:"required,lnglat"`
	Address     string    `bson:"address,omitempty" json:"address,omitempty"`
	City        string    `bson:"city,omitempty" json:"city,omitempty"`
	District    string    `bson:"district,omitempty" json:"district,omitempty"`
	Province    string    `bson:"province,omitempty" json:"province,omitempty"`
}

func NewLocation(lat, lng float64) Location {
	return Location{Type: "Point", Coordinates: []float64{lng, lat}}
}

// Point returns the coordinate pair; zero when coordinates are malformed.
func (l Location) Point() geo.Point {
	if len(l.Coordinates) != 2 {
		return geo.Point{}
	}
	return geo.Point{Lat: l.Coordinates[1], Lng: l.Coordinates[0]}
}

type Capacity struct {
	Current int `bson:"current" json:"current" validate:"min=0"`
	Max     int `bson:"max" json:"max" validate:"min=1"`
}

type Amenities struct {
	Water         bool `bson:"water" json:"water"`
	Food          bool `bson:"food" json:"food"`
	Medical       bool `bson:"medical" json:"medical"`
	Power         bool `bson:"power" json:"power"`
	Shelter       bool `bson:"shelter" json:"shelter"`
	Sanitation    bool `bson:"sanitation" json:"sanitation"`
	Communication bool `bson:"communication" json:"communication"`
	Blankets      bool `bson:"blankets" json:"blankets"`
	FirstAid      bool `bson:"firstAid" json:"firstAid"`
}

// AmenityNames lists the flag names accepted by Amenities.Has.
var AmenityNames = []string{
	"water", "food", "medical", "power", "shelter",
	"sanitation", "communication", "blankets", "firstAid",
}

// Has reports whether the named flag is set. known is false for names that
// are not amenity flags.
func (a Amenities) Has(name string) (set bool, known bool) {
	switch name {
	case "water":
		return a.Water, true
	case "food":
		return a.Food, true
	case "medical":
		return a.Medical, true
	case "power":
		return a.Power, true
	case "shelter":
		return a.Shelter, true
	case "sanitation":
		return a.Sanitation, true
	case "communication":
		return a.Communication, true
	case "blankets":
		return a.Blankets, true
	case "firstAid":
		return a.FirstAid, true
	}
	return false, false
}

type Rating struct {
	Average float64 `bson:"average" json:"average" validate:"min=0,max=5"`
	Count   int     `bson:"count" json:"count" validate:"min=0"`
}

type SafeZone struct {
	ID           string         `bson:"-" json:"id"`
	Name         string         `bson:"name" json:"name" validate:"required,max=100"`
	Type         SafeZoneType   `bson:"type" json:"type" validate:"required,safezone_type"`
	Location     Location       `bson:"location" json:"location"`
	Capacity     Capacity       `bson:"capacity" json:"capacity"`
	Amenities    Amenities      `bson:"amenities" json:"amenities"`
	Status       SafeZoneStatus `bson:"status" json:"status" validate:"safezone_status"`
	IsActive     bool           `bson:"isActive" json:"isActive"`
	Rating       Rating         `bson:"rating" json:"rating"`
	ContactPhone string         `bson:"contactPhone,omitempty" json:"contactPhone,omitempty" validate:"max=20"`
	Description  string         `bson:"description,omitempty" json:"description,omitempty" validate:"max=500"`
	Photos       []MediaPointer `bson:"photos,omitempty" json:"photos,omitempty"`
	CreatedAt    time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// OccupancyPercentage is round(current / max * 100).
func (z SafeZone) OccupancyPercentage() int {
	if z.Capacity.Max <= 0 {
		return 0
	}
	return int(math.Round(float64(z.Capacity.Current) / float64(z.Capacity.Max) * 100))
}

func (z SafeZone) AvailableSpots() int {
	return z.Capacity.Max - z.Capacity.Current
}

// CapacityStatus derives a UI label from occupancy. It can disagree with
// Status, e.g. a zone at 95% keeps Status Active.
func (z SafeZone) CapacityStatus() string {
	p := z.OccupancyPercentage()
	switch {
	case p >= 100:
		return CapacityFull
	case p >= 90:
		return CapacityAlmostFull
	case p >= 70:
		return CapacityFillingUp
	default:
		return CapacityAvailable
	}
}

// Clone returns a copy that shares no slices with z.
func (z SafeZone) Clone() SafeZone {
	out := z
	if z.Location.Coordinates != nil {
		out.Location.Coordinates = append([]float64(nil), z.Location.Coordinates...)
	}
	if z.Photos != nil {
		out.Photos = append([]MediaPointer(nil), z.Photos...)
	}
	return out
}

// ApplyDefaults fills the fields a new record may omit.
func (z *SafeZone) ApplyDefaults() {
	if z.Status == "" {
		z.Status = StatusActive
	}
	if z.Location.Type == "" {
		z.Location.Type = "Point"
	}
}

// SafeZonePatch is a partial update; nil fields are left untouched.
type SafeZonePatch struct {
	Name         *string         `json:"name"`
	Type         *SafeZoneType   `json:"type"`
	Location     *Location       `json:"location"`
	Capacity     *Capacity       `json:"capacity"`
	Amenities    *Amenities      `json:"amenities"`
	Status       *SafeZoneStatus `json:"status"`
	IsActive     *bool           `json:"isActive"`
	Rating       *Rating         `json:"rating"`
	ContactPhone *string         `json:"contactPhone"`
	Description  *string         `json:"description"`
}

func (p SafeZonePatch) Apply(z *SafeZone) {
	if p.Name != nil {
		z.Name = *p.Name
	}
	if p.Type != nil {
		z.Type = *p.Type
	}
	if p.Location != nil {
		z.Location = *p.Location
		z.Location.Coordinates = append([]float64(nil), p.Location.Coordinates...)
		if z.Location.Type == "" {
			z.Location.Type = "Point"
		}
	}
	if p.Capacity != nil {
		z.Capacity = *p.Capacity
	}
	if p.Amenities != nil {
		z.Amenities = *p.Amenities
	}
	if p.Status != nil {
		z.Status = *p.Status
	}
	if p.IsActive != nil {
		z.IsActive = *p.IsActive
	}
	if p.Rating != nil {
		z.Rating = *p.Rating
	}
	if p.ContactPhone != nil {
		z.ContactPhone = *p.ContactPhone
	}
	if p.Description != nil {
		z.Description = *p.Description
	}
}

func (p SafeZonePatch) Empty() bool {
	return p == SafeZonePatch{}
}
