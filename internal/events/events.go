// Package events carries safe zone change notifications to live dashboards
// and downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"safezone-api-server/internal/models"
)

type Type string

const (
	ZoneCreated      Type = "safezone.created"
	ZoneUpdated      Type = "safezone.updated"
	ZoneDeleted      Type = "safezone.deleted"
	OccupancyChanged Type = "safezone.occupancy"
	PhotoAdded       Type = "safezone.photo"
)

type Event struct {
	Type   Type                  `json:"type"`
	ZoneID string                `json:"zoneId"`
	Zone   *models.SafeZone      `json:"zone,omitempty"`
	From   models.SafeZoneStatus `json:"from,omitempty"`
	To     models.SafeZoneStatus `json:"to,omitempty"`
	Actor  string                `json:"actor,omitempty"`
	At     time.Time             `json:"at"`
}

// StatusChanged reports whether the event moved the zone between statuses.
func (ev Event) StatusChanged() bool {
	return ev.From != "" && ev.From != ev.To
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Broadcaster is satisfied by socket.Hub.
type Broadcaster interface {
	Broadcast(message []byte)
}

// HubPublisher pushes events as JSON text frames to websocket clients.
type HubPublisher struct {
	hub Broadcaster
}

func NewHubPublisher(hub Broadcaster) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(_ context.Context, ev Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	p.hub.Broadcast(msg)
	return nil
}
