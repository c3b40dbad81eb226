package controller

import (
	"time"

	"github.com/hearthlabs/hearthsync/internal/entity"
)

// ExternalState is one entity record as reported by the external controller.
// It is the input unit of both the full-snapshot and the incremental paths
// of the sync engine.
type ExternalState struct {
	// ExternalID is the controller-side identifier, "<domain>.<object>".
	ExternalID string `json:"entity_id"`

	// State is the free-form state string ("on", "23.5", "unavailable", ...).
	State string `json:"state"`

	// Attributes is the opaque attribute map reported alongside the state.
	Attributes entity.Attributes `json:"attributes"`

	LastChanged time.Time `json:"last_changed"`
	LastUpdated time.Time `json:"last_updated"`
}

// Domain returns the domain prefix of the external identifier.
func (s ExternalState) Domain() string {
	return entity.DomainOf(s.ExternalID)
}

// Object returns the object part of the external identifier.
func (s ExternalState) Object() string {
	return entity.ObjectOf(s.ExternalID)
}

// FriendlyName returns the display name from the attributes, falling back to
// a humanised object part when the controller reports none.
func (s ExternalState) FriendlyName() string {
	if name, ok := s.Attributes["friendly_name"].(string); ok && name != "" {
		return name
	}
	return entity.DefaultNameFor(s.ExternalID)
}

// Icon returns the icon from the attributes, or nil when absent.
func (s ExternalState) Icon() *string {
	if icon, ok := s.Attributes["icon"].(string); ok && icon != "" {
		return &icon
	}
	return nil
}
