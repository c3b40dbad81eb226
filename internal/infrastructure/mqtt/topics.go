package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the HearthSync MQTT namespace.
//
// Incoming entity events follow the statestream scheme published by the
// external controller: hearthsync/statestream/{domain}/{object}/{kind}.
// Outgoing sync events live under hearthsync/sync.
const (
	// TopicPrefix is the base for all HearthSync topics.
	TopicPrefix = "hearthsync"

	// TopicPrefixStatestream is the base for controller entity events.
	TopicPrefixStatestream = "hearthsync/statestream"

	// TopicPrefixSync is the base for sync engine events.
	TopicPrefixSync = "hearthsync/sync"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "hearthsync/system"
)

// Topics provides builders for HearthSync MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.StatestreamState("light", "kitchen")
//	// Returns: "hearthsync/statestream/light/kitchen/state"
type Topics struct{}

// StatestreamState returns the topic carrying an entity's state value.
//
// Example: hearthsync/statestream/light/kitchen/state
func (Topics) StatestreamState(domain, object string) string {
	return fmt.Sprintf("%s/%s/%s/state", TopicPrefixStatestream, domain, object)
}

// StatestreamAttributes returns the topic carrying an entity's attributes JSON.
//
// Example: hearthsync/statestream/light/kitchen/attributes
func (Topics) StatestreamAttributes(domain, object string) string {
	return fmt.Sprintf("%s/%s/%s/attributes", TopicPrefixStatestream, domain, object)
}

// StatestreamDeleted returns the topic signalling an entity was removed
// from the controller.
//
// Example: hearthsync/statestream/light/kitchen/deleted
func (Topics) StatestreamDeleted(domain, object string) string {
	return fmt.Sprintf("%s/%s/%s/deleted", TopicPrefixStatestream, domain, object)
}

// SyncEvent returns the topic for sync engine events.
//
// Example: hearthsync/sync/event/run_completed
func (Topics) SyncEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixSync, eventType)
}

// EntityUpdated returns the topic on which HearthSync announces registry
// changes to dashboard clients.
//
// Example: hearthsync/sync/entity/light.kitchen
func (Topics) EntityUpdated(localID string) string {
	return fmt.Sprintf("%s/entity/%s", TopicPrefixSync, localID)
}

// SystemStatus returns the system status topic (LWT target).
//
// Example: hearthsync/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllStatestreamStates returns a pattern matching every entity state update.
//
// Pattern: hearthsync/statestream/+/+/state
func (Topics) AllStatestreamStates() string {
	return fmt.Sprintf("%s/+/+/state", TopicPrefixStatestream)
}

// AllStatestreamAttributes returns a pattern matching every attributes update.
//
// Pattern: hearthsync/statestream/+/+/attributes
func (Topics) AllStatestreamAttributes() string {
	return fmt.Sprintf("%s/+/+/attributes", TopicPrefixStatestream)
}

// AllStatestreamDeleted returns a pattern matching every deletion signal.
//
// Pattern: hearthsync/statestream/+/+/deleted
func (Topics) AllStatestreamDeleted() string {
	return fmt.Sprintf("%s/+/+/deleted", TopicPrefixStatestream)
}

// AllTopics returns a pattern matching all HearthSync topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: hearthsync/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// ParseStatestreamTopic extracts the domain, object and kind from a
// statestream topic. Kind is one of "state", "attributes" or "deleted".
//
// Returns ok=false for topics outside the statestream namespace.
func ParseStatestreamTopic(topic string) (domain, object, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixStatestream+"/")
	if !found {
		return "", "", "", false
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}

	switch parts[2] {
	case "state", "attributes", "deleted":
		return parts[0], parts[1], parts[2], true
	default:
		return "", "", "", false
	}
}
