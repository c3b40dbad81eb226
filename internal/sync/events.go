package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hearthlabs/hearthsync/internal/entity"
	"github.com/hearthlabs/hearthsync/internal/infrastructure/mqtt"
)

// Subscriber is the MQTT surface the event bridge depends on.
// *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// EventBridge feeds the controller's statestream topics into the
// incremental update handler.
//
// Delivery is at least once with no ordering guarantee relative to full
// passes; handler errors are logged and swallowed because the next full
// pass self-corrects.
type EventBridge struct {
	engine *Engine
	client Subscriber
	qos    byte
	logger Logger
}

// NewEventBridge creates a bridge between the broker and the engine.
func NewEventBridge(engine *Engine, client Subscriber, qos byte) *EventBridge {
	return &EventBridge{
		engine: engine,
		client: client,
		qos:    qos,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (b *EventBridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to the statestream topics. The context bounds the
// lifetime of the handlers' registry operations.
func (b *EventBridge) Start(ctx context.Context) error {
	topics := mqtt.Topics{}

	if err := b.client.Subscribe(topics.AllStatestreamStates(), b.qos, b.handleState(ctx)); err != nil {
		return fmt.Errorf("subscribing to state events: %w", err)
	}
	if err := b.client.Subscribe(topics.AllStatestreamAttributes(), b.qos, b.handleAttributes(ctx)); err != nil {
		return fmt.Errorf("subscribing to attribute events: %w", err)
	}
	if err := b.client.Subscribe(topics.AllStatestreamDeleted(), b.qos, b.handleDeleted(ctx)); err != nil {
		return fmt.Errorf("subscribing to deletion events: %w", err)
	}

	b.logger.Info("event bridge subscribed to statestream")
	return nil
}

// handleState applies a state payload as an incremental update.
func (b *EventBridge) handleState(ctx context.Context) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		domain, object, _, ok := mqtt.ParseStatestreamTopic(topic)
		if !ok {
			return fmt.Errorf("unparseable statestream topic %q", topic)
		}

		update := Update{
			ExternalID: domain + "." + object,
			State:      string(payload),
		}
		if _, err := b.engine.ApplyIncrementalUpdate(ctx, update, nil); err != nil {
			b.logger.Warn("incremental update dropped", "topic", topic, "error", err)
		}
		return nil
	}
}

// handleAttributes merges an attributes payload into the linked record,
// keeping the stored state. Unknown identifiers wait for the next full
// pass, like every other incremental event.
func (b *EventBridge) handleAttributes(ctx context.Context) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		domain, object, _, ok := mqtt.ParseStatestreamTopic(topic)
		if !ok {
			return fmt.Errorf("unparseable statestream topic %q", topic)
		}
		externalID := domain + "." + object

		var attrs entity.Attributes
		if err := json.Unmarshal(payload, &attrs); err != nil {
			return fmt.Errorf("unparseable attributes payload on %q: %w", topic, err)
		}

		local, err := b.engine.store.GetEntityByExternalID(ctx, externalID)
		if err != nil {
			b.logger.Debug("attributes for unknown identifier, awaiting full sync",
				"external_id", externalID)
			return nil
		}

		update := Update{
			ExternalID: externalID,
			State:      local.State,
			Attributes: attrs,
		}
		if _, err := b.engine.ApplyIncrementalUpdate(ctx, update, nil); err != nil {
			b.logger.Warn("attribute update dropped", "topic", topic, "error", err)
		}
		return nil
	}
}

// handleDeleted mirrors the soft-delete policy on deletion notifications.
func (b *EventBridge) handleDeleted(ctx context.Context) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		domain, object, _, ok := mqtt.ParseStatestreamTopic(topic)
		if !ok {
			return fmt.Errorf("unparseable statestream topic %q", topic)
		}
		return b.engine.HandleDeletionEvent(ctx, domain+"."+object)
	}
}
