// Package mqtt provides MQTT client connectivity for HearthSync.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// HearthSync uses MQTT as the real-time event feed from the external
// controller. The controller publishes entity state, attributes and
// deletion events on statestream topics; HearthSync subscribes and feeds
// them into the incremental update handler. Sync results and registry
// changes are published back under the sync namespace for dashboards.
//
//	Controller → MQTT Broker → HearthSync → MQTT Broker → Dashboards
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all entity state updates
//	err = client.Subscribe(mqtt.Topics{}.AllStatestreamStates(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a registry change
//	topic := mqtt.Topics{}.EntityUpdated("light.kitchen")
//	client.Publish(topic, []byte(`{"state":"on"}`), 1, false)
package mqtt
