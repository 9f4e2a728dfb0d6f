// Package mqtt provides MQTT client connectivity for huesync.
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
// huesync mirrors its state tree over MQTT. Every mapped tree node is
// published retained on a state topic, node metadata on a meta topic,
// and external clients write by publishing to the matching set topic:
//
//	huesync/state/<path...>   retained node values (published by huesync)
//	huesync/meta/<path...>    retained node metadata (published by huesync)
//	huesync/set/<path...>     inbound write requests (published by clients)
//	huesync/health            retained bridge health status
//	huesync/system/status     online/offline status, doubles as LWT topic
//
// Tree paths are dot-separated internally; each dot becomes a topic level
// on the wire.
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
//	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
//
//	// Receive write requests
//	err = client.Subscribe(topics.AllSets(), 1,
//	    func(topic string, payload []byte) error {
//	        path, _ := topics.SetPath(topic)
//	        log.Printf("write: %s = %s", path, payload)
//	        return nil
//	    })
//
//	// Publish a state value
//	client.PublishRetained(topics.State("lights.lamp-001.action.on"), []byte("true"))
package mqtt
