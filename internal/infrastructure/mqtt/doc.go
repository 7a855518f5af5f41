// Package mqtt provides the MQTT client the lifx bridge publishes through.
//
// This package manages:
//   - Connection to the broker with auto-reconnect and subscription restore
//   - Publishing with QoS and size validation
//   - The flat topic scheme {prefix}/{category}/lifx/{light_id}
//   - A retained online/offline status with a Last Will
//
// Usage:
//
//	topics := mqtt.NewTopics(cfg.Bridge.TopicPrefix)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.AllCommands(), 1, handleCommand)
//
// TLS (cfg.Broker.TLS) should be enabled whenever the broker is not on the
// same host.
package mqtt
