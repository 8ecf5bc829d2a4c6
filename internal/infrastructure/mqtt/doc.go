// Package mqtt provides the broker transport for the Starlink bridge.
//
// This package manages:
//   - Connection to the broker (TCP or TLS, optional client certificate)
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - A retained "offline" Last Will and Testament (LWT)
//
// Reconnection is not automatic. The bridge's session owns the retry loop,
// so after a connection loss it can resubscribe and replay its retained
// cache in order.
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT, "taphome/starlink/status", logger)
//	if err != nil {
//	    return err
//	}
//	client.SetHandlers(onMessage, onLost)
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Disconnect()
//
//	err = client.Subscribe("taphome/starlink/#", 1)
//	err = client.Publish("taphome/starlink/status", []byte("online"), 1, true)
package mqtt
