// Package mqtt provides the MQTT gateway connection for wpaif.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions restored after reconnect
//   - Last Will and Testament (LWT) on the availability topic
//
// # Topics
//
// Every topic hangs off the bridge base topic (bridge.topic_root + bridge.name):
//
//	<base>               workflow results, status and signal telemetry
//	<base>/action        inbound requests
//	<base>/event         unsolicited wpa_supplicant notifications
//	<base>/health        retained health report
//	<base>/availability  retained online/offline (LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.NewTopics(cfg.Bridge.Topic()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.PublishJSON(client.Topics().Results(), msg, false)
package mqtt
