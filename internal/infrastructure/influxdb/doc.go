// Package influxdb provides InfluxDB connectivity for light telemetry.
//
// It wraps influxdb-client-go v2 with non-blocking batched writes. Light
// state points are tagged with the light id and label so dashboards can
// chart brightness, colour and reachability per device.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteLightState(influxdb.LightState{LightID: id, Power: 0xFFFF})
//
// Write errors arrive asynchronously through SetOnError. Connection and
// health check errors are returned directly.
package influxdb
