// Package lifx bridges the light service onto MQTT.
//
// Every tracked light gets a retained state topic that is republished
// whenever one of its properties changes, and a command topic that accepts
// JSON commands from other Gray Logic components:
//
//	graylogic/state/lifx/{light_id}     retained StateMessage
//	graylogic/command/lifx/{light_id}   CommandMessage in
//	graylogic/ack/lifx/{light_id}       AckMessage out
//	graylogic/health/lifx               retained HealthMessage, periodic
//	graylogic/discovery/lifx            DiscoveryMessage when a light appears
//
// Supported commands are on, off, set_color, set_brightness, set_label,
// set_infrared, set_zones and refresh. Each command is answered with one
// acknowledgement carrying either "accepted" or "failed" plus an error code.
//
// State publication goes through a bounded queue drained by a single
// worker, so change notifications raised on the service dispatch loop never
// wait on the broker.
package lifx
