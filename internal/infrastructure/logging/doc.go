// Package logging provides structured logging for lifxd.
//
// It wraps log/slog so every entry carries the service name and build
// version. JSON output is the default; text output suits a terminal.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	svcLog := logger.Component("service")
//	svcLog.Info("light discovered", "light", light.FormatID(id))
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
