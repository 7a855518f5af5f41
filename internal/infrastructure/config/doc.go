// Package config handles loading and validating lifxd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with LIFXD_* environment variables
//   - Validation of every section, reporting all failures at once
//
// Credentials (MQTT password, InfluxDB token) should be supplied through the
// environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/lifxd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.GetTickInterval())
package config
