// Package config provides configuration loading and validation for the
// voice engine. It handles YAML-based configuration with per-section
// validation and duration accessors for millisecond fields.
package config
