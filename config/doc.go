// Package config assembles the service's Config struct: a plain data
// struct loaded from YAML (gopkg.in/yaml.v3, grounded on
// ternarybob-quaero's go.mod), plus an Option functional-option set for
// programmatic construction.
//
// This is spec.md §9's prescribed replacement for the original's deep
// factory inheritance: one configuration struct assembled once at
// service start, no runtime dispatch through a construction hierarchy.
// The functional-option shape is grounded on ternarybob-quaero's
// internal/eodhd.ClientOption pattern (WithBaseURL, WithHTTPClient, ...).
package config
