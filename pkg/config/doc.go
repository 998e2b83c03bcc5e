// Package config loads process configuration from PLATTER_* environment
// variables and validates it before anything starts.
package config
