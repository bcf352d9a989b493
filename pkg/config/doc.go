// Package config loads application configuration from SEATSYNC_-prefixed
// environment variables and validates it at startup.
package config
