// Package middleware provides HTTP middleware for authentication and
// distributed rate limiting.
package middleware
