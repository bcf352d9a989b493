// Package httputil provides HTTP helpers shared by all handlers: JSON
// encoding/decoding, a structured error envelope with machine-readable
// codes, path/query parameter parsing, and request middleware (logging,
// panic recovery, request IDs, metrics).
package httputil
