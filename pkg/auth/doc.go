// Package auth provides bearer-token authentication and user
// resolution. Tokens are random 256-bit values prefixed with "seat_";
// only their SHA256 hashes are stored.
package auth
