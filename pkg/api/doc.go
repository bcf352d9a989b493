// Package api exposes the membership and billing operations over
// HTTP, mapping structured membership errors onto status codes
// (402 for a declined seat charge, 403 for plan limits).
package api
