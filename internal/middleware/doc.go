// Package middleware provides HTTP middleware for the media-cache host.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by gorilla/mux route template
//   - gzip compression of JSON responses
package middleware
