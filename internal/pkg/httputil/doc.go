// Package httputil provides shared HTTP response/request utilities for the
// engine's handlers.
//
// Handlers use these helpers instead of writing raw http.ResponseWriter calls
// so that JSON formatting and error envelopes stay consistent.
package httputil
