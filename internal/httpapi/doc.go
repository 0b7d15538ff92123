// Package httpapi serves the scheduler status and manual-trigger endpoints
// over echo. The server runs under its own supervisor and can be
// reconfigured on config reload.
package httpapi
