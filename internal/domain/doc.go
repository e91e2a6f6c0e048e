// Package domain contains the core concepts of the preview service: the capture
// request, the project URL derived from it and the error taxonomy of a capture.
// Keep this package free of transport (HTTP) and infrastructure (Redis/Chrome) concerns.
package domain
