// Package constants provides shared constants used across the codebase.
package constants

// Event channel constants
const (
	// EventChannelBuffer is the buffer size of each websocket subscriber
	EventChannelBuffer = 32
)

// HTTP limits
const (
	// MaxJSONBodySize caps JSON request bodies
	MaxJSONBodySize = 1 << 20

	// MaxUploadSize is the maximum enrollment photo upload in bytes (20MB)
	MaxUploadSize = 20 << 20
)

// Listing defaults
const (
	// DefaultVisitLimit is how many visits a person's history returns by default
	DefaultVisitLimit = 20

	// MaxVisitLimit bounds the limit query parameter
	MaxVisitLimit = 500
)

// MJPEGBoundary separates the parts of the live video feed.
const MJPEGBoundary = "frame"
