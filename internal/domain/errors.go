package domain

import (
	"errors"
	"fmt"
)

const (
	CodeDiscoveryTimeout = "DISCOVERY_TIMEOUT"
	CodeTransportError   = "TRANSPORT_ERROR"
	CodeBrowseFailure    = "BROWSE_FAILURE"
	CodePlaybackFailure  = "PLAYBACK_FAILURE"
)

// ErrDiscoveryTimeout matches, via errors.Is, any bridge error carrying
// the discovery timeout code.
var ErrDiscoveryTimeout = &BridgeError{
	Code:    CodeDiscoveryTimeout,
	Message: "discovery timed out",
}

type BridgeError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *BridgeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

// Is treats two bridge errors with the same code as equivalent, so
// sentinels like ErrDiscoveryTimeout work through errors.Is.
func (e *BridgeError) Is(target error) bool {
	other, ok := target.(*BridgeError)
	if !ok || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

func Errorf(code, format string, args ...any) *BridgeError {
	return &BridgeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode extracts the bridge error code from err, or "" when err is
// not a BridgeError.
func ErrorCode(err error) string {
	var bridgeErr *BridgeError
	if errors.As(err, &bridgeErr) {
		return bridgeErr.Code
	}
	return ""
}
