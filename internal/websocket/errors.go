// internal/websocket/errors.go
package websocket

import "errors"

var (
	ErrHubClosed   = errors.New("websocket hub is closed")
	ErrUnknownKind = errors.New("event kind has no channel")
)
