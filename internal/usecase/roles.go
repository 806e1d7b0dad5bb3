package usecase

import (
	"errors"
	"strings"
)

// Role is the submitter's standing in the channel, as reported by the chat
// adapter. It is opaque to the pipeline; only skip and clear inspect it.
type Role string

const (
	RoleViewer      Role = "viewer"
	RoleModerator   Role = "moderator"
	RoleBroadcaster Role = "broadcaster"
)

// ParseRole maps an adapter-supplied role string onto a known role,
// defaulting to viewer.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleModerator:
		return RoleModerator
	case RoleBroadcaster:
		return RoleBroadcaster
	default:
		return RoleViewer
	}
}

var ErrNotAuthorized = errors.New("role not authorized for this command")
