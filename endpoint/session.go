// Package endpoint drives the plugin side of the sideband channel: it
// negotiates the channel connection, registers the single RPC channel object
// for each connection epoch and waits for invocations until the channel
// drops, then starts over.
package endpoint

import (
	"github.com/google/uuid"

	"github.com/zhubert/eagleray-sideband/vdp"
)

// Session holds the capabilities resolved for one connection epoch. It is
// created by Negotiate and is not used after the epoch ends.
type Session struct {
	ID       uuid.UUID
	Handle   vdp.ChannelHandle
	Channel  vdp.ChannelInterface
	Objects  vdp.ObjectInterface
	Contexts vdp.ContextInterface
	Variants vdp.VariantInterface
}

// EpochID returns the session ID in string form, as used in logs and events.
func (s *Session) EpochID() string {
	return s.ID.String()
}
