package vdp

import (
	"fmt"

	"github.com/google/uuid"
)

// Names shared with the client-side peer plugin.
const (
	// PluginName is the token passed to the service initialization entry point.
	PluginName = "EagleRay"

	// ObjectName is the name of the RPC channel object the peer invokes.
	ObjectName = "ERay_Input"

	// MaxTokenLength is the longest plugin or object name the service accepts.
	MaxTokenLength = 255
)

// All standard service identifiers share this layout and differ only in the
// second field, a per-interface counter.
const stdGUIDFormat = "a500a600-%04x-81e2-88c1-29a7d3a93a62"

func stdGUID(counter uint16) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf(stdGUIDFormat, counter))
}

// Capability identifiers for the interface tables used by the receiver.
var (
	VariantInterfaceV1        = stdGUID(0x0000)
	ChannelContextInterfaceV2 = stdGUID(0x0008)
	ChannelInterfaceV3        = stdGUID(0x000B)
	ChannelObjectInterfaceV3  = stdGUID(0x000F)
)

// InterfaceName returns a readable name for a known capability identifier.
func InterfaceName(iid uuid.UUID) string {
	switch iid {
	case VariantInterfaceV1:
		return "VariantInterface_V1"
	case ChannelContextInterfaceV2:
		return "ChannelContextInterface_V2"
	case ChannelInterfaceV3:
		return "ChannelInterface_V3"
	case ChannelObjectInterfaceV3:
		return "ChannelObjectInterface_V3"
	default:
		return iid.String()
	}
}
