package vdp

import (
	"fmt"
	"strings"
)

// ChannelState is the state of the virtual channel as reported by the host.
type ChannelState int32

const (
	ChannelUninitialized ChannelState = -1
	ChannelDisconnected  ChannelState = 0
	ChannelPending       ChannelState = 1
	ChannelConnected     ChannelState = 2
)

func (s ChannelState) String() string {
	switch s {
	case ChannelUninitialized:
		return "uninitialized"
	case ChannelDisconnected:
		return "disconnected"
	case ChannelPending:
		return "pending"
	case ChannelConnected:
		return "connected"
	default:
		return fmt.Sprintf("ChannelState(%d)", int32(s))
	}
}

// ObjectState is the state of a registered RPC channel object.
type ObjectState int32

const (
	ObjectUninitialized               ObjectState = -1
	ObjectDisconnected                ObjectState = 0
	ObjectPending                     ObjectState = 1
	ObjectConnected                   ObjectState = 2
	ObjectSideChannelPending          ObjectState = 3
	ObjectSideChannelConnected        ObjectState = 4
	ObjectPendingAndPeerObjectCreated ObjectState = 5
)

func (s ObjectState) String() string {
	switch s {
	case ObjectUninitialized:
		return "uninitialized"
	case ObjectDisconnected:
		return "disconnected"
	case ObjectPending:
		return "pending"
	case ObjectConnected:
		return "connected"
	case ObjectSideChannelPending:
		return "side-channel-pending"
	case ObjectSideChannelConnected:
		return "side-channel-connected"
	case ObjectPendingAndPeerObjectCreated:
		return "pending-peer-object-created"
	default:
		return fmt.Sprintf("ObjectState(%d)", int32(s))
	}
}

// ConfigFlags are passed to CreateChannelObject.
type ConfigFlags uint32

const (
	ConfigDefault               ConfigFlags = 0
	ConfigInvokeAllowAnyThread  ConfigFlags = 1 << 0
	ConfigSupportCompression    ConfigFlags = 1 << 2
	ConfigSupportEncryption     ConfigFlags = 1 << 3
	ConfigNoTCPSideChannel      ConfigFlags = 1 << 4
	ConfigNoVChanSideChannel    ConfigFlags = 1 << 5
	ConfigPreferBeatSideChannel ConfigFlags = 1 << 6
)

var configFlagNames = []struct {
	flag ConfigFlags
	name string
}{
	{ConfigInvokeAllowAnyThread, "invoke-allow-any-thread"},
	{ConfigSupportCompression, "compression"},
	{ConfigSupportEncryption, "encryption"},
	{ConfigNoTCPSideChannel, "no-tcp-side-channel"},
	{ConfigNoVChanSideChannel, "no-vchan-side-channel"},
	{ConfigPreferBeatSideChannel, "prefer-beat-side-channel"},
}

func (f ConfigFlags) String() string {
	if f == ConfigDefault {
		return "default"
	}
	var parts []string
	rest := f
	for _, n := range configFlagNames {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
			rest &^= n.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// Opaque handles owned by the service library. Zero is never a valid handle.
type (
	ChannelHandle     uintptr
	ObjectHandle      uintptr
	InvocationContext uintptr
)
