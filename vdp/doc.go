// Package vdp describes the capability surface of the remote desktop
// service library that hosts the sideband channel.
//
// # Overview
//
// The service library is an externally-owned, callback-driven component. A
// plugin initializes it with a fixed plugin name, receives a query function,
// and then asks that function for typed interface tables by 128-bit
// capability identifier. Four tables are used here:
//
//	ChannelInterfaceV3         Connect, GetChannelState, Poll, Poll(timeout)
//	ChannelObjectInterfaceV3   CreateChannelObject, DestroyChannelObject, GetObjectState
//	ChannelContextInterfaceV2  GetCommand, GetParamCount, GetParam
//	VariantInterfaceV1         VariantClear
//
// Each table is modeled as a small Go interface. The production adapter in
// package vdpservice binds them to function pointers exported by
// vdpService.dll; package simhost implements them in-process for tests and
// for the simulate mode of the receiver.
//
// # Wire Contract
//
// The plugin name, channel object name and the four capability identifiers
// must match the peer plugin on the client side exactly. They are exported
// here as constants and package variables and are never negotiated.
//
// # Threading
//
// NotifySink callbacks may arrive on threads owned by the service library,
// concurrently with the thread that polls the channel. Implementations must
// not block for unbounded time and must not panic.
package vdp
