package vdp

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInitFailed is returned when the service initialization entry point fails.
	ErrInitFailed = errors.New("service initialization failed")

	// ErrInterfaceUnavailable is returned when a capability lookup yields no
	// interface table. It indicates a broken deployment and is not retried.
	ErrInterfaceUnavailable = errors.New("capability interface unavailable")

	// ErrCallFailed is returned when a host call reports failure.
	ErrCallFailed = errors.New("host call failed")
)

// Binding is the entry point of the service library.
type Binding interface {
	// Init initializes the service for pluginName and returns the capability
	// lookup together with the channel handle. The calling thread becomes the
	// service thread: Poll must be called from it afterwards.
	Init(pluginName string) (Query, ChannelHandle, error)
}

// Query resolves interface tables by capability identifier. The service
// library does not guarantee it is safe to call concurrently with itself.
type Query interface {
	QueryInterface(iid uuid.UUID) (any, error)
}

// ChannelInterface is the channel table (ChannelInterface_V3).
type ChannelInterface interface {
	// Connect requests the channel connection. Calling it again while a
	// connection is in progress is harmless.
	Connect() error

	// ChannelState reports the current channel state.
	ChannelState() ChannelState

	// Poll processes pending service events. Without a remote session it
	// may block indefinitely.
	Poll()

	// PollTimeout processes pending service events, blocking until the next
	// event or until timeout elapses.
	PollTimeout(timeout time.Duration)
}

// ObjectInterface is the RPC channel object table (ChannelObjectInterface_V3).
type ObjectInterface interface {
	CreateChannelObject(name string, sink NotifySink, userData any, flags ConfigFlags) (ObjectHandle, error)
	DestroyChannelObject(h ObjectHandle) error
	ObjectState(h ObjectHandle) ObjectState
}

// ContextInterface reads a single invocation (ChannelContextInterface_V2).
// The InvocationContext is only valid during the OnInvoke callback.
type ContextInterface interface {
	Command(ictx InvocationContext) uint32
	ParamCount(ictx InvocationContext) int
	// Param copies parameter index into v. On success v may reference host
	// storage that must be released with VariantInterface.Clear.
	Param(ictx InvocationContext, index int, v *Variant) error
}

// VariantInterface releases variant storage (VariantInterface_V1).
type VariantInterface interface {
	Clear(v *Variant) error
}

// NotifySink receives object notifications from the service library. Both
// methods may be called from threads the library owns, repeatedly and
// concurrently with the polling thread.
type NotifySink interface {
	OnInvoke(userData any, ictx InvocationContext)
	OnObjectStateChanged(userData any)
}

// ResolveChannel looks up the channel interface table.
func ResolveChannel(q Query) (ChannelInterface, error) {
	return resolve[ChannelInterface](q, ChannelInterfaceV3)
}

// ResolveObjects looks up the channel object interface table.
func ResolveObjects(q Query) (ObjectInterface, error) {
	return resolve[ObjectInterface](q, ChannelObjectInterfaceV3)
}

// ResolveContexts looks up the channel context interface table.
func ResolveContexts(q Query) (ContextInterface, error) {
	return resolve[ContextInterface](q, ChannelContextInterfaceV2)
}

// ResolveVariants looks up the variant interface table.
func ResolveVariants(q Query) (VariantInterface, error) {
	return resolve[VariantInterface](q, VariantInterfaceV1)
}

func resolve[T any](q Query, iid uuid.UUID) (T, error) {
	var zero T
	if q == nil {
		return zero, fmt.Errorf("%w: %s: no query function", ErrInterfaceUnavailable, InterfaceName(iid))
	}
	iface, err := q.QueryInterface(iid)
	if err != nil {
		return zero, fmt.Errorf("query %s: %w", InterfaceName(iid), err)
	}
	if iface == nil {
		return zero, fmt.Errorf("%w: %s", ErrInterfaceUnavailable, InterfaceName(iid))
	}
	typed, ok := iface.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s: unexpected table %T", ErrInterfaceUnavailable, InterfaceName(iid), iface)
	}
	return typed, nil
}
