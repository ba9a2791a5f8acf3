// Package simhost is an in-process stand-in for the remote host and its
// service library. A Host implements vdp.Binding and every capability table,
// lets a test or the --simulate mode drive the channel state and issue
// invocations, and keeps enough accounting to check the receiver's
// lifecycle rules afterwards.
package simhost

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhubert/eagleray-sideband/vdp"
)

var (
	// ErrNotConnected is returned when an operation needs a connected channel.
	ErrNotConnected = errors.New("channel not connected")

	// ErrNoObject is returned by Invoke when no channel object is registered.
	ErrNoObject = errors.New("no channel object registered")

	// ErrUnknownContext is returned for invocation contexts that are not live.
	ErrUnknownContext = errors.New("invocation context is not live")
)

// Option configures a Host.
type Option func(*Host)

// WithConnectOnAttempt makes the nth Connect call (1-based) the first one
// that succeeds.
func WithConnectOnAttempt(n int) Option {
	return func(h *Host) {
		h.connectOnAttempt = n
	}
}

// WithNeverConnect makes every Connect call fail.
func WithNeverConnect() Option {
	return func(h *Host) {
		h.available = false
	}
}

// WithMissingInterface makes QueryInterface return no table for iid.
func WithMissingInterface(iid uuid.UUID) Option {
	return func(h *Host) {
		h.missing[iid] = true
	}
}

// WithLogger sets the host's logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Host) {
		h.log = log
	}
}

type object struct {
	name     string
	sink     vdp.NotifySink
	userData any
	flags    vdp.ConfigFlags
	state    vdp.ObjectState
}

type invocation struct {
	command uint32
	params  []vdp.Variant
}

// Host simulates the service library and the remote host behind it.
type Host struct {
	mu   sync.Mutex
	wake chan struct{}
	log  *slog.Logger

	available        bool
	connectOnAttempt int
	missing          map[uuid.UUID]bool

	pluginName   string
	initCalls    int
	connectCalls int
	pollCalls    int
	state        vdp.ChannelState

	objects    map[vdp.ObjectHandle]*object
	nextObject vdp.ObjectHandle
	maxLive    int
	ops        []string

	contexts map[vdp.InvocationContext]*invocation
	nextCtx  vdp.InvocationContext

	failParams bool
	failClear  bool

	liveVariants map[uintptr]bool
	nextRef      uintptr
	clears       int
	badClears    int
}

var (
	_ vdp.Binding          = (*Host)(nil)
	_ vdp.Query            = (*Host)(nil)
	_ vdp.ChannelInterface = (*Host)(nil)
	_ vdp.ObjectInterface  = (*Host)(nil)
	_ vdp.ContextInterface = (*Host)(nil)
	_ vdp.VariantInterface = (*Host)(nil)
)

// New creates a Host whose channel connects on the first Connect call.
func New(opts ...Option) *Host {
	h := &Host{
		wake:             make(chan struct{}, 1),
		log:              slog.New(slog.DiscardHandler),
		available:        true,
		connectOnAttempt: 1,
		missing:          make(map[uuid.UUID]bool),
		state:            vdp.ChannelUninitialized,
		objects:          make(map[vdp.ObjectHandle]*object),
		contexts:         make(map[vdp.InvocationContext]*invocation),
		liveVariants:     make(map[uintptr]bool),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Init implements vdp.Binding.
func (h *Host) Init(pluginName string) (vdp.Query, vdp.ChannelHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.initCalls++
	h.pluginName = pluginName
	if h.state == vdp.ChannelUninitialized {
		h.state = vdp.ChannelDisconnected
	}
	return h, vdp.ChannelHandle(1), nil
}

// QueryInterface implements vdp.Query. Every known capability is served by
// the Host itself.
func (h *Host) QueryInterface(iid uuid.UUID) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.missing[iid] {
		return nil, nil
	}
	switch iid {
	case vdp.ChannelInterfaceV3, vdp.ChannelObjectInterfaceV3, vdp.ChannelContextInterfaceV2, vdp.VariantInterfaceV1:
		return h, nil
	}
	return nil, nil
}

// Connect implements vdp.ChannelInterface.
func (h *Host) Connect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connectCalls++
	if h.state == vdp.ChannelConnected {
		return nil
	}
	if !h.available || h.connectCalls < h.connectOnAttempt {
		h.state = vdp.ChannelDisconnected
		return fmt.Errorf("%w: no remote session", vdp.ErrCallFailed)
	}
	h.state = vdp.ChannelConnected
	h.log.Debug("channel connected", "attempt", h.connectCalls)
	return nil
}

// ChannelState implements vdp.ChannelInterface.
func (h *Host) ChannelState() vdp.ChannelState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Poll implements vdp.ChannelInterface. It never blocks.
func (h *Host) Poll() {
	h.mu.Lock()
	h.pollCalls++
	h.mu.Unlock()
	select {
	case <-h.wake:
	default:
	}
}

// PollTimeout implements vdp.ChannelInterface. It returns after an
// invocation, a channel state change, a Wake call, or timeout.
func (h *Host) PollTimeout(timeout time.Duration) {
	h.mu.Lock()
	h.pollCalls++
	h.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.wake:
	case <-timer.C:
	}
}

// Wake makes a pending PollTimeout return.
func (h *Host) Wake() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// CreateChannelObject implements vdp.ObjectInterface.
func (h *Host) CreateChannelObject(name string, sink vdp.NotifySink, userData any, flags vdp.ConfigFlags) (vdp.ObjectHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != vdp.ChannelConnected {
		return 0, ErrNotConnected
	}
	if sink == nil {
		return 0, fmt.Errorf("%w: nil sink", vdp.ErrCallFailed)
	}
	h.nextObject++
	handle := h.nextObject
	h.objects[handle] = &object{
		name:     name,
		sink:     sink,
		userData: userData,
		flags:    flags,
		state:    vdp.ObjectConnected,
	}
	h.maxLive = max(h.maxLive, len(h.objects))
	h.ops = append(h.ops, "create:"+name)
	return handle, nil
}

// DestroyChannelObject implements vdp.ObjectInterface.
func (h *Host) DestroyChannelObject(handle vdp.ObjectHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, ok := h.objects[handle]
	if !ok {
		return fmt.Errorf("%w: unknown object %d", vdp.ErrCallFailed, handle)
	}
	delete(h.objects, handle)
	h.ops = append(h.ops, "destroy:"+obj.name)
	return nil
}

// ObjectState implements vdp.ObjectInterface.
func (h *Host) ObjectState(handle vdp.ObjectHandle) vdp.ObjectState {
	h.mu.Lock()
	defer h.mu.Unlock()
	if obj, ok := h.objects[handle]; ok {
		return obj.state
	}
	return vdp.ObjectUninitialized
}

// Command implements vdp.ContextInterface.
func (h *Host) Command(ictx vdp.InvocationContext) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if inv, ok := h.contexts[ictx]; ok {
		return inv.command
	}
	return 0
}

// ParamCount implements vdp.ContextInterface.
func (h *Host) ParamCount(ictx vdp.InvocationContext) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if inv, ok := h.contexts[ictx]; ok {
		return len(inv.params)
	}
	return 0
}

// Param implements vdp.ContextInterface. Text and blob parameters are handed
// out as host-owned storage that must be cleared.
func (h *Host) Param(ictx vdp.InvocationContext, index int, v *vdp.Variant) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	inv, ok := h.contexts[ictx]
	if !ok {
		return ErrUnknownContext
	}
	if h.failParams {
		return fmt.Errorf("%w: GetParam(%d)", vdp.ErrCallFailed, index)
	}
	if index < 0 || index >= len(inv.params) {
		return fmt.Errorf("%w: parameter %d of %d", vdp.ErrCallFailed, index, len(inv.params))
	}
	*v = inv.params[index]
	if v.Type == vdp.VTLPStr || v.Type == vdp.VTBlob {
		h.nextRef++
		v.Ref = h.nextRef
		h.liveVariants[v.Ref] = true
	}
	return nil
}

// Clear implements vdp.VariantInterface.
func (h *Host) Clear(v *vdp.Variant) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clears++
	if h.failClear {
		return fmt.Errorf("%w: VariantClear", vdp.ErrCallFailed)
	}
	if v.Ref != 0 {
		if !h.liveVariants[v.Ref] {
			h.badClears++
			return fmt.Errorf("%w: variant %d already cleared", vdp.ErrCallFailed, v.Ref)
		}
		delete(h.liveVariants, v.Ref)
	}
	v.Reset()
	return nil
}

// Invoke delivers a host call to the registered channel object on the
// calling goroutine and returns once the sink's OnInvoke has returned.
func (h *Host) Invoke(command uint32, params ...vdp.Variant) error {
	h.mu.Lock()
	if h.state != vdp.ChannelConnected {
		h.mu.Unlock()
		return ErrNotConnected
	}
	var obj *object
	for _, o := range h.objects {
		obj = o
		break
	}
	if obj == nil {
		h.mu.Unlock()
		return ErrNoObject
	}
	h.nextCtx++
	ictx := h.nextCtx
	h.contexts[ictx] = &invocation{command: command, params: params}
	h.mu.Unlock()

	obj.sink.OnInvoke(obj.userData, ictx)

	h.mu.Lock()
	delete(h.contexts, ictx)
	h.mu.Unlock()
	h.Wake()
	return nil
}

// InvokeText is Invoke with a single text parameter.
func (h *Host) InvokeText(arg string) error {
	return h.Invoke(0, vdp.StringVariant(arg))
}

// Disconnect drops the channel. Registered objects are told their state
// changed. The next Connect reconnects unless the host is unavailable.
func (h *Host) Disconnect() {
	h.mu.Lock()
	h.state = vdp.ChannelDisconnected
	var notify []*object
	for _, o := range h.objects {
		o.state = vdp.ObjectDisconnected
		notify = append(notify, o)
	}
	h.mu.Unlock()

	for _, o := range notify {
		o.sink.OnObjectStateChanged(o.userData)
	}
	h.Wake()
}

// SetAvailable controls whether Connect can succeed.
func (h *Host) SetAvailable(available bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.available = available
}

// SetFailParams makes Param fail for every invocation while set.
func (h *Host) SetFailParams(fail bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failParams = fail
}

// SetFailClear makes Clear report failure while set. The variant is still
// considered live.
func (h *Host) SetFailClear(fail bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failClear = fail
}

// Stats is a snapshot of the host's accounting.
type Stats struct {
	PluginName   string
	InitCalls    int
	ConnectCalls int
	PollCalls    int
	LiveObjects  int
	MaxLive      int
	LiveVariants int
	Clears       int
	BadClears    int
}

// Stats returns the current accounting.
func (h *Host) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		PluginName:   h.pluginName,
		InitCalls:    h.initCalls,
		ConnectCalls: h.connectCalls,
		PollCalls:    h.pollCalls,
		LiveObjects:  len(h.objects),
		MaxLive:      h.maxLive,
		LiveVariants: len(h.liveVariants),
		Clears:       h.clears,
		BadClears:    h.badClears,
	}
}

// Ops returns the object create/destroy log, e.g. "create:ERay_Input".
func (h *Host) Ops() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ops...)
}

// ObjectFlags returns the flags of the live object, if any.
func (h *Host) ObjectFlags() (vdp.ConfigFlags, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, o := range h.objects {
		return o.flags, true
	}
	return 0, false
}
