//go:build windows && amd64

package vdpservice

import (
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/windows"

	"github.com/zhubert/eagleray-sideband/vdp"
)

// C tables. Each starts with a uint32 version followed by function pointers,
// so the first pointer sits at offset 8.

type rawQueryInterface struct {
	Version        uint32
	QueryInterface uintptr
}

type rawChannelInterface struct {
	Version uint32
	// v1
	ThreadInitialize            uintptr
	ThreadUninitialize          uintptr
	Poll                        uintptr
	RegisterChannelNotifySink   uintptr
	UnregisterChannelNotifySink uintptr
	Connect                     uintptr
	Disconnect                  uintptr
	GetConnectionState          uintptr
	GetChannelState             uintptr
	// v2
	SwitchToStreamDataMode uintptr
	GetSessionType         uintptr
	// v3
	PollTimeout uintptr
}

type rawObjectInterface struct {
	Version uint32
	// v1
	CreateChannelObject  uintptr
	DestroyChannelObject uintptr
	GetObjectState       uintptr
	GetObjectName        uintptr
	CreateContext        uintptr
	DestroyContext       uintptr
	Invoke               uintptr
	// v2
	IsSideChannelAvailable uintptr
	RequestSideChannel     uintptr
	// v3
	GetObjectOptions uintptr
	CreateContextV3  uintptr
}

type rawContextInterface struct {
	Version uint32
	// v1
	GetId                uintptr
	GetCommand           uintptr
	SetCommand           uintptr
	GetNamedCommand      uintptr
	SetNamedCommand      uintptr
	GetParamCount        uintptr
	AppendParam          uintptr
	GetParam             uintptr
	AppendNamedParam     uintptr
	GetNamedParam        uintptr
	GetReturnCode        uintptr
	SetReturnCode        uintptr
	GetReturnValCount    uintptr
	AppendReturnVal      uintptr
	GetReturnVal         uintptr
	AppendNamedReturnVal uintptr
	GetNamedReturnVal    uintptr
	// v2
	SetOps uintptr
}

type rawVariantInterface struct {
	Version      uint32
	VariantInit  uintptr
	VariantCopy  uintptr
	VariantClear uintptr
	_            [11]uintptr // VariantFrom*
}

type rawNotifySink struct {
	Version              uint32
	OnInvoke             uintptr
	OnObjectStateChanged uintptr
}

// rawVariant is VDP_RPC_VARIANT: a uint16 tag and an 8-aligned union.
type rawVariant struct {
	VT  uint16
	_   [6]byte
	Val [16]byte
}

const notifySinkV1 = 1

var (
	sinkOnce sync.Once
	// rawSink is handed to CreateChannelObject for every object and must
	// stay at a fixed address for the life of the process.
	rawSink rawNotifySink

	registrations = newHandleTable()
)

type registration struct {
	sink     vdp.NotifySink
	userData any
}

func onInvoke(userData, contextHandle, reserved uintptr) uintptr {
	if reg, ok := registrations.Lookup(userData).(*registration); ok {
		reg.sink.OnInvoke(reg.userData, vdp.InvocationContext(contextHandle))
	}
	return 0
}

func onObjectStateChanged(userData, reserved uintptr) uintptr {
	if reg, ok := registrations.Lookup(userData).(*registration); ok {
		reg.sink.OnObjectStateChanged(reg.userData)
	}
	return 0
}

func initSink() {
	sinkOnce.Do(func() {
		rawSink = rawNotifySink{
			Version:              notifySinkV1,
			OnInvoke:             windows.NewCallback(onInvoke),
			OnObjectStateChanged: windows.NewCallback(onObjectStateChanged),
		}
	})
}

func ok(r uintptr) bool {
	return byte(r) != 0
}

// call invokes a C function pointer. Arguments converted from pointers are
// kept alive and in place for the duration of the call.
//
//go:uintptrescapes
func call(fn uintptr, args ...uintptr) uintptr {
	r, _, _ := syscall.SyscallN(fn, args...)
	return r
}

// Service is the loaded service library.
type Service struct {
	dll        *windows.LazyDLL
	serverInit *windows.LazyProc
	log        *slog.Logger
}

var _ vdp.Binding = (*Service)(nil)

// Open loads the service library at path.
func Open(path string, log *slog.Logger) (*Service, error) {
	if path == "" {
		path = DefaultLibrary
	}
	dll := windows.NewLazyDLL(path)
	proc := dll.NewProc("VDPService_ServerInit")
	if err := proc.Find(); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	initSink()
	return &Service{dll: dll, serverInit: proc, log: log}, nil
}

// Init calls VDPService_ServerInit.
func (s *Service) Init(pluginName string) (vdp.Query, vdp.ChannelHandle, error) {
	token, err := windows.BytePtrFromString(pluginName)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: plugin name: %v", vdp.ErrInitFailed, err)
	}
	var qi rawQueryInterface
	var handle uintptr
	r, _, _ := s.serverInit.Call(
		uintptr(unsafe.Pointer(token)),
		uintptr(unsafe.Pointer(&qi)),
		uintptr(unsafe.Pointer(&handle)),
	)
	if !ok(r) {
		return nil, 0, vdp.ErrInitFailed
	}
	s.log.Debug("service initialized", "version", qi.Version)
	if qi.QueryInterface == 0 {
		return nil, vdp.ChannelHandle(handle), nil
	}
	return &query{fn: qi.QueryInterface, log: s.log}, vdp.ChannelHandle(handle), nil
}

type query struct {
	fn  uintptr
	log *slog.Logger
}

func toGUID(iid uuid.UUID) windows.GUID {
	d1, d2, d3, d4 := guidFields(iid)
	return windows.GUID{Data1: d1, Data2: d2, Data3: d3, Data4: d4}
}

func (q *query) fill(iid uuid.UUID, table unsafe.Pointer) bool {
	g := toGUID(iid)
	return ok(call(q.fn, uintptr(unsafe.Pointer(&g)), uintptr(table)))
}

// QueryInterface returns nil when the library has no table for iid or the
// table's required entries are missing.
func (q *query) QueryInterface(iid uuid.UUID) (any, error) {
	switch iid {
	case vdp.ChannelInterfaceV3:
		t := new(rawChannelInterface)
		if !q.fill(iid, unsafe.Pointer(t)) || t.Connect == 0 || t.GetChannelState == 0 || t.Poll == 0 {
			return nil, nil
		}
		return &channel{t: t}, nil
	case vdp.ChannelObjectInterfaceV3:
		t := new(rawObjectInterface)
		if !q.fill(iid, unsafe.Pointer(t)) || t.CreateChannelObject == 0 || t.DestroyChannelObject == 0 {
			return nil, nil
		}
		return &objects{t: t, ids: make(map[vdp.ObjectHandle]uintptr)}, nil
	case vdp.ChannelContextInterfaceV2:
		t := new(rawContextInterface)
		if !q.fill(iid, unsafe.Pointer(t)) || t.GetParam == 0 {
			return nil, nil
		}
		return &contexts{t: t}, nil
	case vdp.VariantInterfaceV1:
		t := new(rawVariantInterface)
		if !q.fill(iid, unsafe.Pointer(t)) || t.VariantClear == 0 {
			return nil, nil
		}
		return &variantTable{t: t}, nil
	}
	return nil, fmt.Errorf("no Go binding for %s", vdp.InterfaceName(iid))
}

type channel struct {
	t *rawChannelInterface
}

func (c *channel) Connect() error {
	if !ok(call(c.t.Connect)) {
		return vdp.ErrCallFailed
	}
	return nil
}

func (c *channel) ChannelState() vdp.ChannelState {
	return vdp.ChannelState(int32(call(c.t.GetChannelState)))
}

func (c *channel) Poll() {
	call(c.t.Poll)
}

func (c *channel) PollTimeout(timeout time.Duration) {
	if c.t.PollTimeout == 0 {
		c.Poll()
		return
	}
	call(c.t.PollTimeout, uintptr(int32(timeout.Milliseconds())))
}

type objects struct {
	t *rawObjectInterface

	mu  sync.Mutex
	ids map[vdp.ObjectHandle]uintptr // object handle -> registration ID
}

func (o *objects) CreateChannelObject(name string, sink vdp.NotifySink, userData any, flags vdp.ConfigFlags) (vdp.ObjectHandle, error) {
	cname, err := windows.BytePtrFromString(name)
	if err != nil {
		return 0, fmt.Errorf("%w: object name: %v", vdp.ErrCallFailed, err)
	}
	id := registrations.Register(&registration{sink: sink, userData: userData})

	var handle uintptr
	r := call(o.t.CreateChannelObject,
		uintptr(unsafe.Pointer(cname)),
		uintptr(unsafe.Pointer(&rawSink)),
		id,
		uintptr(flags),
		uintptr(unsafe.Pointer(&handle)),
	)
	if !ok(r) || handle == 0 {
		registrations.Unregister(id)
		return 0, fmt.Errorf("%w: CreateChannelObject(%s)", vdp.ErrCallFailed, name)
	}

	o.mu.Lock()
	o.ids[vdp.ObjectHandle(handle)] = id
	o.mu.Unlock()
	return vdp.ObjectHandle(handle), nil
}

func (o *objects) DestroyChannelObject(h vdp.ObjectHandle) error {
	r := call(o.t.DestroyChannelObject, uintptr(h))

	o.mu.Lock()
	id, found := o.ids[h]
	delete(o.ids, h)
	o.mu.Unlock()
	if found {
		registrations.Unregister(id)
	}

	if !ok(r) {
		return fmt.Errorf("%w: DestroyChannelObject", vdp.ErrCallFailed)
	}
	return nil
}

func (o *objects) ObjectState(h vdp.ObjectHandle) vdp.ObjectState {
	if o.t.GetObjectState == 0 {
		return vdp.ObjectUninitialized
	}
	return vdp.ObjectState(int32(call(o.t.GetObjectState, uintptr(h))))
}

// pending holds variants filled by GetParam until they are cleared.
var pending = newHandleTable()

type contexts struct {
	t *rawContextInterface
}

func (c *contexts) Command(ictx vdp.InvocationContext) uint32 {
	if c.t.GetCommand == 0 {
		return 0
	}
	return uint32(call(c.t.GetCommand, uintptr(ictx)))
}

func (c *contexts) ParamCount(ictx vdp.InvocationContext) int {
	if c.t.GetParamCount == 0 {
		return 0
	}
	return int(int32(call(c.t.GetParamCount, uintptr(ictx))))
}

// Param calls GetParam. The raw variant is kept for Clear even if the call
// fails, because the library may have written into it.
func (c *contexts) Param(ictx vdp.InvocationContext, index int, v *vdp.Variant) error {
	raw := new(rawVariant)
	v.Ref = pending.Register(raw)

	if !ok(call(c.t.GetParam, uintptr(ictx), uintptr(int32(index)), uintptr(unsafe.Pointer(raw)))) {
		return fmt.Errorf("%w: GetParam(%d)", vdp.ErrCallFailed, index)
	}

	ref := v.Ref
	vt := vdp.VarType(raw.VT)
	if decoded, ok := decodeScalar(vt, raw.Val[:]); ok {
		*v = decoded
		v.Ref = ref
		return nil
	}

	*v = vdp.Variant{Type: vt, Ref: ref}
	switch vt {
	case vdp.VTLPStr:
		p := *(**byte)(unsafe.Pointer(&raw.Val[0]))
		v.Str = windows.BytePtrToString(p)
	case vdp.VTBlob:
		size := *(*uint32)(unsafe.Pointer(&raw.Val[0]))
		p := *(**byte)(unsafe.Pointer(&raw.Val[8]))
		if p != nil && size > 0 {
			v.Blob = append([]byte(nil), unsafe.Slice(p, size)...)
		}
	}
	return nil
}

type variantTable struct {
	t *rawVariantInterface
}

func (vt *variantTable) Clear(v *vdp.Variant) error {
	if v.Ref == 0 {
		v.Reset()
		return nil
	}
	raw, _ := pending.Unregister(v.Ref).(*rawVariant)
	v.Reset()
	if raw == nil {
		return fmt.Errorf("%w: variant already cleared", vdp.ErrCallFailed)
	}
	if !ok(call(vt.t.VariantClear, uintptr(unsafe.Pointer(raw)))) {
		return fmt.Errorf("%w: VariantClear", vdp.ErrCallFailed)
	}
	return nil
}
