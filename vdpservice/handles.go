package vdpservice

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/zhubert/eagleray-sideband/vdp"
)

// handleTable maps small integer IDs to Go values so that C code can carry
// a reference to them (as userData) without holding a Go pointer.
type handleTable struct {
	mu     sync.RWMutex
	values map[uintptr]any
	next   uintptr
}

func newHandleTable() *handleTable {
	return &handleTable{values: make(map[uintptr]any), next: 1}
}

// Register stores v and returns its ID. IDs are never zero.
func (t *handleTable) Register(v any) uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	t.values[id] = v
	return id
}

// Lookup returns the value for id, or nil.
func (t *handleTable) Lookup(id uintptr) any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values[id]
}

// Unregister forgets id and returns the value it held.
func (t *handleTable) Unregister(id uintptr) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.values[id]
	delete(t.values, id)
	return v
}

// Len returns the number of registered values.
func (t *handleTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.values)
}

// guidFields splits a capability identifier into the GUID struct fields.
// The canonical string form is big-endian, the in-memory Data1..Data3 are
// native integers.
func guidFields(iid uuid.UUID) (data1 uint32, data2, data3 uint16, data4 [8]byte) {
	data1 = binary.BigEndian.Uint32(iid[0:4])
	data2 = binary.BigEndian.Uint16(iid[4:6])
	data3 = binary.BigEndian.Uint16(iid[6:8])
	copy(data4[:], iid[8:16])
	return
}

// decodeScalar decodes the numeric members of the VDP_RPC_VARIANT union
// (little-endian, starting at offset 8 of the struct). ok is false for
// types that reference host memory.
func decodeScalar(vt vdp.VarType, val []byte) (v vdp.Variant, ok bool) {
	v.Type = vt
	switch vt {
	case vdp.VTEmpty, vdp.VTNull:
	case vdp.VTI1:
		v.Int = int64(int8(val[0]))
	case vdp.VTUI1:
		v.Uint = uint64(val[0])
	case vdp.VTI2:
		v.Int = int64(int16(binary.LittleEndian.Uint16(val)))
	case vdp.VTUI2:
		v.Uint = uint64(binary.LittleEndian.Uint16(val))
	case vdp.VTI4:
		v.Int = int64(int32(binary.LittleEndian.Uint32(val)))
	case vdp.VTUI4:
		v.Uint = uint64(binary.LittleEndian.Uint32(val))
	case vdp.VTI8:
		v.Int = int64(binary.LittleEndian.Uint64(val))
	case vdp.VTUI8:
		v.Uint = binary.LittleEndian.Uint64(val)
	case vdp.VTR4:
		v.Float = float64(math.Float32frombits(binary.LittleEndian.Uint32(val)))
	case vdp.VTR8:
		v.Float = math.Float64frombits(binary.LittleEndian.Uint64(val))
	default:
		return v, false
	}
	return v, true
}
