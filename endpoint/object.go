package endpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zhubert/eagleray-sideband/events"
	"github.com/zhubert/eagleray-sideband/metrics"
	"github.com/zhubert/eagleray-sideband/vdp"
)

// ErrObjectExists is returned by Create while a channel object is live.
var ErrObjectExists = errors.New("channel object already exists")

// ObjectManagerOptions configures an ObjectManager. The zero value is usable.
type ObjectManagerOptions struct {
	Events  events.Sink
	Metrics *metrics.Metrics
}

// ObjectManager owns the single channel object of one session.
type ObjectManager struct {
	session *Session
	log     *slog.Logger
	opts    ObjectManagerOptions

	mu       sync.Mutex
	handle   vdp.ObjectHandle
	name     string
	live     bool
	creating bool
}

// NewObjectManager creates an ObjectManager for session.
func NewObjectManager(session *Session, log *slog.Logger, opts ObjectManagerOptions) *ObjectManager {
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	return &ObjectManager{session: session, log: log, opts: opts}
}

// Create registers the channel object. The manager's lock is not held
// across the host call, so the sink may call State from inside it.
func (m *ObjectManager) Create(name string, sink vdp.NotifySink, userCtx any, flags vdp.ConfigFlags) (vdp.ObjectHandle, error) {
	m.mu.Lock()
	if m.live || m.creating {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrObjectExists, m.name)
	}
	m.creating = true
	m.mu.Unlock()

	handle, err := m.session.Objects.CreateChannelObject(name, sink, userCtx, flags)

	m.mu.Lock()
	m.creating = false
	if err == nil {
		m.handle = handle
		m.name = name
		m.live = true
	}
	m.mu.Unlock()

	m.opts.Metrics.ObjectCreated(err == nil)
	epoch := m.session.EpochID()
	if err != nil {
		m.log.Error("failed to create channel object", "name", name, "error", err)
		events.Emitf(m.opts.Events, events.KindError, epoch, "Create Channel Object: %v", err)
		return 0, fmt.Errorf("create channel object %s: %w", name, err)
	}
	m.log.Info("channel object created", "name", name, "flags", flags.String())
	events.Emitf(m.opts.Events, events.KindObjectCreated, epoch, "Create Channel Object: %s", name)
	return handle, nil
}

// Destroy releases the channel object. It does nothing if no object is live.
// The handle is forgotten even if the host reports failure.
func (m *ObjectManager) Destroy() error {
	m.mu.Lock()
	if !m.live {
		m.mu.Unlock()
		return nil
	}
	handle, name := m.handle, m.name
	m.live = false
	m.handle = 0
	m.mu.Unlock()

	err := m.session.Objects.DestroyChannelObject(handle)
	m.opts.Metrics.ObjectDestroyed(err == nil)
	epoch := m.session.EpochID()
	if err != nil {
		m.log.Warn("failed to destroy channel object", "name", name, "error", err)
		events.Emitf(m.opts.Events, events.KindObjectDestroyed, epoch, "Destroy channel object: %v", err)
		return fmt.Errorf("destroy channel object %s: %w", name, err)
	}
	m.log.Info("channel object destroyed", "name", name)
	events.Emitf(m.opts.Events, events.KindObjectDestroyed, epoch, "Destroy channel object: %s", name)
	return nil
}

// Live reports whether a channel object is registered.
func (m *ObjectManager) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// State queries the host for the object state. ok is false without a live object.
func (m *ObjectManager) State() (state vdp.ObjectState, ok bool) {
	m.mu.Lock()
	handle, live := m.handle, m.live
	m.mu.Unlock()
	if !live {
		return vdp.ObjectUninitialized, false
	}
	return m.session.Objects.ObjectState(handle), true
}
