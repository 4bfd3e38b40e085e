package gateway

import (
	"sort"
	"sync"
)

// Registry maps device ids to live sessions and user ids to the set of
// their device ids. Both maps change together under one lock so that
// byUser[u] always equals the devices whose session belongs to u.
type Registry struct {
	mu       sync.RWMutex
	byDevice map[string]*Session
	byUser   map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byDevice: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

// Register installs s as the session for its device. A session already
// registered for the device is marked closing with CloseSuperseded and
// removed in the same critical section, so no caller ever observes two
// sessions for one device. The superseded session is returned so the
// caller can finish closing its transport outside the lock.
func (r *Registry) Register(s *Session) (old *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byDevice[s.DeviceID]; ok && prev != s {
		prev.markClosing(CloseSuperseded)
		r.removeLocked(prev)
		old = prev
	}

	r.byDevice[s.DeviceID] = s
	devices := r.byUser[s.UserID]
	if devices == nil {
		devices = make(map[string]struct{})
		r.byUser[s.UserID] = devices
	}
	devices[s.DeviceID] = struct{}{}
	s.activate()

	return old
}

// Unregister removes s if it is still the registered session for its
// device. It reports whether anything was removed.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byDevice[s.DeviceID]; !ok || cur != s {
		return false
	}
	r.removeLocked(s)
	return true
}

func (r *Registry) removeLocked(s *Session) {
	delete(r.byDevice, s.DeviceID)
	if devices := r.byUser[s.UserID]; devices != nil {
		delete(devices, s.DeviceID)
		if len(devices) == 0 {
			delete(r.byUser, s.UserID)
		}
	}
}

func (r *Registry) Get(deviceID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byDevice[deviceID]
	return s, ok
}

func (r *Registry) IsOnline(deviceID string) bool {
	s, ok := r.Get(deviceID)
	return ok && s.IsOpen()
}

// OnlineDevicesForUser returns the user's device ids with an open session,
// sorted.
func (r *Registry) OnlineDevicesForUser(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byUser[userID]))
	for deviceID := range r.byUser[userID] {
		if s := r.byDevice[deviceID]; s != nil && s.IsOpen() {
			out = append(out, deviceID)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) CountOpen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.byDevice {
		if s.IsOpen() {
			n++
		}
	}
	return n
}

// Sessions returns a snapshot of every registered session.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.byDevice))
	for _, s := range r.byDevice {
		out = append(out, s)
	}
	return out
}
