package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"workphone-gateway/internal/domain"
	"workphone-gateway/internal/events"
	"workphone-gateway/internal/repository"

	"go.uber.org/zap"
)

var testLog = zap.NewNop()

type mockUserRepo struct {
	users map[string]*domain.User
	err   error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*domain.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *domain.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	if u, ok := m.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) UpdateDisplayName(_ context.Context, id, displayName string) error {
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.DisplayName = displayName
	return nil
}

type mockDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]*domain.Device
	touched []string
	err     error
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{devices: make(map[string]*domain.Device)}
}

func (m *mockDeviceRepo) Save(_ context.Context, device *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *device
	m.devices[device.ID] = &c
	return nil
}

func (m *mockDeviceRepo) List(_ context.Context, userID string) ([]*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Device
	for _, d := range m.devices {
		if d.UserID == userID {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockDeviceRepo) FindByID(_ context.Context, deviceID string) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if d, ok := m.devices[deviceID]; ok {
		c := *d
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockDeviceRepo) Deactivate(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	d.IsActive = false
	d.UnboundAt = &now
	return nil
}

func (m *mockDeviceRepo) UpdateLastActive(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, deviceID)
	if d, ok := m.devices[deviceID]; ok {
		d.LastActive = time.Now()
		return nil
	}
	return repository.ErrNotFound
}

type mockCallRepo struct {
	mu      sync.Mutex
	calls   map[string]*domain.Call
	history map[string][]domain.CallStatus
}

func newMockCallRepo() *mockCallRepo {
	return &mockCallRepo{
		calls:   make(map[string]*domain.Call),
		history: make(map[string][]domain.CallStatus),
	}
}

func (m *mockCallRepo) Create(_ context.Context, call *domain.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *call
	m.calls[call.ID] = &c
	m.history[call.ID] = append(m.history[call.ID], call.Status)
	return nil
}

func (m *mockCallRepo) FindByID(_ context.Context, callID string) (*domain.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.calls[callID]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockCallRepo) ApplyUpdate(_ context.Context, callID string, update domain.CallUpdate) (*domain.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c.Status = update.Status
	if update.Duration > 0 {
		c.Duration = update.Duration
	}
	if update.EndedAt != nil {
		c.EndedAt = update.EndedAt
	}
	if update.Reason != "" {
		c.Reason = update.Reason
	}
	m.history[callID] = append(m.history[callID], update.Status)
	cp := *c
	return &cp, nil
}

func (m *mockCallRepo) statuses(callID string) []domain.CallStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CallStatus(nil), m.history[callID]...)
}

type mockGateway struct {
	online    map[string]string
	dials     []domain.DialCommand
	cancels   []string
	unbinds   []string
	dialFails bool
}

func newMockGateway() *mockGateway {
	return &mockGateway{online: make(map[string]string)}
}

func (g *mockGateway) SendDialCommand(deviceID string, cmd domain.DialCommand) bool {
	if g.dialFails {
		return false
	}
	if _, ok := g.online[deviceID]; !ok {
		return false
	}
	g.dials = append(g.dials, cmd)
	return true
}

func (g *mockGateway) SendDialCancel(deviceID, callID string) bool {
	if _, ok := g.online[deviceID]; !ok {
		return false
	}
	g.cancels = append(g.cancels, callID)
	return true
}

func (g *mockGateway) SendDeviceUnbind(deviceID string) {
	g.unbinds = append(g.unbinds, deviceID)
}

func (g *mockGateway) IsDeviceOnline(deviceID string) bool {
	_, ok := g.online[deviceID]
	return ok
}

func (g *mockGateway) OnlineDevicesForUser(userID string) []string {
	var out []string
	for d, u := range g.online {
		if u == userID {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

type mockNotifier struct {
	calls []*domain.Call
}

func (n *mockNotifier) NotifyCallUpdate(call *domain.Call) {
	n.calls = append(n.calls, call)
}

type mockPublisher struct {
	events []*events.CallEvent
}

func (p *mockPublisher) PublishCallEvent(_ context.Context, ev *events.CallEvent) error {
	p.events = append(p.events, ev)
	return nil
}
