package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory はプロセス内で通知を保持するLocalSchedulerの実装です
// ローカル実行とテストで利用します
type Memory struct {
	mu            sync.Mutex
	presentation  Presentation
	notifications map[string]Notification
}

// NewMemory は新しいMemoryを作成します
func NewMemory(presentation Presentation) *Memory {
	return &Memory{
		presentation:  presentation,
		notifications: make(map[string]Notification),
	}
}

// Schedule は通知を登録し、通知IDを返します
func (m *Memory) Schedule(ctx context.Context, content Content, at time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.notifications[id] = Notification{
		ID:           id,
		Content:      content,
		FireAt:       at,
		Presentation: m.presentation,
	}
	return id, nil
}

// Cancel は通知を取り消します
func (m *Memory) Cancel(ctx context.Context, notificationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notifications[notificationID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, notificationID)
	}
	delete(m.notifications, notificationID)
	return nil
}

// ListScheduled はスケジュール済みの通知IDを返します
func (m *Memory) ListScheduled(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.notifications))
	for id := range m.notifications {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Pending はスケジュール済みの通知を発火時刻順に返します
func (m *Memory) Pending() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make([]Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		pending = append(pending, n)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].FireAt.Before(pending[j].FireAt)
	})
	return pending
}

// MemoryDevices はユーザーごとにMemoryを割り当てるResolverです
type MemoryDevices struct {
	mu           sync.Mutex
	presentation Presentation
	devices      map[string]*Memory
}

// NewMemoryDevices は新しいMemoryDevicesを作成します
func NewMemoryDevices(presentation Presentation) *MemoryDevices {
	return &MemoryDevices{
		presentation: presentation,
		devices:      make(map[string]*Memory),
	}
}

// ForUser はユーザーのMemoryを返します。無ければ作成します
func (d *MemoryDevices) ForUser(userID string) LocalScheduler {
	return d.Device(userID)
}

// Device はユーザーのMemoryを返します
func (d *MemoryDevices) Device(userID string) *Memory {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.devices[userID]
	if !ok {
		m = NewMemory(d.presentation)
		d.devices[userID] = m
	}
	return m
}
