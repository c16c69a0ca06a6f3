// Package tui renders the console in the terminal with bubbletea.
package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"modbus_console/internal/models"
	"modbus_console/internal/view"
)

// Sender delivers messages to a running program; *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

type deviceCreatedMsg struct {
	info   view.DeviceInfo
	before string
}

type activeMsg struct{ id string }

type commitMsg struct {
	device  string
	changes []models.Change
}

type pendingMsg struct {
	device  string
	key     models.RegisterKey
	pending bool
}

type channelMsg struct {
	channel string
	state   string
}

type systemMsg struct{ status models.SystemStatus }

type errMsg struct{ err error }

// Bridge is a view.View that forwards every call to a bubbletea program. Calls never block
// the loop: messages wait in an unbounded queue until Run hands them to the program.
type Bridge struct {
	mu     sync.Mutex
	queue  []tea.Msg
	notify chan struct{}
}

var _ view.View = (*Bridge)(nil)

func NewBridge() *Bridge {
	return &Bridge{notify: make(chan struct{}, 1)}
}

func (b *Bridge) push(msg tea.Msg) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *Bridge) take() []tea.Msg {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.queue
	b.queue = nil
	return msgs
}

// Run pumps queued messages into s until ctx is done.
func (b *Bridge) Run(ctx context.Context, s Sender) error {
	for {
		for _, msg := range b.take() {
			s.Send(msg)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-b.notify:
		}
	}
}

// Len reports how many messages are waiting.
func (b *Bridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Bridge) CreateDevice(info view.DeviceInfo, before string) {
	b.push(deviceCreatedMsg{info: info, before: before})
}

func (b *Bridge) SetActive(id string) { b.push(activeMsg{id: id}) }

func (b *Bridge) Commit(deviceID string, changes []models.Change) {
	b.push(commitMsg{device: deviceID, changes: append([]models.Change(nil), changes...)})
}

func (b *Bridge) SetPending(deviceID string, key models.RegisterKey, pending bool) {
	b.push(pendingMsg{device: deviceID, key: key, pending: pending})
}

func (b *Bridge) SetChannelState(channel, state string) {
	b.push(channelMsg{channel: channel, state: state})
}

func (b *Bridge) SetSystemStatus(st models.SystemStatus) { b.push(systemMsg{status: st}) }
