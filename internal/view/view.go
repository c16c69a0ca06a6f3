// Package view defines what the core drives on screen and provides the in-memory view model.
package view

import (
	"modbus_console/internal/models"
)

// DeviceInfo describes a device tab.
type DeviceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

// View is a display surface. All calls come from the loop.
type View interface {
	// CreateDevice adds a device tab immediately before the tab with id before, or last when before is empty.
	CreateDevice(info DeviceInfo, before string)
	// SetActive makes id the visible tab and deactivates every other.
	SetActive(id string)
	// Commit applies one change-set to a device tab.
	Commit(deviceID string, changes []models.Change)
	// SetPending marks or clears a control awaiting reconciliation.
	SetPending(deviceID string, key models.RegisterKey, pending bool)
	SetChannelState(channel, state string)
	SetSystemStatus(st models.SystemStatus)
}

// Multi fans every call out to several views, in order.
type Multi []View

func (m Multi) CreateDevice(info DeviceInfo, before string) {
	for _, v := range m {
		v.CreateDevice(info, before)
	}
}

func (m Multi) SetActive(id string) {
	for _, v := range m {
		v.SetActive(id)
	}
}

func (m Multi) Commit(deviceID string, changes []models.Change) {
	for _, v := range m {
		v.Commit(deviceID, changes)
	}
}

func (m Multi) SetPending(deviceID string, key models.RegisterKey, pending bool) {
	for _, v := range m {
		v.SetPending(deviceID, key, pending)
	}
}

func (m Multi) SetChannelState(channel, state string) {
	for _, v := range m {
		v.SetChannelState(channel, state)
	}
}

func (m Multi) SetSystemStatus(st models.SystemStatus) {
	for _, v := range m {
		v.SetSystemStatus(st)
	}
}
