package view

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbus_console/internal/models"
)

type stubLabels struct{}

func (stubLabels) Label(_ string, e models.RegisterEntry) string {
	return fmt.Sprintf("L%d", e.Address)
}
func (stubLabels) Unit(string, models.RegisterEntry) string { return "u" }
func (stubLabels) Icon(string, models.RegisterEntry) string { return "*" }

var (
	ir0 = models.RegisterKey{Kind: models.InputRegister, Address: 0}
	co0 = models.RegisterKey{Kind: models.Coil, Address: 0}
)

func TestModel_CreateDeviceOrdering(t *testing.T) {
	m := NewModel(stubLabels{})
	m.CreateDevice(DeviceInfo{ID: "3"}, "")
	m.CreateDevice(DeviceInfo{ID: "1"}, "3")
	m.CreateDevice(DeviceInfo{ID: "7"}, "")
	m.CreateDevice(DeviceInfo{ID: "5"}, "7")
	m.CreateDevice(DeviceInfo{ID: "3"}, "") // duplicate ignored

	assert.Equal(t, []string{"1", "3", "5", "7"}, m.Order())
}

func TestModel_CommitAndSnapshot(t *testing.T) {
	m := NewModel(stubLabels{})
	m.CreateDevice(DeviceInfo{ID: "1", Name: "Sensor"}, "")
	m.SetActive("1")
	m.Commit("1", []models.Change{{Key: ir0, Raw: 235, Display: "23.5"}})
	m.Commit("1", []models.Change{{Key: ir0, Raw: 240, Display: "24.0"}, {Key: co0, Raw: 1, Display: "On"}})
	m.SetPending("1", co0, true)
	m.SetChannelState("device", "open")

	assert.Equal(t, 2, m.Commits("1"))
	d, ok := m.Display("1", ir0)
	require.True(t, ok)
	assert.Equal(t, "24.0", d)

	snap := m.Snapshot()
	require.Len(t, snap.Devices, 1)
	dev := snap.Devices[0]
	assert.True(t, dev.Active)
	assert.Equal(t, "Sensor", dev.Name)
	require.Len(t, dev.Registers, 2)
	assert.Equal(t, RegisterView{Key: ir0, Label: "L0", Unit: "u", Icon: "*", Raw: 240, Display: "24.0"}, dev.Registers[0])
	assert.True(t, dev.Registers[1].Pending)
	assert.Equal(t, "open", snap.Channels["device"])

	// Snapshot is a copy.
	snap.Channels["device"] = "mutated"
	assert.Equal(t, "open", m.Snapshot().Channels["device"])
}

func TestModel_IgnoresUnknownDevice(t *testing.T) {
	m := NewModel(nil)
	v := m.Version()
	m.Commit("9", []models.Change{{Key: ir0, Raw: 1, Display: "1"}})
	m.SetActive("9")
	assert.Equal(t, v, m.Version())
	assert.Zero(t, m.Commits("9"))
}

func TestMulti_FansOut(t *testing.T) {
	a, b := NewModel(nil), NewModel(nil)
	v := Multi{a, b}
	v.CreateDevice(DeviceInfo{ID: "1"}, "")
	v.Commit("1", []models.Change{{Key: ir0, Raw: 1, Display: "1"}})
	v.SetSystemStatus(models.SystemStatus{ModbusRunning: true})

	for _, m := range []*Model{a, b} {
		assert.Equal(t, 1, m.Commits("1"))
		assert.True(t, m.Snapshot().System.ModbusRunning)
	}
}
