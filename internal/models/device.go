package models

import "time"

// DeviceSnapshot is the authoritative in-memory register set of one device.
// Registers keep first-seen order; values are mutated in place.
type DeviceSnapshot struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Registers []RegisterEntry `json:"registers"`
	UpdatedAt time.Time       `json:"updated_at"`

	index map[RegisterKey]int
}

func NewDeviceSnapshot(id, name string) *DeviceSnapshot {
	return &DeviceSnapshot{
		ID:    id,
		Name:  name,
		index: make(map[RegisterKey]int),
	}
}

// Upsert stores the entry, replacing the value of an existing key.
// It reports whether the raw value changed (always true for a new key).
func (d *DeviceSnapshot) Upsert(e RegisterEntry) bool {
	if d.index == nil {
		d.index = make(map[RegisterKey]int, len(d.Registers))
		for i, r := range d.Registers {
			d.index[r.Key()] = i
		}
	}
	if i, ok := d.index[e.Key()]; ok {
		if d.Registers[i].Value == e.Value {
			return false
		}
		d.Registers[i].Value = e.Value
		return true
	}
	d.index[e.Key()] = len(d.Registers)
	d.Registers = append(d.Registers, e)
	return true
}

// Value returns the raw value of a register.
func (d *DeviceSnapshot) Value(k RegisterKey) (int64, bool) {
	if i, ok := d.index[k]; ok {
		return d.Registers[i].Value, true
	}
	return 0, false
}

// Entries returns a copy of the register set.
func (d *DeviceSnapshot) Entries() []RegisterEntry {
	out := make([]RegisterEntry, len(d.Registers))
	copy(out, d.Registers)
	return out
}
