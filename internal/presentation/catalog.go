// Package presentation holds the static lookup tables that turn raw register values into what
// the operator sees. Every lookup is pure.
package presentation

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"modbus_console/internal/models"
)

//go:embed catalog.yml
var defaultCatalog []byte

// Default boolean labels.
const (
	LabelOn  = "On"
	LabelOff = "Off"
)

// ControlSpec bounds a writable register, in raw units.
type ControlSpec struct {
	Min  int64 `yaml:"min" json:"min"`
	Max  int64 `yaml:"max" json:"max"`
	Step int64 `yaml:"step" json:"step"`
}

// Clamp limits v to [Min, Max].
func (c ControlSpec) Clamp(v int64) int64 {
	if v < c.Min {
		return c.Min
	}
	if c.Max > c.Min && v > c.Max {
		return c.Max
	}
	return v
}

// RegisterSpec describes how one register is presented.
type RegisterSpec struct {
	Label    string           `yaml:"label"`
	Unit     string           `yaml:"unit"`
	Icon     string           `yaml:"icon"`
	Scale    float64          `yaml:"scale"`
	Decimals int              `yaml:"decimals"`
	Enum     map[int64]string `yaml:"enum"`
	On       string           `yaml:"on"`
	Off      string           `yaml:"off"`
	Control  *ControlSpec     `yaml:"control"`
}

type deviceSpec struct {
	Name      string                  `yaml:"name"`
	Icon      string                  `yaml:"icon"`
	Registers map[string]RegisterSpec `yaml:"registers"`
}

type catalogFile struct {
	Devices map[string]deviceSpec `yaml:"devices"`
}

type device struct {
	name      string
	icon      string
	registers map[models.RegisterKey]RegisterSpec
}

// Catalog answers label, unit, icon and format lookups keyed by (device id, register).
type Catalog struct {
	devices map[string]device
}

// Default returns the catalog built into the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("presentation: embedded catalog: %v", err))
	}
	return c
}

// LoadFile reads a catalog from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a catalog from r.
func Load(r io.Reader) (*Catalog, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML catalog.
func Parse(b []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{devices: make(map[string]device, len(file.Devices))}
	var errs []error
	for id, ds := range file.Devices {
		d := device{name: ds.Name, icon: ds.Icon, registers: make(map[models.RegisterKey]RegisterSpec, len(ds.Registers))}
		for raw, rs := range ds.Registers {
			key, err := ParseKey(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("device %s: %w", id, err))
				continue
			}
			if rs.Scale < 0 || rs.Decimals < 0 {
				errs = append(errs, fmt.Errorf("device %s register %s: negative scale or decimals", id, raw))
				continue
			}
			if rs.Control != nil && !key.Kind.Writable() {
				errs = append(errs, fmt.Errorf("device %s register %s: control on a read-only register", id, raw))
				continue
			}
			d.registers[key] = rs
		}
		c.devices[id] = d
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseKey parses a register key such as "IR0" or "HR50".
func ParseKey(s string) (models.RegisterKey, error) {
	s = strings.TrimSpace(s)
	if len(s) < 3 {
		return models.RegisterKey{}, fmt.Errorf("invalid register key %q", s)
	}
	kind, err := models.ParseRegisterKind(s[:2])
	if err != nil {
		return models.RegisterKey{}, fmt.Errorf("invalid register key %q: %w", s, err)
	}
	addr, err := strconv.Atoi(s[2:])
	if err != nil || addr < 0 {
		return models.RegisterKey{}, fmt.Errorf("invalid register address in %q", s)
	}
	return models.RegisterKey{Kind: kind, Address: addr}, nil
}

func (c *Catalog) spec(deviceID string, k models.RegisterKey) (RegisterSpec, bool) {
	d, ok := c.devices[deviceID]
	if !ok {
		return RegisterSpec{}, false
	}
	rs, ok := d.registers[k]
	return rs, ok
}

// DeviceName returns the catalog name of a device, or "Device <id>".
func (c *Catalog) DeviceName(deviceID string) string {
	if d, ok := c.devices[deviceID]; ok && d.name != "" {
		return d.name
	}
	return "Device " + deviceID
}

// DeviceIcon returns the icon of a device.
func (c *Catalog) DeviceIcon(deviceID string) string {
	return c.devices[deviceID].icon
}

func (c *Catalog) Label(deviceID string, e models.RegisterEntry) string {
	if rs, ok := c.spec(deviceID, e.Key()); ok && rs.Label != "" {
		return rs.Label
	}
	return fmt.Sprintf("%s %d", kindName(e.Kind), e.Address)
}

func (c *Catalog) Unit(deviceID string, e models.RegisterEntry) string {
	rs, _ := c.spec(deviceID, e.Key())
	return rs.Unit
}

func (c *Catalog) Icon(deviceID string, e models.RegisterEntry) string {
	if rs, ok := c.spec(deviceID, e.Key()); ok && rs.Icon != "" {
		return rs.Icon
	}
	switch e.Kind {
	case models.Coil:
		return "⏻"
	case models.DiscreteInput:
		return "◉"
	case models.HoldingRegister:
		return "✎"
	default:
		return "•"
	}
}

// Format renders the display value of a register. Booleans print On/Off (or the
// configured labels), enumerations their label, numerics the scaled value.
func (c *Catalog) Format(deviceID string, e models.RegisterEntry) string {
	rs, _ := c.spec(deviceID, e.Key())
	if e.Kind.IsBoolean() {
		if e.Value != 0 {
			return orDefault(rs.On, LabelOn)
		}
		return orDefault(rs.Off, LabelOff)
	}
	if rs.Enum != nil {
		if label, ok := rs.Enum[e.Value]; ok {
			return label
		}
		return strconv.FormatInt(e.Value, 10)
	}
	if rs.Scale > 0 && rs.Scale != 1 {
		return strconv.FormatFloat(float64(e.Value)/rs.Scale, 'f', rs.Decimals, 64)
	}
	if rs.Decimals > 0 {
		return strconv.FormatFloat(float64(e.Value), 'f', rs.Decimals, 64)
	}
	return strconv.FormatInt(e.Value, 10)
}

// Control returns the limits of a writable register. Registers without an explicit spec
// get the full 16-bit range with step 1; read-only registers return false.
func (c *Catalog) Control(deviceID string, k models.RegisterKey) (ControlSpec, bool) {
	if !k.Kind.Writable() {
		return ControlSpec{}, false
	}
	if k.Kind == models.Coil {
		return ControlSpec{Min: 0, Max: 1, Step: 1}, true
	}
	if rs, ok := c.spec(deviceID, k); ok && rs.Control != nil {
		spec := *rs.Control
		if spec.Step <= 0 {
			spec.Step = 1
		}
		return spec, true
	}
	return ControlSpec{Min: 0, Max: 65535, Step: 1}, true
}

func kindName(k models.RegisterKind) string {
	switch k {
	case models.InputRegister:
		return "Input Register"
	case models.HoldingRegister:
		return "Holding Register"
	case models.Coil:
		return "Coil"
	case models.DiscreteInput:
		return "Discrete Input"
	default:
		return k.String()
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
