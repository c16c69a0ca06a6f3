// Package mirror republishes the console's view of the devices to MQTT as retained messages.
package mirror

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"modbus_console/internal/logger"
	"modbus_console/internal/models"
	"modbus_console/internal/view"
)

// Publisher sends one retained message.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type registerPayload struct {
	Raw     int64     `json:"raw"`
	Display string    `json:"display"`
	At      time.Time `json:"at"`
}

type channelPayload struct {
	State string    `json:"state"`
	At    time.Time `json:"at"`
}

func statusTopic(prefix string) string { return join(prefix, "console", "status") }

func join(parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.Trim(p, "/")
	}
	return strings.Join(parts, "/")
}

// Mirror is a view.View publishing device, register, channel and system state.
type Mirror struct {
	pub    Publisher
	prefix string
	now    func() time.Time
	log    *logger.Logger
}

var _ view.View = (*Mirror)(nil)

// New returns a Mirror publishing under prefix; now stamps each message.
func New(pub Publisher, prefix string, now func() time.Time, log *logger.Logger) *Mirror {
	if now == nil {
		now = time.Now
	}
	return &Mirror{pub: pub, prefix: prefix, now: now, log: logger.OrNop(log).Named("mirror")}
}

func (m *Mirror) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		m.log.Errorw("mirror_encode_failed", "topic", topic, "err", err)
		return
	}
	if err := m.pub.Publish(topic, payload); err != nil {
		if errors.Is(err, ErrNotConnected) {
			m.log.Debugw("mirror_publish_skipped", "topic", topic)
			return
		}
		m.log.Warnw("mirror_publish_failed", "topic", topic, "err", err)
	}
}

func (m *Mirror) CreateDevice(info view.DeviceInfo, _ string) {
	m.publish(join(m.prefix, info.ID, "info"), info)
}

func (m *Mirror) SetActive(string) {}

func (m *Mirror) Commit(deviceID string, changes []models.Change) {
	at := m.now()
	for _, ch := range changes {
		topic := join(m.prefix, deviceID, ch.Key.Kind.String(), strconv.Itoa(ch.Key.Address))
		m.publish(topic, registerPayload{Raw: ch.Raw, Display: ch.Display, At: at})
	}
}

func (m *Mirror) SetPending(string, models.RegisterKey, bool) {}

func (m *Mirror) SetChannelState(channel, state string) {
	m.publish(join(m.prefix, "console", "channel", channel), channelPayload{State: state, At: m.now()})
}

func (m *Mirror) SetSystemStatus(st models.SystemStatus) {
	m.publish(join(m.prefix, "system", "status"), st)
}
