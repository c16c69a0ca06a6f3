package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbus_console/internal/models"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantType  MessageType
		malformed bool
	}{
		{"system status", `{"type":"system_status","modbus_running":true,"web_running":false}`, TypeSystemStatus, false},
		{"device status", `{"type":"device_status","devices":{"1":{"name":"T","data":[]}}}`, TypeDeviceStatus, false},
		{"device update", `{"type":"device_update","device_id":"7","data":{"name":"P","data":[]},"timestamp":1700000000000}`, TypeDeviceUpdate, false},
		{"unknown type is typed default", `{"type":"pong"}`, TypeUnknown, false},
		{"missing type", `{"foo":1}`, TypeUnknown, false},
		{"not json", `{"type":`, 0, true},
		{"array", `[1,2]`, 0, true},
		{"body mismatch", `{"type":"device_update","device_id":"1","data":"oops"}`, 0, true},
		{"update without id", `{"type":"device_update","data":{"name":"x","data":[]}}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.frame))
			if tt.malformed {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedFrame))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, msg.Type())
		})
	}
}

func TestDecode_DeviceUpdatePayload(t *testing.T) {
	frame := `{"type":"device_update","device_id":7,"timestamp":"2025-03-01T10:00:00.123456",
		"data":{"name":"Smart Plug","last_update":1740823200.5,"data":[
			{"type":"IR","address":0,"value":2301},
			{"type":"CO","address":0,"value":true},
			{"type":"XX","address":3,"value":1}]}}`
	msg, err := Decode([]byte(frame))
	require.NoError(t, err)

	u, ok := msg.(DeviceUpdate)
	require.True(t, ok)
	assert.Equal(t, DeviceID("7"), u.DeviceID)
	assert.Equal(t, "Smart Plug", u.Data.Name)
	assert.Equal(t, 2025, u.Timestamp.Year())
	assert.Equal(t, int64(1740823200500), u.Data.LastUpdate.UnixMilli())

	entries, err := u.Data.Entries()
	assert.Error(t, err, "unknown register type is reported")
	assert.Equal(t, []models.RegisterEntry{
		{Kind: models.InputRegister, Address: 0, Value: 2301},
		{Kind: models.Coil, Address: 0, Value: 1},
	}, entries)
}

func TestDecode_SystemStatusModel(t *testing.T) {
	frame := `{"type":"system_status","modbus_running":true,"web_running":true,
		"error":"Error getting Modbus data","error_time":"2025-03-01T10:00:00+00:00","timestamp":null}`
	msg, err := Decode([]byte(frame))
	require.NoError(t, err)

	st := msg.(SystemStatus).Model()
	assert.True(t, st.ModbusRunning)
	assert.Equal(t, "Error getting Modbus data", st.Error)
	assert.True(t, st.ErrorTime.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)))
	assert.True(t, st.UpdatedAt.IsZero())
}

func TestDeviceStatus_IDs(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"device_status","devices":{"7":{},"1":{},"3":{}}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3", "7"}, msg.(DeviceStatus).IDs())
}

func TestOutboundEncoding(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	tests := []struct {
		name   string
		msg    Outbound
		want   string
		target string
	}{
		{"heartbeat", Heartbeat{}, `{"type":"heartbeat"}`, ""},
		{"request all", RequestAllDevices(), `{"type":"request_data","requestType":"all"}`, ""},
		{"request single", RequestDevice("7"), `{"type":"request_data","requestType":"single","deviceId":"7"}`, "7"},
		{
			"coil control",
			Control{DeviceID: "7", RegisterType: models.Coil, Address: 0, Value: true, Timestamp: now},
			`{"type":"control","deviceId":"7","registerType":"CO","address":0,"value":true,"timestamp":1700000000123}`,
			"7",
		},
		{
			"holding control",
			Control{DeviceID: "4", RegisterType: models.HoldingRegister, Address: 50, Value: int64(235), Timestamp: now},
			`{"type":"control","deviceId":"4","registerType":"HR","address":50,"value":235,"timestamp":1700000000123}`,
			"4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewEnvelope(tt.msg, now)
			b, err := env.Encode()
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
			assert.Equal(t, tt.target, env.DeviceID)
			assert.Equal(t, now, env.CreatedAt)
		})
	}
}

func TestMessageTypeRoundTrip(t *testing.T) {
	for mt := TypeSystemStatus; mt < typeCount; mt++ {
		assert.Equal(t, mt, ParseMessageType(mt.String()))
	}
	assert.Equal(t, TypeUnknown, ParseMessageType("unknown"))
	assert.Equal(t, "unknown", MessageType(99).String())
}
