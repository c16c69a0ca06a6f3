package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"modbus_console/internal/app"
	"modbus_console/internal/control"
	"modbus_console/internal/registry"
	"modbus_console/internal/service"
)

const (
	statusOK        = "ok"
	statusQueued    = "queued"
	statusActivated = "activated"
	statusRebuilt   = "reconnecting"

	errInvalidBodyPref = "invalid body: "
	errConsole         = "console request failed"
)

// ControlRequest writes one coil or holding register.
type ControlRequest struct {
	// Register type: CO or HR
	RegisterType string `json:"register_type" binding:"required" example:"HR"`
	// Register address
	Address *int `json:"address" binding:"required" example:"50"`
	// Raw value; coils also accept true/false
	Value any `json:"value" swaggertype:"number" example:"240"`
}

func (r ControlRequest) params() (service.ControlParams, error) {
	p := service.ControlParams{RegisterType: r.RegisterType, Address: *r.Address}
	switch v := r.Value.(type) {
	case bool:
		if v {
			p.Value = 1
		}
	case float64:
		p.Value = v
	case nil:
		return p, errors.New("value is required")
	default:
		return p, fmt.Errorf("value must be a number or boolean, got %T", v)
	}
	return p, nil
}

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// statusFor maps console errors to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrDeviceNotFound),
		errors.Is(err, service.ErrUnknownChannel),
		errors.Is(err, registry.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, service.ErrOutOfRange),
		errors.Is(err, service.ErrInvalidRegister),
		errors.Is(err, control.ErrReadOnlyRegister),
		errors.Is(err, control.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrChannelActive):
		return http.StatusConflict
	case errors.Is(err, app.ErrStopped), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondConsoleError exposes client errors and hides internal ones.
func (h *Handler) respondConsoleError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logAndJSONError(c, code, errConsole, logKey, err, kv...)
		return
	}
	if h.log != nil {
		h.log.Infow(logKey, append([]interface{}{"err", err}, kv...)...)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      List devices
// @Description  Devices in display order with their rendered registers.
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "active, count, devices"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/devices [get]
// @Security     BearerAuth
func (h *Handler) listDevices(c *gin.Context) {
	snap := h.services.Console.View()
	c.JSON(http.StatusOK, gin.H{
		"active":  snap.Active,
		"count":   len(snap.Devices),
		"devices": snap.Devices,
	})
}

// @Summary      Get device
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Device id"
// @Success      200  {object}  service.DeviceDetail
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id} [get]
// @Security     BearerAuth
func (h *Handler) getDevice(c *gin.Context) {
	id := c.Param("id")
	d, err := h.services.Console.Device(c.Request.Context(), id)
	if err != nil {
		h.respondConsoleError(c, "device_get_failed", err, "device_id", id)
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary      Control a register
// @Description  Queues a write to a coil (CO) or holding register (HR). The value is confirmed by a
// @Description  follow-up read; see the device's pending list.
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id    path      string          true  "Device id"
// @Param        body  body      ControlRequest  true  "Control payload"
// @Success      202   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/devices/{id}/control [post]
// @Security     BearerAuth
func (h *Handler) controlDevice(c *gin.Context) {
	var req ControlRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	params, err := req.params()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	id := c.Param("id")
	if err := h.services.Console.Control(c.Request.Context(), id, params); err != nil {
		h.respondConsoleError(c, "device_control_failed", err, "device_id", id, "register_type", params.RegisterType, "address", params.Address)
		return
	}
	if h.log != nil {
		userID, _ := c.Get(ctxUserID)
		h.log.Infow("device_control_queued", "device_id", id, "register_type", params.RegisterType,
			"address", params.Address, "value", params.Value, "user_id", userID)
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusQueued})
}

// @Summary      Activate device
// @Description  Switches the device shown in the terminal view.
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Device id"
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id}/activate [post]
// @Security     BearerAuth
func (h *Handler) activateDevice(c *gin.Context) {
	id := c.Param("id")
	if err := h.services.Console.Activate(c.Request.Context(), id); err != nil {
		h.respondConsoleError(c, "device_activate_failed", err, "device_id", id)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusActivated, "active": id})
}

// @Summary      Request fresh data
// @Description  Asks the backend for one device, or all devices when 'device' is empty.
// @Tags         devices
// @Produce      json
// @Param        device  query     string  false  "Device id"
// @Success      202     {object}  map[string]string
// @Failure      401     {object}  map[string]string
// @Router       /api/v1/refresh [post]
// @Security     BearerAuth
func (h *Handler) refresh(c *gin.Context) {
	id := c.Query("device")
	if err := h.services.Console.Refresh(c.Request.Context(), id); err != nil {
		h.respondConsoleError(c, "refresh_failed", err, "device_id", id)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusQueued})
}

// @Summary      Backend status
// @Tags         system
// @Produce      json
// @Success      200  {object}  models.SystemStatus
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/system [get]
// @Security     BearerAuth
func (h *Handler) getSystem(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Console.System())
}

// @Summary      List channels
// @Tags         channels
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "channels"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/channels [get]
// @Security     BearerAuth
func (h *Handler) listChannels(c *gin.Context) {
	stats, err := h.services.Console.Channels(c.Request.Context())
	if err != nil {
		h.respondConsoleError(c, "channels_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": stats})
}

// @Summary      Reconnect channel
// @Description  Rebuilds a channel that gave up or tripped its circuit breaker.
// @Tags         channels
// @Produce      json
// @Param        kind  path      string  true  "Channel"  Enums(system,device)
// @Success      202   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/channels/{kind}/reconnect [post]
// @Security     BearerAuth
func (h *Handler) reconnectChannel(c *gin.Context) {
	kind := c.Param("kind")
	if err := h.services.Console.Reconnect(c.Request.Context(), kind); err != nil {
		h.respondConsoleError(c, "channel_reconnect_failed", err, "channel", kind)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusRebuilt, "channel": kind})
}
