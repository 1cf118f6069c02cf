// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spectraloop/spectralink/pkg/spectralink"
)

// Engine is the slice of the link engine the HTTP layer consumes.
type Engine interface {
	SendSync(ctx context.Context, cmd string) (string, error)
	SendAsync(cmd string) error
	Reconnect(ctx context.Context) error
	IsConnected() bool
	Port() string
	QueueDepth() int
	Store() *spectralink.Store
}

// Handler serves the control-plane endpoints. Motor and group speed
// bookkeeping lives here rather than in the engine: the controller does not
// echo per-motor speeds, so the last commanded values are the source of
// truth for status reporting.
type Handler struct {
	engine Engine
	cfg    *spectralink.Config
	log    *slog.Logger

	mu          sync.Mutex
	motorSpeeds map[int]int
	motorActive map[int]bool
	levSpeed    int
	thrSpeed    int
}

// NewHandler builds the endpoint set over an engine.
func NewHandler(engine Engine, cfg *spectralink.Config, log *slog.Logger) *Handler {
	return &Handler{
		engine:      engine,
		cfg:         cfg,
		log:         log.With("component", "api"),
		motorSpeeds: make(map[int]int),
		motorActive: make(map[int]bool),
	}
}

// Response helpers. The envelope mirrors what existing clients expect:
// {"status":"success"|"error","message":...}.

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func successResponse(w http.ResponseWriter, message string, extra map[string]any) {
	body := map[string]any{"status": "success", "message": message}
	for k, v := range extra {
		body[k] = v
	}
	jsonResponse(w, http.StatusOK, body)
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]any{"status": "error", "message": message})
}

// commandError maps engine failures to HTTP statuses: link and timeout
// trouble is 503 (try again), anything else is a bad request from the
// controller's point of view.
func (h *Handler) commandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, spectralink.ErrLinkDown),
		errors.Is(err, spectralink.ErrTimeout),
		errors.Is(err, spectralink.ErrQueueFull):
		errorResponse(w, http.StatusServiceUnavailable, err.Error())
	default:
		errorResponse(w, http.StatusBadRequest, err.Error())
	}
}

// Status reports the full engine state plus local speed bookkeeping.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	v := h.engine.Store().Snapshot()

	h.mu.Lock()
	motors := make(map[string]any, len(h.motorSpeeds))
	for num, speed := range h.motorSpeeds {
		motors[strconv.Itoa(num)] = map[string]any{
			"speed":  speed,
			"active": h.motorActive[num],
		}
	}
	lev, thr := h.levSpeed, h.thrSpeed
	h.mu.Unlock()

	jsonResponse(w, http.StatusOK, map[string]any{
		"status":           "success",
		"state":            v,
		"port":             h.engine.Port(),
		"queue_depth":      h.engine.QueueDepth(),
		"motors":           motors,
		"levitation_speed": lev,
		"thrust_speed":     thr,
	})
}

// Ping checks service liveness without touching the link.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	successResponse(w, "pong", map[string]any{"connected": h.engine.IsConnected()})
}

// TestConnection round-trips a PING through the controller.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	line, err := h.engine.SendSync(r.Context(), spectralink.CmdPing)
	if err != nil {
		h.commandError(w, err)
		return
	}
	successResponse(w, "controller responding", map[string]any{"response": line})
}

// Temperature returns the latest readings plus the downsampled history and
// the derived operability flags clients gate their UI on.
func (h *Handler) Temperature(w http.ResponseWriter, r *http.Request) {
	v := h.engine.Store().Snapshot()
	safety := h.cfg.Safety
	canArm := !v.TempAlarm &&
		(!v.TempMonitoringRequired || v.CurrentTemp < safety.AlarmTempC-5)
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":                   "success",
		"sensor1_temp":             v.Sensor1Temp,
		"sensor2_temp":             v.Sensor2Temp,
		"current_temp":             v.CurrentTemp,
		"max_temp_reached":         v.MaxTempReached,
		"sensor1_connected":        v.Sensor1Connected,
		"sensor2_connected":        v.Sensor2Connected,
		"temp_monitoring_required": v.TempMonitoringRequired,
		"temp_alarm":               v.TempAlarm,
		"alarm_count":              v.AlarmCount,
		"thresholds": map[string]float64{
			"alarm":   safety.AlarmTempC,
			"safe":    safety.SafeTempC,
			"warning": safety.WarningTempC,
		},
		"can_arm_system":  canArm,
		"safe_to_operate": !v.TempMonitoringRequired || v.CurrentTemp < safety.WarningTempC,
		"history":         h.engine.Store().TempHistory(),
	})
}

// TemperatureRealtime forces a fresh dual read before answering.
func (h *Handler) TemperatureRealtime(w http.ResponseWriter, r *http.Request) {
	if _, err := h.engine.SendSync(r.Context(), spectralink.CmdTempDual); err != nil {
		h.commandError(w, err)
		return
	}
	h.Temperature(w, r)
}

// Reflector returns pulse-counter state and speed history.
func (h *Handler) Reflector(w http.ResponseWriter, r *http.Request) {
	v := h.engine.Store().Snapshot()
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":     "success",
		"count":      v.ReflectorCount,
		"voltage":    v.ReflectorVoltage,
		"inst_speed": v.ReflectorInstSpeed,
		"avg_speed":  v.ReflectorAvgSpeed,
		"connected":  v.ReflectorConnected,
		"history":    h.engine.Store().SpeedHistory(),
	})
}

// ReflectorReset zeroes the pulse counter.
func (h *Handler) ReflectorReset(w http.ResponseWriter, r *http.Request) {
	line, err := h.engine.SendSync(r.Context(), spectralink.CmdReflectorReset)
	if err != nil {
		h.commandError(w, err)
		return
	}
	successResponse(w, "reflector counter reset", map[string]any{"response": line})
}

// ReflectorCalibrate starts the sensor calibration routine.
func (h *Handler) ReflectorCalibrate(w http.ResponseWriter, r *http.Request) {
	line, err := h.engine.SendSync(r.Context(), spectralink.CmdReflectorCalibrate)
	if err != nil {
		h.commandError(w, err)
		return
	}
	successResponse(w, "reflector calibration started", map[string]any{"response": line})
}

// Arm enables motor control. Refused while a temperature alarm is active
// and monitoring has not been bypassed.
func (h *Handler) Arm(w http.ResponseWriter, r *http.Request) {
	v := h.engine.Store().Snapshot()
	if v.TempMonitoringRequired && v.TempAlarm {
		errorResponse(w, http.StatusConflict, "temperature alarm active, cannot arm")
		return
	}
	line, err := h.engine.SendSync(r.Context(), spectralink.CmdArm)
	if err != nil {
		h.commandError(w, err)
		return
	}
	h.engine.Store().SetArmed(true)
	h.engine.Store().ClearEmergencyStop()
	successResponse(w, "system armed", map[string]any{"response": line})
}

// Disarm disables motor control and clears local speed bookkeeping.
func (h *Handler) Disarm(w http.ResponseWriter, r *http.Request) {
	line, err := h.engine.SendSync(r.Context(), spectralink.CmdDisarm)
	if err != nil {
		h.commandError(w, err)
		return
	}
	h.engine.Store().SetArmed(false)
	h.resetSpeeds()
	successResponse(w, "system disarmed", map[string]any{"response": line})
}

// motorGate enforces the preconditions shared by every motor-spinning
// operation: armed, brake released, and temperature below alarm unless the
// fault-tolerant bypass is active.
func (h *Handler) motorGate(w http.ResponseWriter) bool {
	v := h.engine.Store().Snapshot()
	switch {
	case v.EmergencyStopped:
		errorResponse(w, http.StatusConflict, "emergency stop latched, arm to reset")
	case !v.Armed:
		errorResponse(w, http.StatusConflict, "system not armed")
	case v.BrakeActive:
		errorResponse(w, http.StatusConflict, "brake engaged")
	case v.TempMonitoringRequired && v.TempAlarm:
		errorResponse(w, http.StatusConflict, "temperature alarm active")
	default:
		return true
	}
	return false
}

func (h *Handler) motorNum(w http.ResponseWriter, r *http.Request) (int, bool) {
	num, err := strconv.Atoi(chi.URLParam(r, "num"))
	if err != nil || num < spectralink.MinMotor || num > spectralink.MaxMotor {
		errorResponse(w, http.StatusBadRequest, "motor number must be 1-6")
		return 0, false
	}
	return num, true
}

// speedParam reads the speed from the JSON body {"speed": n} or the query
// string, whichever is present.
func speedParam(r *http.Request) (int, error) {
	if s := r.URL.Query().Get("speed"); s != "" {
		return strconv.Atoi(s)
	}
	var body struct {
		Speed *int `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return 0, errors.New("missing speed parameter")
	}
	if body.Speed == nil {
		return 0, errors.New("missing speed parameter")
	}
	return *body.Speed, nil
}

// MotorStart spins up one motor at the requested speed.
func (h *Handler) MotorStart(w http.ResponseWriter, r *http.Request) {
	num, ok := h.motorNum(w, r)
	if !ok {
		return
	}
	speed, err := speedParam(r)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.motorGate(w) {
		return
	}
	cmd, err := spectralink.MotorStart(num, speed)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.engine.SendAsync(cmd); err != nil {
		h.commandError(w, err)
		return
	}
	h.mu.Lock()
	h.motorSpeeds[num] = speed
	h.motorActive[num] = true
	h.mu.Unlock()
	successResponse(w, "motor start queued", map[string]any{"motor": num, "speed": speed})
}

// MotorStop halts one motor.
func (h *Handler) MotorStop(w http.ResponseWriter, r *http.Request) {
	num, ok := h.motorNum(w, r)
	if !ok {
		return
	}
	cmd, err := spectralink.MotorStop(num)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.engine.SendAsync(cmd); err != nil {
		h.commandError(w, err)
		return
	}
	h.mu.Lock()
	h.motorSpeeds[num] = 0
	h.motorActive[num] = false
	h.mu.Unlock()
	successResponse(w, "motor stop queued", map[string]any{"motor": num})
}

// MotorSpeed adjusts a running motor.
func (h *Handler) MotorSpeed(w http.ResponseWriter, r *http.Request) {
	num, ok := h.motorNum(w, r)
	if !ok {
		return
	}
	speed, err := speedParam(r)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.motorGate(w) {
		return
	}
	cmd, err := spectralink.MotorSpeed(num, speed)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.engine.SendAsync(cmd); err != nil {
		h.commandError(w, err)
		return
	}
	h.mu.Lock()
	h.motorSpeeds[num] = speed
	h.mu.Unlock()
	successResponse(w, "motor speed queued", map[string]any{"motor": num, "speed": speed})
}

// groupCommands bundles the builders for one motor group.
type groupCommands struct {
	start func(int) (string, error)
	stop  func() string
	speed func(int) (string, error)
	track func(int)
}

// groupOp factors the levitation/thrust group handlers.
func (h *Handler) groupOp(w http.ResponseWriter, r *http.Request, g groupCommands) {
	action := chi.URLParam(r, "action")

	if action == "stop" {
		if err := h.engine.SendAsync(g.stop()); err != nil {
			h.commandError(w, err)
			return
		}
		g.track(0)
		successResponse(w, "group stop queued", nil)
		return
	}

	build := g.start
	if action == "speed" {
		build = g.speed
	} else if action != "start" {
		errorResponse(w, http.StatusNotFound, "unknown group action")
		return
	}

	speed, err := speedParam(r)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.motorGate(w) {
		return
	}
	cmd, err := build(speed)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.engine.SendAsync(cmd); err != nil {
		h.commandError(w, err)
		return
	}
	g.track(speed)
	successResponse(w, "group "+action+" queued", map[string]any{"speed": speed})
}

// Levitation handles /api/levitation/{action}.
func (h *Handler) Levitation(w http.ResponseWriter, r *http.Request) {
	h.groupOp(w, r, groupCommands{
		start: spectralink.LevGroupStart,
		stop:  spectralink.LevGroupStop,
		speed: spectralink.LevGroupSpeed,
		track: func(s int) { h.mu.Lock(); h.levSpeed = s; h.mu.Unlock() },
	})
}

// Thrust handles /api/thrust/{action}.
func (h *Handler) Thrust(w http.ResponseWriter, r *http.Request) {
	h.groupOp(w, r, groupCommands{
		start: spectralink.ThrGroupStart,
		stop:  spectralink.ThrGroupStop,
		speed: spectralink.ThrGroupSpeed,
		track: func(s int) { h.mu.Lock(); h.thrSpeed = s; h.mu.Unlock() },
	})
}

// Brake handles /api/brake/{action} with the software brake.
func (h *Handler) Brake(w http.ResponseWriter, r *http.Request) {
	var cmd string
	var active bool
	switch chi.URLParam(r, "action") {
	case "on":
		cmd, active = spectralink.CmdBrakeOn, true
	case "off":
		cmd, active = spectralink.CmdBrakeOff, false
	default:
		errorResponse(w, http.StatusBadRequest, "brake action must be on or off")
		return
	}
	line, err := h.engine.SendSync(r.Context(), cmd)
	if err != nil {
		h.commandError(w, err)
		return
	}
	h.engine.Store().SetBrake(active)
	successResponse(w, "brake "+chi.URLParam(r, "action"), map[string]any{"response": line})
}

// RelayBrake handles /api/relay-brake/{action}. Dropping the relay also
// disarms, matching the controller's behavior.
func (h *Handler) RelayBrake(w http.ResponseWriter, r *http.Request) {
	var cmd string
	var active bool
	switch chi.URLParam(r, "action") {
	case "on":
		cmd, active = spectralink.CmdRelayBrakeOn, true
	case "off":
		cmd, active = spectralink.CmdRelayBrakeOff, false
	default:
		errorResponse(w, http.StatusBadRequest, "relay-brake action must be on or off")
		return
	}
	line, err := h.engine.SendSync(r.Context(), cmd)
	if err != nil {
		h.commandError(w, err)
		return
	}
	h.engine.Store().SetRelayBrake(active)
	successResponse(w, "relay brake "+chi.URLParam(r, "action"), map[string]any{"response": line})
}

// EmergencyStop latches local state immediately, then fires the command in
// the background. The caller gets an instant answer even when the link is
// congested.
func (h *Handler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	h.engine.Store().RecordEmergencyStop(nil)
	h.resetSpeeds()
	if err := h.engine.SendAsync(spectralink.CmdEmergencyStop); err != nil {
		h.log.Error("emergency stop not queued", "err", err)
		errorResponse(w, http.StatusServiceUnavailable,
			"emergency stop latched locally but not delivered: "+err.Error())
		return
	}
	successResponse(w, "emergency stop issued", nil)
}

// BuzzerOff silences the alarm buzzer without clearing the alarm.
func (h *Handler) BuzzerOff(w http.ResponseWriter, r *http.Request) {
	line, err := h.engine.SendSync(r.Context(), spectralink.CmdBuzzerOff)
	if err != nil {
		h.commandError(w, err)
		return
	}
	h.engine.Store().SetBuzzer(false)
	successResponse(w, "buzzer off", map[string]any{"response": line})
}

// TempBypass handles /api/temp-bypass/{action}, the manual override of the
// fault-tolerant temperature mode.
func (h *Handler) TempBypass(w http.ResponseWriter, r *http.Request) {
	var cmd string
	switch chi.URLParam(r, "action") {
	case "on":
		cmd = spectralink.CmdTempBypassOn
	case "off":
		cmd = spectralink.CmdTempBypassOff
	default:
		errorResponse(w, http.StatusBadRequest, "temp-bypass action must be on or off")
		return
	}
	line, err := h.engine.SendSync(r.Context(), cmd)
	if err != nil {
		h.commandError(w, err)
		return
	}
	successResponse(w, "temperature bypass "+chi.URLParam(r, "action"), map[string]any{"response": line})
}

// Reconnect forces a link teardown and redial.
func (h *Handler) Reconnect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := h.engine.Reconnect(ctx); err != nil {
		errorResponse(w, http.StatusServiceUnavailable, "reconnect failed: "+err.Error())
		return
	}
	successResponse(w, "reconnected", map[string]any{"port": h.engine.Port()})
}

func (h *Handler) resetSpeeds() {
	h.mu.Lock()
	h.motorSpeeds = make(map[int]int)
	h.motorActive = make(map[int]bool)
	h.levSpeed = 0
	h.thrSpeed = 0
	h.mu.Unlock()
}
