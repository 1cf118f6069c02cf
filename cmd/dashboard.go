// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 SpectraLoop Contributors

package cmd

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/spectraloop/spectralink/pkg/spectralink"
)

var (
	dashURL         string
	dashUsername    string
	dashNoSSLVerify bool
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Live TUI over a running server's state stream",
	Long: `Connects to a running spectralink server's websocket state stream and
renders live temperatures, motor state, and reflector data.

Example:
  spectralink dashboard --url ws://pod-pi:5001/api/ws --username operator`,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().StringVarP(&dashURL, "url", "u", "ws://localhost:5001/api/ws", "WebSocket URL (ws:// or wss://)")
	dashboardCmd.Flags().StringVar(&dashUsername, "username", "", "Username for HTTP Basic auth")
	dashboardCmd.Flags().BoolVar(&dashNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	rootCmd.AddCommand(dashboardCmd)
}

// getPassword retrieves the server password from the environment or prompts
// the user with echo disabled.
func getPassword() (string, error) {
	if pw := os.Getenv("SPECTRALINK_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// dialStateStream opens the websocket with optional basic auth.
func dialStateStream(url, username, password string, noSSLVerify bool) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if noSSLVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	header := http.Header{}
	if username != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		header.Set("Authorization", "Basic "+creds)
	}

	conn, _, err := dialer.Dial(url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// stateFrame mirrors the server's websocket message shape.
type stateFrame struct {
	State           spectralink.StateView     `json:"state"`
	Motors          map[string]dashMotorState `json:"motors"`
	LevitationSpeed int                       `json:"levitation_speed"`
	ThrustSpeed     int                       `json:"thrust_speed"`
	QueueDepth      int                       `json:"queue_depth"`
	SentAt          time.Time                 `json:"sent_at"`
}

type dashMotorState struct {
	Speed  int  `json:"speed"`
	Active bool `json:"active"`
}

type frameMsg stateFrame

type streamClosedMsg struct{ err error }

// dashModel is the Bubble Tea model for the dashboard.
type dashModel struct {
	conn   *websocket.Conn
	frames chan tea.Msg

	frame    stateFrame
	haveData bool
	lost     bool
	lostErr  error

	spin spinner.Model

	width    int
	height   int
	quitting bool
}

func newDashModel(conn *websocket.Conn) dashModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	m := dashModel{conn: conn, frames: make(chan tea.Msg, 8), spin: sp}
	go m.readLoop()
	return m
}

// readLoop pumps websocket frames into the model's channel.
func (m dashModel) readLoop() {
	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			m.frames <- streamClosedMsg{err: err}
			return
		}
		var f stateFrame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		m.frames <- frameMsg(f)
	}
}

func (m dashModel) waitForFrame() tea.Cmd {
	return func() tea.Msg { return <-m.frames }
}

func (m dashModel) Init() tea.Cmd {
	return tea.Batch(m.waitForFrame(), m.spin.Tick)
}

func (m dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			m.conn.Close()
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case frameMsg:
		m.frame = stateFrame(msg)
		m.haveData = true
		return m, m.waitForFrame()
	case streamClosedMsg:
		m.lost = true
		m.lostErr = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

var (
	dashTitleStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	dashPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).Padding(0, 1).MarginRight(1)
	dashLabelStyle = lipgloss.NewStyle().Faint(true)
	dashOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dashWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dashAlarmStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func (m dashModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.haveData {
		return fmt.Sprintf("\n  %s Waiting for state stream...\n\n  (q to quit)\n", m.spin.View())
	}

	v := m.frame.State
	var b strings.Builder
	b.WriteString(dashTitleStyle.Render("SPECTRALINK DASHBOARD"))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		dashPanelStyle.Render(m.linkPanel(v)),
		dashPanelStyle.Render(m.tempPanel(v)),
		dashPanelStyle.Render(m.reflectorPanel(v)),
	))
	b.WriteString("\n")
	b.WriteString(dashPanelStyle.Render(m.motorPanel()))
	b.WriteString("\n")
	b.WriteString(dashLabelStyle.Render("  q: quit"))
	b.WriteString("\n")
	return b.String()
}

func (m dashModel) linkPanel(v spectralink.StateView) string {
	conn := dashAlarmStyle.Render("OFFLINE")
	if v.Connected {
		conn = dashOKStyle.Render("ONLINE")
	}
	armed := "disarmed"
	if v.Armed {
		armed = dashWarnStyle.Render("ARMED")
	}
	estop := ""
	if v.EmergencyStopped {
		estop = "\n" + dashAlarmStyle.Render("EMERGENCY STOP")
	}
	return fmt.Sprintf("Link: %s\nSystem: %s\nBrake: %t  Relay: %t\nQueue: %d  Uptime: %ds%s",
		conn, armed, v.BrakeActive, v.RelayBrakeActive, m.frame.QueueDepth, v.ControllerUptime, estop)
}

func (m dashModel) tempPanel(v spectralink.StateView) string {
	style := dashOKStyle
	if v.TempAlarm {
		style = dashAlarmStyle
	}
	mode := "monitored"
	if !v.TempMonitoringRequired {
		mode = dashWarnStyle.Render("BYPASSED")
	}
	s1 := sensorLabel(v.Sensor1Temp, v.Sensor1Connected)
	s2 := sensorLabel(v.Sensor2Temp, v.Sensor2Connected)
	return fmt.Sprintf("Temp: %s\nS1: %s  S2: %s\nMax: %.1f°C  Alarms: %d\nMode: %s",
		style.Render(fmt.Sprintf("%.1f°C", v.CurrentTemp)), s1, s2, v.MaxTempReached, v.AlarmCount, mode)
}

func sensorLabel(temp float64, connected bool) string {
	if !connected {
		return dashAlarmStyle.Render("OFFLINE")
	}
	return fmt.Sprintf("%.1f°C", temp)
}

func (m dashModel) reflectorPanel(v spectralink.StateView) string {
	conn := dashOKStyle.Render("live")
	if !v.ReflectorConnected {
		conn = dashWarnStyle.Render("silent")
	}
	return fmt.Sprintf("Reflector (%s)\nCount: %d\nSpeed: %.1f rpm (avg %.1f)\nVoltage: %.2fV",
		conn, v.ReflectorCount, v.ReflectorInstSpeed, v.ReflectorAvgSpeed, v.ReflectorVoltage)
}

func (m dashModel) motorPanel() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Levitation: %d%%  Thrust: %d%%", m.frame.LevitationSpeed, m.frame.ThrustSpeed))
	for num := spectralink.MinMotor; num <= spectralink.MaxMotor; num++ {
		ms, ok := m.frame.Motors[fmt.Sprintf("%d", num)]
		state := dashLabelStyle.Render("idle")
		if ok && ms.Active {
			state = dashOKStyle.Render(fmt.Sprintf("%d%%", ms.Speed))
		}
		b.WriteString(fmt.Sprintf("\nMotor %d: %s", num, state))
	}
	return b.String()
}

func runDashboard(cmd *cobra.Command, args []string) error {
	password := ""
	if dashUsername != "" {
		var err error
		password, err = getPassword()
		if err != nil {
			return err
		}
	}

	conn, err := dialStateStream(dashURL, dashUsername, password, dashNoSSLVerify)
	if err != nil {
		return err
	}
	defer conn.Close()

	model := newDashModel(conn)
	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(dashModel); ok && m.lost && m.lostErr != nil {
		return fmt.Errorf("state stream closed: %w", m.lostErr)
	}
	return nil
}
