package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/term"

	"github.com/usbshark/usbshark/link"
	"github.com/usbshark/usbshark/reassembly"
)

var (
	// adaptive colors look good in light/dark terminals
	borderColor = lipgloss.AdaptiveColor{Light: "#6C6CFF", Dark: "#6C6CFF"}
	chipColor   = lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}
	okColor     = lipgloss.AdaptiveColor{Light: "#006400", Dark: "#9FF29A"}
	warnColor   = lipgloss.AdaptiveColor{Light: "#8B6508", Dark: "#F2D99A"}
	errColor    = lipgloss.AdaptiveColor{Light: "#8B0000", Dark: "#FF6B6B"}

	baseCell  = lipgloss.NewStyle().Padding(0, 1)
	chipStyle = baseCell.MarginRight(1).Border(lipgloss.RoundedBorder()).BorderForeground(borderColor).Bold(true).Foreground(chipColor)

	headerStyle   = lipgloss.NewStyle().Bold(true)
	statusOK      = lipgloss.NewStyle().Foreground(okColor).Bold(true)
	statusWarn    = lipgloss.NewStyle().Foreground(warnColor).Bold(true)
	statusErr     = lipgloss.NewStyle().Foreground(errColor).Bold(true)
	statusPartial = lipgloss.NewStyle().Foreground(warnColor)
)

func isTTY(f *os.File) bool {
	return term.IsTerminal(f.Fd())
}

func chipStatus(r txRecord) string {
	switch {
	case r.Incomplete:
		return statusPartial.Render("incomplete")
	case r.Status == reassembly.StatusSuccess:
		return statusOK.Render(r.Status.String())
	case r.Status == reassembly.StatusNotReady:
		return statusWarn.Render(r.Status.String())
	case r.Status == reassembly.StatusStalled:
		return statusErr.Render(r.Status.String())
	default:
		return r.Status.String()
	}
}

// renderChips lays out bordered "chips" and wraps by terminal width.
func renderChips(labels []string, style lipgloss.Style, maxWidth int) string {
	if maxWidth < 30 {
		maxWidth = 30
	}
	chips := make([]string, len(labels))
	for i, s := range labels {
		chips[i] = style.Render(s)
	}

	var lines []string
	var row []string
	rowW := 0

	flush := func() {
		if len(row) == 0 {
			return
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, row...))
		row = row[:0]
		rowW = 0
	}

	for _, chip := range chips {
		w := lipgloss.Width(chip)
		if rowW > 0 && rowW+w > maxWidth {
			flush()
		}
		row = append(row, chip)
		rowW += w
	}

	flush()
	return strings.Join(lines, "\n")
}

// renderStatusChips summarizes a device status report as chips.
func renderStatusChips(rep link.StatusReport, txCount int, maxWidth int) string {
	labels := []string{
		fmt.Sprintf("devices %d", rep.DeviceCount),
		fmt.Sprintf("capture %s", rep.CaptureState),
		fmt.Sprintf("buffer %d B", rep.BufferUsage),
		fmt.Sprintf("transactions %d", txCount),
	}
	return renderChips(labels, chipStyle, maxWidth)
}

// ---------- pretty TTY transaction table ----------

func txRow(r txRecord) []string {
	target := fmt.Sprintf("%d.%d", r.DeviceAddress, r.Endpoint)
	if r.Kind == reassembly.KindStartOfFrame {
		target = fmt.Sprintf("#%d", r.FrameNumber)
	}
	return []string{
		fmt.Sprintf("%d", r.ID),
		fmt.Sprintf("%d", r.Timestamp),
		r.Kind.String(),
		target,
		chipStatus(r),
		r.Description,
	}
}

func renderTxTable(rows []txRecord) string {
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		data = append(data, txRow(r))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers(
			headerStyle.Render("id"),
			headerStyle.Render("time µs"),
			headerStyle.Render("kind"),
			headerStyle.Render("addr.ep"),
			headerStyle.Render("status"),
			headerStyle.Render("description"),
		).
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			// Right align the numeric columns.
			if col <= 1 {
				return baseCell.Align(lipgloss.Right)
			}
			return baseCell.Align(lipgloss.Left)
		})

	return t.Render()
}

// ---------- live capture view ----------

const liveRowCap = 256

type txMsg txRecord

type statusMsg link.StatusReport

type liveModel struct {
	vp     viewport.Model
	rows   []txRecord
	status link.StatusReport
	width  int
	ready  bool
	tail   bool // stick to the newest row unless the user scrolled up
}

func newLiveModel() *liveModel {
	return &liveModel{tail: true}
}

func (m *liveModel) Init() tea.Cmd { return nil }

func (m *liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "end", "G":
			m.tail = true
			m.vp.GotoBottom()
			return m, nil
		case "up", "k", "pgup", "home":
			m.tail = false
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		headerH := lipgloss.Height(m.header())
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-headerH-1)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - headerH - 1
		}
		m.refresh()
		return m, nil
	case txMsg:
		m.rows = append(m.rows, txRecord(msg))
		if len(m.rows) > liveRowCap {
			m.rows = m.rows[len(m.rows)-liveRowCap:]
		}
		m.refresh()
		return m, nil
	case statusMsg:
		m.status = link.StatusReport(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	if m.vp.AtBottom() {
		m.tail = true
	}
	return m, cmd
}

func (m *liveModel) refresh() {
	if !m.ready {
		return
	}
	m.vp.SetContent(renderTxTable(m.rows))
	if m.tail {
		m.vp.GotoBottom()
	}
}

func (m *liveModel) header() string {
	return renderStatusChips(m.status, len(m.rows), m.width)
}

func (m *liveModel) View() string {
	if !m.ready {
		return "connecting..."
	}
	help := "↑/↓ scroll • end follow • q quit"
	return m.header() + "\n" + m.vp.View() + "\n" + help
}
