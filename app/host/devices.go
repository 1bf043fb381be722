package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/gousb"
)

type deviceRow struct {
	Bus, Address int
	VID, PID     gousb.ID
	Speed        gousb.Speed
	Class        gousb.Class
}

// listDevices enumerates the USB devices attached to the host machine.
// Handy for finding the address to filter on before starting a capture.
func listDevices() ([]deviceRow, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var rows []deviceRow
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		rows = append(rows, deviceRow{
			Bus:     desc.Bus,
			Address: desc.Address,
			VID:     desc.Vendor,
			PID:     desc.Product,
			Speed:   desc.Speed,
			Class:   desc.Class,
		})
		return false // never open, enumeration only
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	return rows, nil
}

func renderDeviceTable(rows []deviceRow) string {
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		data = append(data, []string{
			fmt.Sprintf("%d", r.Bus),
			fmt.Sprintf("%d", r.Address),
			fmt.Sprintf("%s:%s", r.VID, r.PID),
			r.Speed.String(),
			r.Class.String(),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers(
			headerStyle.Render("bus"),
			headerStyle.Render("addr"),
			headerStyle.Render("vid:pid"),
			headerStyle.Render("speed"),
			headerStyle.Render("class"),
		).
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col <= 1 {
				return baseCell.Align(lipgloss.Right)
			}
			return baseCell.Align(lipgloss.Left)
		})

	return t.Render()
}
