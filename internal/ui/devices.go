package ui

import (
	"strconv"
	"strings"

	"github.com/Xatter/shellies-ng/internal/discovery"
)

var deviceColumns = []string{"DEVICE ID", "ADDRESS", "GEN", "HOSTNAME"}

// RenderDevices renders discovered devices as an aligned table. An empty
// list renders a single muted line.
func RenderDevices(entries []*discovery.Entry) string {
	if len(entries) == 0 {
		return DetailStyle.Render("No devices found")
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.DeviceID, e.Address(), strconv.Itoa(e.Gen), e.Hostname})
	}

	widths := make([]int, len(deviceColumns))
	for i, c := range deviceColumns {
		widths[i] = len(c)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	var b strings.Builder
	b.WriteString(renderRow(deviceColumns, widths, TableHeaderStyle.Render))
	for _, row := range rows {
		b.WriteString("\n")
		b.WriteString(renderRow(row, widths, TableCellStyle.Render))
	}
	return b.String()
}

func renderRow(cells []string, widths []int, render func(...string) string) string {
	padded := make([]string, len(cells))
	for i, cell := range cells {
		padded[i] = render(padRight(cell, widths[i]))
	}
	return strings.TrimRight(strings.Join(padded, "  "), " ")
}
