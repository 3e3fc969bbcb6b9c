package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Xatter/shellies-ng/internal/shellies"
)

// RenderEvent formats one lifecycle event as a single styled line.
func RenderEvent(e shellies.Event, at time.Time) string {
	var (
		marker string
		color  lipgloss.Color
		detail string
	)

	switch e.Kind {
	case shellies.EventAdd:
		marker, color = AddMarker, SuccessColor
		detail = deviceDetail(e)
	case shellies.EventRemove:
		marker, color = RemoveMarker, MutedColor
		detail = deviceDetail(e)
	case shellies.EventError:
		marker, color = ErrorMarker, ErrorColor
		if e.Err != nil {
			detail = ErrorMessageStyle.Render(e.Err.Error())
		}
	case shellies.EventExclude:
		marker, color = ExcludeMarker, MutedColor
		detail = DetailStyle.Render("excluded by configuration")
	case shellies.EventUnknown:
		marker, color = UnknownMarker, WarningColor
		detail = DetailStyle.Render(unknownDetail(e))
	default:
		marker, color = " ", TextColor
	}

	label := EventLabelStyle.Foreground(color).Render(marker + " " + string(e.Kind))
	parts := []string{
		TimestampStyle.Render(at.Format(time.TimeOnly)),
		label,
		DeviceIDStyle.Render(string(e.DeviceID)),
	}
	if detail != "" {
		parts = append(parts, detail)
	}
	return strings.Join(parts, " ")
}

func deviceDetail(e shellies.Event) string {
	if e.Device == nil {
		return ""
	}
	detail := e.Device.Model()
	if h := e.Device.Handler(); h != nil {
		detail += " via " + h.Protocol().String()
	}
	return DetailStyle.Render(detail)
}

func unknownDetail(e shellies.Event) string {
	model := e.Model
	if model == "" {
		model = "unidentified model"
	}
	if e.Identifiers.Address != "" {
		return fmt.Sprintf("%s at %s", model, e.Identifiers.Address)
	}
	return model
}
