// Package ui renders console output for the shellies CLI with lipgloss.
//
// Output is line oriented: a Header banner when a command starts, one
// RenderEvent line per registry event, and a RenderDevices table for
// one-shot discovery. Logging stays silent unless SHELLIES_LOG_LEVEL is set,
// so this output is what the user normally sees.
package ui
