// Package ui renders terminal output for the fah CLI.
//
// One-shot commands print through a Printer: a Header banner, a device
// table rendered with lipgloss/table, and Success/Failure result boxes.
// The watch command runs WatchModel, a Bubble Tea dashboard that follows
// engine events and sends commands for the selected device object.
//
// Logging stays silent unless FAH_LOG_LEVEL is set, so zap output does not
// interleave with the rendered views.
package ui
