// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the Dockside CLI.
package ux

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
)

// Dockside color palette - harbor water and weathered brass
var (
	// Primary palette (brightest to darkest)
	ColorHarborBright  = lipgloss.Color("#43B9F0") // Bright harbor blue - highlights
	ColorHarborPrimary = lipgloss.Color("#2D9CDB") // Primary blue - main brand color
	ColorHarborDeep    = lipgloss.Color("#1F6FA8") // Deep harbor - borders, accents
	ColorBrass         = lipgloss.Color("#C9A227") // Brass - secondary accents

	// Dark palette (for backgrounds, muted elements)
	ColorPierWood = lipgloss.Color("#4A4036") // Pier wood - muted borders
	ColorNight    = lipgloss.Color("#10181F") // Night water - near black
	ColorSlate    = lipgloss.Color("#51606C") // Slate - muted text

	// Semantic colors (standard conventions for clarity)
	ColorSuccess = lipgloss.Color("#3FBF7F")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box      lipgloss.Style
	ErrorBox lipgloss.Style

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Mention        lipgloss.Style
	SourceLine     lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorHarborBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorHarborPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorHarborBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorHarborDeep).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),

	UserLabel:      lipgloss.NewStyle().Bold(true).Foreground(ColorBrass),
	AssistantLabel: lipgloss.NewStyle().Bold(true).Foreground(ColorHarborPrimary),
	Mention:        lipgloss.NewStyle().Foreground(ColorHarborBright),
	SourceLine:     lipgloss.NewStyle().Foreground(ColorSlate).Italic(true),
}

// plain disables all styling and animation, for pipes and dumb terminals.
var plain atomic.Bool

// SetPlain switches plain output mode on or off.
func SetPlain(v bool) { plain.Store(v) }

// Plain reports whether plain output mode is active.
func Plain() bool { return plain.Load() }

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconAnchor  Icon = "⚓"
	IconDoc     Icon = "🗎"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	if Plain() {
		return string(i)
	}
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Title prints a styled title
func Title(text string) {
	if Plain() {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func Success(text string) {
	if Plain() {
		fmt.Printf("OK: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message
func Warning(text string) {
	if Plain() {
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message
func Error(text string) {
	if Plain() {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational message
func Info(text string) {
	if Plain() {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints muted/secondary text
func Muted(text string) {
	if Plain() {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// Box prints text in a rounded box
func Box(title, content string) {
	if Plain() {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	boxStyle := Styles.Box.Width(60)
	titleLine := Styles.Title.Render(title)
	fmt.Println(boxStyle.Render(titleLine + "\n" + content))
}
