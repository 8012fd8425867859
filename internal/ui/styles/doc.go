// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling for the ochat editor.
//
// Colors are Lip Gloss AdaptiveColors, so one palette serves dark and light
// terminals. The configured theme ("dark" or "light") decides which half is
// used instead of asking the terminal, because background detection is
// unreliable over SSH and inside multiplexers.
//
// # Usage
//
//	theme := styles.NewTheme("dark")
//	marker := theme.Marker(transcript.RoleUser).Render("user:")
//	bar := theme.StatusBar.Width(80).Render(status)
package styles
