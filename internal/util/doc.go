// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the storage and display code.
//
// File operations:
//   - AtomicWriteFile: crash-safe replace of a file's content
//
// Display width (terminal columns, CJK and emoji aware):
//   - StringWidth, TruncateWidth, PadRight, FirstLine
//
//	err := util.AtomicWriteFile(path, data, 0o644)
//	label := util.TruncateWidth(util.FirstLine(buffer), 40)
package util
