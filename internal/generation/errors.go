// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import (
	"errors"
	"strings"
)

// ErrClosed is returned by a Worker after Close.
var ErrClosed = errors.New("generation worker closed")

// MissingImagesError rejects a submission whose buffer references image
// files that do not exist. Nothing is sent to the provider.
type MissingImagesError struct {
	Paths []string
}

func (e *MissingImagesError) Error() string {
	lines := make([]string, 0, len(e.Paths))
	for _, p := range e.Paths {
		lines = append(lines, "image not found: "+p)
	}
	return strings.Join(lines, "\n")
}

// errorChunk renders a provider failure as inline text.
func errorChunk(err error) string {
	return "\n\nerror: " + err.Error()
}
