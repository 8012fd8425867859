// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Image is an attachment read from disk.
type Image struct {
	Path     string
	MIMEType string
	Data     []byte
}

// Base64 returns the standard base64 encoding of the image bytes.
func (img Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DataURL returns the image as a data: URL.
func (img Image) DataURL() string {
	return "data:" + img.MIMEType + ";base64," + img.Base64()
}

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// LoadImage reads an image file. Only the extensions a transcript
// recognises are accepted.
func LoadImage(path string) (Image, error) {
	mimeType, ok := imageTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Image{}, fmt.Errorf("unsupported image type: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	return Image{Path: path, MIMEType: mimeType, Data: data}, nil
}

// LoadImages reads every path in order, stopping at the first failure.
func LoadImages(paths []string) ([]Image, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	out := make([]Image, 0, len(paths))
	for _, p := range paths {
		img, err := LoadImage(p)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}
