// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"os"
	"regexp"
	"strings"
)

// ImagePlaceholder replaces an attached image's path in turn content.
const ImagePlaceholder = "[image]"

// imagePattern matches absolute POSIX or drive-letter paths ending in a
// supported image extension. The path must start the text or follow
// whitespace, a quote or an opening bracket, so URLs and relative paths
// are left alone. POSIX paths stop at whitespace; drive-letter paths may
// hold spaces. The extension must end the path: it is followed by the end
// of the text, whitespace, closing punctuation or a sentence-ending dot.
var imagePattern = regexp.MustCompile(
	`(?i)(?:^|[\s"'(\[<])((?:[a-z]:[\\/][^:*?"<>|\r\n]*?|/[^\s:*?"<>|]*?)\.(?:png|jpe?g|webp))(?:$|[\s"')\]>,;!?]|\.(?:\s|$))`,
)

// findImages returns the start and end of every image path in text. Each
// search resumes at the end of the previous path, so a terminator consumed
// by one match can still open the next.
func findImages(text string) [][2]int {
	var out [][2]int
	for pos := 0; pos < len(text); {
		m := imagePattern.FindStringSubmatchIndex(text[pos:])
		if m == nil {
			break
		}
		start, end := pos+m[2], pos+m[3]
		out = append(out, [2]int{start, end})
		pos = end
	}
	return out
}

// FindImagePaths returns every image path referenced in text, in order.
func FindImagePaths(text string) []string {
	var out []string
	for _, m := range findImages(text) {
		out = append(out, text[m[0]:m[1]])
	}
	return out
}

// scanImages swaps existing image paths for the placeholder and collects the
// ones that are missing. Missing paths are left in the text.
func (c *Codec) scanImages(content string) (string, []string, []string) {
	matches := findImages(content)
	if len(matches) == 0 {
		return content, nil, nil
	}

	exists := c.Exists
	if exists == nil {
		exists = fileExists
	}

	var (
		b       strings.Builder
		images  []string
		missing []string
		last    int
	)
	for _, m := range matches {
		path := content[m[0]:m[1]]
		if !exists(path) {
			missing = append(missing, path)
			continue
		}
		images = append(images, path)
		b.WriteString(content[last:m[0]])
		b.WriteString(ImagePlaceholder)
		last = m[1]
	}
	b.WriteString(content[last:])

	return b.String(), images, missing
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
