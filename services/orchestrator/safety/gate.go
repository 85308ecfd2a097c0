// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety holds the content gate, the prompt-injection sanitizer
// and the per-session rate gate that sit in front of every generation
// call.
package safety

import "regexp"

// blockedPatterns is the fixed denylist of unsafe-topic terms. Word
// boundary, case insensitive. False positives are acceptable; the filter
// is biased toward rejecting.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(bomb|explosive|weapon|kill|murder|hack|malware|ransomware|suicide|self.harm)\b`),
}

// IsSafeContent reports whether text passes the denylist. Pure function,
// no semantic understanding attempted.
func IsSafeContent(text string) bool {
	for _, p := range blockedPatterns {
		if p.MatchString(text) {
			return false
		}
	}
	return true
}

var (
	htmlTagPattern     = regexp.MustCompile(`<[^>]*>`)
	instBlockPattern   = regexp.MustCompile(`(?s)\[INST\].*?\[/INST\]`)
	systemRolePattern  = regexp.MustCompile(`(?i)system:`)
	maxSanitizedLength = 2000
)

// SanitizeWebContent strips HTML tags, instruction-injection markers and
// role-prefix injection attempts from externally sourced text before it
// is fed back into a prompt, then truncates hard. This is a defense
// against prompt injection, not a general HTML sanitizer.
func SanitizeWebContent(text string) string {
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = instBlockPattern.ReplaceAllString(text, "")
	text = systemRolePattern.ReplaceAllString(text, "")
	if len(text) > maxSanitizedLength {
		text = text[:maxSanitizedLength]
	}
	return text
}
