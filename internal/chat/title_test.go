// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"actor designator", "What TTPs does APT29 use?", "APT29 inquiry"},
		{"actor designator with space", "tell me about apt 29", "APT29 inquiry"},
		{"fin group", "Is FIN7 still active?", "FIN7 inquiry"},
		{"colloquial name", "who is cozy bear", "Cozy Bear inquiry"},
		{"cve", "CVE-2024-1234 impact?", "CVE-2024-1234 lookup"},
		{"cve lowercase", "what is cve-2023-34362", "CVE-2023-34362 lookup"},
		{"ransomware keyword", "Any new ransomware victims this week?", "Ransomware activity"},
		{"vulnerability keyword", "recent critical vulnerabilities", "Vulnerability research"},
		{
			"eight words no pattern",
			"tell me something interesting about the threat landscape",
			"tell me something interesting about...",
		},
		{"short message", "hello there", "hello there"},
		{"empty", "   ", "New conversation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.text))
		})
	}
}
