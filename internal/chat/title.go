// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package chat

import (
	"regexp"
	"strings"
)

const (
	titleWordCount = 5
	titleMaxLen    = 60
)

// actorRe matches tracked group designators (APT29, FIN7, UNC1878, TA542,
// also with a space or hyphen before the number) and a handful of common
// colloquial names.
var actorRe = regexp.MustCompile(`(?i)\b((?:APT|FIN|UNC|TA)[- ]?\d+|Lazarus(?: Group)?|Sandworm|Turla|Cozy Bear|Fancy Bear|LockBit|Cl0p|BlackCat|ALPHV|Scattered Spider|Kimsuky|Wizard Spider)\b`)

var cveRe = regexp.MustCompile(`(?i)\bCVE-\d{4}-\d{4,7}\b`)

// keywordTitles maps topic keywords to a canned title, checked in order
// after the actor and CVE patterns.
var keywordTitles = []struct {
	keyword string
	title   string
}{
	{"ransomware", "Ransomware activity"},
	{"vulnerabilit", "Vulnerability research"},
	{"exploit", "Vulnerability research"},
	{"malware", "Malware research"},
	{"phish", "Phishing activity"},
	{"indicator", "Indicator lookup"},
	{"sector", "Sector targeting"},
	{"industry", "Sector targeting"},
}

// DeriveTitle produces a short session title from the first user message:
// a recognized actor name yields "<name> inquiry", a CVE id yields
// "<id> lookup", a topic keyword yields its canned title, anything else the
// first five words (with "..." when the message is longer).
func DeriveTitle(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "New conversation"
	}

	if m := actorRe.FindString(text); m != "" {
		return canonicalActor(m) + " inquiry"
	}
	if m := cveRe.FindString(text); m != "" {
		return strings.ToUpper(m) + " lookup"
	}

	lower := strings.ToLower(text)
	for _, kt := range keywordTitles {
		if strings.Contains(lower, kt.keyword) {
			return kt.title
		}
	}

	words := strings.Fields(text)
	if len(words) > titleWordCount {
		return clampTitle(strings.Join(words[:titleWordCount], " ") + "...")
	}
	return clampTitle(text)
}

var designatorRe = regexp.MustCompile(`(?i)^(APT|FIN|UNC|TA)\d+$`)

// canonicalActor normalizes a designator match ("apt 29" → "APT29").
// Colloquial names keep the casing the user typed unless it was all
// lowercase.
func canonicalActor(m string) string {
	compact := strings.NewReplacer(" ", "", "-", "").Replace(m)
	if designatorRe.MatchString(compact) {
		return strings.ToUpper(compact)
	}
	if m == strings.ToLower(m) {
		return titleCaseWords(m)
	}
	return m
}

func titleCaseWords(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func clampTitle(s string) string {
	if len(s) <= titleMaxLen {
		return s
	}
	return s[:titleMaxLen-3] + "..."
}
