// Package codegen turns automation requests into registered tools:
// model-generated source is screened against a deny-list, persisted,
// and promoted into the capability registry.
package codegen

import "strings"

// denyMarkers is the fixed deny-list. Screening is a case-insensitive
// substring scan over the whole source text: crude on purpose, so that
// obfuscation by casing or embedding in longer commands still trips it.
var denyMarkers = []string{
	"shutdown",
	"restart",
	"delete",
	"remove",
	"rmdir",
	"rm ",
	"del ",
	"format",
	"fdisk",
	"diskpart",
	"registry",
	"regedit",
	"taskkill",
	"net user",
	"net localgroup",
	"chmod 777",
	"sudo rm",
	"dd if=",
	"mkfs",
	"fsck",
	"mount",
	"umount",
	"kill -9",
	"killall",
}

// SafetyVerdict is the result of screening one source text.
type SafetyVerdict struct {
	Safe    bool
	Matched []string // every deny marker found, in list order
}

// Screen scans source for deny-list markers. All matches are collected
// so a rejection can name everything that tripped the gate.
func Screen(source string) SafetyVerdict {
	lowered := strings.ToLower(source)
	var matched []string
	for _, marker := range denyMarkers {
		if strings.Contains(lowered, marker) {
			matched = append(matched, marker)
		}
	}
	return SafetyVerdict{Safe: len(matched) == 0, Matched: matched}
}

// DenyMarkers returns a copy of the deny-list for display purposes.
func DenyMarkers() []string {
	out := make([]string, len(denyMarkers))
	copy(out, denyMarkers)
	return out
}
