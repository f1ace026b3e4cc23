package engine

import (
	"testing"

	"github.com/coreos/go-semver/semver"
)

func TestPackVersion(t *testing.T) {
	for _, tt := range []struct {
		version string
		packed  uint32
	}{
		{"0.0.0", 0x000000},
		{"1.0.0", 0x010000},
		{"1.2.3", 0x010203},
		{"255.255.255", 0xffffff},
	} {
		v, err := semver.NewVersion(tt.version)
		if err != nil {
			t.Fatalf("parse %s: %v", tt.version, err)
		}
		if got := PackVersion(*v); got != tt.packed {
			t.Fatalf("PackVersion(%s) = %#x, want %#x", tt.version, got, tt.packed)
		}
	}
}

func TestUnpackVersion(t *testing.T) {
	for _, tt := range []struct {
		packed  uint32
		version string
	}{
		{0x010000, "1.0.0"},
		{0x010203, "1.2.3"},
		{0x020001, "2.0.1"},
	} {
		if got := UnpackVersion(tt.packed); got != tt.version {
			t.Fatalf("UnpackVersion(%#x) = %s, want %s", tt.packed, got, tt.version)
		}
	}
}

func TestVersionRoundTrip(t *testing.T) {
	for _, s := range []string{"1.0.0", "1.1.0", "12.34.56"} {
		v := semver.New(s)
		if got := UnpackVersion(PackVersion(*v)); got != s {
			t.Fatalf("Round trip of %s gave %s", s, got)
		}
	}
}
