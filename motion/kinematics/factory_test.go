package kinematics

import (
	"testing"
)

func TestFactoryCreatesEveryKind(t *testing.T) {
	kinds := []GeometryKind{CartesianKind, CoreXYKind, CoreXZKind, LinearDeltaKind, ScaraKind}
	for _, kind := range kinds {
		k, err := New(kind)
		if err != nil {
			t.Errorf("New(%v) failed: %v", kind, err)
			continue
		}
		if k.Kind() != kind {
			t.Errorf("New(%v).Kind() = %v", kind, k.Kind())
		}
	}
}

func TestFactoryRejectsUnknownKind(t *testing.T) {
	if _, err := New(UnknownKind); err == nil {
		t.Error("New(UnknownKind) did not fail")
	}
	if _, err := New(GeometryKind(99)); err == nil {
		t.Error("New(99) did not fail")
	}
}

func TestParseGeometry(t *testing.T) {
	cases := []struct {
		name string
		want GeometryKind
		ok   bool
	}{
		{"cartesian", CartesianKind, true},
		{"Cartesian", CartesianKind, true},
		{"corexy", CoreXYKind, true},
		{"CoreXZ", CoreXZKind, true},
		{"delta", LinearDeltaKind, true},
		{" scara ", ScaraKind, true},
		{"polar", UnknownKind, false},
		{"", UnknownKind, false},
	}
	for _, tc := range cases {
		got, err := ParseGeometry(tc.name)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseGeometry(%q) = %v, %v; want %v", tc.name, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseGeometry(%q) did not fail", tc.name)
		}
	}
}

func TestSupportedGeometriesAllParse(t *testing.T) {
	for _, name := range SupportedGeometries() {
		if _, err := ParseGeometry(name); err != nil {
			t.Errorf("SupportedGeometries lists %q but ParseGeometry rejects it", name)
		}
	}
}
