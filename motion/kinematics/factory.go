// Factory for creating kinematics instances from a geometry kind.
package kinematics

import (
	"fmt"
	"strings"
)

// New creates the kinematics instance for a geometry kind with compiled-in
// defaults. An unrecognized kind is a configuration error and never
// produces a usable object.
func New(kind GeometryKind) (Kinematics, error) {
	switch kind {
	case CartesianKind:
		return NewCartesian(), nil
	case CoreXYKind:
		return NewCoreXY(), nil
	case CoreXZKind:
		return NewCoreXZ(), nil
	case LinearDeltaKind:
		return NewLinearDelta(), nil
	case ScaraKind:
		return NewScara(), nil
	}
	return nil, fmt.Errorf("unsupported geometry kind %d", kind)
}

// ParseGeometry maps a configuration name to a geometry kind.
func ParseGeometry(name string) (GeometryKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cartesian":
		return CartesianKind, nil
	case "corexy":
		return CoreXYKind, nil
	case "corexz":
		return CoreXZKind, nil
	case "delta", "lineardelta", "linear delta":
		return LinearDeltaKind, nil
	case "scara":
		return ScaraKind, nil
	}
	return UnknownKind, fmt.Errorf("unsupported geometry: %s", name)
}

// SupportedGeometries returns the configuration names of all supported
// geometries.
func SupportedGeometries() []string {
	return []string{"cartesian", "corexy", "corexz", "delta", "scara"}
}
