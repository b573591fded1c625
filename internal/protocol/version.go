package protocol

import "fmt"

// VersionRule bounds the acceptable major-version range for one named
// client component. Unknown components are not present in the matrix and
// always pass, per §4.1.
type VersionRule struct {
	Component string
	MinMajor  int
	MaxMajor  int
}

// VersionMatrix is consulted at phone auth (is the client too old?) and at
// controller auth (is the target phone too old to talk to?). This logic
// has no surviving original-source counterpart (see SPEC_FULL.md) and is
// authored directly from spec.md's §4.1 description.
type VersionMatrix struct {
	rules     map[string]VersionRule
	UpdateURL string
}

func NewVersionMatrix(updateURL string, rules ...VersionRule) VersionMatrix {
	m := VersionMatrix{rules: make(map[string]VersionRule, len(rules)), UpdateURL: updateURL}
	for _, r := range rules {
		m.rules[r.Component] = r
	}
	return m
}

// inRange reports whether v satisfies the matrix, true for any component
// the matrix has no opinion on.
func (m VersionMatrix) inRange(v ClientVersion) bool {
	rule, ok := m.rules[v.Component]
	if !ok {
		return true
	}
	return v.Major >= rule.MinMajor && v.Major <= rule.MaxMajor
}

func (m VersionMatrix) outdatedMessage(v ClientVersion) string {
	rule := m.rules[v.Component]
	return fmt.Sprintf("Your %s (v%d.%d) is outdated. Please update to version %d.x or later.",
		v.Component, v.Major, v.Minor, rule.MinMajor)
}

// CheckClient validates a phone's own declared version at auth time.
// Returns nil when acceptable (or absent, or an unknown component).
func (m VersionMatrix) CheckClient(v *ClientVersion) *VersionError {
	if v == nil || m.inRange(*v) {
		return nil
	}
	return &VersionError{
		Type:      "error",
		Code:      "outdated_client",
		Message:   m.outdatedMessage(*v),
		UpdateURL: m.UpdateURL,
	}
}

// CheckPair validates a controller, at admission time, against the cached
// version of its target phone (and, if the controller itself declared one, the
// controller's own version), producing outdated_client / outdated_remote /
// both_outdated as appropriate. Either version may be nil (not declared,
// or phone not connected / no cached version yet), in which case that side
// is treated as compatible.
func (m VersionMatrix) CheckPair(controllerVersion, phoneVersion *ClientVersion) *VersionError {
	controllerBad := controllerVersion != nil && !m.inRange(*controllerVersion)
	phoneBad := phoneVersion != nil && !m.inRange(*phoneVersion)

	switch {
	case controllerBad && phoneBad:
		return &VersionError{
			Type:      "error",
			Code:      "both_outdated",
			Message:   m.outdatedMessage(*controllerVersion) + " " + m.outdatedMessage(*phoneVersion),
			UpdateURL: m.UpdateURL,
		}
	case phoneBad:
		return &VersionError{
			Type:      "error",
			Code:      "outdated_remote",
			Message:   m.outdatedMessage(*phoneVersion),
			UpdateURL: m.UpdateURL,
		}
	case controllerBad:
		return &VersionError{
			Type:      "error",
			Code:      "outdated_client",
			Message:   m.outdatedMessage(*controllerVersion),
			UpdateURL: m.UpdateURL,
		}
	default:
		return nil
	}
}
