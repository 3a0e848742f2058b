// Package entity contains the domain logic for the esy language-server launcher.
package entity

// ProjectMode identifies the build system detected at a workspace root.
// It is determined once per root at launch time and never changes for the
// life of a session.
type ProjectMode int

const (
	// ProjectModeUndetected means no supported build configuration was found.
	ProjectModeUndetected ProjectMode = iota
	// ProjectModeEsy means the project toolchain is resolved by esy.
	ProjectModeEsy
	// ProjectModeBucklescript means a BuckleScript build front end was detected.
	// The front end manages its own toolchain, so no dependency validation
	// applies to this mode.
	ProjectModeBucklescript
)

// String implements fmt.Stringer.
func (m ProjectMode) String() string {
	switch m {
	case ProjectModeEsy:
		return "esy"
	case ProjectModeBucklescript:
		return "bucklescript"
	default:
		return "undetected"
	}
}

// Detected reports whether any supported build system was found at the root.
func (m ProjectMode) Detected() bool {
	return m != ProjectModeUndetected
}

// LaunchOptions captures the classification outcome consumed by the resolver
// and launcher. Immutable once built.
type LaunchOptions struct {
	UseEsy bool
}

// WorkspaceContext carries the workspace root and the process environment as
// explicit values so that classification, resolution and spec building never
// read ambient global state.
type WorkspaceContext struct {
	RootPath string
	Environ  []string
}

// Manifest is the declared-dependency view of an esy.json or package.json
// file. When the esy configuration is nested under a package.json "esy" key,
// Body returns that nested section.
type Manifest struct {
	Esy             *Manifest         `json:"esy,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
}

// Body returns the section of the manifest holding esy's declared
// dependencies.
func (m *Manifest) Body() *Manifest {
	if m.Esy != nil {
		return m.Esy
	}
	return m
}

// HasDependency reports whether name is declared in either the dependencies
// or devDependencies section.
func (m *Manifest) HasDependency(name string) bool {
	body := m.Body()
	if _, ok := body.DevDependencies[name]; ok {
		return true
	}
	_, ok := body.Dependencies[name]
	return ok
}
