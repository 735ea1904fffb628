package mcphost

import "fmt"

// Kind names a capability kind in errors.
type Kind string

const (
	KindTool             Kind = "tool"
	KindResource         Kind = "resource"
	KindResourceTemplate Kind = "resource template"
	KindPrompt           Kind = "prompt"
	KindMount            Kind = "mount"
)

// NotFoundError reports that an identifier did not resolve to any
// local or mounted capability.
type NotFoundError struct {
	Kind       Kind
	Identifier string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Identifier)
}

// CollisionError reports that a composition operation would produce an
// identifier that already exists. The operation that returns it has
// made no changes.
type CollisionError struct {
	Kind       Kind
	Identifier string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Kind, e.Identifier)
}

// CycleError reports that a mount would make a host reachable from
// itself through the mount graph.
type CycleError struct {
	Prefix string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("mount %q would create a cycle", e.Prefix)
}

// SeparatorError reports a prefix that cannot be unambiguously stripped
// because it is empty or contains the separator for its kind.
type SeparatorError struct {
	Prefix    string
	Separator string
}

func (e *SeparatorError) Error() string {
	if e.Prefix == "" {
		return "prefix must not be empty"
	}
	return fmt.Sprintf("prefix %q must not contain separator %q", e.Prefix, e.Separator)
}

// ProxySessionError reports a failure in the proxy session lifecycle
// against a mounted child: opening the session, the initialize
// exchange, or the wire round trip itself.
type ProxySessionError struct {
	Prefix string
	Op     string
	Err    error
}

func (e *ProxySessionError) Error() string {
	return fmt.Sprintf("proxy session %s failed for mount %q: %v", e.Op, e.Prefix, e.Err)
}

func (e *ProxySessionError) Unwrap() error { return e.Err }
