package mcphost

import "strings"

// Separators holds the per-kind separator strings used when prefixing
// identifiers. Tool and prompt names share name syntax; resources and
// resource templates share URI syntax.
type Separators struct {
	Tool     string
	Resource string
	Prompt   string
}

// DefaultSeparators returns the conventional separators: "_" for names
// and "+" for URIs.
func DefaultSeparators() Separators {
	return Separators{Tool: "_", Resource: "+", Prompt: "_"}
}

// applyPrefix namespaces an identifier under prefix. The result is
// prefix + sep + id for names and URIs alike.
func applyPrefix(prefix, sep, id string) string {
	return prefix + sep + id
}

// stripPrefix reverses applyPrefix. It reports false when id is not
// namespaced under prefix.
func stripPrefix(prefix, sep, id string) (string, bool) {
	full := prefix + sep
	if !strings.HasPrefix(id, full) {
		return "", false
	}
	return id[len(full):], true
}

// validatePrefix rejects prefixes that cannot round-trip through
// applyPrefix and stripPrefix: empty prefixes and prefixes containing
// the separator, which would make stripping ambiguous.
func validatePrefix(prefix, sep string) error {
	if prefix == "" {
		return &SeparatorError{Prefix: prefix, Separator: sep}
	}
	if sep != "" && strings.Contains(prefix, sep) {
		return &SeparatorError{Prefix: prefix, Separator: sep}
	}
	return nil
}

// validatePrefixAll validates the prefix against every per-kind
// separator, returning the first failure.
func validatePrefixAll(prefix string, seps Separators) error {
	if err := validatePrefix(prefix, seps.Tool); err != nil {
		return err
	}
	if err := validatePrefix(prefix, seps.Resource); err != nil {
		return err
	}
	return validatePrefix(prefix, seps.Prompt)
}
