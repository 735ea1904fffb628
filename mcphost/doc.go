// Package mcphost implements a composable capability host. A Host owns
// local registries for tools, resources, resource templates and
// prompts, and can incorporate other hosts two ways:
//
//   - ImportServer performs a one-shot copy: the child's current
//     definitions are prefixed and written into the parent's local
//     registries. The parent keeps no relationship to the child; later
//     child changes are invisible.
//
//   - Mount establishes a persistent link: the child's capabilities
//     appear in the parent's listings under a prefix, recomputed on
//     every read, and invocations are delegated to the child for as
//     long as the link exists. Unmount severs the link.
//
// Mounted delegation runs in one of two modes. Direct mode calls the
// child host in process. Proxy mode routes every listing and
// invocation through the child's byte-level message endpoint, with a
// session opened against the child so its connect and disconnect
// handlers observe a real client lifecycle.
//
// Identifiers are namespaced with a prefix and a per-kind separator:
// tool and prompt names use "_" by default, resource and template URIs
// use "+". Composition operations validate prefixed identifiers up
// front and fail atomically on collisions, ambiguous separators and
// mount cycles.
package mcphost
