// Package mcpservice provides the building blocks for a host's local
// capability registries: one mutable, thread-safe container per
// capability kind (tools, resources plus resource templates, prompts),
// the capability interfaces a host or transport consumes them through,
// and the pagination and change-notification plumbing they share.
//
// Containers hold definition records that pair a wire-level descriptor
// with an opaque handler. A handler is the only executable part of a
// capability; everything else is data and can be copied freely, which
// is what makes one-shot composition (import) a deep copy with no
// residual relationship to the source container.
//
// Conventions:
//   - All methods are safe for concurrent use and take a
//     context.Context that implementations must honor.
//   - Pagination uses Page[T]; a nil cursor requests the first page.
//   - Containers implement ChangeSubscriber; callers that care about
//     listChanged semantics discover support via type assertion.
package mcpservice
