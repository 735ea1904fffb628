// Package mcp contains the protocol-level data model shared by hosts,
// registries and the composition engine: the four capability kinds
// (tools, resources, resource templates, prompts), their request and
// result shapes, and the JSON-RPC method names used to address them.
//
// The package is intentionally dependency-free. Transports and the
// proxy session boundary marshal these types with encoding/json; field
// tags follow the MCP wire conventions.
package mcp
