// Package sessions models the client-session boundary a composed host
// exposes. A Session is the unit of isolation for capability calls: a
// transport creates one per connected client, and the composition
// engine creates one per proxied delegation so that a child host
// observes the same connect/disconnect lifecycle an external client
// would produce.
//
// Lifecycle hooks are plain functions. A host that registers a
// ConnectHandler or DisconnectHandler is considered to "declare a
// lifecycle", which is what flips automatic mount-mode selection to
// proxy delegation.
package sessions
