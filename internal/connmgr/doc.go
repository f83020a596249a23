// Package connmgr implements a client-side connection manager for a
// replicated/sharded document-database cluster: connection pooling,
// authentication, replica-set topology discovery, and read-preference
// server selection.
package connmgr
