// Package mcp connects the agent to its tool providers. A Client speaks the
// Model Context Protocol to a remote server through the official go-sdk; a
// Registry merges one or more Sources into a single catalogue, hides internal
// tools from the public listing and routes calls to the owning source.
package mcp
