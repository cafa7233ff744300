// Package rpc serves a small set of tools straight from EVM JSON-RPC
// endpoints so balance and head-block questions work even when the explorer
// MCP server is unavailable.
package rpc
