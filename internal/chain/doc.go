// Package chain holds the catalogue of networks the agent can query: ids,
// display names, the aliases users type in free text and, optionally, a
// JSON-RPC endpoint per network.
package chain
