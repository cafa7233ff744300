// Package blockscout types the JSON payloads returned by the Blockscout MCP
// tools. Decoding happens once, at the boundary, so report code can read
// fields such as basic_info.is_scam or a transaction fee without chained
// type assertions.
package blockscout
