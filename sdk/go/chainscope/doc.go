// Package chainscope is a Go client for the ChainScope agent HTTP API. It
// covers synchronous chat turns, session history, the tool listing and
// asynchronous jobs.
package chainscope
