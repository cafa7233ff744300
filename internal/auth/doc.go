// Package auth guards the HTTP API with static API keys presented as a
// bearer token or an X-API-Key header.
package auth
