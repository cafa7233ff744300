// Package api exposes the chat agent over HTTP: synchronous chat turns keyed
// by session, history reset, tool and example listings, asynchronous jobs and
// Prometheus metrics. Business routes are rate limited and, when keys are
// configured, require an API key.
package api
