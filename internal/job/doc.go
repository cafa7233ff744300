// Package job runs chat turns asynchronously. Submitted jobs are stored,
// published to a queue (in-memory channel, Redis list or RabbitMQ) and
// executed by a worker pool that retries retryable failures.
package job
