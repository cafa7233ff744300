// Package mysql persists chat transcripts for auditing. Two repositories
// share one interface: an append-only JSONL file for local runs and a MySQL
// table, migrated from embedded SQL files, for shared deployments.
package mysql
