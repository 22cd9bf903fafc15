// Package store provides SQL backed implementations of session.Persistence:
// SQLite for single-host deployments and PostgreSQL (through GORM) for
// shared ones. Session records and games are stored as JSON columns.
package store
