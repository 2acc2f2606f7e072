// Package postgres implements the storage repositories on PostgreSQL
// using bun. Cascading deletes and batch inserts run inside bun
// transactions; nested WithTransaction calls join the outer transaction
// through the context.
package postgres
