// Package store persists the tool-call audit log in SQLite.
//
// Each completed tools/call is recorded with the session and subject that
// made it, the tool name, the transport, the duration, and the outcome.
// Tool arguments, results, and credentials are never written.
//
// The database runs in WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Use NewSQLiteStore(MemoryPath) for tests that do not need a file.
package store
