// Package storage persists users, chat messages, credit purchases and chat
// session requests.
//
// A single SQLStore serves both PostgreSQL (lib/pq) and SQLite
// (mattn/go-sqlite3). Queries use numbered placeholders, which both drivers
// accept; every query references its parameters in ascending order so the
// SQLite binder assigns them correctly.
//
// # Credit invariants
//
// The stored chat_count never goes below zero. A user message is written in
// the same transaction as a guarded decrement:
//
//	UPDATE users SET chat_count = chat_count - 1 WHERE id = $1 AND chat_count > 0
//
// and a purchase grants its credits in the same transaction that moves it
// out of the pending state, so each payment is credited at most once.
//
// # Usage
//
//	db, err := storage.Open(ctx, storage.Options{Driver: "sqlite3", URL: "file::memory:?cache=shared"})
//	store := storage.NewSQLStore(db, "sqlite3")
//	if err := store.Migrate(ctx); err != nil { ... }
//	msg, err := store.SendUserMessage(ctx, userID, "hello")
package storage
