// Package bstore implements store.IStore on top of a bbolt database file.
//
// All records live in a single bucket. Each Set and Delete runs in its own
// read-write transaction and is fsynced on commit, so a record is durable as
// soon as the call returns. This is what collector nodes need for their
// buffer and outbox: a crash right after an update must not lose it.
//
// bbolt takes an exclusive lock on the database file, so a file can only be
// opened by one store at a time. Use separate files (or buckets in separate
// files) for separate stores.
package bstore
