// Package store defines the persistence boundary of dStats: a collection of
// binary records keyed by string, with unified error handling.
//
// Masters and collector nodes keep one record per root key of their trees,
// holding the serialized tree. The master additionally keeps a second store
// with the last accepted sync id per collector host, and collectors keep an
// outbox of sync messages whose delivery is not confirmed yet.
//
// Key Components:
//
//   - IStore Interface: record CRUD plus key listing (used to re-hydrate all
//     trees at startup). All implementations share this interface so a master
//     or collector can switch backends without code changes.
//
//   - Error System: store.Error carries a RetCode and a message. Errors can be
//     matched with errors.Is, e.g. errors.Is(err, store.ErrClosed).
//
// Implementations:
//
//	- Local Store (lstore): a concurrent in-memory map with optional snapshot
//	  persistence to a single file.
//	  Available in the "github.com/ValentinKolb/dStats/lib/store/lstore" package.
//
//	- Bolt Store (bstore): a bbolt database file. Every write is a committed
//	  transaction, which makes it the default for collector buffers.
//	  Available in the "github.com/ValentinKolb/dStats/lib/store/bstore" package.
//
//	- Distributed Store (dstore): records replicated through a Dragonboat
//	  RAFT shard with linearizable reads.
//	  Available in the "github.com/ValentinKolb/dStats/lib/store/dstore" package.
//
// The storetesting package contains a conformance suite every implementation
// runs in its tests.
package store
