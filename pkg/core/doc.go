// Package core provides the storage engine for sqstash.
//
// It persists typed collections of Go values in a single SQLite file using
// modernc.org/sqlite. Every collection is backed by its own table; values of
// built-in scalar types are stored in native columns and all other values as
// msgpack payloads prefixed with a persistent type id.
//
// # Key Components
//
//   - Database: an open session, created with Open and a Config.
//   - TypeRegistry: maps canonical type names to stable ids and checks that
//     the types supplied by the process are compatible with the stored ones.
//   - Collections: Bag, Queue, HashSet, Dictionary, MultiValueDictionary,
//     IntervalCollection, OrderedCollection and Point2DCollection, opened
//     with the generic GetOrCreate*, Create* and Get* functions.
//
// # Observability
//
// The engine logs through the Logger interface; NewZapLogger adapts a zap logger.
package core
