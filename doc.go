// Package sqstash is an embedded object database that stores typed Go
// collections in a single SQLite file.
//
// sqstash is 100% pure Go. It is built on modernc.org/sqlite, so no CGO is
// required. Applications work with dictionaries, sets, queues, bags,
// interval maps, ordered maps and 2-D point maps of their own types and
// never see SQL.
//
// # Key Features
//
//   - Typed collections: Bag, Queue, HashSet, Dictionary,
//     MultiValueDictionary, IntervalCollection, OrderedCollection and
//     Point2DCollection, all generic over key and value types.
//   - Polymorphic values: collections over interfaces keep the concrete
//     type of every stored value.
//   - Schema evolution: struct fields are stored under stable order ids, so
//     fields may be added or retired between releases. Incompatible changes
//     are detected and reported when the database is opened.
//   - Graceful type loss: values whose type is not known to the current
//     process are skipped by multi-value reads instead of failing them.
//   - Read-only sessions for inspection tools.
//
// # Quick Start
//
//	type Person struct {
//	    Name string
//	    Age  int32
//	}
//
//	person := schema.Struct[Person]("acme.model", "Person").
//	    Field("Name", 1).
//	    Field("Age", 2).
//	    MustBuild()
//
//	ctx := context.Background()
//	db, err := sqstash.OpenOrCreate(ctx, "stash.db", person)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	people, _ := sqstash.GetOrCreateDictionary[string, Person](ctx, db, "people")
//	_ = people.Put(ctx, "ada", Person{Name: "Ada", Age: 36})
//
// # Configuration
//
// Open accepts a Config, which can also be loaded from YAML:
//
//	path: stash.db
//	mode: read-write
//	busy_timeout: 5s
//	strict_types: false
//	log:
//	  level: info
//	  format: console
//	  output: stderr
//
// The collection engine itself lives in package core; this package
// re-exports what most applications need.
package sqstash
