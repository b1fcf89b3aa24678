// Package store holds the shared scene objects of a session and who
// currently owns each of them.
//
// A session has exactly one volume and one cutting plane, any number of
// widgets, and one laser per authenticated peer. Each object is either
// unowned or owned by a single peer. The store records ownership and
// forwards property updates to an Object supplied by a Factory, so a
// host application can back the shared state with its own scene graph:
//
//	s := store.New(store.WithFactory(func(kind store.Kind) store.Object {
//	    return scene.NewNode(kind)
//	}))
//
// Without a factory every object is a PropertyObject, which merges
// updates by property name.
//
// The store makes no ownership decisions of its own; see package
// session for the arbitration rules. A Store is not safe for concurrent
// use.
package store
