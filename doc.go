// Package relata maps plain Go structs onto SQLite tables and keeps
// object-to-object relationships consistent through a shared link table.
//
// A struct type becomes a table: one column per primitive field plus a
// reserved surrogate-identity column assigned by SQLite on first insert.
// Struct-typed fields (and slices of them) become relations, materialized
// as edges in a single reference-counted link table rather than as foreign
// key columns. Saving a parent replaces the full edge set of each relation
// field; deleting a parent cascades to children that no longer have any
// referencing edge anywhere.
//
// Reads and writes go through an immutable Table view obtained from the
// session:
//
//	db, err := relata.Open("library.db")
//	books := db.Table(Book{})
//	err = books.Create(ctx, relata.CreateOptions{Unique: "title"})
//	err = books.Put(ctx, &Book{Title: "Dune", Authors: []Author{{Name: "Herbert"}}})
//	out, err := books.Where("title LIKE 'D%'").OrderBy("title").All(ctx)
//
// Every view mutator (Where, OrderBy, Bind, WhereFields) returns a new
// view, so a base view can be branched safely.
//
// The session assumes a single logical connection used sequentially; the
// library does no internal locking and callers coordinate their own
// concurrency.
package relata
