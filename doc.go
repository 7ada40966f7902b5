// Package lexgo provides an embedded full-text search index for Go.
//
// Lexgo is a single-writer, multi-reader document index with commit-batched
// durability. Documents carry a fixed two-field schema (a unique identifier
// plus a searchable text body) and are ranked with BM25. Committed state is
// a sequence of immutable segment blobs referenced from a generation-numbered
// manifest, so readers always observe a consistent generation and never
// block the writer.
//
// # Quick Start
//
//	ctx := context.Background()
//	idx, _ := lexgo.Open(ctx, "./data")
//	defer idx.Close()
//
//	idx.Add(ctx, model.Document{ID: "a", Text: "the quick brown fox"})
//
//	results, _ := idx.Search(ctx, "quick fox", 10)
//	for _, r := range results {
//	    fmt.Println(r.Doc.ID, r.Score)
//	}
//
// # Write Modes
//
// Every add is an update-or-insert: a prior document with the same
// identifier is replaced atomically.
//
//	// 1. SINGLE WRITE: one document, one commit.
//	idx.Add(ctx, doc)
//	idx.Delete(ctx, "a")
//
//	// 2. BATCH WRITE: many documents, one commit, all-or-nothing.
//	idx.AddBatch(ctx, docs)
//	idx.DeleteBatch(ctx, ids)
//
//	// 3. STAGED WRITE: explicit commit boundary for bulk loading.
//	idx.StageAdd(ctx, doc1)
//	idx.StageDelete(ctx, "b")
//	gen, _ := idx.Commit(ctx) // durable and visible after this
//
// # Query Syntax
//
// Search accepts bare terms (matched with OR by default), the boolean
// operators AND, OR and NOT, and the +term / -term require and exclude
// prefixes:
//
//	idx.Search(ctx, "rust AND systems", 10)
//	idx.Search(ctx, "+database -graph storage", 10)
//
// # Reader Model
//
// Search reloads the reader first and therefore always reflects the latest
// commit. GetByID reads from the current snapshot without reloading; call
// Reload to advance it explicitly.
//
// # Storage
//
// By default all state lives under a local directory. WithBlobStore swaps
// in any blobstore.BlobStore implementation, such as the in-memory store
// or the MinIO/S3 backend:
//
//	st := miniostore.NewStore(client, "bucket", "idx/")
//	idx, _ := lexgo.Open(ctx, "", lexgo.WithBlobStore(st))
package lexgo
