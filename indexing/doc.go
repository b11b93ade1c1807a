// Package indexing rebuilds the vector index from stored chunks.
//
// The Indexer pages through every chunk, skips chunks whose document matches
// an exclusion filter, embeds "context + blank line + text" and upserts the
// result in fixed-size batches keyed by chunk ID. Re-running replaces records
// instead of duplicating them. A chunk whose document is missing is logged
// and skipped; a batch that fails after retries is reported and the run
// continues with the next batch.
package indexing
