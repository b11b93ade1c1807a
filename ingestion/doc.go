// Package ingestion turns registered resources into documents and chunks.
//
// The Pipeline fetches a resource's bytes, extracts one document per PDF page,
// splits every page into chunks and persists the result. A resource is marked
// ingested only after all of its documents and chunks are stored, so a failed
// run leaves it pending and the next run starts over from a clean slate:
//
//	Unseen -> Fetched -> Extracted -> Persisted -> Ingested
//
// Batches fan out across an ants worker pool. One resource's failure never
// stops the others; it is reported in the BatchResult instead.
package ingestion
