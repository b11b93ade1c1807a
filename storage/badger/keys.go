package badger

import (
	"encoding/binary"
	"errors"
	"strings"

	"github.com/poiesic/quarry/core"
)

// Key prefixes for different data types. Every prefix ends in ':' so that no
// prefix is a prefix of another.
const (
	sequencePrefix        = "seq:"
	companyPrefix         = "co:"
	companyTickerPrefix   = "cot:"
	resourcePrefix        = "rs:"
	resourcePendingPrefix = "rsp:"
	resourceSourcePrefix  = "rss:"
	resourceCompanyPrefix = "rsc:"
	documentPrefix        = "dc:"
	documentResPrefix     = "dcr:"
	documentCompanyPrefix = "dcc:"
	chunkPrefix           = "ck:"
	chunkDocumentPrefix   = "ckd:"
	checkpointPrefix      = "cp:"
)

// Sequence names
const (
	companySeq  = "company"
	resourceSeq = "resource"
	documentSeq = "document"
	chunkSeq    = "chunk"
)

// ErrStopScan ends a ScanPrefix walk early without reporting an error.
var ErrStopScan = errors.New("stop scan")

// compositeKey builds prefix followed by each part as 8 big-endian bytes,
// so that lexicographic key order matches numeric order of the parts.
func compositeKey(prefix string, parts ...uint64) []byte {
	buf := make([]byte, len(prefix)+8*len(parts))
	offset := copy(buf, prefix)
	for _, p := range parts {
		binary.BigEndian.PutUint64(buf[offset:], p)
		offset += 8
	}
	return buf
}

// lastPart decodes the trailing 8 bytes of a composite key.
func lastPart(key []byte) core.ID {
	if len(key) < 8 {
		return 0
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

func makeCompanyKey(id core.ID) []byte {
	return compositeKey(companyPrefix, uint64(id))
}

// makeCompanyTickerKey generates the unique ticker index key.
// Format: prefix + upper-case ticker
func makeCompanyTickerKey(ticker string) []byte {
	return []byte(companyTickerPrefix + core.NormalizeTicker(ticker))
}

func makeResourceKey(id core.ID) []byte {
	return compositeKey(resourcePrefix, uint64(id))
}

// makeResourcePendingKey marks a resource that still needs ingestion.
func makeResourcePendingKey(id core.ID) []byte {
	return compositeKey(resourcePendingPrefix, uint64(id))
}

// makeResourceSourceKey generates the unique source location index key.
func makeResourceSourceKey(source string) []byte {
	return []byte(resourceSourcePrefix + strings.TrimSpace(source))
}

// makeResourceCompanyKey generates a composite key for the company index.
// Format: prefix:companyID:resourceID
func makeResourceCompanyKey(companyID, id core.ID) []byte {
	return compositeKey(resourceCompanyPrefix, uint64(companyID), uint64(id))
}

func makeDocumentKey(id core.ID) []byte {
	return compositeKey(documentPrefix, uint64(id))
}

// makeDocumentResourceKey generates a composite key ordering a resource's pages.
// Format: prefix:resourceID:pageNumber:documentID
func makeDocumentResourceKey(resourceID core.ID, page int, id core.ID) []byte {
	return compositeKey(documentResPrefix, uint64(resourceID), uint64(page), uint64(id))
}

// makeDocumentCompanyKey generates a composite key for the company index.
// Format: prefix:companyID:documentID
func makeDocumentCompanyKey(companyID, id core.ID) []byte {
	return compositeKey(documentCompanyPrefix, uint64(companyID), uint64(id))
}

func makeChunkKey(id core.ID) []byte {
	return compositeKey(chunkPrefix, uint64(id))
}

// makeChunkDocumentKey generates a composite key ordering a document's chunks.
// Format: prefix:documentID:seq:chunkID
func makeChunkDocumentKey(documentID core.ID, seq int, id core.ID) []byte {
	return compositeKey(chunkDocumentPrefix, uint64(documentID), uint64(seq), uint64(id))
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return []byte(checkpointPrefix + processorType)
}
