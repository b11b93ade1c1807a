package core

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// IDs are allocated from database sequences and are never zero once stored.
type ID uint64

// String returns the decimal form used as the vector record key.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses the decimal form produced by String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// Fingerprint returns a hex encoded 128-bit BLAKE2b digest of data.
// Identical content always yields an identical fingerprint.
func Fingerprint(data []byte) string {
	h, _ := blake2b.New(16, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Company owns resources and everything extracted from them.
type Company struct {
	Id     ID
	Ticker string
	Name   string
	// StorageLocation is the "bucket/prefix" uploads for this company go to.
	StorageLocation string
	InsertedAt      time.Time
	UpdatedAt       time.Time
}

// Resource is a source file registered for a company.
type Resource struct {
	Id        ID
	CompanyId ID
	// StorageLocation is where the bytes are fetched from: an object URL or a local path.
	StorageLocation string
	// SourceLocation is the original absolute path of an uploaded file, used for dedup.
	SourceLocation string
	Checksum       string
	Ingested       bool // extracted into documents and chunks
	Indexed        bool // every chunk upserted into the vector index
	InsertedAt     time.Time
	UpdatedAt      time.Time
}

// Document is the extracted text of one page of a resource.
type Document struct {
	Id         ID
	CompanyId  ID
	ResourceId ID // zero when the document has no owning resource
	PageNumber int
	Text       string
	FilePath   string
	InsertedAt time.Time
}

// Chunk is a bounded slice of a document's text, the unit of retrieval.
type Chunk struct {
	Id         ID
	DocumentId ID
	CompanyId  ID
	Seq        int // position within the document, in page-text order
	Text       string
	Context    string
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// Citation identifies the chunk that grounded part of an answer.
// It doubles as the metadata stored with every vector record.
type Citation struct {
	ChunkId    ID     `json:"chunk_id"`
	DocumentId ID     `json:"document_id"`
	CompanyId  ID     `json:"company_id"`
	FilePath   string `json:"file_path"`
	PageNumber int    `json:"page_number"`
}

// Passage is a retrieved chunk payload with its metadata and similarity score.
type Passage struct {
	Citation Citation
	Content  string
	Score    float32
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// Answer is a generated response together with the passages that grounded it.
type Answer struct {
	Content   string
	Citations []Citation
}

// Checkpoint records how far a resumable batch processor has progressed.
type Checkpoint struct {
	ProcessorType string
	LastId        ID
	UpdatedAt     time.Time
}
