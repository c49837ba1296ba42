// Package upload implements the resumable chunked-upload protocol used to
// move large recordings to the storage gateway.
package upload

import (
	"sort"
	"time"
)

// DefaultChunkSize is the fixed upload chunk size: 5 MB.
const DefaultChunkSize = 5 * 1024 * 1024

// Session is the resumable state of one chunked upload.
//
// UploadedChunks is a set of chunk indices, always a subset of
// [0, TotalChunks). The session is finalizable only when the set covers
// every index.
type Session struct {
	UploadID       string            `json:"upload_id"`
	FileName       string            `json:"file_name"`
	MimeType       string            `json:"mime_type"`
	TotalSize      int64             `json:"total_size"`
	ChunkSize      int64             `json:"chunk_size"`
	TotalChunks    int               `json:"total_chunks"`
	UploadedChunks map[int]bool      `json:"uploaded_chunks"`
	ETags          map[int]string    `json:"etags"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewSession creates a session for a file of the given size.
// TotalChunks is ceil(size / chunkSize).
func NewSession(uploadID, fileName, mimeType string, size, chunkSize int64) *Session {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	total := int((size + chunkSize - 1) / chunkSize)
	return &Session{
		UploadID:       uploadID,
		FileName:       fileName,
		MimeType:       mimeType,
		TotalSize:      size,
		ChunkSize:      chunkSize,
		TotalChunks:    total,
		UploadedChunks: make(map[int]bool),
		ETags:          make(map[int]string),
		CreatedAt:      time.Now(),
	}
}

// MarkUploaded records a successfully acknowledged chunk.
func (s *Session) MarkUploaded(index int, etag string) {
	if s.UploadedChunks == nil {
		s.UploadedChunks = make(map[int]bool)
	}
	if s.ETags == nil {
		s.ETags = make(map[int]string)
	}
	s.UploadedChunks[index] = true
	s.ETags[index] = etag
}

// IsComplete reports whether every chunk has been acknowledged.
func (s *Session) IsComplete() bool {
	return len(s.UploadedChunks) == s.TotalChunks
}

// MissingChunks returns the indices not yet uploaded, in ascending order.
func (s *Session) MissingChunks() []int {
	var missing []int
	for i := 0; i < s.TotalChunks; i++ {
		if !s.UploadedChunks[i] {
			missing = append(missing, i)
		}
	}
	return missing
}

// UploadedBytes returns how many bytes the acknowledged chunks cover. The
// final chunk may be short, so it is sized from the remainder.
func (s *Session) UploadedBytes() int64 {
	var n int64
	for i := range s.UploadedChunks {
		n += s.chunkLen(i)
	}
	return n
}

// chunkLen returns the byte length of chunk i.
func (s *Session) chunkLen(i int) int64 {
	start := int64(i) * s.ChunkSize
	end := start + s.ChunkSize
	if end > s.TotalSize {
		end = s.TotalSize
	}
	if end < start {
		return 0
	}
	return end - start
}

// OrderedETags returns the etags in chunk order. Call only on a complete
// session.
func (s *Session) OrderedETags() []string {
	indices := make([]int, 0, len(s.ETags))
	for i := range s.ETags {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	etags := make([]string, 0, len(indices))
	for _, i := range indices {
		etags = append(etags, s.ETags[i])
	}
	return etags
}
