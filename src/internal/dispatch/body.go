// FILE: logship/src/internal/dispatch/body.go
package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/gzip"
)

type writeRequest struct {
	Entries        []json.RawMessage `json:"entries"`
	PartialSuccess bool              `json:"partialSuccess"`
}

var gzipPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return w
	},
}

// encodeBody renders the entries:write request once per batch. The returned
// flag reports whether the body is gzip encoded.
func encodeBody(entries []json.RawMessage, partialSuccess, compress bool) ([]byte, bool, error) {
	body, err := json.Marshal(writeRequest{Entries: entries, PartialSuccess: partialSuccess})
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode write request: %w", err)
	}
	if !compress {
		return body, false, nil
	}

	var buf bytes.Buffer
	buf.Grow(len(body) / 4)

	zw := gzipPool.Get().(*gzip.Writer)
	defer gzipPool.Put(zw)
	zw.Reset(&buf)

	if _, err := zw.Write(body); err != nil {
		return nil, false, fmt.Errorf("failed to compress write request: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to compress write request: %w", err)
	}
	return buf.Bytes(), true, nil
}
