package retrieval

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/inferd/pkg/types"
)

// vecMagic marks the raw vector side-file. The header is magic, dimension,
// and row count as little-endian uint32, followed by rows*dim float32 bits.
const vecMagic = 0x494e4656 // "INFV"

const vecHeaderSize = 12

// persistLocked writes both side-files. Failures are logged and swallowed;
// the in-memory store is the source of truth. Callers must hold the write
// lock.
func (s *Store) persistLocked() {
	if s.cfg.StoragePath == "" {
		return
	}
	if err := s.writeFiles(); err != nil {
		s.logger.Warn("retrieval store persist failed",
			"path", s.cfg.StoragePath,
			"error", err)
	}
}

func (s *Store) writeFiles() error {
	if dir := filepath.Dir(s.cfg.StoragePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}

	meta, err := json.Marshal(s.chunks)
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}
	if err := os.WriteFile(s.cfg.StoragePath+".json", meta, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	buf := make([]byte, vecHeaderSize+len(s.vectors)*4)
	binary.LittleEndian.PutUint32(buf[0:4], vecMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(s.cfg.Dimension))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(s.chunks)))
	for i, v := range s.vectors {
		binary.LittleEndian.PutUint32(buf[vecHeaderSize+i*4:], math.Float32bits(v))
	}
	if err := os.WriteFile(s.cfg.StoragePath+".vec", buf, 0o644); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	return nil
}

// load restores the persisted pair. Both files must exist and agree on
// shape; any mismatch is an error and the caller starts empty. A missing
// pair is not an error.
func (s *Store) load() error {
	meta, metaErr := os.ReadFile(s.cfg.StoragePath + ".json")
	raw, vecErr := os.ReadFile(s.cfg.StoragePath + ".vec")
	if os.IsNotExist(metaErr) && os.IsNotExist(vecErr) {
		return nil
	}
	if metaErr != nil {
		return fmt.Errorf("read metadata: %w", metaErr)
	}
	if vecErr != nil {
		return fmt.Errorf("read vectors: %w", vecErr)
	}

	var chunks []types.DocumentChunk
	if err := json.Unmarshal(meta, &chunks); err != nil {
		return fmt.Errorf("unmarshal chunks: %w", err)
	}

	if len(raw) < vecHeaderSize {
		return fmt.Errorf("vector file too short: %d bytes", len(raw))
	}
	if magic := binary.LittleEndian.Uint32(raw[0:4]); magic != vecMagic {
		return fmt.Errorf("bad vector file magic %#x", magic)
	}
	dim := int(binary.LittleEndian.Uint32(raw[4:8]))
	rows := int(binary.LittleEndian.Uint32(raw[8:12]))
	if dim != s.cfg.Dimension {
		return fmt.Errorf("vector file dimension %d, want %d", dim, s.cfg.Dimension)
	}
	if rows != len(chunks) {
		return fmt.Errorf("vector file has %d rows, metadata has %d chunks", rows, len(chunks))
	}
	if want := vecHeaderSize + rows*dim*4; len(raw) != want {
		return fmt.Errorf("vector file is %d bytes, want %d", len(raw), want)
	}

	vectors := make([]float32, rows*dim)
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[vecHeaderSize+i*4:]))
	}

	s.mu.Lock()
	s.chunks = chunks
	s.vectors = vectors
	s.mu.Unlock()

	s.logger.Info("retrieval store loaded",
		"chunks", rows,
		"path", s.cfg.StoragePath)
	return nil
}
