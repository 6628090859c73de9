// Package chunk adapts the staged pipeline to a streaming execution
// model: batches of raw tab- or space-separated read records come in,
// per-feature records come out. Each chunk gets its own isolated run
// under a fresh identifier, so many adapter instances can process
// chunks concurrently without sharing any state.
package chunk

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/st/encoding/dataset"
	"github.com/grailbio/st/encoding/fastq"
	"github.com/grailbio/st/pipeline"
)

// Source supplies chunks of raw records, one block of text per Scan.
type Source interface {
	Scan() bool
	Chunk() string
	Err() error
}

// SliceSource serves chunks from a slice, in order.
type SliceSource struct {
	chunks []string
	cur    string
}

func NewSliceSource(chunks []string) *SliceSource {
	return &SliceSource{chunks: chunks}
}

func (s *SliceSource) Scan() bool {
	if len(s.chunks) == 0 {
		return false
	}
	s.cur, s.chunks = s.chunks[0], s.chunks[1:]
	return true
}

func (s *SliceSource) Chunk() string { return s.cur }
func (s *SliceSource) Err() error    { return nil }

// ReaderSource serves blank-line-delimited blocks of text as chunks.
type ReaderSource struct {
	b   *bufio.Scanner
	cur string
	err error
}

func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{b: bufio.NewScanner(r)}
}

func (s *ReaderSource) Scan() bool {
	if s.err != nil {
		return false
	}
	var lines []string
	for s.b.Scan() {
		line := s.b.Text()
		if strings.TrimSpace(line) == "" {
			if len(lines) > 0 {
				break
			}
			continue
		}
		lines = append(lines, line)
	}
	if err := s.b.Err(); err != nil {
		s.err = err
		return false
	}
	if len(lines) == 0 {
		return false
	}
	s.cur = strings.Join(lines, "\n")
	return true
}

func (s *ReaderSource) Chunk() string { return s.cur }
func (s *ReaderSource) Err() error    { return s.err }

// Feature is the coordinate/identity projection of one dataset entry.
// The associated hits payload travels separately.
type Feature struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Gene    string `json:"gene"`
	Barcode string `json:"barcode"`
}

// Scanner lazily turns a Source of chunks into a sequence of features.
// For each chunk it materializes a temporary read pair, runs the full
// pipeline under an ephemeral configuration derived from the base one,
// and streams the resulting dataset. Feature order within a chunk
// follows the dataset, which need not match the chunk's input order.
//
// A pipeline error mid-chunk halts the whole sequence; that chunk's
// temporary files are left in place and reported by LeakedPaths.
type Scanner struct {
	ctx   context.Context
	src   Source
	base  *pipeline.Opts
	tools pipeline.Toolset

	ds         *dataset.Reader
	cur        dataset.Entry
	chunkFiles []string
	leaked     []string
	err        error
}

// NewScanner returns a Scanner over src. Read-file paths and experiment
// name of base are replaced per chunk; everything else is inherited.
func NewScanner(ctx context.Context, src Source, base *pipeline.Opts, tools pipeline.Toolset) *Scanner {
	return &Scanner{ctx: ctx, src: src, base: base, tools: tools}
}

// Scan advances to the next feature, crossing chunk boundaries as
// needed. Once it returns false it never returns true again.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for {
		if s.ds != nil {
			if s.ds.Scan() {
				s.cur = s.ds.Entry()
				return true
			}
			if err := s.ds.Err(); err != nil {
				s.fail(err)
				return false
			}
			if !s.finishChunk() {
				return false
			}
		}
		if !s.startChunk() {
			return false
		}
	}
}

// Feature returns the feature read by the last successful Scan.
func (s *Scanner) Feature() Feature {
	return Feature{X: s.cur.X, Y: s.cur.Y, Gene: s.cur.Gene, Barcode: s.cur.Barcode}
}

// Hits returns the opaque hits payload of the last feature.
func (s *Scanner) Hits() json.RawMessage { return s.cur.Hits }

// Err returns the error that terminated the sequence, nil on clean
// exhaustion of the source.
func (s *Scanner) Err() error { return s.err }

// LeakedPaths lists temporary files a failed chunk left behind.
func (s *Scanner) LeakedPaths() []string { return s.leaked }

func (s *Scanner) fail(err error) {
	log.Error.Printf("chunk processing halted: %v", err)
	s.leaked = append(s.leaked, s.chunkFiles...)
	s.err = err
}

func (s *Scanner) tempDir() string {
	if s.base.TempFolder != "" {
		return s.base.TempFolder
	}
	return "."
}

func (s *Scanner) startChunk() bool {
	if !s.src.Scan() {
		s.err = s.src.Err()
		return false
	}
	runID := "st_chunk_" + uuid.New().String()
	fw := filepath.Join(s.tempDir(), runID+"_1.fastq")
	rv := filepath.Join(s.tempDir(), runID+"_2.fastq")
	n, err := writePairFiles(s.ctx, s.src.Chunk(), fw, rv)
	if err != nil {
		s.chunkFiles = []string{fw, rv}
		s.fail(err)
		return false
	}
	log.Debug.Printf("chunk %s: %d read pairs", runID, n)

	overlay := *s.base
	overlay.FastqFw = fw
	overlay.FastqRv = rv
	overlay.ExpName = runID
	s.chunkFiles = []string{fw, rv}
	if err := overlay.Validate(); err != nil {
		s.fail(err)
		return false
	}
	ds, err := pipeline.New(&overlay, s.tools).Run(s.ctx)
	if err != nil {
		s.fail(err)
		return false
	}
	// The per-read companion is produced unconditionally but never
	// consumed here; it is removed with the rest of the chunk.
	s.chunkFiles = append(s.chunkFiles, ds.Barcodes, ds.Reads)
	r, err := dataset.Open(s.ctx, ds.Barcodes)
	if err != nil {
		s.fail(err)
		return false
	}
	s.ds = r
	return true
}

// finishChunk closes the dataset and removes the chunk-scoped files.
func (s *Scanner) finishChunk() bool {
	e := errors.Once{}
	e.Set(s.ds.Close(s.ctx))
	s.ds = nil
	for _, path := range s.chunkFiles {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			e.Set(errors.E(err, "removing chunk file "+path))
		}
	}
	s.chunkFiles = nil
	if err := e.Err(); err != nil {
		s.fail(err)
		return false
	}
	return true
}

// writePairFiles parses the chunk's lines and writes the valid records
// as a paired FASTQ file set, preserving input order. A line is valid
// iff it has exactly 5 whitespace-separated fields (header, seq1,
// qual1, seq2, qual2); all other lines are dropped silently. Returns
// the number of pairs written.
func writePairFiles(ctx context.Context, chunk, fwPath, rvPath string) (int, error) {
	fwFile, err := file.Create(ctx, fwPath)
	if err != nil {
		return 0, errors.E(err, "creating "+fwPath)
	}
	rvFile, err := file.Create(ctx, rvPath)
	if err != nil {
		_ = fwFile.Close(ctx)
		return 0, errors.E(err, "creating "+rvPath)
	}
	w := fastq.NewPairWriter(fwFile.Writer(ctx), rvFile.Writer(ctx))
	n := 0
	writeErr := func() error {
		for _, line := range strings.Split(chunk, "\n") {
			cols := strings.Fields(line)
			if len(cols) != 5 {
				continue
			}
			err := w.Write(
				&fastq.Read{ID: cols[0], Seq: cols[1], Qual: cols[2]},
				&fastq.Read{ID: cols[0], Seq: cols[3], Qual: cols[4]},
			)
			if err != nil {
				return err
			}
			n++
		}
		return nil
	}()
	e := errors.Once{}
	e.Set(writeErr)
	e.Set(fwFile.Close(ctx))
	e.Set(rvFile.Close(ctx))
	return n, e.Err()
}
