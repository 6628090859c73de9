// Package dataset reads the per-feature JSON files written by the
// dataset builder (<name>_barcodes.json). Entries are decoded lazily,
// one Scan at a time, so arbitrarily large datasets stream in constant
// memory.
package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/pkg/errors"
)

// Entry is one feature record: a genomic coordinate and identity tuple
// plus an opaque hits payload. Hits is kept raw; the reader does not
// interpret it. Other fields present in the file are ignored.
type Entry struct {
	X       int             `json:"x"`
	Y       int             `json:"y"`
	Gene    string          `json:"gene"`
	Barcode string          `json:"barcode"`
	Hits    json.RawMessage `json:"hits"`
}

// Reader scans a dataset file. The builder historically wrote either a
// single top-level JSON array or a bare concatenated stream of objects;
// both are accepted.
type Reader struct {
	in      *bufio.Reader
	dec     *json.Decoder
	f       file.File
	entry   Entry
	err     error
	started bool
	inArray bool
}

// Open opens a dataset file, transparently decompressing it when the
// path indicates compression.
func Open(ctx context.Context, path string) (*Reader, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "open dataset %s", path)
	}
	var in io.Reader = f.Reader(ctx)
	if u := compress.NewReaderPath(in, f.Name()); u != nil {
		in = u
	}
	r := NewReader(in)
	r.f = f
	return r, nil
}

// NewReader scans dataset entries from r.
func NewReader(r io.Reader) *Reader {
	in := bufio.NewReader(r)
	return &Reader{in: in, dec: json.NewDecoder(in)}
}

// start sniffs the leading byte to pick array or stream form. The
// decoder is created after the peek so it sees the '[' itself.
func (r *Reader) start() {
	r.started = true
	for {
		b, err := r.in.ReadByte()
		if err != nil {
			if err != io.EOF {
				r.err = errors.Wrap(err, "reading dataset")
			}
			return
		}
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		if err := r.in.UnreadByte(); err != nil {
			r.err = errors.Wrap(err, "reading dataset")
			return
		}
		if b == '[' {
			r.inArray = true
			r.dec = json.NewDecoder(r.in)
			if _, err := r.dec.Token(); err != nil { // consume '['
				r.err = errors.Wrap(err, "reading dataset")
			}
		} else {
			r.dec = json.NewDecoder(r.in)
		}
		return
	}
}

// Scan decodes the next entry, reporting whether one was read. Once it
// returns false it never returns true again; check Err afterwards.
func (r *Reader) Scan() bool {
	if r.err != nil {
		return false
	}
	if !r.started {
		r.start()
		if r.err != nil {
			return false
		}
	}
	if r.inArray {
		if !r.dec.More() {
			if _, err := r.dec.Token(); err != nil && err != io.EOF { // closing ']'
				r.err = errors.Wrap(err, "reading dataset")
			}
			return false
		}
	}
	r.entry = Entry{}
	err := r.dec.Decode(&r.entry)
	if err == io.EOF {
		return false
	}
	if err != nil {
		r.err = errors.Wrap(err, "decoding dataset entry")
		return false
	}
	return true
}

// Entry returns the entry read by the last successful Scan. The value
// is overwritten by the next Scan.
func (r *Reader) Entry() Entry { return r.entry }

// Err returns the first error encountered while scanning, nil at a
// clean end of stream.
func (r *Reader) Err() error { return r.err }

// Close releases the underlying file, if the reader owns one.
func (r *Reader) Close(ctx context.Context) error {
	if r.f == nil {
		return nil
	}
	return r.f.Close(ctx)
}
