// Package fastq writes FASTQ records. The pipeline never parses FASTQ
// itself (the collaborator tools do); this package exists so the chunk
// adapter can materialize paired read files for them.
package fastq

import (
	"io"

	"github.com/pkg/errors"
)

// ErrDiscordant is returned when the two mates of a pair carry
// different IDs.
var ErrDiscordant = errors.New("discordant FASTQ pair")

// A Read is one FASTQ record. The third record line is always "+".
type Read struct {
	ID, Seq, Qual string
}

// Writer writes reads in FASTQ format to an underlying writer. The
// first write error sticks; later writes are no-ops returning it.
type Writer struct {
	w   io.Writer
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes one record. IDs without a leading '@' get one.
func (w *Writer) Write(r *Read) error {
	id := r.ID
	if len(id) == 0 {
		w.setErr(errors.New("empty FASTQ read ID"))
		return w.err
	}
	if id[0] != '@' {
		id = "@" + id
	}
	w.writeln(id)
	w.writeln(r.Seq)
	w.writeln("+")
	w.writeln(r.Qual)
	return w.err
}

func (w *Writer) setErr(err error) {
	if w.err == nil {
		w.err = err
	}
}

var newline = []byte{'\n'}

func (w *Writer) writeln(line string) {
	if w.err != nil {
		return
	}
	if _, err := io.WriteString(w.w, line); err != nil {
		w.err = err
		return
	}
	_, w.err = w.w.Write(newline)
}

// Err returns the first error encountered by the writer.
func (w *Writer) Err() error {
	return w.err
}

// PairWriter writes mate pairs to two underlying writers, forward
// mates to the first and reverse mates to the second.
type PairWriter struct {
	fw, rv *Writer
}

func NewPairWriter(fw, rv io.Writer) *PairWriter {
	return &PairWriter{fw: NewWriter(fw), rv: NewWriter(rv)}
}

// Write writes one pair. Both mates must carry the same ID.
func (p *PairWriter) Write(fw, rv *Read) error {
	if fw.ID != rv.ID {
		return errors.Wrapf(ErrDiscordant, "%q vs %q", fw.ID, rv.ID)
	}
	if err := p.fw.Write(fw); err != nil {
		return err
	}
	return p.rv.Write(rv)
}

// Err returns the first error encountered by either side of the pair.
func (p *PairWriter) Err() error {
	if err := p.fw.Err(); err != nil {
		return err
	}
	return p.rv.Err()
}
