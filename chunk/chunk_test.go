package chunk

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/st/pipeline"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0755))
}

// baseOpts builds a base configuration whose per-chunk overlays pass
// validation: reference files plus a tool directory with every
// collaborator present.
func baseOpts(t *testing.T, dir string) *pipeline.Opts {
	o := pipeline.DefaultOpts
	o.IDsPath = filepath.Join(dir, "ids.txt")
	o.RefAnnotation = filepath.Join(dir, "genes.gtf")
	writeFile(t, o.IDsPath, "ACGTACGTACGTACGTAC\t1\t1\n")
	writeFile(t, o.RefAnnotation, "chr1\ttest\tgene\t1\t100\t.\t+\t.\tgene_id \"g1\"\n")
	o.RefMap = filepath.Join(dir, "genome_index")
	o.TempFolder = filepath.Join(dir, "tmp")
	o.OutputFolder = filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(o.TempFolder, 0755))
	require.NoError(t, os.MkdirAll(o.OutputFolder, 0755))

	tools := filepath.Join(dir, "tools")
	require.NoError(t, os.MkdirAll(tools, 0755))
	for _, tool := range pipeline.RequiredTools {
		writeFile(t, filepath.Join(tools, tool), "#!/bin/sh\n")
	}
	o.ToolPath = tools
	return &o
}

// fakeToolset materializes every stage output and lets each chunk's
// dataset builder emit a distinct set of entries.
type fakeToolset struct {
	t      *testing.T
	runs   int
	failAt string
	// entries returns the barcodes dataset JSON for the n-th run (1-based).
	entries func(run int) string
}

func (f *fakeToolset) out(o *pipeline.Opts, name string) string {
	return filepath.Join(o.TempFolder, o.ExpName+"_"+name)
}

func (f *fakeToolset) stage(name string, outs ...string) error {
	if f.failAt == name {
		return &pipeline.ToolError{Tool: name, Stderr: "simulated failure"}
	}
	for _, out := range outs {
		writeFile(f.t, out, name+" output\n")
	}
	return nil
}

func (f *fakeToolset) TrimReads(_ context.Context, o *pipeline.Opts, fw, rv string) (string, string, error) {
	fwOut, rvOut := f.out(o, "R1_trimmed.fastq"), f.out(o, "R2_trimmed.fastq")
	return fwOut, rvOut, f.stage("trim", fwOut, rvOut)
}

func (f *fakeToolset) Align(_ context.Context, o *pipeline.Opts, fw, rv string) (string, error) {
	out := f.out(o, "mapped.sam")
	return out, f.stage("align", out)
}

func (f *fakeToolset) FilterMapped(_ context.Context, o *pipeline.Opts, sam string) (string, error) {
	out := f.out(o, "filtered.sam")
	return out, f.stage("filter", out)
}

func (f *fakeToolset) Annotate(_ context.Context, o *pipeline.Opts, sam string) (string, error) {
	out := f.out(o, "annotated.sam")
	return out, f.stage("annotate", out)
}

func (f *fakeToolset) RecoverReads(_ context.Context, o *pipeline.Opts, annotated, fwT, rvT string) (string, error) {
	out := f.out(o, "annotated_reads.fastq")
	return out, f.stage("recover", out)
}

func (f *fakeToolset) FilterContaminant(_ context.Context, o *pipeline.Opts, reads string) (string, string, error) {
	clean, contaminated := f.out(o, "clean.fastq"), f.out(o, "contaminated.sam")
	return clean, contaminated, f.stage("contaminant", clean, contaminated)
}

func (f *fakeToolset) MatchBarcodes(_ context.Context, o *pipeline.Opts, reads string) (string, error) {
	out := f.out(o, "mapped_barcodes.txt")
	return out, f.stage("barcodes", out)
}

func (f *fakeToolset) BuildDataset(_ context.Context, o *pipeline.Opts, mapped string) ([]byte, error) {
	if f.failAt == "dataset" {
		return nil, &pipeline.ToolError{Tool: "dataset", Stderr: "simulated failure"}
	}
	f.runs++
	writeFile(f.t, filepath.Join(o.OutputFolder, o.ExpName+"_barcodes.json"), f.entries(f.runs))
	writeFile(f.t, filepath.Join(o.OutputFolder, o.ExpName+"_reads.json"), "[]")
	return []byte("Total reads: 2\n"), nil
}

const (
	chunk1 = "h1 AAAA IIII CCCC IIII\nh2 GGGG IIII TTTT IIII"
	chunk2 = "h3 CCGG IIII AATT IIII"
)

func TestWritePairFiles(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	fw, rv := filepath.Join(dir, "r1.fastq"), filepath.Join(dir, "r2.fastq")
	n, err := writePairFiles(context.Background(), chunk1, fw, rv)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	fwData, err := ioutil.ReadFile(fw)
	require.NoError(t, err)
	rvData, err := ioutil.ReadFile(rv)
	require.NoError(t, err)
	// Original line order is preserved, seq1/qual1 forward, seq2/qual2
	// reverse.
	assert.Equal(t, "@h1\nAAAA\n+\nIIII\n@h2\nGGGG\n+\nIIII\n", string(fwData))
	assert.Equal(t, "@h1\nCCCC\n+\nIIII\n@h2\nTTTT\n+\nIIII\n", string(rvData))
}

// A line is a record pair iff it has exactly 5 fields; anything else is
// dropped without error.
func TestWritePairFilesMalformed(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	fw, rv := filepath.Join(dir, "r1.fastq"), filepath.Join(dir, "r2.fastq")
	in := "h1 AAAA IIII CCCC\nh2 GGGG IIII TTTT IIII\n\nh3 A B C D E F"
	n, err := writePairFiles(context.Background(), in, fw, rv)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	fwData, err := ioutil.ReadFile(fw)
	require.NoError(t, err)
	assert.Equal(t, "@h2\nGGGG\n+\nIIII\n", string(fwData))
}

func TestWritePairFilesTabs(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	fw, rv := filepath.Join(dir, "r1.fastq"), filepath.Join(dir, "r2.fastq")
	n, err := writePairFiles(context.Background(), "h1\tAAAA\tIIII\tCCCC\tIIII", fw, rv)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScanner(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	base := baseOpts(t, dir)
	tools := &fakeToolset{t: t, entries: func(run int) string {
		if run == 1 {
			return `[{"y":1,"x":2,"gene":"ACTB","barcode":"AAAA","hits":3},
				{"y":3,"x":4,"gene":"GAPDH","barcode":"GGGG","hits":1}]`
		}
		return `[{"y":5,"x":6,"gene":"MYC","barcode":"CCGG","hits":2}]`
	}}
	sc := NewScanner(context.Background(), NewSliceSource([]string{chunk1, chunk2}), base, tools)

	var features []Feature
	var hits []string
	for sc.Scan() {
		features = append(features, sc.Feature())
		hits = append(hits, string(sc.Hits()))
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []Feature{
		{X: 2, Y: 1, Gene: "ACTB", Barcode: "AAAA"},
		{X: 4, Y: 3, Gene: "GAPDH", Barcode: "GGGG"},
		{X: 6, Y: 5, Gene: "MYC", Barcode: "CCGG"},
	}, features)
	assert.Equal(t, []string{"3", "1", "2"}, hits)
	assert.Empty(t, sc.LeakedPaths())

	// Chunk-scoped files are all gone: read pairs, intermediates, both
	// dataset files.
	for _, folder := range []string{base.TempFolder, base.OutputFolder} {
		left, err := ioutil.ReadDir(folder)
		require.NoError(t, err)
		assert.Empty(t, left, folder)
	}
}

// A pipeline failure mid-chunk halts the sequence and leaves that
// chunk's temporary files in place.
func TestScannerPipelineFailure(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	base := baseOpts(t, dir)
	tools := &fakeToolset{t: t, failAt: "align"}
	sc := NewScanner(context.Background(), NewSliceSource([]string{chunk1, chunk2}), base, tools)

	assert.False(t, sc.Scan())
	require.Error(t, sc.Err())
	terr, ok := sc.Err().(*pipeline.ToolError)
	require.True(t, ok)
	assert.Equal(t, "align", terr.Tool)

	leaked := sc.LeakedPaths()
	require.Len(t, leaked, 2)
	for _, path := range leaked {
		assert.FileExists(t, path)
	}
	// Later chunks are never attempted.
	assert.False(t, sc.Scan())
}

func TestScannerEmptySource(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	base := baseOpts(t, dir)
	sc := NewScanner(context.Background(), NewSliceSource(nil), base, &fakeToolset{t: t})
	assert.False(t, sc.Scan())
	assert.NoError(t, sc.Err())
}

func TestReaderSource(t *testing.T) {
	src := NewReaderSource(strings.NewReader("a b c d e\nf g h i j\n\nk l m n o\n\n\n"))
	var chunks []string
	for src.Scan() {
		chunks = append(chunks, src.Chunk())
	}
	require.NoError(t, src.Err())
	assert.Equal(t, []string{"a b c d e\nf g h i j", "k l m n o"}, chunks)
}

func TestSliceSource(t *testing.T) {
	src := NewSliceSource([]string{"one", "two"})
	var got []string
	for src.Scan() {
		got = append(got, src.Chunk())
	}
	assert.Equal(t, []string{"one", "two"}, got)
	assert.NoError(t, src.Err())
	assert.False(t, src.Scan())
}
