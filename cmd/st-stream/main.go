package main

/*
st-stream adapts the pipeline to a streaming (map-reduce style) caller.
Chunks of raw records arrive on stdin as blank-line-delimited blocks,
one record per line with 5 whitespace-separated fields (header, seq1,
qual1, seq2, qual2). Each chunk is run through the full pipeline under a
fresh, isolated configuration; every resulting feature is written to
stdout as one line:

   {"x":…,"y":…,"gene":…,"barcode":…}<TAB><hits>

so a downstream reducer can key on the feature and aggregate the hits.
*/

import (
	"bufio"
	"encoding/json"
	"flag"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/st/chunk"
	"github.com/grailbio/st/pipeline"
)

var (
	idsPath       = flag.String("ids", "", "Spot barcode identifier file")
	refMap        = flag.String("ref-map", "", "Reference genome bowtie2 index prefix")
	refAnnotation = flag.String("ref-annotation", "", "Reference gene model (GTF)")
	contaminant   = flag.String("contaminant-index", "", "Optional bowtie2 index for contaminant filtering")
	outputFolder  = flag.String("output-folder", "", "Where per-chunk dataset files are written (default current directory)")
	tempFolder    = flag.String("temp-folder", "", "Where intermediate files are written (default current directory)")
	toolPath      = flag.String("tool-path", "", "Directory searched before $PATH for collaborator tools")

	threads   = flag.Int("threads", pipeline.DefaultOpts.Threads, "Thread count passed to the aligner")
	htseqMode = flag.String("htseq-mode", pipeline.DefaultOpts.HtseqMode, "Annotation counting mode: union, intersection-nonempty or intersection-strict")

	molecularBarcodes = flag.Bool("molecular-barcodes", false, "Remove PCR duplicates using molecular barcodes")
	mcMismatches      = flag.Int("mc-allowed-mismatches", pipeline.DefaultOpts.MCAllowedMismatches, "Allowed mismatches between molecular barcodes in one cluster")
	mcStart           = flag.Int("mc-start-position", pipeline.DefaultOpts.MCStartPosition, "Molecular barcode window start")
	mcEnd             = flag.Int("mc-end-position", pipeline.DefaultOpts.MCEndPosition, "Molecular barcode window end")
	minClusterSize    = flag.Int("min-cluster-size", pipeline.DefaultOpts.MinClusterSize, "Minimum cluster size collapsed into one representative")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()
	ctx := vcontext.Background()

	o := pipeline.DefaultOpts
	o.IDsPath = *idsPath
	o.RefMap = *refMap
	o.RefAnnotation = *refAnnotation
	o.ContaminantIndex = *contaminant
	o.OutputFolder = *outputFolder
	o.TempFolder = *tempFolder
	o.ToolPath = *toolPath
	o.Threads = *threads
	o.HtseqMode = *htseqMode
	o.MolecularBarcodes = *molecularBarcodes
	o.MCAllowedMismatches = *mcMismatches
	o.MCStartPosition = *mcStart
	o.MCEndPosition = *mcEnd
	o.MinClusterSize = *minClusterSize

	sc := chunk.NewScanner(ctx, chunk.NewReaderSource(os.Stdin), &o, pipeline.NewExecToolset(o.ToolPath))
	w := bufio.NewWriter(os.Stdout)
	n := 0
	for sc.Scan() {
		b, err := json.Marshal(sc.Feature())
		if err != nil {
			log.Fatalf("encoding feature: %v", err)
		}
		hits := sc.Hits()
		if hits == nil {
			hits = json.RawMessage("null")
		}
		if _, err := w.Write(b); err != nil {
			log.Fatalf("writing feature: %v", err)
		}
		if err := w.WriteByte('\t'); err != nil {
			log.Fatalf("writing feature: %v", err)
		}
		if _, err := w.Write(hits); err != nil {
			log.Fatalf("writing feature: %v", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			log.Fatalf("writing feature: %v", err)
		}
		n++
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("flushing output: %v", err)
	}
	if err := sc.Err(); err != nil {
		for _, path := range sc.LeakedPaths() {
			log.Error.Printf("temporary file left behind: %s", path)
		}
		log.Fatalf("%v", err)
	}
	log.Printf("emitted %d features", n)
}
