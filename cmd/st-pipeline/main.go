package main

/*
st-pipeline runs one spatial-transcriptomics pipeline over a pair of raw
read files: trim, align against the genome, filter, annotate against the
gene model, recover reads, optionally remove contaminants, match spot
barcodes, and build the per-feature dataset. The heavy lifting is done
by external collaborator tools resolved on -tool-path (then $PATH); this
binary sequences them and manages their intermediate files.

Example:

   st-pipeline -fw r1.fastq -rv r2.fastq -ids ids.txt \
       -ref-map genome_index -ref-annotation genes.gtf \
       -name exp1 -output-folder out -temp-folder /tmp
*/

import (
	"flag"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/st/pipeline"
)

var (
	fastqFw       = flag.String("fw", "", "Forward raw reads file (FASTQ)")
	fastqRv       = flag.String("rv", "", "Reverse raw reads file (FASTQ)")
	idsPath       = flag.String("ids", "", "Spot barcode identifier file")
	refMap        = flag.String("ref-map", "", "Reference genome bowtie2 index prefix")
	refAnnotation = flag.String("ref-annotation", "", "Reference gene model (GTF)")
	contaminant   = flag.String("contaminant-index", "", "Optional bowtie2 index for contaminant filtering")
	expName       = flag.String("name", "", "Experiment name; prefixes every output")
	outputFolder  = flag.String("output-folder", "", "Where the dataset files are written (default current directory)")
	tempFolder    = flag.String("temp-folder", "", "Where intermediate files are written (default current directory)")
	toolPath      = flag.String("tool-path", "", "Directory searched before $PATH for collaborator tools")

	allowedMissed = flag.Int("allowed-missed", pipeline.DefaultOpts.AllowedMissed, "Max mismatches when matching spot barcodes")
	allowedKimera = flag.Int("allowed-kimera", pipeline.DefaultOpts.AllowedKimera, "Max mismatches tolerated in the kimera check")
	startPos      = flag.Int("start-position", pipeline.DefaultOpts.StartPosition, "0-based barcode start position in the read")
	idLength      = flag.Int("id-length", pipeline.DefaultOpts.IDLength, "Spot barcode length")
	extension     = flag.Int("extension", pipeline.DefaultOpts.Extension, "Seed extension tolerance for barcode matching")

	trimFw      = flag.Int("trim-fw", pipeline.DefaultOpts.TrimFw, "Bases trimmed from the forward read before mapping")
	trimRv      = flag.Int("trim-rv", pipeline.DefaultOpts.TrimRv, "Bases trimmed from the reverse read before mapping")
	minQuality  = flag.Int("min-quality", pipeline.DefaultOpts.MinQualityTrimming, "Minimum base quality for trimming")
	minLength   = flag.Int("min-length", pipeline.DefaultOpts.MinLengthTrimming, "Minimum read length after trimming")
	qual64      = flag.Bool("qual64", false, "Quality scores are phred64 encoded")
	threads     = flag.Int("threads", pipeline.DefaultOpts.Threads, "Thread count passed to the aligner")
	discordant  = flag.Bool("discordant", false, "Keep discordant read pairs")
	discardFw   = flag.Bool("discard-fw", false, "Drop forward-only one-sided mappings")
	discardRv   = flag.Bool("discard-rv", false, "Drop reverse-only one-sided mappings")
	htseqMode   = flag.String("htseq-mode", pipeline.DefaultOpts.HtseqMode, "Annotation counting mode: union, intersection-nonempty or intersection-strict")
	noAmbiguous = flag.Bool("htseq-no-ambiguous", false, "Drop reads with ambiguous annotation")

	molecularBarcodes = flag.Bool("molecular-barcodes", false, "Remove PCR duplicates using molecular barcodes")
	mcMismatches      = flag.Int("mc-allowed-mismatches", pipeline.DefaultOpts.MCAllowedMismatches, "Allowed mismatches between molecular barcodes in one cluster")
	mcStart           = flag.Int("mc-start-position", pipeline.DefaultOpts.MCStartPosition, "Molecular barcode window start")
	mcEnd             = flag.Int("mc-end-position", pipeline.DefaultOpts.MCEndPosition, "Molecular barcode window end")
	minClusterSize    = flag.Int("min-cluster-size", pipeline.DefaultOpts.MinClusterSize, "Minimum cluster size collapsed into one representative")

	noClean = flag.Bool("no-clean-up", false, "Keep intermediate files instead of removing them")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()
	ctx := vcontext.Background()

	o := pipeline.DefaultOpts
	o.FastqFw = *fastqFw
	o.FastqRv = *fastqRv
	o.IDsPath = *idsPath
	o.RefMap = *refMap
	o.RefAnnotation = *refAnnotation
	o.ContaminantIndex = *contaminant
	o.ExpName = *expName
	o.OutputFolder = *outputFolder
	o.TempFolder = *tempFolder
	o.ToolPath = *toolPath
	o.AllowedMissed = *allowedMissed
	o.AllowedKimera = *allowedKimera
	o.StartPosition = *startPos
	o.IDLength = *idLength
	o.Extension = *extension
	o.TrimFw = *trimFw
	o.TrimRv = *trimRv
	o.MinQualityTrimming = *minQuality
	o.MinLengthTrimming = *minLength
	o.Qual64 = *qual64
	o.Threads = *threads
	o.Discordant = *discordant
	o.DiscardFw = *discardFw
	o.DiscardRv = *discardRv
	o.HtseqMode = *htseqMode
	o.HtseqNoAmbiguous = *noAmbiguous
	o.MolecularBarcodes = *molecularBarcodes
	o.MCAllowedMismatches = *mcMismatches
	o.MCStartPosition = *mcStart
	o.MCEndPosition = *mcEnd
	o.MinClusterSize = *minClusterSize
	o.CleanUp = !*noClean

	if err := o.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	p := pipeline.New(&o, pipeline.NewExecToolset(o.ToolPath))
	ds, err := p.Run(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("feature dataset: %s", ds.Barcodes)
	log.Printf("read dataset: %s", ds.Reads)
}
