// Package pipeline is the control layer of a spatial-transcriptomics
// read-processing pipeline. It sequences a fixed chain of external
// collaborators (trimmer, aligner, alignment filter, annotation counter,
// read recovery, optional contaminant filter, barcode matcher, dataset
// builder), manages the intermediate files they hand each other, and
// validates a run's configuration before any resource is committed. The
// collaborators themselves are independent tools; this package only
// builds their command lines and polices their outputs.
package pipeline

type Opts struct {
	// Input files.
	FastqFw string // forward reads (contain the spot barcode prefix)
	FastqRv string // reverse reads
	IDsPath string // spot barcode/identifier list consumed by findIndexes

	// References.
	RefMap           string // bowtie2 index prefix of the genome
	RefAnnotation    string // gene model, GTF format
	ContaminantIndex string // optional bowtie2 index for contaminant removal

	// ExpName names the run; every artifact and both dataset files are
	// prefixed with it.
	ExpName string

	OutputFolder string
	TempFolder   string
	// ToolPath is searched before $PATH when resolving collaborator
	// executables.
	ToolPath string

	// Barcode matching tolerances (findIndexes).
	AllowedMissed int // max mismatches in the barcode
	AllowedKimera int // max mismatches tolerated in the kimera check
	StartPosition int // 0-based barcode start in the read
	IDLength      int // barcode length
	Extension     int // seed extension tolerance

	// Trimming and quality filtering.
	TrimFw             int // bases cut from the forward read before mapping
	TrimRv             int // bases cut from the reverse read before mapping
	MinQualityTrimming int
	MinLengthTrimming  int
	Qual64             bool // quality scores are phred64 encoded

	// Alignment.
	Threads    int
	Discordant bool // keep discordant pairs
	DiscardFw  bool // drop one-sided forward-only mappings
	DiscardRv  bool // drop one-sided reverse-only mappings

	// Annotation.
	HtseqMode        string // union, intersection-nonempty or intersection-strict
	HtseqNoAmbiguous bool   // drop reads with ambiguous annotation

	// Molecular barcode (PCR duplicate) removal, delegated to the
	// dataset builder.
	MolecularBarcodes   bool
	MCAllowedMismatches int
	MCStartPosition     int // window start, must be >= IDLength
	MCEndPosition       int // window end, must be > MCStartPosition
	MinClusterSize      int

	// CleanUp removes each intermediate file as soon as its consuming
	// stage has finished with it.
	CleanUp bool
}

// DefaultOpts mirrors the historical defaults of the pipeline.
var DefaultOpts = Opts{
	AllowedMissed:       3,
	AllowedKimera:       6,
	StartPosition:       0,
	IDLength:            18,
	Extension:           0,
	TrimFw:              42,
	TrimRv:              5,
	MinQualityTrimming:  20,
	MinLengthTrimming:   28,
	Threads:             8,
	HtseqMode:           "intersection-nonempty",
	MCAllowedMismatches: 1,
	MCStartPosition:     19,
	MCEndPosition:       30,
	MinClusterSize:      2,
	CleanUp:             true,
}
