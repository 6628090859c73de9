package pipeline

import (
	"context"
	"path/filepath"
)

// Toolset groups the eight collaborator calls a run makes, one method
// per stage. Implementations return the path(s) of the stage's output
// artifact; every output must be fully written and closed before the
// method returns, since the next stage reads it immediately.
type Toolset interface {
	// TrimReads applies the fixed-offset trims and quality/length
	// filtering to the raw pair.
	TrimReads(ctx context.Context, o *Opts, fw, rv string) (fwTrimmed, rvTrimmed string, err error)
	// Align maps both strands against the reference index.
	Align(ctx context.Context, o *Opts, fw, rv string) (sam string, err error)
	// FilterMapped drops unmapped and, per configuration, one-sided
	// mappings from the alignment.
	FilterMapped(ctx context.Context, o *Opts, sam string) (filtered string, err error)
	// Annotate counts the filtered alignment against the gene model.
	Annotate(ctx context.Context, o *Opts, sam string) (annotated string, err error)
	// RecoverReads reconstructs sequence and quality for each annotated
	// record from the trimmed pair.
	RecoverReads(ctx context.Context, o *Opts, annotated, fwTrimmed, rvTrimmed string) (reads string, err error)
	// FilterContaminant re-aligns against the contaminant index and
	// keeps only the reads that do not match it.
	FilterContaminant(ctx context.Context, o *Opts, reads string) (clean, contaminatedSam string, err error)
	// MatchBarcodes maps each read to a spot identifier.
	MatchBarcodes(ctx context.Context, o *Opts, reads string) (mapped string, err error)
	// BuildDataset projects the mapped records into the per-feature and
	// per-read dataset files and returns the builder's statistics output.
	BuildDataset(ctx context.Context, o *Opts, mapped string) (stats []byte, err error)
}

// ExecToolset builds the collaborators' command lines and delegates
// execution to a Runner.
type ExecToolset struct {
	Runner Runner
}

// NewExecToolset returns a Toolset backed by local subprocesses
// resolved against the configured tool search path.
func NewExecToolset(toolPath string) *ExecToolset {
	return &ExecToolset{Runner: &ExecRunner{ToolPath: toolPath}}
}

// temp derives a run-scoped artifact path. ExpName is unique per run,
// which is what keeps concurrent runs from clobbering each other.
func temp(o *Opts, suffix string) string {
	return filepath.Join(o.TempFolder, o.ExpName+"_"+suffix)
}

func (t *ExecToolset) TrimReads(ctx context.Context, o *Opts, fw, rv string) (string, string, error) {
	fwOut := temp(o, "R1_trimmed.fastq")
	rvOut := temp(o, "R2_trimmed.fastq")
	args := []string{
		"--fw", fw, "--rv", rv,
		"--out-fw", fwOut, "--out-rv", rvOut,
		"--trim-fw", itoa(o.TrimFw), "--trim-rv", itoa(o.TrimRv),
		"--min-quality", itoa(o.MinQualityTrimming),
		"--min-length", itoa(o.MinLengthTrimming),
	}
	if o.Qual64 {
		args = append(args, "--qual64")
	}
	_, err := t.Runner.Run(ctx, "reformatReads.py", args...)
	return fwOut, rvOut, err
}

func (t *ExecToolset) Align(ctx context.Context, o *Opts, fw, rv string) (string, error) {
	out := temp(o, "mapped.sam")
	args := []string{
		"-x", o.RefMap,
		"-1", fw, "-2", rv,
		"-S", out,
		"-p", itoa(o.Threads),
		"-5", itoa(o.TrimFw),
	}
	if o.Qual64 {
		args = append(args, "--phred64")
	}
	if !o.Discordant {
		args = append(args, "--no-discordant", "--no-mixed")
	}
	_, err := t.Runner.Run(ctx, "bowtie2", args...)
	return out, err
}

func (t *ExecToolset) FilterMapped(ctx context.Context, o *Opts, sam string) (string, error) {
	out := temp(o, "filtered.sam")
	args := []string{"--input", sam, "--output", out}
	if o.DiscardFw {
		args = append(args, "--discard-fw")
	}
	if o.DiscardRv {
		args = append(args, "--discard-rv")
	}
	_, err := t.Runner.Run(ctx, "filterMapped.py", args...)
	return out, err
}

func (t *ExecToolset) Annotate(ctx context.Context, o *Opts, sam string) (string, error) {
	out := temp(o, "annotated.sam")
	args := []string{
		"--mode", o.HtseqMode,
		"--samout", out,
		sam, o.RefAnnotation,
	}
	_, err := t.Runner.Run(ctx, "htseq-count", args...)
	return out, err
}

func (t *ExecToolset) RecoverReads(ctx context.Context, o *Opts, annotated, fwTrimmed, rvTrimmed string) (string, error) {
	out := temp(o, "annotated_reads.fastq")
	args := []string{
		"--annotated", annotated,
		"--fw", fwTrimmed, "--rv", rvTrimmed,
		"--output", out,
	}
	if o.HtseqNoAmbiguous {
		args = append(args, "--no-ambiguous")
	}
	_, err := t.Runner.Run(ctx, "recoverReads.py", args...)
	return out, err
}

func (t *ExecToolset) FilterContaminant(ctx context.Context, o *Opts, reads string) (string, string, error) {
	clean := temp(o, "clean.fastq")
	contaminated := temp(o, "contaminated.sam")
	args := []string{
		"-x", o.ContaminantIndex,
		"-U", reads,
		"--un", clean,
		"-S", contaminated,
		"-p", itoa(o.Threads),
		"-5", itoa(o.TrimFw),
	}
	if o.Qual64 {
		args = append(args, "--phred64")
	}
	_, err := t.Runner.Run(ctx, "bowtie2", args...)
	return clean, contaminated, err
}

func (t *ExecToolset) MatchBarcodes(ctx context.Context, o *Opts, reads string) (string, error) {
	out := temp(o, "mapped_barcodes.txt")
	args := []string{
		"-m", itoa(o.AllowedMissed),
		"-k", itoa(o.AllowedKimera),
		"-s", itoa(o.StartPosition),
		"-l", itoa(o.IDLength),
		"-e", itoa(o.Extension),
		"-o", out,
		o.IDsPath, reads,
	}
	_, err := t.Runner.Run(ctx, "findIndexes", args...)
	return out, err
}

func (t *ExecToolset) BuildDataset(ctx context.Context, o *Opts, mapped string) ([]byte, error) {
	args := []string{"--input", mapped, "--output-name", o.ExpName}
	if o.MolecularBarcodes {
		args = append(args,
			"--molecular-barcodes",
			"--mc-allowed-missmatches", itoa(o.MCAllowedMismatches),
			"--mc-start-position", itoa(o.MCStartPosition),
			"--mc-end-position", itoa(o.MCEndPosition),
			"--min-cluster-size", itoa(o.MinClusterSize),
		)
	}
	if o.OutputFolder != "" {
		args = append(args, "--output-folder", o.OutputFolder)
	}
	return t.Runner.Run(ctx, "createDataset.py", args...)
}
