package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/grailbio/base/log"
)

// DatasetPaths locates the two files the dataset builder writes: the
// per-feature dataset and its per-read companion.
type DatasetPaths struct {
	Barcodes string
	Reads    string
}

// Pipeline runs the fixed stage sequence for one configuration. A
// Pipeline is single use: it is bound to one Opts, executes its stages
// strictly in order, and is not resumable after a failure.
type Pipeline struct {
	opts  *Opts
	tools Toolset
	reg   *Registry
}

// New binds a validated configuration to a toolset. Unset output and
// temp folders default to the current directory.
func New(o *Opts, tools Toolset) *Pipeline {
	if o.OutputFolder == "" {
		o.OutputFolder = "."
	}
	if o.TempFolder == "" {
		o.TempFolder = "."
	}
	return &Pipeline{opts: o, tools: tools, reg: NewRegistry(o.CleanUp)}
}

// Registry exposes the run's artifact registry, mainly so callers can
// inspect or sweep leftovers after a failed run.
func (p *Pipeline) Registry() *Registry { return p.reg }

// Run executes the stage chain: trim, align, filter, annotate, recover
// reads, optional contaminant filter, barcode match, dataset build.
// Each intermediate is released as soon as its consumer succeeds when
// cleanup is enabled. A stage failure aborts the remainder immediately;
// the error is logged and returned.
func (p *Pipeline) Run(ctx context.Context) (DatasetPaths, error) {
	o := p.opts
	start := time.Now()
	log.Printf("starting pipeline run %s: fw=%s rv=%s ids=%s map=%s annotation=%s threads=%d mode=%s",
		o.ExpName, o.FastqFw, o.FastqRv, o.IDsPath, o.RefMap, o.RefAnnotation, o.Threads, o.HtseqMode)
	if o.MolecularBarcodes {
		log.Printf("molecular barcodes enabled: window [%d,%d) mismatches=%d min-cluster=%d",
			o.MCStartPosition, o.MCEndPosition, o.MCAllowedMismatches, o.MinClusterSize)
	}

	fail := func(stage string, err error) (DatasetPaths, error) {
		log.Error.Printf("run %s aborted at %s: %v", o.ExpName, stage, err)
		return DatasetPaths{}, err
	}

	fwT, rvT, err := p.tools.TrimReads(ctx, o, o.FastqFw, o.FastqRv)
	if err != nil {
		return fail("trim", err)
	}
	fwTArt := p.reg.Produce("trim", fwT)
	rvTArt := p.reg.Produce("trim", rvT)

	sam, err := p.tools.Align(ctx, o, fwT, rvT)
	if err != nil {
		return fail("align", err)
	}
	samArt := p.reg.Produce("align", sam)

	filtered, err := p.tools.FilterMapped(ctx, o, sam)
	if err != nil {
		return fail("filter", err)
	}
	filteredArt := p.reg.Produce("filter", filtered)
	if err := p.reg.Consume(samArt); err != nil {
		return fail("filter", err)
	}

	annotated, err := p.tools.Annotate(ctx, o, filtered)
	if err != nil {
		return fail("annotate", err)
	}
	annotatedArt := p.reg.Produce("annotate", annotated)
	if err := p.reg.Consume(filteredArt); err != nil {
		return fail("annotate", err)
	}

	reads, err := p.tools.RecoverReads(ctx, o, annotated, fwT, rvT)
	if err != nil {
		return fail("recover", err)
	}
	readsArt := p.reg.Produce("recover", reads)
	if err := p.reg.Consume(annotatedArt); err != nil {
		return fail("recover", err)
	}

	if o.ContaminantIndex != "" {
		clean, contaminated, err := p.tools.FilterContaminant(ctx, o, reads)
		if err != nil {
			return fail("contaminant", err)
		}
		cleanArt := p.reg.Produce("contaminant", clean)
		// The contaminant alignment exists only to separate the reads;
		// it has no downstream consumer and is dropped on the spot.
		if err := p.reg.Consume(p.reg.Produce("contaminant", contaminated)); err != nil {
			return fail("contaminant", err)
		}
		if err := p.reg.Consume(readsArt); err != nil {
			return fail("contaminant", err)
		}
		reads, readsArt = clean, cleanArt
	}

	// The trimmed pair is needed through read recovery; release it
	// before barcode matching.
	if err := p.reg.Consume(fwTArt); err != nil {
		return fail("recover", err)
	}
	if err := p.reg.Consume(rvTArt); err != nil {
		return fail("recover", err)
	}

	mapped, err := p.tools.MatchBarcodes(ctx, o, reads)
	if err != nil {
		return fail("barcodes", err)
	}
	mappedArt := p.reg.Produce("barcodes", mapped)
	if err := p.reg.Consume(readsArt); err != nil {
		return fail("barcodes", err)
	}

	stats, err := p.tools.BuildDataset(ctx, o, mapped)
	if err != nil {
		return fail("dataset", err)
	}
	if err := p.reg.Consume(mappedArt); err != nil {
		return fail("dataset", err)
	}
	for _, line := range strings.Split(strings.TrimRight(string(stats), "\n"), "\n") {
		if line != "" {
			log.Printf("dataset stats: %s", line)
		}
	}

	ds := DatasetPaths{
		Barcodes: filepath.Join(o.OutputFolder, o.ExpName+"_barcodes.json"),
		Reads:    filepath.Join(o.OutputFolder, o.ExpName+"_reads.json"),
	}
	log.Printf("run %s finished in %v", o.ExpName, time.Since(start))
	return ds, nil
}
