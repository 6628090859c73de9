package pipeline

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/log"
)

// CountingModes are the annotation counting modes htseq-count accepts.
var CountingModes = []string{"union", "intersection-nonempty", "intersection-strict"}

// RequiredTools are the collaborator executables every run shells out
// to. Each must resolve on the search path before a run starts.
var RequiredTools = []string{
	"reformatReads.py",
	"bowtie2",
	"filterMapped.py",
	"htseq-count",
	"recoverReads.py",
	"findIndexes",
	"createDataset.py",
}

// ValidationError reports every configuration check that failed, not
// just the first one, so a single message can name all the problems.
type ValidationError struct {
	Checks []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Checks, "; "))
}

// Validate checks that the configuration is internally consistent and
// that all collaborator tools are resolvable. It runs every check and
// aggregates the failures into one *ValidationError. Opts must not be
// mutated after Validate succeeds.
func (o *Opts) Validate() error {
	var failed []string
	check := func(ok bool, name string) {
		if !ok {
			failed = append(failed, name)
		}
	}
	check(fileOk(o.FastqFw), "forward reads file missing or empty: "+o.FastqFw)
	check(fileOk(o.FastqRv), "reverse reads file missing or empty: "+o.FastqRv)
	check(fileOk(o.IDsPath), "barcode identifier file missing or empty: "+o.IDsPath)
	check(fileOk(o.RefAnnotation), "annotation file missing or empty: "+o.RefAnnotation)
	check(o.RefMap != "", "no reference mapping index")
	check(o.ExpName != "", "no experiment name")
	check(strings.HasSuffix(o.RefAnnotation, "gtf"), "annotation file is not gtf: "+o.RefAnnotation)
	check(validCountingMode(o.HtseqMode), "unknown annotation counting mode: "+o.HtseqMode)
	if o.MolecularBarcodes {
		check(o.MCStartPosition >= o.IDLength,
			fmt.Sprintf("molecular barcode window start %d before end of spot barcode (length %d)",
				o.MCStartPosition, o.IDLength))
		check(o.MCEndPosition > o.MCStartPosition,
			fmt.Sprintf("molecular barcode window end %d not after start %d",
				o.MCEndPosition, o.MCStartPosition))
	}
	for _, tool := range RequiredTools {
		if _, err := LookTool(tool, o.ToolPath); err != nil {
			failed = append(failed, "required tool not found: "+tool)
		}
	}
	if len(failed) > 0 {
		err := &ValidationError{Checks: failed}
		log.Error.Printf("%v", err)
		return err
	}
	log.Debug.Printf("configuration valid, all tools present")
	return nil
}

// LookTool resolves a collaborator executable, preferring toolPath over
// $PATH.
func LookTool(name, toolPath string) (string, error) {
	if toolPath != "" {
		p := filepath.Join(toolPath, name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return exec.LookPath(name)
}

func validCountingMode(mode string) bool {
	for _, m := range CountingModes {
		if mode == m {
			return true
		}
	}
	return false
}

// fileOk reports whether path names an existing, non-empty regular file.
func fileOk(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}
