package pipeline

import (
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Artifact is a temporary file produced by one stage and consumed by at
// most one later stage.
type Artifact struct {
	Path string
	// Producer names the stage that wrote the file.
	Producer string

	consumed bool
	// terminal artifacts (the dataset builder's input survives until the
	// builder ran; the datasets themselves are not registered) are never
	// auto-deleted.
	terminal bool
}

// Registry tracks every intermediate file one run owns, so every temp
// file has a recorded producer and a scoped release point. Removal
// happens on consumption when cleanUp is set, or in the ReleaseAll
// teardown sweep. Registries are not safe for concurrent use; each run
// owns its own.
type Registry struct {
	cleanUp   bool
	artifacts []*Artifact
}

func NewRegistry(cleanUp bool) *Registry {
	return &Registry{cleanUp: cleanUp}
}

// Produce registers a new stage output.
func (r *Registry) Produce(stage, path string) *Artifact {
	a := &Artifact{Path: path, Producer: stage}
	r.artifacts = append(r.artifacts, a)
	return a
}

// Final registers a stage output that has no downstream consumer inside
// the run. It is never removed by the registry.
func (r *Registry) Final(stage, path string) *Artifact {
	a := r.Produce(stage, path)
	a.terminal = true
	return a
}

// Consume marks the artifact's single downstream consumer as done with
// it. When cleanup is enabled the file is removed immediately.
func (r *Registry) Consume(a *Artifact) error {
	a.consumed = true
	if !r.cleanUp || a.terminal {
		return nil
	}
	return r.Release(a)
}

// Release removes the artifact's file if it is still present. Releasing
// an already-removed artifact is a no-op.
func (r *Registry) Release(a *Artifact) error {
	err := os.Remove(a.Path)
	if err == nil {
		log.Debug.Printf("removed %s (produced by %s)", a.Path, a.Producer)
		return nil
	}
	if os.IsNotExist(err) {
		return nil
	}
	return errors.E(err, "removing intermediate file "+a.Path)
}

// ReleaseAll sweeps every consumed, non-terminal artifact the run still
// owns. It is the teardown counterpart of per-stage consumption and is
// also a no-op when cleanup is disabled.
func (r *Registry) ReleaseAll() error {
	if !r.cleanUp {
		return nil
	}
	e := errors.Once{}
	for _, a := range r.artifacts {
		if a.consumed && !a.terminal {
			e.Set(r.Release(a))
		}
	}
	return e.Err()
}

// Paths returns the paths of all artifacts registered so far, in
// production order.
func (r *Registry) Paths() []string {
	paths := make([]string, len(r.artifacts))
	for i, a := range r.artifacts {
		paths[i] = a.Path
	}
	return paths
}
