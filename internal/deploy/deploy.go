package deploy

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/wardenlabs/warden/internal/logger"
)

var (
	// ErrArtifactNotWritable marks a target file or directory the process
	// cannot create or modify.
	ErrArtifactNotWritable = errors.New("artifact not writable")

	// ErrManualActionRequired marks platforms where no local artifact
	// exists and the operator must act out of band.
	ErrManualActionRequired = errors.New("manual action required")
)

// Fragment is one rule's resolved code destined for a single artifact.
type Fragment struct {
	RuleKey    string
	Target     string // root, uploads, custom
	TargetFile string // relative override for custom targets
	Lines      []string
}

// Result reports the outcome of a deploy or remove call.
type Result struct {
	Success        bool   `json:"success"`
	File           string `json:"file,omitempty"`
	ReloadRequired bool   `json:"reload_required,omitempty"`
	ManualAction   bool   `json:"manual_action,omitempty"`
	Note           string `json:"note,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Deployer writes one platform's artifacts. Deploy and Remove operate on a
// single rule region; WriteBatch rebuilds the whole managed portion of an
// artifact from scratch and must be called even with zero fragments so
// orphans are stripped.
type Deployer interface {
	Platform() string
	Deploy(frag Fragment) Result
	Remove(frag Fragment) Result
	WriteBatch(artifact string, frags []Fragment) Result
	// ArtifactFor maps a fragment to the artifact path it lands in. An
	// empty path means the platform has no local artifact.
	ArtifactFor(frag Fragment) (string, error)
	Artifacts() []string
	Verify(frag Fragment) (bool, error)
}

// Registry holds the configured deployers keyed by platform name.
type Registry struct {
	deployers map[string]Deployer
}

func NewRegistry(deployers ...Deployer) *Registry {
	r := &Registry{deployers: map[string]Deployer{}}
	for _, d := range deployers {
		r.deployers[d.Platform()] = d
	}
	return r
}

func (r *Registry) Get(platform string) (Deployer, bool) {
	d, ok := r.deployers[platform]
	return d, ok
}

func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.deployers))
	for p := range r.deployers {
		out = append(out, p)
	}
	return out
}

// write observer, called with the artifact path just before every engine
// write lands. The drift watcher registers its suppression hook here so
// the engine's own writes are never reported as external drift.
var (
	observerMu    sync.RWMutex
	writeObserver func(path string)
)

// OnWrite registers fn as the write observer. A nil fn unregisters.
func OnWrite(fn func(path string)) {
	observerMu.Lock()
	writeObserver = fn
	observerMu.Unlock()
}

func notifyWrite(path string) {
	observerMu.RLock()
	fn := writeObserver
	observerMu.RUnlock()
	if fn != nil {
		fn(path)
	}
}

// artifact-level locks; concurrent deploys to different files proceed in
// parallel, writes to the same file serialize.
var (
	artifactMu sync.Mutex
	artifacts  = map[string]*sync.Mutex{}
)

func lockArtifact(path string) *sync.Mutex {
	artifactMu.Lock()
	mu, ok := artifacts[path]
	if !ok {
		mu = &sync.Mutex{}
		artifacts[path] = mu
	}
	artifactMu.Unlock()
	mu.Lock()
	return mu
}

// updateArtifact runs fn against the current artifact text under the
// file's lock and persists the result with a temp-file rename. A missing
// file reads as empty. When backup is set a .bak snapshot of the prior
// content is written alongside the artifact before the swap.
func updateArtifact(path string, backup bool, fn func(content string) (string, bool, error)) error {
	mu := lockArtifact(path)
	defer mu.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	existed := err == nil
	content := string(raw)

	next, changed, err := fn(content)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Join(ErrArtifactNotWritable, err)
	}

	if backup && existed {
		if err := os.WriteFile(path+".bak", raw, 0o644); err != nil {
			logger.Log().Warnf("backup write failed for %s: %v", path, err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Join(ErrArtifactNotWritable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(next); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Join(ErrArtifactNotWritable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Join(ErrArtifactNotWritable, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return errors.Join(ErrArtifactNotWritable, err)
	}
	notifyWrite(path)
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Join(ErrArtifactNotWritable, err)
	}
	return nil
}

// readRegion returns the body of one managed region from an artifact on
// disk. A missing file reads as an absent region.
func readRegion(path string, style MarkerStyle, key string) ([]string, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	body, ok := ParseDocument(string(raw), style).Region(key)
	return body, ok, nil
}

// regionInSync reports whether the artifact's managed region for the
// fragment matches the fragment's lines exactly.
func regionInSync(path string, style MarkerStyle, frag Fragment) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return len(frag.Lines) == 0, nil
		}
		return false, err
	}
	doc := ParseDocument(string(raw), style)
	body, ok := doc.Region(frag.RuleKey)
	if !ok {
		return len(frag.Lines) == 0, nil
	}
	if len(body) != len(frag.Lines) {
		return false, nil
	}
	for i := range body {
		if body[i] != frag.Lines[i] {
			return false, nil
		}
	}
	return true, nil
}

func failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

