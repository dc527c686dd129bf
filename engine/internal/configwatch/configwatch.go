// Package configwatch hot-reloads the scheduler's live-tunable
// configuration -- state.Settings, its Behavior mask, and per-substrate
// step programs -- from a single YAML file, narrowed down from the
// teacher's HotReloadSystem to the one concern this engine actually needs:
// no A/B testing, no version history, both of which have no referent here
// and would sit unexercised.
package configwatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"subflow/engine/internal/objtable"
	"subflow/engine/internal/scheduler"
	"subflow/engine/internal/state"
)

// File is the on-disk shape of the watched configuration.
type File struct {
	Settings FileSettings      `yaml:"settings"`
	Behavior FileBehavior      `yaml:"behavior"`
	Steps    map[string][]Step `yaml:"steps"`
}

// FileSettings mirrors state.Settings.
type FileSettings struct {
	MaximumSPSListLength int `yaml:"maximumSPSListLength"`
}

// FileBehavior mirrors state.Behavior.
type FileBehavior struct {
	UsePendingSPS                                     bool `yaml:"usePendingSPS"`
	AutoUpdateSTS                                     bool `yaml:"autoUpdateSTS"`
	UseSPSList                                        bool `yaml:"useSPSList"`
	UseSPSLocList                                     bool `yaml:"useSPSLocList"`
	UseSPSDateTimeList                                bool `yaml:"useSPSDateTimeList"`
	AllowReturnToNeedsProcessing                      bool `yaml:"allowReturnToNeedsProcessing"`
	RequireInProcessBeforeProcessComplete             bool `yaml:"requireInProcessBeforeProcessComplete"`
	HandleMovedToDestLocWithSJRSStopAndSPSInProcess   bool `yaml:"handleMovedToDestLocWithSJRSStopAndSPSInProcess"`
	HandleMovedToDestLocWithSJRSAbortAndSPSInProcess  bool `yaml:"handleMovedToDestLocWithSJRSAbortAndSPSInProcess"`
	RemoveAttemptsToMoveAllSubstToDestOrSrc           bool `yaml:"removeAttemptsToMoveAllSubstToDestOrSrc"`
	PersistRemovedFromLocName                         bool `yaml:"persistRemovedFromLocName"`
}

// Step mirrors scheduler.StepSpec.
type Step struct {
	UsableLocNames []string       `yaml:"usableLocNames"`
	Variables      map[string]any `yaml:"variables"`
}

func (s FileSettings) toState() state.Settings {
	return state.Settings{MaximumSPSListLength: s.MaximumSPSListLength}
}

func (b FileBehavior) toState() state.Behavior {
	return state.Behavior{
		UsePendingSPS:                          b.UsePendingSPS,
		AutoUpdateSTS:                          b.AutoUpdateSTS,
		UseSPSList:                             b.UseSPSList,
		UseSPSLocList:                          b.UseSPSLocList,
		UseSPSDateTimeList:                     b.UseSPSDateTimeList,
		AllowReturnToNeedsProcessing:           b.AllowReturnToNeedsProcessing,
		RequireInProcessBeforeProcessComplete:  b.RequireInProcessBeforeProcessComplete,
		HandleMovedToDestLocWithSJRSStopAndSPSInProcess:  b.HandleMovedToDestLocWithSJRSStopAndSPSInProcess,
		HandleMovedToDestLocWithSJRSAbortAndSPSInProcess: b.HandleMovedToDestLocWithSJRSAbortAndSPSInProcess,
		RemoveAttemptsToMoveAllSubstToDestOrSrc:          b.RemoveAttemptsToMoveAllSubstToDestOrSrc,
		PersistRemovedFromLocName:                        b.PersistRemovedFromLocName,
	}
}

func (st Step) toSpec() scheduler.StepSpec {
	return scheduler.StepSpec{UsableLocNames: st.UsableLocNames, Variables: st.Variables}
}

// Change describes one applied reload, for logging/events.
type Change struct {
	AppliedAt time.Time
	Checksum  string
}

// Watcher watches a single YAML file and applies it to a Scheduler whenever
// its content changes.
type Watcher struct {
	path       string
	sched      *scheduler.Scheduler
	watcher    *fsnotify.Watcher
	mu         sync.Mutex
	isWatching bool
	lastSum    string
}

// New constructs a Watcher targeting configPath, applying reloads to sched.
func New(configPath string, sched *scheduler.Scheduler) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("configwatch: create file watcher: %w", err)
	}
	return &Watcher{path: configPath, sched: sched, watcher: w}, nil
}

// LoadInitial reads and applies the file once, synchronously, without
// starting a watch. Intended for startup, before Watch is called.
func (w *Watcher) LoadInitial() (Change, error) {
	f, sum, err := w.readFile()
	if err != nil {
		return Change{}, err
	}
	w.mu.Lock()
	w.lastSum = sum
	w.mu.Unlock()
	w.apply(f)
	return Change{AppliedAt: time.Now(), Checksum: sum}, nil
}

// Watch starts watching the config file's directory and applies every
// distinct write to the Scheduler. It returns a channel of applied changes
// and a channel of errors, both closed when ctx is done or Stop is called.
func (w *Watcher) Watch(ctx context.Context) (<-chan Change, <-chan error) {
	changes := make(chan Change, 10)
	errs := make(chan error, 10)

	w.mu.Lock()
	if w.isWatching {
		w.mu.Unlock()
		close(changes)
		close(errs)
		return changes, errs
	}
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Unlock()
		errs <- fmt.Errorf("configwatch: watch dir %s: %w", dir, err)
		close(changes)
		close(errs)
		return changes, errs
	}
	w.isWatching = true
	w.mu.Unlock()

	go func() {
		defer close(changes)
		defer close(errs)
		for {
			select {
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				f, sum, err := w.readFile()
				if err != nil {
					errs <- err
					continue
				}
				w.mu.Lock()
				changed := sum != w.lastSum
				w.lastSum = sum
				w.mu.Unlock()
				if !changed {
					continue
				}
				w.apply(f)
				changes <- Change{AppliedAt: time.Now(), Checksum: sum}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				errs <- err
			case <-ctx.Done():
				return
			}
		}
	}()
	return changes, errs
}

// Stop releases the underlying filesystem watch.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.isWatching {
		return nil
	}
	w.isWatching = false
	return w.watcher.Close()
}

func (w *Watcher) apply(f File) {
	w.sched.UpdateSettings(f.Settings.toState())
	w.sched.UpdateBehavior(f.Behavior.toState())
	for name, steps := range f.Steps {
		specs := make([]scheduler.StepSpec, len(steps))
		for i, st := range steps {
			specs[i] = st.toSpec()
		}
		w.sched.SetStepSpec(objtable.ObjectID{Type: objtable.TypeSubstrate, Name: name}, specs)
	}
}

func (w *Watcher) readFile() (File, string, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return File{}, "", fmt.Errorf("configwatch: read %s: %w", w.path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, "", fmt.Errorf("configwatch: parse %s: %w", w.path, err)
	}
	sum := sha256.Sum256(data)
	return f, hex.EncodeToString(sum[:]), nil
}
