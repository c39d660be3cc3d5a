package jit

import (
	"errors"
	"runtime"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/hotpath/pkg/bytecode"
)

var log = commonlog.GetLogger("hotpath.jit")

// NativeResult is the outcome of a native execution: the returned number,
// or the same trap error the interpreter would have raised.
type NativeResult struct {
	Value float64
	Err   error
}

// EngineStats is a point-in-time snapshot of engine counters.
type EngineStats struct {
	Attempted uint64 // compilations started
	Succeeded uint64 // artifacts that entered the cache
	Declined  uint64 // functions permanently barred
	Hits      uint64 // calls served from the cache
	Misses    uint64 // calls not served from the cache
	Evictions uint64 // artifacts removed from the cache, any path
	Resident  int    // artifacts currently cached
	UsedBytes int    // bytes currently charged against the budget
}

// HitRate returns the fraction of tracked calls served natively.
func (s EngineStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Engine ties the tracker, translator, backend and cache into the tiered
// execution pipeline. One mutex guards all bookkeeping; artifact
// execution happens outside the lock.
type Engine struct {
	mu         sync.Mutex
	config     Config
	module     *bytecode.Module
	tracker    *Tracker
	translator *Translator
	backend    Backend
	cache      *CodeCache
	store      *Store

	arch        string
	nextVersion uint64
	stats       EngineStats
}

// NewEngine creates an engine for a module. A nil backend selects
// ClosureBackend. If the config names a PersistPath the store is opened
// and previously compiled programs are reloaded into the cache.
func NewEngine(module *bytecode.Module, config Config, backend Backend) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		backend = NewClosureBackend()
	}

	e := &Engine{
		config:     config,
		module:     module,
		tracker:    NewTracker(config.Threshold),
		translator: NewTranslator(),
		backend:    backend,
		arch:       runtime.GOARCH,
	}

	cache, err := NewCodeCache(config.CacheCapacity, e.artifactEvicted)
	if err != nil {
		return nil, err
	}
	e.cache = cache

	if config.PersistPath != "" {
		store, err := OpenStore(config.PersistPath)
		if err != nil {
			return nil, err
		}
		e.store = store
		if n, err := e.preload(); err != nil {
			log.Errorf("preload failed: %s", err.Error())
		} else if n > 0 {
			log.Infof("preloaded %d compiled functions", n)
		}
	}
	return e, nil
}

// Close releases the persistence store, if any.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store == nil {
		return nil
	}
	err := e.store.Close()
	e.store = nil
	return err
}

// artifactEvicted runs for every artifact leaving the cache. It is called
// with the engine mutex already held, so it must not lock.
func (e *Engine) artifactEvicted(offset uint32, art *Artifact) {
	e.tracker.ResetEntry(offset)
	log.Debugf("evicted %s (%d bytes)", art.Name, art.Size)
}

// NotifyCall records one invocation of fn and, when a native artifact is
// available or becomes available, executes it. ok false means the caller
// must interpret the call; ok true means the result stands, including a
// non-nil Err, which is the program's own trap exactly as the interpreter
// would raise it.
//
// Calls whose artifact is resident are hits. Crossing the promotion
// threshold triggers a synchronous compile; a translation or backend
// failure permanently declines the function, while a capacity rejection
// leaves it eligible to re-earn the threshold.
func (e *Engine) NotifyCall(fn *bytecode.FuncInfo, args []float64) (NativeResult, bool) {
	e.mu.Lock()
	if !e.config.Enabled {
		e.mu.Unlock()
		return NativeResult{}, false
	}

	crossed := e.tracker.RecordCall(fn.Start, fn.Name)

	if art, ok := e.cache.Get(fn.Start); ok {
		e.stats.Hits++
		e.mu.Unlock()
		v, err := art.Invoke(args)
		return NativeResult{Value: v, Err: err}, true
	}
	e.stats.Misses++

	if !crossed {
		e.mu.Unlock()
		return NativeResult{}, false
	}

	art := e.compileLocked(fn)
	e.mu.Unlock()
	if art == nil {
		return NativeResult{}, false
	}
	v, err := art.Invoke(args)
	return NativeResult{Value: v, Err: err}, true
}

// compileLocked runs the promotion pipeline for fn. Called with the
// engine mutex held. Returns the resident artifact, or nil when the call
// must fall back to interpretation.
func (e *Engine) compileLocked(fn *bytecode.FuncInfo) *Artifact {
	e.stats.Attempted++

	prog, err := e.translator.Translate(e.module, fn)
	if err != nil {
		e.stats.Declined++
		e.tracker.MarkDeclined(fn.Start)
		log.Debugf("declined %s: %s", fn.Name, err.Error())
		return nil
	}

	art, err := e.backend.Compile(prog, e.config.OptLevel)
	if err != nil {
		e.stats.Declined++
		e.tracker.MarkDeclined(fn.Start)
		log.Errorf("backend failed on %s: %s", fn.Name, err.Error())
		return nil
	}
	e.nextVersion++
	art.Version = e.nextVersion
	art.Arch = e.arch

	if err := e.cache.Insert(art); err != nil {
		if errors.Is(err, ErrTooLarge) {
			// Not a verdict on the function: drop the artifact and let it
			// re-earn the threshold.
			e.tracker.Demote(fn.Start)
			log.Debugf("artifact for %s exceeds cache capacity (%d > %d bytes)",
				fn.Name, art.Size, e.cache.Capacity())
			return nil
		}
		e.stats.Declined++
		e.tracker.MarkDeclined(fn.Start)
		log.Errorf("cache insert failed for %s: %s", fn.Name, err.Error())
		return nil
	}

	e.stats.Succeeded++
	e.tracker.MarkCompiled(fn.Start)
	log.Debugf("compiled %s at opt level %d (%d bytes, v%d)",
		fn.Name, art.OptLevel, art.Size, art.Version)

	if e.store != nil {
		if err := e.store.Save(prog, art.OptLevel); err != nil {
			log.Errorf("persisting %s: %s", fn.Name, err.Error())
		}
	}
	return art
}

// preload recompiles persisted programs whose checksums still match the
// module and installs them. Stale records are deleted. Called with no
// callers yet, during construction.
func (e *Engine) preload() (int, error) {
	progs, err := e.store.LoadAll()
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, rec := range progs {
		fn := e.module.FuncAt(rec.Program.Start)
		if fn == nil || e.module.FuncChecksum(fn) != rec.Program.Checksum {
			if err := e.store.Delete(rec.Program.Start); err != nil {
				log.Errorf("deleting stale record at %d: %s", rec.Program.Start, err.Error())
			}
			continue
		}
		art, err := e.backend.Compile(rec.Program, rec.OptLevel)
		if err != nil {
			log.Errorf("recompiling persisted %s: %s", rec.Program.Name, err.Error())
			continue
		}
		e.nextVersion++
		art.Version = e.nextVersion
		art.Arch = e.arch
		if err := e.cache.Insert(art); err != nil {
			continue
		}
		e.tracker.RecordCall(fn.Start, fn.Name)
		e.tracker.MarkCompiled(fn.Start)
		loaded++
	}
	return loaded, nil
}

// Invalidate removes the artifact for offset, returning the function to
// the untried pool. Use after bytecode patching.
func (e *Engine) Invalidate(offset uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Invalidate(offset)
}

// Reset discards all artifacts, tracking state and counters.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Purge()
	e.cache.ResetStats()
	e.tracker.Reset()
	e.stats = EngineStats{}
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.Evictions = e.cache.Evictions()
	s.Resident = e.cache.Len()
	s.UsedBytes = e.cache.UsedBytes()
	return s
}

// Hottest returns up to n tracked functions by call count.
func (e *Engine) Hottest(n int) []HotspotEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Hottest(n)
}

// Enabled reports whether the compilation tier is active.
func (e *Engine) Enabled() bool {
	return e.config.Enabled
}

// Capacity returns the code cache byte budget.
func (e *Engine) Capacity() int {
	return e.config.CacheCapacity
}
