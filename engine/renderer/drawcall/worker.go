package drawcall

import (
	"log"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-editor/engine/asset"
	"github.com/Carmen-Shannon/oxy-editor/engine/scene"
)

// WorkerState is the extraction worker's lifecycle state.
type WorkerState int

const (
	WorkerIdle WorkerState = iota
	WorkerExtracting
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerExtracting:
		return "extracting"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Source supplies the renderables to extract from. scene.Scene satisfies it.
type Source interface {
	Snapshot() []scene.RenderableSnapshot
}

// drawCallWorker is the implementation of the Worker interface.
type drawCallWorker struct {
	mu   *sync.Mutex
	cond *sync.Cond

	state       WorkerState
	invalidated bool
	stopping    bool
	source      Source

	registry asset.Registry
	list     *List

	pool      worker.DynamicWorkerPool
	poolSize  int
	chunkSize int

	extractions atomic.Uint64
	onPublished func(Stats)

	wg        *sync.WaitGroup
	closeOnce *sync.Once
}

// Worker rebuilds the draw-call list on a background goroutine whenever it is invalidated. The
// render thread never waits on it: it reads whatever List was last published.
type Worker interface {
	// Invalidate requests a new extraction. Requests made before the worker wakes up coalesce into
	// a single extraction. No-op once the worker is stopped.
	Invalidate()

	// SetSource replaces the renderable source. A nil source publishes empty lists.
	//
	// Parameters:
	//   - src: the new source
	SetSource(src Source)

	// List returns the list the worker publishes into.
	//
	// Returns:
	//   - *List: the published list
	List() *List

	// State returns the worker's current lifecycle state.
	State() WorkerState

	// Extractions returns how many extractions have been published.
	Extractions() uint64

	// Close stops the worker and waits for its goroutine to exit, including an extraction in
	// progress. Safe to call more than once.
	Close()
}

var _ Worker = &drawCallWorker{}

// NewWorker starts a worker that resolves assets through registry.
//
// Parameters:
//   - registry: the asset registry used to resolve models and materials
//   - options: variadic list of WorkerBuilderOption functions
//
// Returns:
//   - Worker: the running worker, idle until the first Invalidate
func NewWorker(registry asset.Registry, options ...WorkerBuilderOption) Worker {
	w := &drawCallWorker{
		mu:        &sync.Mutex{},
		registry:  registry,
		list:      NewList(),
		poolSize:  max(runtime.NumCPU()-1, 1),
		chunkSize: 64,
		wg:        &sync.WaitGroup{},
		closeOnce: &sync.Once{},
	}
	w.cond = sync.NewCond(w.mu)

	for _, option := range options {
		option(w)
	}

	w.pool = worker.NewDynamicWorkerPool(w.poolSize, 256, 1*time.Second)
	w.pool.Start()

	w.wg.Add(1)
	go w.run()
	return w
}

func (w *drawCallWorker) Invalidate() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopping {
		return
	}
	w.invalidated = true
	w.cond.Signal()
}

func (w *drawCallWorker) SetSource(src Source) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.source = src
}

func (w *drawCallWorker) List() *List { return w.list }

func (w *drawCallWorker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *drawCallWorker) Extractions() uint64 {
	return w.extractions.Load()
}

func (w *drawCallWorker) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.stopping = true
		w.cond.Broadcast()
		w.mu.Unlock()

		w.wg.Wait()
		w.pool.Stop()

		w.mu.Lock()
		w.state = WorkerStopped
		w.mu.Unlock()
	})
}

func (w *drawCallWorker) run() {
	defer w.wg.Done()

	for {
		w.mu.Lock()
		for !w.invalidated && !w.stopping {
			w.cond.Wait()
		}
		if w.stopping {
			w.state = WorkerStopped
			w.mu.Unlock()
			return
		}
		w.invalidated = false
		w.state = WorkerExtracting
		src := w.source
		w.mu.Unlock()

		calls, stats := w.extract(src)

		w.mu.Lock()
		stopping := w.stopping
		if !stopping {
			w.state = WorkerIdle
		}
		w.mu.Unlock()
		if stopping {
			continue
		}

		w.list.Publish(calls, stats)
		w.extractions.Add(1)
		if w.onPublished != nil {
			w.onPublished(stats)
		}
	}
}

// extract builds and sorts the draw calls for one snapshot of src.
func (w *drawCallWorker) extract(src Source) ([]DrawCall, Stats) {
	if src == nil {
		return nil, Stats{}
	}
	snap := src.Snapshot()
	if len(snap) == 0 {
		return nil, Stats{}
	}

	// Chunks are built concurrently and concatenated in entity order so the pre-sort order, and
	// therefore the stable sort's tie order, is deterministic.
	chunks := (len(snap) + w.chunkSize - 1) / w.chunkSize
	results := make([][]DrawCall, chunks)
	var wg sync.WaitGroup
	for c := range chunks {
		lo := c * w.chunkSize
		hi := min(lo+w.chunkSize, len(snap))
		part := snap[lo:hi]

		wg.Add(1)
		w.pool.SubmitTask(worker.Task{
			ID: c,
			Do: func() (any, error) {
				defer wg.Done()
				results[c] = w.build(part)
				return nil, nil
			},
		})
	}
	wg.Wait()

	var calls []DrawCall
	for _, r := range results {
		calls = append(calls, r...)
	}
	Sort(calls)

	stats := Stats{DrawCalls: len(calls)}
	for _, dc := range calls {
		stats.Vertices += dc.Mesh.VertexCount()
		stats.Triangles += dc.Mesh.IndexCount() / 3
	}
	return calls, stats
}

// build resolves one chunk of renderables into draw calls. Hidden entities, unresolved models,
// submeshes without an uploaded buffer and slots without a resolvable material are skipped.
func (w *drawCallWorker) build(part []scene.RenderableSnapshot) []DrawCall {
	var out []DrawCall
	for _, r := range part {
		if r.Hidden {
			continue
		}
		model, ok := w.registry.Model(r.Model)
		if !ok {
			continue
		}
		for i, sm := range model.Submeshes() {
			if sm.Mesh() == nil {
				continue
			}
			matID, ok := r.Materials[sm.MaterialIndex()]
			if !ok || matID == asset.NullID {
				continue
			}
			mat, ok := w.registry.Material(matID)
			if !ok {
				log.Printf("[DrawCallWorker] entity %d submesh %d: material %d not found", r.Entity, i, matID)
				continue
			}
			out = append(out, DrawCall{
				Mesh:     sm.Mesh(),
				Material: mat,
				Model:    r.World,
				Entity:   r.Entity,
			})
		}
	}
	return out
}

// Sort orders draw calls opaque first, then by material identity. Equal keys keep their
// extraction order.
func Sort(calls []DrawCall) {
	slices.SortStableFunc(calls, func(a, b DrawCall) int {
		at, bt := a.Material.Transparent(), b.Material.Transparent()
		if at != bt {
			if !at {
				return -1
			}
			return 1
		}
		ai, bi := a.Material.ID(), b.Material.ID()
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	})
}
