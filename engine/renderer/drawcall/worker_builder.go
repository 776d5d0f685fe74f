package drawcall

// WorkerBuilderOption is a functional option applied during construction via NewWorker.
type WorkerBuilderOption func(*drawCallWorker)

// WithSource sets the initial renderable source.
func WithSource(src Source) WorkerBuilderOption {
	return func(w *drawCallWorker) {
		w.source = src
	}
}

// WithPoolSize sets how many pool goroutines build draw calls in parallel.
// Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of pool workers (minimum 1)
//
// Returns:
//   - WorkerBuilderOption: option function to apply
func WithPoolSize(n int) WorkerBuilderOption {
	return func(w *drawCallWorker) {
		w.poolSize = max(n, 1)
	}
}

// WithChunkSize sets how many renderables one pool task resolves. Defaults to 64.
func WithChunkSize(n int) WorkerBuilderOption {
	return func(w *drawCallWorker) {
		w.chunkSize = max(n, 1)
	}
}

// WithOnPublished registers a callback run on the worker goroutine after every publication.
//
// Parameters:
//   - fn: the callback, receiving the published list's stats
//
// Returns:
//   - WorkerBuilderOption: option function to apply
func WithOnPublished(fn func(Stats)) WorkerBuilderOption {
	return func(w *drawCallWorker) {
		w.onPublished = fn
	}
}
