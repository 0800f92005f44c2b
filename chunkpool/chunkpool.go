// Package chunkpool fans chunk reads out across a bounded worker group
// for a single, already-parsed MetaData. It is sugar over
// MetaData.ReadChunk: every operation here could be written as a loop
// calling ReadChunk directly, and callers that don't need concurrency
// are never required to import this package.
package chunkpool

import (
	"io"
	"runtime"
	"sync"

	"github.com/pixelgrove/openexr/exr"
)

// Config controls how work is split across goroutines.
type Config struct {
	// NumWorkers is the number of worker goroutines. 0 means
	// runtime.GOMAXPROCS(0).
	NumWorkers int

	// GrainSize is the minimum jobs per worker before the pool bothers
	// parallelizing at all. At or below NumWorkers*GrainSize jobs, Each and
	// ReadAll run sequentially on the calling goroutine.
	GrainSize int
}

// DefaultConfig returns the package default: one worker per CPU,
// parallelize whenever there's more than one job per worker.
func DefaultConfig() Config {
	return Config{NumWorkers: 0, GrainSize: 1}
}

func (c Config) effectiveWorkers() int {
	if c.NumWorkers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.NumWorkers
}

// Job identifies one chunk: its part number and its index within that
// part's offset table.
type Job struct {
	PartIndex  int
	ChunkIndex int
}

// Result is the outcome of reading one Job.
type Result struct {
	Job   Job
	Chunk *exr.Chunk
	Err   error
}

// Jobs enumerates every chunk in md, one Job per offset-table entry, in
// part order and then offset-table order within each part.
func Jobs(md *exr.MetaData) []Job {
	var jobs []Job
	for p, table := range md.OffsetTables {
		for c := range table {
			jobs = append(jobs, Job{PartIndex: p, ChunkIndex: c})
		}
	}
	return jobs
}

// ReadAll reads every job in jobs against r and md and returns one
// Result per job, in the same order as jobs. r must tolerate concurrent
// ReadAt calls when cfg allows more than one worker; *os.File and
// io.SectionReader both do.
func ReadAll(r io.ReaderAt, md *exr.MetaData, jobs []Job, cfg Config) []Result {
	results := make([]Result, len(jobs))
	numWorkers := cfg.effectiveWorkers()

	if len(jobs) <= cfg.GrainSize*numWorkers || numWorkers == 1 {
		for i, j := range jobs {
			c, err := md.ReadChunk(r, j.PartIndex, j.ChunkIndex)
			results[i] = Result{Job: j, Chunk: c, Err: err}
		}
		return results
	}

	var wg sync.WaitGroup
	step := (len(jobs) + numWorkers - 1) / numWorkers
	for w := 0; w < numWorkers; w++ {
		start := w * step
		end := start + step
		if end > len(jobs) {
			end = len(jobs)
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				j := jobs[i]
				c, err := md.ReadChunk(r, j.PartIndex, j.ChunkIndex)
				results[i] = Result{Job: j, Chunk: c, Err: err}
			}
		}(start, end)
	}
	wg.Wait()
	return results
}

// Each runs fn for every job in jobs, fanned out across cfg's worker
// count, and returns the first error encountered from either ReadChunk
// or fn itself. Which job's error wins is unspecified when more than one
// worker fails concurrently.
func Each(r io.ReaderAt, md *exr.MetaData, jobs []Job, cfg Config, fn func(Job, *exr.Chunk) error) error {
	numWorkers := cfg.effectiveWorkers()

	if len(jobs) <= cfg.GrainSize*numWorkers || numWorkers == 1 {
		for _, j := range jobs {
			c, err := md.ReadChunk(r, j.PartIndex, j.ChunkIndex)
			if err != nil {
				return err
			}
			if err := fn(j, c); err != nil {
				return err
			}
		}
		return nil
	}

	var wg sync.WaitGroup
	var errOnce sync.Once
	var firstErr error
	step := (len(jobs) + numWorkers - 1) / numWorkers
	for w := 0; w < numWorkers; w++ {
		start := w * step
		end := start + step
		if end > len(jobs) {
			end = len(jobs)
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				j := jobs[i]
				c, err := md.ReadChunk(r, j.PartIndex, j.ChunkIndex)
				if err == nil {
					err = fn(j, c)
				}
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
			}
		}(start, end)
	}
	wg.Wait()
	return firstErr
}

// Pool is a long-lived worker group that decodes chunks against a fixed
// reader and MetaData as jobs are submitted to it, for callers that want
// to stream work in rather than hand ReadAll a precomputed slice.
type Pool struct {
	r    io.ReaderAt
	md   *exr.MetaData
	jobs chan Job
	res  chan Result
	wg   sync.WaitGroup
}

// NewPool starts numWorkers goroutines (or GOMAXPROCS, if numWorkers <=
// 0) reading chunks from r against md. Submit jobs with Submit; read
// results from Results. Call Close when done submitting.
func NewPool(r io.ReaderAt, md *exr.MetaData, numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		r:    r,
		md:   md,
		jobs: make(chan Job, numWorkers*4),
		res:  make(chan Result, numWorkers*4),
	}
	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		c, err := p.md.ReadChunk(p.r, j.PartIndex, j.ChunkIndex)
		p.res <- Result{Job: j, Chunk: c, Err: err}
	}
}

// Submit queues j for decoding. It blocks if every worker is busy and
// the internal queue is full.
func (p *Pool) Submit(j Job) {
	p.jobs <- j
}

// Results returns the channel Results are delivered on. One Result is
// sent per Submit call, in completion order (not submission order).
func (p *Pool) Results() <-chan Result {
	return p.res
}

// Close stops accepting new jobs, waits for in-flight workers to drain,
// and closes the Results channel. Submit must not be called after
// Close.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
	close(p.res)
}
