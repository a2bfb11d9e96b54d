package iodispatch

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

type WorkerPoolConfig struct {
	Name         string
	Count        int
	LockOsThread bool
	IdleSpins    int
	IdleSleep    time.Duration
}

func NewWorkerPoolConfig(name string, workers WorkerConfig) WorkerPoolConfig {
	return WorkerPoolConfig{
		Name:         name,
		Count:        workers.Count,
		LockOsThread: workers.LockOsThread,
		IdleSpins:    workers.IdleSpins,
		IdleSleep:    time.Duration(workers.IdleSleepUs) * time.Microsecond,
	}
}

// WorkerPool runs a fixed number of busy loops on an ants pool. Every loop
// cycles through the jobs assigned to it; a pass in which no job was useful
// counts as idle.
type WorkerPool struct {
	Name      string
	config    WorkerPoolConfig
	pool      *ants.Pool
	jobs      [][]Job
	isRunning *atomic.Bool
	wg        sync.WaitGroup
}

func NewWorkerPool(config WorkerPoolConfig) (*WorkerPool, error) {
	if config.Count <= 0 {
		return nil, fmt.Errorf("%w: worker count must be positive", errBadConfig)
	}
	if log.Debug().Enabled() {
		log.Debug().Msgf("init worker pool:%+v", config)
	} else {
		log.Info().Msgf("init worker pool:%s", config.Name)
	}
	pool, err := ants.NewPool(config.Count, ants.WithPanicHandler(func(p interface{}) {
		log.Error().Msgf("[%s] worker died: %v", config.Name, p)
	}))
	if err != nil {
		return nil, err
	}
	return &WorkerPool{
		Name:      config.Name,
		config:    config,
		pool:      pool,
		jobs:      make([][]Job, config.Count),
		isRunning: atomic.NewBool(false),
	}, nil
}

// Assign adds job to a single worker.
func (wp *WorkerPool) Assign(worker int, job Job) {
	wp.jobs[worker] = append(wp.jobs[worker], job)
}

// AssignAll adds job to every worker.
func (wp *WorkerPool) AssignAll(job Job) {
	for i := range wp.jobs {
		wp.jobs[i] = append(wp.jobs[i], job)
	}
}

func (wp *WorkerPool) Start() error {
	if !wp.isRunning.CAS(false, true) {
		return nil
	}
	for i := range wp.jobs {
		worker, jobs := i, wp.jobs[i]
		wp.wg.Add(1)
		if err := wp.pool.Submit(func() {
			defer wp.wg.Done()
			wp.loop(worker, jobs)
		}); err != nil {
			wp.wg.Done()
			wp.Halt()
			return fmt.Errorf("failed to start worker %d: %w", worker, err)
		}
	}
	return nil
}

// Halt stops every loop, waits for them to return and releases the pool.
func (wp *WorkerPool) Halt() {
	wp.isRunning.Store(false)
	wp.wg.Wait()
	wp.pool.Release()
}

func (wp *WorkerPool) loop(worker int, jobs []Job) {
	if wp.config.LockOsThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	idle := 0
	for wp.isRunning.Load() {
		useful := false
		for _, job := range jobs {
			if wp.runJob(worker, job) {
				useful = true
			}
		}
		if useful {
			idle = 0
			continue
		}
		idle++
		if wp.config.IdleSleep > 0 && idle >= wp.config.IdleSpins {
			time.Sleep(wp.config.IdleSleep)
		} else {
			runtime.Gosched()
		}
	}
}

func (wp *WorkerPool) runJob(worker int, job Job) (useful bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("[%s-%d] job failed: %v", wp.Name, worker, r)
			useful = false
		}
	}()
	return job.Run()
}
