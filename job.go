package iodispatch

import "go.uber.org/atomic"

// Job is one step of a worker loop. Run reports whether it did anything, so
// the loop can decide between spinning and backing off.
type Job interface {
	Run() bool
}

type SerialJob interface {
	RunSerially() bool
}

// SynchronizedJob lets several workers share a job that must never run on two
// goroutines at once. A worker that finds it busy moves on.
type SynchronizedJob struct {
	running *atomic.Bool
	job     SerialJob
}

func NewSynchronizedJob(job SerialJob) *SynchronizedJob {
	return &SynchronizedJob{
		running: atomic.NewBool(false),
		job:     job,
	}
}

func (j *SynchronizedJob) Run() bool {
	if !j.running.CAS(false, true) {
		return false
	}
	defer j.running.Store(false)
	return j.job.RunSerially()
}
