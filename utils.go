package iodispatch

import (
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// RaiseOpenFilesLimit lifts the soft RLIMIT_NOFILE so the process can hold
// every allowed connection plus the listener and the poller. It never lowers
// the limit and never goes past the hard limit.
func RaiseOpenFilesLimit(want uint64) uint64 {
	limit := &unix.Rlimit{}
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, limit); err != nil {
		log.Error().Msgf("error occur while getting OS limit of open files: %+v", err)
		return 0
	}
	if limit.Cur >= want {
		return uint64(limit.Cur)
	}
	cur := want
	if cur > uint64(limit.Max) {
		cur = uint64(limit.Max)
	}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{Cur: cur, Max: limit.Max}); err != nil {
		log.Error().Msgf("error occur while setting OS limit of open files: %+v", err)
		return uint64(limit.Cur)
	}
	log.Info().Msgf("raised open files limit from %d to %d", limit.Cur, cur)
	return cur
}
