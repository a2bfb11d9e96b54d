package iodispatch

import (
	"errors"
	"testing"
)

func newTestPoller(t *testing.T, kind string) Poller {
	t.Helper()
	poller, err := NewPoller(kind)
	if errors.Is(err, ErrPollerNotSupported) {
		t.Skipf("%s is not available here", kind)
	}
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	t.Cleanup(func() { _ = poller.Close() })
	return poller
}

func TestPollers(t *testing.T) {
	for _, kind := range []string{PollerPoll, PollerEpoll} {
		t.Run(kind, func(t *testing.T) {
			testPollerReadiness(t, newTestPoller(t, kind))
		})
	}
}

func testPollerReadiness(t *testing.T, poller Poller) {
	fd, peer := socketPair(t)
	defer peer.Close()
	channel := NewNetworkChannel(fd)
	defer channel.Close()

	reads, writes := NewFDSet(2), NewFDSet(2)
	defer reads.Close()
	defer writes.Close()

	reads.Add(fd)
	n, err := poller.Poll(reads, writes, 0)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 0 || reads.Count() != 0 {
		t.Fatalf("nothing to read yet, got %d ready", n)
	}

	if _, err = peer.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	for i := 0; i < 2; i++ {
		reads.Reset()
		reads.Add(fd)
		n, err = poller.Poll(reads, writes, 1000)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if n != 1 || reads.Count() != 1 || reads.Get(0) != fd {
			t.Fatalf("pass %d: want fd %d readable, got %d ready", i, fd, n)
		}
	}

	// Read interest dropped, write interest added.
	reads.Reset()
	writes.Add(fd)
	n, err = poller.Poll(reads, writes, 1000)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 1 || writes.Count() != 1 || reads.Count() != 0 {
		t.Fatalf("want only write readiness, got %d ready, %d reads", n, reads.Count())
	}
}

func TestUnknownPoller(t *testing.T) {
	if _, err := NewPoller("kqueue"); !errors.Is(err, errBadConfig) {
		t.Fatalf("want config error, got %v", err)
	}
}
