package iodispatch

import "errors"

var ErrWouldBlock = errors.New("operation would block")
var ErrContextClosed = errors.New("io context is closed")
var ErrPollerNotSupported = errors.New("poller is not supported on this platform")
var ErrHandshakeTimeout = errors.New("tls handshake timed out")
var errBadConfig = errors.New("invalid configuration")
var ErrBind = errors.New("cannot bind listening socket")
