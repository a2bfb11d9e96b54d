package iodispatch

import (
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/atomic"
)

// IOContext is everything the server holds for one accepted connection. It
// has exactly one owner at any moment: the dispatcher while the connection
// sits in the pending table, otherwise the worker that received it from the
// I/O ring until the worker hands it back with RegisterChannel.
type IOContext struct {
	channel      Channel
	factory      *ContextFactory
	readBuf      []byte
	writeBuf     []byte
	multipartBuf []byte
	outbound     *queue.Queue
	headOffset   int
	lastActivity int64
	status       ChannelStatus
	closed       *atomic.Bool
}

func (c *IOContext) Channel() Channel {
	return c.channel
}

func (c *IOContext) Fd() int {
	return c.channel.Fd()
}

// ReadBuffer is sized for a request header plus body.
func (c *IOContext) ReadBuffer() []byte {
	return c.readBuf
}

// WriteBuffer is sized for a response header plus body.
func (c *IOContext) WriteBuffer() []byte {
	return c.writeBuf
}

// MultipartBuffer is allocated on first use; most connections never upload.
func (c *IOContext) MultipartBuffer() []byte {
	if c.multipartBuf == nil && c.factory != nil {
		c.multipartBuf = c.factory.multipart.get()
	}
	return c.multipartBuf
}

func (c *IOContext) LastActivity() int64 {
	return c.lastActivity
}

func (c *IOContext) Status() ChannelStatus {
	return c.status
}

// Enqueue copies p to the back of the outbound queue.
func (c *IOContext) Enqueue(p []byte) {
	if len(p) == 0 {
		return
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	c.outbound.Add(chunk)
}

// Pending returns the number of queued bytes not yet written.
func (c *IOContext) Pending() int {
	total := 0
	for i := 0; i < c.outbound.Length(); i++ {
		total += len(c.outbound.Get(i).([]byte))
	}
	return total - c.headOffset
}

// Flush writes queued chunks until the queue is empty or the channel would
// block. It reports true once everything has been written.
func (c *IOContext) Flush() (bool, error) {
	if c.closed.Load() {
		return false, ErrContextClosed
	}
	for c.outbound.Length() > 0 {
		chunk := c.outbound.Peek().([]byte)
		n, err := c.channel.Write(chunk[c.headOffset:])
		c.headOffset += n
		if c.headOffset == len(chunk) {
			c.outbound.Remove()
			c.headOffset = 0
		}
		if err == ErrWouldBlock {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

// Close releases the channel and the buffers. Only the first call has any
// effect.
func (c *IOContext) Close() error {
	if !c.closed.CAS(false, true) {
		return nil
	}
	err := c.channel.Close()
	if c.factory != nil {
		c.factory.read.put(c.readBuf)
		c.factory.write.put(c.writeBuf)
		if c.multipartBuf != nil {
			c.factory.multipart.put(c.multipartBuf)
		}
	}
	c.readBuf, c.writeBuf, c.multipartBuf = nil, nil, nil
	for c.outbound.Length() > 0 {
		c.outbound.Remove()
	}
	c.headOffset = 0
	return err
}

func (c *IOContext) IsClosed() bool {
	return c.closed.Load()
}

// ContextFactory builds contexts for accepted descriptors and recycles their
// buffers.
type ContextFactory struct {
	channels  ChannelFactory
	read      *bufferPool
	write     *bufferPool
	multipart *bufferPool
}

func NewContextFactory(channels ChannelFactory, buffers BufferConfig) *ContextFactory {
	if channels == nil {
		channels = PlainChannelFactory{}
	}
	return &ContextFactory{
		channels:  channels,
		read:      newBufferPool(buffers.RequestHeaderSize + buffers.RequestBodySize),
		write:     newBufferPool(buffers.ResponseHeaderSize + buffers.ResponseBodySize),
		multipart: newBufferPool(buffers.MultipartHeaderSize + buffers.MultipartBodySize),
	}
}

func (f *ContextFactory) NewContext(fd int, timestamp int64) (*IOContext, error) {
	channel, err := f.channels.NewChannel(fd)
	if err != nil {
		return nil, err
	}
	return f.wrap(channel, timestamp), nil
}

func (f *ContextFactory) wrap(channel Channel, timestamp int64) *IOContext {
	return &IOContext{
		channel:      channel,
		factory:      f,
		readBuf:      f.read.get(),
		writeBuf:     f.write.get(),
		outbound:     queue.New(),
		lastActivity: timestamp,
		status:       StatusRead,
		closed:       atomic.NewBool(false),
	}
}

type bufferPool struct {
	size int
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	p := &bufferPool{size: size}
	p.pool.New = func() interface{} {
		b := make([]byte, p.size)
		return &b
	}
	return p
}

func (p *bufferPool) get() []byte {
	return *p.pool.Get().(*[]byte)
}

func (p *bufferPool) put(b []byte) {
	if cap(b) < p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}
