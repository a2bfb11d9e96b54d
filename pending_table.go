package iodispatch

// PendingTable holds one row per descriptor the dispatcher is waiting on.
// Rows are deleted by moving the last row into the hole, so row indexes are
// only stable until the next DeleteRow.
type PendingTable struct {
	timestamps []int64
	fds        []int
	operations []ChannelStatus
	contexts   []*IOContext
}

func NewPendingTable(capacity int) *PendingTable {
	return &PendingTable{
		timestamps: make([]int64, 0, capacity),
		fds:        make([]int, 0, capacity),
		operations: make([]ChannelStatus, 0, capacity),
		contexts:   make([]*IOContext, 0, capacity),
	}
}

func (t *PendingTable) Append(timestamp int64, fd int, operation ChannelStatus, context *IOContext) int {
	t.timestamps = append(t.timestamps, timestamp)
	t.fds = append(t.fds, fd)
	t.operations = append(t.operations, operation)
	t.contexts = append(t.contexts, context)
	return len(t.fds) - 1
}

func (t *PendingTable) DeleteRow(row int) {
	last := len(t.fds) - 1
	if row != last {
		t.timestamps[row] = t.timestamps[last]
		t.fds[row] = t.fds[last]
		t.operations[row] = t.operations[last]
		t.contexts[row] = t.contexts[last]
	}
	t.contexts[last] = nil
	t.timestamps = t.timestamps[:last]
	t.fds = t.fds[:last]
	t.operations = t.operations[:last]
	t.contexts = t.contexts[:last]
}

func (t *PendingTable) Size() int {
	return len(t.fds)
}

func (t *PendingTable) Timestamp(row int) int64 {
	return t.timestamps[row]
}

func (t *PendingTable) SetTimestamp(row int, timestamp int64) {
	t.timestamps[row] = timestamp
}

func (t *PendingTable) Fd(row int) int {
	return t.fds[row]
}

func (t *PendingTable) SetFd(row int, fd int) {
	t.fds[row] = fd
}

func (t *PendingTable) Operation(row int) ChannelStatus {
	return t.operations[row]
}

func (t *PendingTable) SetOperation(row int, operation ChannelStatus) {
	t.operations[row] = operation
}

func (t *PendingTable) Context(row int) *IOContext {
	return t.contexts[row]
}

func (t *PendingTable) SetContext(row int, context *IOContext) {
	t.contexts[row] = context
}

// Clear removes every row without touching the contexts they point to.
func (t *PendingTable) Clear() {
	for i := range t.contexts {
		t.contexts[i] = nil
	}
	t.timestamps = t.timestamps[:0]
	t.fds = t.fds[:0]
	t.operations = t.operations[:0]
	t.contexts = t.contexts[:0]
}
