package ports

// QueuePort is the FIFO admission queue of execution ids awaiting a worker.
type QueuePort interface {
	Enqueue(executionID string) (bool, error)
	Claim() (executionID string, exists bool, err error)
	Remove(executionID string) bool
	Contains(executionID string) bool
	Ready() <-chan struct{}
	Size() int
	Close() error
}
