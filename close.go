package fibercache

import "context"

// Stop shuts the manager down. Every resident fiber goes to the disposal
// worker, which keeps freeing released buffers until the queue is empty or
// ctx ends; buffers still pinned at that point are left to their readers and
// never freed under them. The metadata cache is cleared.
//
// Stop is terminal and idempotent: later calls return the first result.
func (m *Manager) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.stopOnce.Do(func() {
		m.stopped.Store(true)

		err := m.backend.Close(ctx)
		_ = m.meta.Close()

		m.logger.LogStop(ctx, m.backend.PendingCount(), m.backend.PendingSize(), err)
		m.stopErr = err
	})
	return m.stopErr
}

// Close calls Stop bounded by the shutdown timeout.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.shutdownTimeout)
	defer cancel()
	return m.Stop(ctx)
}
