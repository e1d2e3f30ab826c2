package driver

import "sync"

// drainer tracks detached background tasks so shutdown can wait for all of
// them. Spawn after drain is a programming error and panics.
type drainer struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

func newDrainer() *drainer {
	return &drainer{}
}

// spawn runs fn on its own goroutine, registered with the drainer.
func (d *drainer) spawn(fn func()) {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		panic("driver: spawn after drain")
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// drain blocks until every spawned task has finished. After drain returns
// the drainer accepts no new tasks.
func (d *drainer) drain() {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	d.wg.Wait()
}
