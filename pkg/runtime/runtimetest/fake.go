// Package runtimetest provides an in-memory runtime.Client for tests.
package runtimetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/deploything/agent/pkg/types"
)

// Fake is an in-memory runtime. Setting an error field makes the matching
// call fail. When PullGate is non-nil every pull waits for a value on it.
// Events passed to Emit are delivered to WatchEvents.
type Fake struct {
	mu sync.Mutex

	PullErr   error
	CreateErr error
	StartErr  error
	StopErr   error
	RemoveErr error
	ListErr   error

	PullGate chan struct{}

	calls      []string
	order      []string
	containers map[string]*types.ContainerStatus
	nextID     int
	lastGrace  time.Duration
	closed     bool

	events    chan types.ContainerEvent
	eventErrs chan error
}

// NewFake creates an empty fake runtime
func NewFake() *Fake {
	return &Fake{
		containers: make(map[string]*types.ContainerStatus),
		events:     make(chan types.ContainerEvent, 16),
		eventErrs:  make(chan error, 1),
	}
}

func (f *Fake) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *Fake) PullImage(ctx context.Context, name, tag string) (string, error) {
	if f.PullGate != nil {
		select {
		case <-f.PullGate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ref := types.RunCommand{ImageName: name, Tag: tag}.ImageRef()
	f.record("pull " + ref)
	if f.PullErr != nil {
		return "", f.PullErr
	}
	return ref, nil
}

func (f *Fake) CreateContainer(_ context.Context, imageRef string, _ *types.HostConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("create " + imageRef)
	if f.CreateErr != nil {
		return "", f.CreateErr
	}

	f.nextID++
	id := fmt.Sprintf("ctr-%d", f.nextID)
	f.containers[id] = &types.ContainerStatus{
		ID:       id,
		Name:     fmt.Sprintf("name-%d", f.nextID),
		ImageRef: imageRef,
		State:    types.ContainerStateUnspecified,
	}
	f.order = append(f.order, id)
	return id, nil
}

func (f *Fake) StartContainer(_ context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("start " + containerID)
	if f.StartErr != nil {
		return f.StartErr
	}
	c, ok := f.containers[containerID]
	if !ok {
		return fmt.Errorf("no such container: %s", containerID)
	}
	c.State = types.ContainerStateRunning
	return nil
}

func (f *Fake) StopContainer(_ context.Context, containerID string, grace time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("stop " + containerID)
	f.lastGrace = grace
	if f.StopErr != nil {
		return f.StopErr
	}
	c, ok := f.containers[containerID]
	if !ok {
		return fmt.Errorf("no such container: %s", containerID)
	}
	c.State = types.ContainerStateExited
	return nil
}

func (f *Fake) RemoveContainer(_ context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("remove " + containerID)
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	if _, ok := f.containers[containerID]; !ok {
		return fmt.Errorf("no such container: %s", containerID)
	}
	delete(f.containers, containerID)
	for i, id := range f.order {
		if id == containerID {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *Fake) ListContainers(_ context.Context) ([]types.ContainerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("list")
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]types.ContainerStatus, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.containers[id])
	}
	return out, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *Fake) WatchEvents(ctx context.Context, fn func(types.ContainerEvent)) error {
	f.mu.Lock()
	f.record("watch")
	f.mu.Unlock()

	for {
		select {
		case ev := <-f.events:
			fn(ev)
		case err := <-f.eventErrs:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

// Emit queues an event for the current or next WatchEvents call
func (f *Fake) Emit(ev types.ContainerEvent) {
	f.events <- ev
}

// FailEvents ends the current or next WatchEvents call with err
func (f *Fake) FailEvents(err error) {
	f.eventErrs <- err
}

// SetListErr changes the list error while other goroutines use the fake
func (f *Fake) SetListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListErr = err
}

// Calls returns every recorded call, e.g. "pull nginx:latest" or "stop ctr-1"
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount counts recorded calls of one operation ("pull", "stop", ...)
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if c == op || strings.HasPrefix(c, op+" ") {
			n++
		}
	}
	return n
}

// LastGrace returns the grace period passed to the last stop call
func (f *Fake) LastGrace() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastGrace
}

// Closed reports whether Close was called
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
