package stream

// Lifecycle receives server status changes, typically to surface them in a
// UI. Callbacks run synchronously on the goroutine calling Start or Stop,
// in the order the transitions happened. They may query the server
// (Running, Addr, ViewerCount) but must not call Start, Stop or Restart.
type Lifecycle interface {
	OnStarted(addr string)
	OnStopped()
	OnBindError(err error)
}

// NopLifecycle ignores every notification.
type NopLifecycle struct{}

func (NopLifecycle) OnStarted(string)  {}
func (NopLifecycle) OnStopped()        {}
func (NopLifecycle) OnBindError(error) {}

// LifecycleFuncs adapts plain functions to Lifecycle. Nil fields are skipped.
type LifecycleFuncs struct {
	Started   func(addr string)
	Stopped   func()
	BindError func(err error)
}

func (f LifecycleFuncs) OnStarted(addr string) {
	if f.Started != nil {
		f.Started(addr)
	}
}

func (f LifecycleFuncs) OnStopped() {
	if f.Stopped != nil {
		f.Stopped()
	}
}

func (f LifecycleFuncs) OnBindError(err error) {
	if f.BindError != nil {
		f.BindError(err)
	}
}
