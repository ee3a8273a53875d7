package async

type PanicHandler interface {
	HandlePanic(r any)
}

type NoopPanicHandler struct{}

func (NoopPanicHandler) HandlePanic(any) {}

// HandlePanic is meant to be deferred at the top of a goroutine. A nil or
// noop handler leaves the panic propagating; any other handler swallows it
// and receives the recovered value.
func HandlePanic(panicHandler PanicHandler) {
	if panicHandler == nil {
		return
	}

	if _, ok := panicHandler.(NoopPanicHandler); ok {
		return
	}

	if _, ok := panicHandler.(*NoopPanicHandler); ok {
		return
	}

	panicHandler.HandlePanic(recover())
}
