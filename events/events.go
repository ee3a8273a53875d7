// Package events defines the notifications the engine publishes while
// syncing. Watchers receive them through buffered channels; a slow watcher
// never blocks a sync pass.
package events

type Event interface {
	_isEvent()
}

type eventBase struct{}

func (eventBase) _isEvent() {}
