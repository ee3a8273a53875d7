package ticker

import "time"

type Ticker struct {
	ticker *time.Ticker
	pollCh chan chan struct{}
	stopCh chan struct{}
}

func New(period time.Duration) *Ticker {
	return &Ticker{
		ticker: time.NewTicker(period),
		pollCh: make(chan chan struct{}),
		stopCh: make(chan struct{}),
	}
}

// Poll polls the ticker. It blocks until the tick has been executed, and
// returns immediately on a stopped ticker.
func (ticker *Ticker) Poll() {
	doneCh := make(chan struct{})

	select {
	case ticker.pollCh <- doneCh:
		<-doneCh

	case <-ticker.stopCh:
	}
}

// Stop stops the ticker.
func (ticker *Ticker) Stop() {
	close(ticker.stopCh)
}

// Tick calls the given callback at regular intervals or when the ticker is polled.
func (ticker *Ticker) Tick(fn func(time.Time)) {
	for {
		select {
		case tick := <-ticker.ticker.C:
			fn(tick)

		case doneCh := <-ticker.pollCh:
			fn(time.Now())
			close(doneCh)

		case <-ticker.stopCh:
			return
		}
	}
}
