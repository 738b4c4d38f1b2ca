// Package notify は注文イベントを外部の通知サービスへ流す。
// 送信はベストエフォートで、失敗しても呼び出し元の処理は巻き戻さない。
package notify

import (
	"context"
	"sync"
	"time"

	"beerstore/internal/domain/model"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, ev model.OrderEvent) error
	Close() error
}

// Dispatcher はキューに積んで別goroutineで送る。キューが満杯なら捨てて警告。
type Dispatcher struct {
	pub     Publisher
	log     *zap.Logger
	queue   chan model.OrderEvent
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(pub Publisher, size int, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		pub:     pub,
		log:     log,
		queue:   make(chan model.OrderEvent, size),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify はブロックしない
func (d *Dispatcher) Notify(_ context.Context, ev model.OrderEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("notification dropped: dispatcher closed",
			zap.String("event_id", ev.ID), zap.String("type", string(ev.Type)))
		return
	}

	select {
	case d.queue <- ev:
	default:
		d.log.Warn("notification dropped: queue full",
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.Int64("order_id", ev.OrderID))
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.pub.Publish(ctx, ev); err != nil {
			d.log.Warn("notification failed",
				zap.String("event_id", ev.ID),
				zap.String("type", string(ev.Type)),
				zap.Int64("order_id", ev.OrderID),
				zap.Error(err))
		}
		cancel()
	}
}

// Close は残りを送り切ってから publisher を閉じる
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	<-d.done
	return d.pub.Close()
}
