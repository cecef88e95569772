package features

import (
	"sync"
)

// DefaultLoopQueueSize はイベントループのキューの長さのデフォルト値
const DefaultLoopQueueSize = 64

// Loop は単一のゴルーチン上で関数を順番に実行するイベントループ
// サンプラーの状態に触れる処理をすべてこのループに載せることで、UIスレッド相当の実行コンテキストとなる
type Loop struct {
	queue    chan func()
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewLoop は新しいイベントループを作成して開始する
func NewLoop(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultLoopQueueSize
	}
	l := &Loop{
		queue:    make(chan func(), queueSize),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

// Post は関数をキューに積む。キューが満杯の場合は空くまで待つ
// ループが停止済みの場合は false を返す
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopChan:
		return false
	default:
	}

	select {
	case l.queue <- fn:
		return true
	case <-l.stopChan:
		return false
	}
}

// TryPost は待たずに関数をキューに積む。積めなかった場合は false を返す
func (l *Loop) TryPost(fn func()) bool {
	select {
	case <-l.stopChan:
		return false
	default:
	}

	select {
	case l.queue <- fn:
		return true
	default:
		return false
	}
}

// Executor はサンプラーのティックをこのループ上で実行する Executor を返す
// キューが満杯のティックは捨てられ、保留中の値は次のティックで取り出される
func (l *Loop) Executor() Executor {
	return func(fn func()) {
		l.TryPost(fn)
	}
}

// Close はループを停止し、キューに積まれている関数を実行し終えるまで待つ
func (l *Loop) Close() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		select {
		case fn := <-l.queue:
			fn()
		case <-l.stopChan:
			// 停止前に積まれた関数を実行してから終了する
			for {
				select {
				case fn := <-l.queue:
					fn()
				default:
					return
				}
			}
		}
	}
}
