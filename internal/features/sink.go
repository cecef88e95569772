package features

import (
	"sync"

	"github.com/char5742/scroll-offset-reader/internal/types"
)

// OffsetObserver は出力値の変更通知を受け取る関数の型
type OffsetObserver func(offset types.Offset)

type observerEntry struct {
	id int
	fn OffsetObserver
}

// OffsetValue はサンプラーの出力先となる観測可能なセル
// 値の書き込みはサンプラーのみが行い、履歴は保持しない
type OffsetValue struct {
	mu        sync.RWMutex
	value     types.Offset
	nextID    int
	observers []observerEntry
}

func newOffsetValue(initial types.Offset) *OffsetValue {
	return &OffsetValue{value: initial}
}

// Load は現在の値を返す
func (v *OffsetValue) Load() types.Offset {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Subscribe は値の変更を監視するオブザーバーを登録し、登録解除用の関数を返す
// オブザーバーは書き込み側のゴルーチンから登録順に同期的に呼び出される
func (v *OffsetValue) Subscribe(fn OffsetObserver) (cancel func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextID
	v.nextID++
	v.observers = append(v.observers, observerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { v.unsubscribe(id) })
	}
}

func (v *OffsetValue) unsubscribe(id int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i, entry := range v.observers {
		if entry.id == id {
			v.observers = append(v.observers[:i:i], v.observers[i+1:]...)
			return
		}
	}
}

// store は値を更新し、ロックを解放した状態でオブザーバーに通知する
func (v *OffsetValue) store(offset types.Offset) {
	v.mu.Lock()
	v.value = offset
	observers := make([]observerEntry, len(v.observers))
	copy(observers, v.observers)
	v.mu.Unlock()

	for _, entry := range observers {
		entry.fn(offset)
	}
}
