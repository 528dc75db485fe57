package capability

import (
	"sync"

	"github.com/zurustar/blox/pkg/value"
)

// minHandleID is the first handle issued by HandleTable.
// Handles start from 1 (not 0) to distinguish from uninitialized values.
const minHandleID = 1

// handleEntry はハンドルテーブルの1エントリ。
type handleEntry struct {
	done   bool
	result Result
	cancel func() // ワーカーのcontextを取り消す。nilの場合もある。
}

// HandleTable は非同期リクエストのハンドル→結果のマッピングを管理する。
// ワーカーgoroutineはCompleteで結果を書き込み、スケジューラはPollで読み出す。
// ハンドルは再利用しない。放棄されたハンドルへの遅延結果は破棄される。
type HandleTable struct {
	entries map[Handle]*handleEntry
	next    Handle
	mu      sync.Mutex
}

// NewHandleTable は新しいHandleTableを生成して返す。
func NewHandleTable() *HandleTable {
	return &HandleTable{
		entries: make(map[Handle]*handleEntry),
		next:    minHandleID,
	}
}

// Open は保留中のリクエストを登録し、新しいハンドルを返す。
// cancelはAbandon時に呼ばれる。
func (t *HandleTable) Open(cancel func()) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.next
	t.next++
	t.entries[h] = &handleEntry{cancel: cancel}
	return h
}

// SetCancel はOpen後にAbandon時の取り消し処理を設定する。
func (t *HandleTable) SetCancel(h Handle, cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.entries[h]; exists {
		entry.cancel = cancel
	}
}

// Complete はリクエストの結果を記録する。任意のgoroutineから呼べる。
// 放棄済み・未知のハンドルの場合はfalseを返し、結果は捨てられる。
func (t *HandleTable) Complete(h Handle, v value.Value, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.entries[h]
	if !exists || entry.done {
		return false
	}
	entry.done = true
	if err != nil {
		entry.result = Failed(err)
	} else {
		entry.result = Ready(v)
	}
	return true
}

// Poll はハンドルの状態を返す。完了済みの結果は一度だけ返され、エントリは解放される。
func (t *HandleTable) Poll(h Handle) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.entries[h]
	if !exists {
		return Failed(ErrUnknownHandle)
	}
	if !entry.done {
		return Pending()
	}
	delete(t.entries, h)
	return entry.result
}

// Abandon はハンドルを解放し、実行中のワーカーを取り消す。
func (t *HandleTable) Abandon(h Handle) {
	t.mu.Lock()
	entry, exists := t.entries[h]
	delete(t.entries, h)
	t.mu.Unlock()

	if exists && entry.cancel != nil {
		entry.cancel()
	}
}

// AbandonAll は全ての保留中リクエストを解放する。
func (t *HandleTable) AbandonAll() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[Handle]*handleEntry)
	t.mu.Unlock()

	for _, entry := range entries {
		if entry.cancel != nil {
			entry.cancel()
		}
	}
}

// Len は登録中のハンドル数を返す。
func (t *HandleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
