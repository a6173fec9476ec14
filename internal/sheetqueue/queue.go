package sheetqueue

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"sheet_trader/pkg/logger"
)

// Квоты Sheets API жёсткие, поэтому записи в лист идут не напрямую,
// а через очередь: дедупликация, батчи, ретраи, журнал на диске.

const maxRetries = 3

type OpKind string

const (
	OpCell    OpKind = "cell"
	OpArchive OpKind = "archive"
	OpClear   OpKind = "clear"
)

type Op struct {
	ID      string   `json:"id"`
	Kind    OpKind   `json:"kind"`
	Row     int      `json:"row"`
	Column  string   `json:"column,omitempty"`
	Value   string   `json:"value,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Values  []string `json:"values,omitempty"`

	// для OpArchive: что сделать со строкой после успешной записи в архив
	ClearAfter []string          `json:"clear_after,omitempty"`
	ResetCells map[string]string `json:"reset_cells,omitempty"`

	Retries int       `json:"retries"`
	Created time.Time `json:"created"`
}

type Queue struct {
	mu           sync.Mutex
	ops          []Op
	archivedRows map[int]bool
	journalPath  string
	archiveLog   string
}

// Open загружает журнал незаписанных операций, если он остался с прошлого запуска.
func Open(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "queue dir")
	}
	q := &Queue{
		archivedRows: make(map[int]bool),
		journalPath:  filepath.Join(dir, "pending_updates.json"),
		archiveLog:   filepath.Join(dir, "archive_log.jsonl"),
	}

	data, err := os.ReadFile(q.journalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return q, nil
		}
		return nil, errors.Wrap(err, "read journal")
	}
	if err := sonic.Unmarshal(data, &q.ops); err != nil {
		// битый журнал не должен ронять бота
		logger.Error("corrupt queue journal %s, starting empty: %v", q.journalPath, err)
		q.ops = nil
		return q, nil
	}
	for _, op := range q.ops {
		if op.Kind == OpArchive {
			q.archivedRows[op.Row] = true
		}
	}
	if len(q.ops) > 0 {
		logger.Info("queue journal restored: %d pending ops", len(q.ops))
	}
	return q, nil
}

// persist пишет журнал атомарно. Вызывается под мьютексом.
func (q *Queue) persist() {
	data, err := sonic.Marshal(q.ops)
	if err != nil {
		logger.Error("marshal queue journal: %v", err)
		return
	}
	tmp := q.journalPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Error("write queue journal: %v", err)
		return
	}
	if err := os.Rename(tmp, q.journalPath); err != nil {
		logger.Error("rename queue journal: %v", err)
	}
}

// AddCellUpdate ставит запись ячейки в очередь. Повторная запись той же
// ячейки заменяет значение на месте, позиция в очереди сохраняется.
func (q *Queue) AddCellUpdate(row int, column, value string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.ops {
		if q.ops[i].Kind == OpCell && q.ops[i].Row == row && q.ops[i].Column == column {
			q.ops[i].Value = value
			q.persist()
			return
		}
	}
	q.ops = append(q.ops, Op{
		ID:      uuid.New().String(),
		Kind:    OpCell,
		Row:     row,
		Column:  column,
		Value:   value,
		Created: time.Now(),
	})
	q.persist()
}

// AddArchive ставит строку на перенос в архив. Пока архив строки висит
// в очереди (или выброшен по ретраям), повторный архив той же строки молча
// игнорируется; после успешной записи строка снова доступна под новую сделку.
// Очистка и сброс ячеек (clearAfter, resets) выполнятся только после того,
// как архивная запись реально уйдёт в лист. Снапшот строки дублируется
// в локальный лог на случай, если запись в лист так и не пройдёт.
func (q *Queue) AddArchive(row int, values, clearAfter []string, resets map[string]string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.archivedRows[row] {
		return false
	}
	q.archivedRows[row] = true
	q.ops = append(q.ops, Op{
		ID:         uuid.New().String(),
		Kind:       OpArchive,
		Row:        row,
		Values:     values,
		ClearAfter: clearAfter,
		ResetCells: resets,
		Created:    time.Now(),
	})
	q.persist()
	q.appendArchiveLog(row, values)
	return true
}

func (q *Queue) appendArchiveLog(row int, values []string) {
	rec, err := sonic.Marshal(map[string]any{
		"row":    row,
		"values": values,
		"at":     time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	f, err := os.OpenFile(q.archiveLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Warn("archive log: %v", err)
		return
	}
	defer f.Close()
	_, _ = f.Write(append(rec, '\n'))
}

// AddClears ставит очистку ячеек строки (после архивации закрытой позиции).
func (q *Queue) AddClears(row int, columns []string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ops = append(q.ops, Op{
		ID:      uuid.New().String(),
		Kind:    OpClear,
		Row:     row,
		Columns: columns,
		Created: time.Now(),
	})
	q.persist()
}

// Batch отдаёт копию первых n операций, порядок добавления сохраняется.
func (q *Queue) Batch(n int) []Op {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.ops) {
		n = len(q.ops)
	}
	batch := make([]Op, n)
	copy(batch, q.ops[:n])
	return batch
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// PendingCounts — для команды /pending в телеграме.
func (q *Queue) PendingCounts() (cells, archives, clears int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, op := range q.ops {
		switch op.Kind {
		case OpCell:
			cells++
		case OpArchive:
			archives++
		case OpClear:
			clears++
		}
	}
	return
}

// MarkCompleted убирает выполненные операции из очереди.
func (q *Queue) MarkCompleted(ids []string) {
	if len(ids) == 0 {
		return
	}
	done := make(map[string]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.ops[:0]
	for _, op := range q.ops {
		if !done[op.ID] {
			kept = append(kept, op)
			continue
		}
		// строка ушла в архив, на ней может появиться новая сделка
		if op.Kind == OpArchive {
			delete(q.archivedRows, op.Row)
		}
	}
	q.ops = kept
	q.persist()
}

// MarkFailed инкрементит счётчик ретраев; после maxRetries операция
// выбрасывается, чтобы не застопорить очередь навсегда.
func (q *Queue) MarkFailed(ids []string) {
	if len(ids) == 0 {
		return
	}
	failed := make(map[string]bool, len(ids))
	for _, id := range ids {
		failed[id] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.ops[:0]
	for _, op := range q.ops {
		if failed[op.ID] {
			op.Retries++
			if op.Retries >= maxRetries {
				logger.Error("queue op %s %s row=%d dropped after %d retries", op.ID, op.Kind, op.Row, op.Retries)
				continue
			}
		}
		kept = append(kept, op)
	}
	q.ops = kept
	q.persist()
}
