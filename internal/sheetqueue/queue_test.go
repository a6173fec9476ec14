package sheetqueue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestAddCellUpdateDedup(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)

	q.AddCellUpdate(5, "Order Placed?", "ORDER_PLACED")
	q.AddCellUpdate(5, "Purchase Price", "3.62")
	q.AddCellUpdate(5, "Order Placed?", "SOLD") // та же ячейка — замена

	require.Equal(t, 2, q.Len())
	batch := q.Batch(10)
	require.Equal(t, "SOLD", batch[0].Value) // позиция в очереди сохранилась
	require.Equal(t, "Order Placed?", batch[0].Column)
	require.Equal(t, "3.62", batch[1].Value)
}

func TestAddArchiveRejectsDuplicateRow(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)

	require.True(t, q.AddArchive(7, []string{"SUI", "3.62"}, nil, nil))
	require.False(t, q.AddArchive(7, []string{"SUI", "3.62"}, nil, nil))
	require.Equal(t, 1, q.Len())
}

func TestArchiveRowReusableAfterCompletion(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)

	require.True(t, q.AddArchive(7, []string{"SUI", "3.62"}, nil, nil))
	id := q.Batch(1)[0].ID
	q.MarkCompleted([]string{id})

	// строка освободилась, вторая сделка на ней архивируется как обычно
	require.True(t, q.AddArchive(7, []string{"SUI", "4.10"}, nil, nil))
}

func TestArchiveRowStaysMarkedAfterEviction(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)

	require.True(t, q.AddArchive(7, []string{"SUI", "3.62"}, nil, nil))
	id := q.Batch(1)[0].ID
	for i := 0; i < maxRetries; i++ {
		q.MarkFailed([]string{id})
	}
	require.Equal(t, 0, q.Len())

	// архив так и не записался, строку под повторный архив не отдаём
	require.False(t, q.AddArchive(7, []string{"SUI", "3.62"}, nil, nil))
}

func TestMarkFailedEvictsAfterMaxRetries(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)

	q.AddCellUpdate(3, "Notes", "x")
	id := q.Batch(1)[0].ID

	q.MarkFailed([]string{id})
	require.Equal(t, 1, q.Len())
	q.MarkFailed([]string{id})
	require.Equal(t, 1, q.Len())
	q.MarkFailed([]string{id})
	require.Equal(t, 0, q.Len()) // третий провал выбрасывает операцию
}

func TestJournalSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	q, err := Open(dir)
	require.NoError(t, err)
	q.AddCellUpdate(2, "Sold?", "YES")
	q.AddArchive(2, []string{"SUI", "sold"}, nil, nil)
	q.AddClears(2, []string{"Sold?", "order_id"})

	q2, err := Open(dir)
	require.NoError(t, err)
	require.Equal(t, 3, q2.Len())

	// дедуп висящего архива переживает рестарт
	require.False(t, q2.AddArchive(2, []string{"SUI", "sold"}, nil, nil))

	cells, archives, clears := q2.PendingCounts()
	require.Equal(t, 1, cells)
	require.Equal(t, 1, archives)
	require.Equal(t, 1, clears)
}

func TestMarkCompletedRemovesOps(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)

	q.AddCellUpdate(2, "Notes", "a")
	q.AddCellUpdate(3, "Notes", "b")
	batch := q.Batch(10)
	require.Len(t, batch, 2)

	q.MarkCompleted([]string{batch[0].ID})
	require.Equal(t, 1, q.Len())
	require.Equal(t, 3, q.Batch(1)[0].Row)
}

type fakeSheet struct {
	updates []string
	cleared []string
	fail    error
}

func (f *fakeSheet) UpdateCell(_ context.Context, row int, column string, value any) error {
	if f.fail != nil {
		return f.fail
	}
	f.updates = append(f.updates, column)
	return nil
}

func (f *fakeSheet) ClearCells(_ context.Context, row int, columns []string) error {
	if f.fail != nil {
		return f.fail
	}
	f.cleared = append(f.cleared, columns...)
	return nil
}

type fakeArchive struct {
	rows int
	fail error
}

func (f *fakeArchive) Append(_ context.Context, values []string) error {
	if f.fail != nil {
		return f.fail
	}
	f.rows++
	return nil
}

func TestFlushAppliesAndDrains(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)
	q.AddCellUpdate(2, "Order Placed?", "ORDER_PLACED")
	q.AddArchive(5, []string{"SUI"}, nil, nil)

	main := &fakeSheet{}
	arch := &fakeArchive{}
	f := NewFlusher(q, main, arch)
	f.Flush(context.Background())

	require.Equal(t, 0, q.Len())
	require.Equal(t, []string{"Order Placed?"}, main.updates)
	require.Equal(t, 1, arch.rows)
}

func TestFlushClearsRowOnlyAfterArchiveWritten(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)
	q.AddArchive(5, []string{"SUI"}, []string{"Order Placed?", "order_id"}, map[string]string{"Tradable": "YES"})

	arch := &fakeArchive{fail: errors.New("append failed")}
	f := NewFlusher(q, &fakeSheet{}, arch)
	f.Flush(context.Background())

	// архив не записался — очисток и сбросов в очереди быть не должно
	cells, archives, clears := q.PendingCounts()
	require.Equal(t, 0, cells)
	require.Equal(t, 1, archives)
	require.Equal(t, 0, clears)

	arch.fail = nil
	f.Flush(context.Background())

	cells, archives, clears = q.PendingCounts()
	require.Equal(t, 1, cells)
	require.Equal(t, 0, archives)
	require.Equal(t, 1, clears)

	main := &fakeSheet{}
	f2 := NewFlusher(q, main, arch)
	f2.Flush(context.Background())
	require.Equal(t, []string{"Tradable"}, main.updates)
	require.Equal(t, []string{"Order Placed?", "order_id"}, main.cleared)
}

func TestFlushRateLimitBreaksBatchWithoutRetryPenalty(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)
	q.AddCellUpdate(2, "Notes", "a")
	q.AddCellUpdate(3, "Notes", "b")

	main := &fakeSheet{fail: &googleapi.Error{Code: 429, Message: "rateLimitExceeded"}}
	f := NewFlusher(q, main, &fakeArchive{})
	f.Flush(context.Background())

	// 429 обрывает батч, но счётчики ретраев не трогает
	require.Equal(t, 2, q.Len())
	for _, op := range q.Batch(10) {
		require.Equal(t, 0, op.Retries)
	}

	// до конца паузы очередь не дёргаем
	main.fail = nil
	f.Flush(context.Background())
	require.Equal(t, 2, q.Len())
	require.Empty(t, main.updates)
}

func TestFlushKeepsFailedForRetry(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)
	q.AddCellUpdate(2, "Notes", "x")

	main := &fakeSheet{fail: errors.New("boom")}
	f := NewFlusher(q, main, &fakeArchive{})
	f.Flush(context.Background())

	require.Equal(t, 1, q.Len())
	require.Equal(t, 1, q.Batch(1)[0].Retries)
}
