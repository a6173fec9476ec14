package executor

import (
	"sort"
	"strings"
	"sync"

	"sheet_trader/internal/models"
	"sheet_trader/internal/sheets"
	"sheet_trader/pkg/logger"
)

// Book — реестр открытых позиций. Отдельный тип, чтобы телеграм мог читать
// позиции, не завися от всего экзекьютора. За позицией охотятся несколько
// горутин (монитор филла, стрим, поллинг, ревизия), поэтому наружу уходят
// только копии, а все записи в поля идут через Update под мьютексом реестра.
type Book struct {
	mu       sync.RWMutex
	bySymbol map[string]*models.Position
}

func NewBook() *Book {
	return &Book{bySymbol: make(map[string]*models.Position)}
}

func (b *Book) Has(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.bySymbol[symbol]
	return ok
}

// Snapshot — копия позиции для чтения без блокировки.
func (b *Book) Snapshot(symbol string) (models.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.bySymbol[symbol]
	if !ok {
		return models.Position{}, false
	}
	return *p, true
}

func (b *Book) Set(p *models.Position) {
	b.mu.Lock()
	b.bySymbol[p.Symbol] = p
	b.mu.Unlock()
}

func (b *Book) Delete(symbol string) {
	b.mu.Lock()
	delete(b.bySymbol, symbol)
	b.mu.Unlock()
}

// Update выполняет fn над позицией под блокировкой реестра.
func (b *Book) Update(symbol string, fn func(*models.Position)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.bySymbol[symbol]
	if !ok {
		return false
	}
	fn(p)
	return true
}

// MarkArchived атомарно помечает позицию закрытой. false — позиции нет
// либо её уже закрывает кто-то другой.
func (b *Book) MarkArchived(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.bySymbol[symbol]
	if !ok || p.Archived {
		return false
	}
	p.Archived = true
	return true
}

// ByOrderID ищет позицию по любому из её ордеров (входному, TP или SL).
func (b *Book) ByOrderID(orderID string) (models.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.bySymbol {
		if p.OrderID == orderID || p.TPOrderID == orderID || p.SLOrderID == orderID {
			return *p, true
		}
	}
	return models.Position{}, false
}

// PendingBuys — позиции, у которых вход ещё не подтверждён филлом.
func (b *Book) PendingBuys() []models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	res := make([]models.Position, 0)
	for _, p := range b.bySymbol {
		if p.Status == models.PositionOrderPlaced {
			res = append(res, *p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Symbol < res[j].Symbol })
	return res
}

// OpenPositions — копия позиций, отсортированная по символу.
func (b *Book) OpenPositions() []models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	res := make([]models.Position, 0, len(b.bySymbol))
	for _, p := range b.bySymbol {
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Symbol < res[j].Symbol })
	return res
}

// Rehydrate восстанавливает позиции из листа после рестарта: строки с order_id,
// которые ещё не проданы. Айдишники TP/SL ордеров в листе не хранятся,
// их доставит ревизия TP/SL первым же циклом.
func (b *Book) Rehydrate(headers []string, rows [][]string) int {
	restored := 0
	for i, row := range rows {
		orderID := sheets.Cell(headers, row, sheets.ColOrderID)
		if orderID == "" {
			continue
		}
		if sheets.Truthy(sheets.Cell(headers, row, sheets.ColSold)) {
			continue
		}

		coin := sheets.Cell(headers, row, sheets.ColCoin)
		if coin == "" {
			continue
		}
		qty, _ := sheets.ParseNumber(sheets.Cell(headers, row, sheets.ColQuantity))
		price, _ := sheets.ParseNumber(sheets.Cell(headers, row, sheets.ColPurchasePrice))
		price = sheets.NormalizePrice(coin, price)
		tp, _ := sheets.ParseNumber(sheets.Cell(headers, row, sheets.ColTakeProfit))
		sl, _ := sheets.ParseNumber(sheets.Cell(headers, row, sheets.ColStopLoss))

		status := models.PositionActive
		if qty == 0 {
			// ордер был выставлен, но филл мы не увидели
			status = models.PositionOrderPlaced
		}

		b.Set(&models.Position{
			Symbol:       sheets.FormatPair(coin),
			OrderID:      orderID,
			RowIndex:     i + 2,
			Quantity:     qty,
			Price:        price,
			HighestPrice: price,
			TakeProfit:   sheets.NormalizePrice(coin, tp),
			StopLoss:     sheets.NormalizePrice(coin, sl),
			Status:       status,
		})
		restored++
	}
	if restored > 0 {
		symbols := make([]string, 0, restored)
		for _, p := range b.OpenPositions() {
			symbols = append(symbols, p.Symbol)
		}
		logger.Info("restored %d positions from sheet: %s", restored, strings.Join(symbols, ", "))
	}
	return restored
}
