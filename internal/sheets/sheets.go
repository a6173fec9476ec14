package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// NewService поднимает клиент Sheets API по ключу сервисного аккаунта.
func NewService(ctx context.Context, credentialsFile string) (*sheets.Service, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, errors.Wrap(err, "read credentials")
	}
	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, errors.Wrap(err, "parse credentials")
	}
	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, errors.Wrap(err, "sheets service")
	}
	return svc, nil
}

// IsRateLimited true для 429 от Google API.
func IsRateLimited(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 429
	}
	return false
}

// Sheet — один воркшит таблицы. Заголовки кэшируются после первого чтения.
type Sheet struct {
	svc           *sheets.Service
	spreadsheetID string
	name          string

	mu       sync.Mutex
	headers  []string
	colIndex map[string]int
}

func NewSheet(svc *sheets.Service, spreadsheetID, name string) *Sheet {
	return &Sheet{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		name:          name,
	}
}

func (s *Sheet) Name() string { return s.name }

// Headers читает первую строку (с кэшем).
func (s *Sheet) Headers(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headers != nil {
		return s.headers, nil
	}

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.name+"!1:1").Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrapf(err, "read headers of %s", s.name)
	}
	if len(resp.Values) == 0 {
		return nil, fmt.Errorf("worksheet %s has no header row", s.name)
	}

	headers := make([]string, 0, len(resp.Values[0]))
	index := make(map[string]int, len(resp.Values[0]))
	for i, v := range resp.Values[0] {
		h := strings.TrimSpace(fmt.Sprint(v))
		headers = append(headers, h)
		index[h] = i
	}
	s.headers = headers
	s.colIndex = index
	return headers, nil
}

// InvalidateHeaders сбрасывает кэш (после добавления колонки).
func (s *Sheet) InvalidateHeaders() {
	s.mu.Lock()
	s.headers = nil
	s.colIndex = nil
	s.mu.Unlock()
}

func (s *Sheet) columnIndex(ctx context.Context, column string) (int, error) {
	if _, err := s.Headers(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.colIndex[column]
	if !ok {
		return 0, fmt.Errorf("worksheet %s has no column %q", s.name, column)
	}
	return i, nil
}

// Rows читает все строки данных (без заголовка) как строки.
func (s *Sheet) Rows(ctx context.Context) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.name+"!A2:AZ").Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrapf(err, "read rows of %s", s.name)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, rv := range resp.Values {
		row := make([]string, 0, len(rv))
		for _, v := range rv {
			row = append(row, strings.TrimSpace(fmt.Sprint(v)))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// UpdateCell пишет значение в ячейку по номеру строки и имени колонки.
// row — 1-based с учётом заголовка (данные начинаются со 2-й).
func (s *Sheet) UpdateCell(ctx context.Context, row int, column string, value any) error {
	ci, err := s.columnIndex(ctx, column)
	if err != nil {
		return err
	}
	cell := fmt.Sprintf("%s!%s%d", s.name, colLetter(ci), row)
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, cell, &sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return errors.Wrapf(err, "update %s", cell)
}

// ClearCells очищает ячейки строки по именам колонок.
func (s *Sheet) ClearCells(ctx context.Context, row int, columns []string) error {
	for _, column := range columns {
		ci, err := s.columnIndex(ctx, column)
		if err != nil {
			return err
		}
		cell := fmt.Sprintf("%s!%s%d", s.name, colLetter(ci), row)
		if _, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, cell, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
			return errors.Wrapf(err, "clear %s", cell)
		}
	}
	return nil
}

// AppendRowAt пишет значения начиная с колонки A в заданную строку.
func (s *Sheet) AppendRowAt(ctx context.Context, row int, values []string) error {
	vals := make([]interface{}, len(values))
	for i, v := range values {
		vals[i] = v
	}
	rangeA1 := fmt.Sprintf("%s!A%d", s.name, row)
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rangeA1, &sheets.ValueRange{
		Values: [][]interface{}{vals},
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return errors.Wrapf(err, "append at %s", rangeA1)
}

// FirstEmptyRow ищет первую по-настоящему пустую строку: у архива хвост строк
// бывает заполнен формулами, поэтому смотрим только первые keyColumns колонок.
func (s *Sheet) FirstEmptyRow(ctx context.Context, keyColumns int) (int, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID,
		fmt.Sprintf("%s!A2:%s", s.name, colLetter(keyColumns-1))).Context(ctx).Do()
	if err != nil {
		return 0, errors.Wrapf(err, "scan %s for empty row", s.name)
	}
	for i, rv := range resp.Values {
		empty := true
		for _, v := range rv {
			if strings.TrimSpace(fmt.Sprint(v)) != "" {
				empty = false
				break
			}
		}
		if empty {
			return i + 2, nil
		}
	}
	return len(resp.Values) + 2, nil
}

// AppendFirstEmpty пишет строку в первую по-настоящему пустую позицию.
func (s *Sheet) AppendFirstEmpty(ctx context.Context, values []string, keyColumns int) error {
	row, err := s.FirstEmptyRow(ctx, keyColumns)
	if err != nil {
		return err
	}
	return s.AppendRowAt(ctx, row, values)
}

// EnsureColumn добавляет колонку в конец заголовка, если её ещё нет.
func (s *Sheet) EnsureColumn(ctx context.Context, column string) error {
	headers, err := s.Headers(ctx)
	if err != nil {
		return err
	}
	for _, h := range headers {
		if h == column {
			return nil
		}
	}

	cell := fmt.Sprintf("%s!%s1", s.name, colLetter(len(headers)))
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, cell, &sheets.ValueRange{
		Values: [][]interface{}{{column}},
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return errors.Wrapf(err, "add column %q", column)
	}
	s.InvalidateHeaders()
	return nil
}

// EnsureWorksheet создаёт воркшит с заголовками, если его нет в таблице.
func EnsureWorksheet(ctx context.Context, svc *sheets.Service, spreadsheetID, name string, headers []string) error {
	meta, err := svc.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return errors.Wrap(err, "spreadsheet meta")
	}
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == name {
			return nil
		}
	}

	_, err = svc.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: name},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return errors.Wrapf(err, "create worksheet %s", name)
	}

	if len(headers) > 0 {
		return NewSheet(svc, spreadsheetID, name).AppendRowAt(ctx, 1, headers)
	}
	return nil
}

// colLetter: 0 -> A, 25 -> Z, 26 -> AA.
func colLetter(i int) string {
	letter := ""
	for i >= 0 {
		letter = string(rune('A'+i%26)) + letter
		i = i/26 - 1
	}
	return letter
}
