// sheetinit готовит таблицу к работе бота: создаёт воркшиты и докидывает
// недостающие колонки. Запускается руками один раз на новую таблицу.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"sheet_trader/internal/sheets"
)

type worksheetSpec struct {
	Name    string
	Columns []string
}

func main() {
	viper.SetConfigName(".sheetinit")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	spreadsheetID := viper.GetString("spreadsheet_id")
	if spreadsheetID == "" {
		spreadsheetID = os.Getenv("SPREADSHEET_ID")
	}
	if spreadsheetID == "" {
		panic("has no spreadsheet_id in config")
	}
	credentials := viper.GetString("credentials_file")
	if credentials == "" {
		panic("has no credentials_file in config")
	}

	var specs []worksheetSpec
	if err := viper.UnmarshalKey("worksheets", &specs); err != nil {
		panic(fmt.Errorf("parse worksheets: %w", err))
	}
	if len(specs) == 0 {
		panic("has no worksheets in config")
	}

	ctx := context.Background()
	svc, err := sheets.NewService(ctx, credentials)
	if err != nil {
		panic(fmt.Errorf("sheets service: %w", err))
	}

	for _, spec := range specs {
		if err := sheets.EnsureWorksheet(ctx, svc, spreadsheetID, spec.Name, spec.Columns); err != nil {
			panic(fmt.Errorf("worksheet %s: %w", spec.Name, err))
		}
		sh := sheets.NewSheet(svc, spreadsheetID, spec.Name)
		for _, column := range spec.Columns {
			if err := sh.EnsureColumn(ctx, column); err != nil {
				panic(fmt.Errorf("column %s in %s: %w", column, spec.Name, err))
			}
		}
		fmt.Printf("%s worksheet complete\n", spec.Name)
	}
	fmt.Println("done")
}
