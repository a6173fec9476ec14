package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	chatTelegramENV   = "TELEGRAM_CHAT_ID"
	databaseDSN       = "DATABASE_DSN"
	apiKeyENV         = "CRYPTO_API_KEY"
	apiSecretENV      = "CRYPTO_API_SECRET"
	spreadsheetENV    = "SPREADSHEET_ID"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB string `yaml:"db_dsn"`

	Exchange struct {
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
	} `yaml:"exchange"`

	Sheets struct {
		SpreadsheetID    string `yaml:"spreadsheet_id"`
		CredentialsFile  string `yaml:"credentials_file"`
		Worksheet        string `yaml:"worksheet"`
		ArchiveWorksheet string `yaml:"archive_worksheet"`
	} `yaml:"sheets"`

	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	LogFile string `yaml:"log_file"`
	DataDir string `yaml:"data_dir"`

	// Сколько USD ставим на одну сделку
	TradeAmount float64 `yaml:"trade_amount"`

	// Интервалы циклов
	CheckInterval        time.Duration // опрос листа на новые сигналы
	BatchUpdateInterval  time.Duration // сброс очереди записей в лист
	OrderCheckInterval   time.Duration // опрос статусов ордеров / недавних сделок
	TpslRevisionInterval time.Duration // пересмотр TP/SL по ATR
	PriceUpdateInterval  time.Duration // цикл обновления цен (pricer)

	// Риск
	ATRMultiplierSL float64 // SL = entry - ATR*mult
	ATRMultiplierTP float64 // TP = entry + ATR*mult (если нет сопротивления выше)

	// Подтверждение покупок через телеграм
	ConfirmRequired bool
	ConfirmTimeout  time.Duration
}

func NewConfig() (*Config, error) {
	// .env опционален, в контейнере всё приходит через окружение
	_ = godotenv.Load()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		TradeAmount: floatFromEnv("TRADE_AMOUNT", 10),

		CheckInterval:        durationFromEnv("CHECK_INTERVAL", "60s"),
		BatchUpdateInterval:  durationFromEnv("BATCH_UPDATE_INTERVAL", "30s"),
		OrderCheckInterval:   durationFromEnv("ORDER_CHECK_INTERVAL", "30s"),
		TpslRevisionInterval: durationFromEnv("TPSL_REVISION_INTERVAL", "10m"),
		PriceUpdateInterval:  durationFromEnv("PRICE_UPDATE_INTERVAL", "60s"),

		ATRMultiplierSL: floatFromEnv("ATR_MULTIPLIER_SL", 1.5),
		ATRMultiplierTP: floatFromEnv("ATR_MULTIPLIER_TP", 2.0),

		ConfirmRequired: boolFromEnv("CONFIRM_REQUIRED", false),
		ConfirmTimeout:  durationFromEnv("CONFIRM_TIMEOUT", "30s"),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}
	if v := os.Getenv(chatTelegramENV); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Telegram.ChatID = id
		}
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if v := os.Getenv(apiKeyENV); v != "" {
		config.Exchange.APIKey = v
	}
	if v := os.Getenv(apiSecretENV); v != "" {
		config.Exchange.APISecret = v
	}
	if v := os.Getenv(spreadsheetENV); v != "" {
		config.Sheets.SpreadsheetID = v
	}

	if config.Sheets.Worksheet == "" {
		config.Sheets.Worksheet = "Trading"
	}
	if config.Sheets.ArchiveWorksheet == "" {
		config.Sheets.ArchiveWorksheet = "Archive"
	}
	if config.DataDir == "" {
		config.DataDir = "data"
	}
	if config.TradeAmount <= 0 {
		return nil, fmt.Errorf("trade_amount must be positive, got %v", config.TradeAmount)
	}

	return &config, nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
