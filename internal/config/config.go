package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	EventsPolicyDrop  = "drop"
	EventsPolicyQueue = "queue"
)

// Config agrupa la configuración necesaria para correr la aplicación.
type Config struct {
	Port        string
	StoreDriver string
	DatabaseURL string

	// StateIdleTimeout es la ventana de gracia durante la cual el estado de la lista
	// sigue suscripto al store después de que se desconecta el último observador.
	StateIdleTimeout time.Duration

	CurrencyLocale string
	CurrencyCode   string
	EventsPolicy   string
	LogLevel       string
}

// Load lee variables de entorno y valida lo mínimo indispensable.
// Si existe un archivo .env en el directorio actual, se carga primero (sin pisar el entorno).
func Load() (Config, error) {
	_ = godotenv.Load()

	port := getenv("PORT", "8080")
	// Normalizamos por si alguien manda ":8080"
	port = strings.TrimPrefix(port, ":")

	driver := strings.ToLower(getenv("STORE_DRIVER", StoreDriverPostgres))
	if driver != StoreDriverPostgres && driver != StoreDriverMemory {
		return Config{}, fmt.Errorf("invalid STORE_DRIVER %q: expected %q or %q", driver, StoreDriverPostgres, StoreDriverMemory)
	}

	databaseURL := getenv("DATABASE_URL", "")
	if driver == StoreDriverPostgres && databaseURL == "" {
		return Config{}, fmt.Errorf("missing required env var: DATABASE_URL")
	}

	idleTimeout, err := time.ParseDuration(getenv("STATE_IDLE_TIMEOUT", "5s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid STATE_IDLE_TIMEOUT: %w", err)
	}
	if idleTimeout < 0 {
		return Config{}, fmt.Errorf("invalid STATE_IDLE_TIMEOUT: must not be negative")
	}

	policy := strings.ToLower(getenv("EVENTS_POLICY", EventsPolicyDrop))
	if policy != EventsPolicyDrop && policy != EventsPolicyQueue {
		return Config{}, fmt.Errorf("invalid EVENTS_POLICY %q: expected %q or %q", policy, EventsPolicyDrop, EventsPolicyQueue)
	}

	return Config{
		Port:             port,
		StoreDriver:      driver,
		DatabaseURL:      databaseURL,
		StateIdleTimeout: idleTimeout,
		CurrencyLocale:   getenv("CURRENCY_LOCALE", "pt-BR"),
		CurrencyCode:     strings.ToUpper(getenv("CURRENCY_CODE", "BRL")),
		EventsPolicy:     policy,
		LogLevel:         getenv("LOG_LEVEL", "info"),
	}, nil
}

func getenv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
