package sources

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/StrathCole/quote-consensus/pkg/logging"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

// GetLoggerFromConfig extracts logger from config map or returns a default noop logger.
// Adapters should use this to get the logger passed from main.go.
func GetLoggerFromConfig(config map[string]interface{}) *logging.Logger {
	if loggerInterface, ok := config["logger"]; ok {
		if logger, ok := loggerInterface.(*logging.Logger); ok && logger != nil {
			return logger
		}
	}

	return logging.NewNoopLogger()
}

// GetString retrieves a string value from an adapter config map.
func GetString(config map[string]interface{}, key, defaultValue string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return defaultValue
}

// GetDuration retrieves a duration from an adapter config map.
// Strings are parsed with time.ParseDuration; bare integers are milliseconds.
func GetDuration(config map[string]interface{}, key string, defaultValue time.Duration) (time.Duration, error) {
	switch v := config[key].(type) {
	case nil:
		return defaultValue, nil
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrInvalidConfig, key, v)
	}
}

// NormalizeSymbol trims and upper-cases user input.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateSymbol checks that a symbol is 1-10 uppercase alphanumeric characters.
//
// Valid: "AAPL", "BRK", "T", "0700"
// Invalid: "", "aapl", "BRK.B", "VERYLONGSYMBOL"
func ValidateSymbol(symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("%w: %q must be 1-10 uppercase letters or digits", ErrInvalidSymbol, symbol)
	}
	return nil
}
