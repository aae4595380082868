package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]any)

	defaultEnvLoaded sync.Once
)

// Load populates the configuration struct from environment variables.
// Each unique configuration type is parsed once per process; subsequent
// calls for the same type return the cached value. A .env file in the
// working directory is loaded on first use when present.
//
// Example:
//
//	type RedisConfig struct {
//	    URL     string `env:"REDIS_URL,required"`
//	    Retries int    `env:"REDIS_RETRIES" envDefault:"3"`
//	}
//
//	var cfg RedisConfig
//	if err := config.Load(&cfg); err != nil {
//	    // handle error
//	}
func Load[T any](v *T) error {
	defaultEnvLoaded.Do(func() {
		// The .env file is optional; absence is not an error.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	key := typeName[T]()

	cacheMu.RLock()
	if cached, ok := cache[key]; ok {
		*v = cached.(T)
		cacheMu.RUnlock()
		return nil
	}
	cacheMu.RUnlock()

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	// Another goroutine may have parsed the same type concurrently; the
	// first published copy wins so all callers observe identical values.
	if cached, ok := cache[key]; ok {
		*v = cached.(T)
		return nil
	}
	cache[key] = *v
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
// Useful for configuration required for the application to start.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// typeName returns a string identifier for the generic type T.
func typeName[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		// Interface types have no concrete reflect type.
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}
