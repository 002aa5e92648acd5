// Package envconf loads process configuration from the environment.
//
// An optional dotenv file is read first so local runs can keep settings in
// a file; variables already present in the environment always win.
package envconf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DefaultDotenvFile is read by Load when present in the working directory.
const DefaultDotenvFile = ".env"

var ErrNilDestination = errors.New("destination is nil")

// Load populates dst from the environment using envconfig struct tags
// (`envconfig`, `default`, `required`). prefix may be empty.
func Load(prefix string, dst any) error {
	return LoadFiles(prefix, dst, DefaultDotenvFile)
}

// LoadFiles is Load with an explicit list of dotenv files. Missing files
// are skipped.
func LoadFiles(prefix string, dst any, files ...string) error {
	if dst == nil {
		return ErrNilDestination
	}

	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read dotenv %q: %w", f, err)
		}
	}

	err := envconfig.Process(prefix, dst)
	if err != nil {
		return fmt.Errorf("process env: %w", err)
	}

	return nil
}

// Get returns the value of key or fallback when it is unset or empty.
func Get(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}

	return v
}
