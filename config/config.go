// SPDX-License-Identifier: ice License 1.0

package config

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	applicationConfigFile = "application.yaml"
	dotEnvLookupDepth     = 5
)

//nolint:gochecknoinits // Because we load the configs once, for the whole runtime
func init() {
	loadFirstApplicationConfigFile()
	dotEnvPath := `.env`
	for range dotEnvLookupDepth {
		if err := godotenv.Load(dotEnvPath); err == nil {
			break
		}
		dotEnvPath = fmt.Sprintf(`../%v`, dotEnvPath)
	}
}

func MustLoadFromKey(key string, cfg any) {
	if err := LoadFromKey(key, cfg); err != nil {
		log.Panic(err)
	}
}

func LoadFromKey(key string, cfg any) error {
	return errors.Wrapf(viper.UnmarshalKey(key, cfg), "failed to load config by key %q", key)
}

// EnvFallback returns the first non blank value out of `<MODULE>_<name>` and `<name>`,
// where MODULE is the upper-cased applicationYAMLKey.
func EnvFallback(applicationYAMLKey, name string) string {
	module := strings.ToUpper(strings.NewReplacer("-", "_", "/", "_").Replace(applicationYAMLKey))
	if val := strings.TrimSpace(os.Getenv(module + "_" + name)); val != "" {
		return val
	}

	return strings.TrimSpace(os.Getenv(name))
}

func loadFirstApplicationConfigFile() {
	for _, f := range findAllApplicationConfigFiles() {
		viper.SetConfigFile(f)
		if err := viper.ReadInConfig(); err == nil {
			return
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Panic(err)
		}
	}

	log.Panic(errors.Errorf("could not find any %v files", applicationConfigFile))
}

func findAllApplicationConfigFiles() []string {
	var hints []string
	if p, err := os.Getwd(); err == nil {
		hints = append(hints, p)
	}
	if p, err := os.Executable(); err == nil {
		hints = append(hints, path.Dir(filepath.Join(p, "..")))
	}
	files := make([]string, 0, 2*len(hints)+2) //nolint:mnd,gomnd // Two patterns per hint, plus the module root ones.
	for _, dir := range hints {
		files = append(files, glob(filepath.Join(dir, ".testdata", applicationConfigFile))...)
		files = append(files, glob(filepath.Join(dir, applicationConfigFile))...)
	}

	return append(files, relativeFiles()...)
}

func relativeFiles() []string {
	//nolint:dogsled // Because those 3 blank identifiers are useless
	_, callerFile, _, _ := runtime.Caller(0)
	files := glob(filepath.Join(filepath.Dir(callerFile), "..", applicationConfigFile))

	return append(files, glob(filepath.Join(filepath.Dir(callerFile), "..", "..", applicationConfigFile))...)
}

func glob(pattern string) []string {
	files, err := filepath.Glob(pattern)
	if err != nil {
		log.Println(errors.Wrapf(err, "glob failed for [%v]", pattern))
	}

	return files
}
