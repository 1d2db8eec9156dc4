// Package logging initializes the global zerolog logger from the glazed
// logging flags (--log-level, --log-file, --log-format, ...) that clay
// registers on the root command.
package logging

import (
	"os"
	"path/filepath"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/medchat/pkg/config"
)

// DefaultFile is where commands that own the terminal screen log.
func DefaultFile() string {
	return filepath.Join(config.Home(), "medchat.log")
}

// LogFile picks the log file: the configured one, DefaultFile for screen
// commands, or none (stderr).
func LogFile(ownsScreen bool, configured string) string {
	if configured != "" || !ownsScreen {
		return configured
	}
	return DefaultFile()
}

// Init (re)initializes the logger once the flags are parsed.
func Init(ownsScreen bool) error {
	file := LogFile(ownsScreen, viper.GetString("log-file"))
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return errors.Wrap(err, "create log dir")
		}
		viper.Set("log-file", file)
	}
	return clay.InitLogger()
}
