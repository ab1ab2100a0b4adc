package logging

import (
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Configure routes the standard logger to a size-rotated file. Old archives
// are compressed; playback sessions run for hours, so position sampling makes
// the log chatty.
func Configure(path string) {
	if dir := filepath.Dir(path); dir != "." {
		os.MkdirAll(dir, 0o700)
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    5, // megabytes
		MaxBackups: 4,
		MaxAge:     30, // days
		Compress:   true,
	})
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
}
