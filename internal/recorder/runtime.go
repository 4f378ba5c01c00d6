package recorder

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/cornercase/internal/fsutil"
)

// RecordingTimeFile lists the length of every run, in whole seconds, one
// per line.
const RecordingTimeFile = "recording_time_seconds.txt"

// AppendRecordingTime adds one line with d truncated to seconds to
// <root>/00_log/recording_time_seconds.txt.
func AppendRecordingTime(fs fsutil.FileSystem, root string, d time.Duration) error {
	dir := filepath.Join(root, LogDir)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, RecordingTimeFile)
	var data []byte
	if fs.Exists(path) {
		prev, err := fs.ReadFile(path)
		if err != nil {
			return err
		}
		data = prev
	}
	data = append(data, fmt.Sprintf("%d\n", int64(d/time.Second))...)
	return fs.WriteFile(path, data, 0o644)
}
