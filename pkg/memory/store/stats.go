package store

import (
	"bytes"
	"os"
)

// WorkingStats summarises the working tier for display surfaces.
type WorkingStats struct {
	Files int   `json:"files"`
	Bytes int64 `json:"bytes"`
	Lines int   `json:"lines"`
}

// Stats counts working files, their total size and their total line count.
// Files that cannot be read still count towards Files and Bytes.
func (s *Store) Stats() (WorkingStats, error) {
	files, err := s.ListWorking()
	if err != nil {
		return WorkingStats{}, err
	}
	var st WorkingStats
	for _, f := range files {
		st.Files++
		st.Bytes += f.Size
		b, err := os.ReadFile(f.Path)
		if err != nil {
			debugLog.Debugf("stats: cannot read %s: %v", f.Path, err)
			continue
		}
		st.Lines += countLines(b)
	}
	return st, nil
}

func countLines(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	n := bytes.Count(b, []byte{'\n'})
	if b[len(b)-1] != '\n' {
		n++
	}
	return n
}
