package conversation

import (
	"path/filepath"
	"time"

	internal "github.com/ZanzyTHEbar/roundtable/roundtable"
)

const sessionIDLayout = "20060102_150405"

// Session scopes one conversation log. There is no state shared across sessions.
type Session struct {
	ID      string
	Started time.Time
}

// NewSession derives the session identifier from its start time.
func NewSession(start time.Time) Session {
	return Session{ID: start.Format(sessionIDLayout), Started: start}
}

// FileName is the snapshot file name for this session.
func (s Session) FileName() string {
	return internal.DefaultLogFilePrefix + s.ID + ".json"
}

// Dir joins the data directory and the log directory name.
func (s Session) Dir(dataDir, logDirName string) string {
	return filepath.Join(dataDir, logDirName)
}

// Path is the full snapshot path for this session.
func (s Session) Path(dataDir, logDirName string) string {
	return filepath.Join(s.Dir(dataDir, logDirName), s.FileName())
}
