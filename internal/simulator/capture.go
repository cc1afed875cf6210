package simulator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/freeathome/internal/logging"
)

const (
	directionReceived = "client->sysap"
	directionSent     = "sysap->client"
)

// StanzaRecord is one captured stanza. Captures are JSON Lines, one record
// per stanza in either direction.
type StanzaRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	MessageNum int64     `json:"message_num"`
	RemoteAddr string    `json:"remote_addr"`
	Direction  string    `json:"direction"`
	Length     int       `json:"length"`
	Payload    string    `json:"payload"`
}

// capture appends stanza records to a file in a directory. A nil or
// disabled capture drops everything.
type capture struct {
	mu   sync.Mutex
	path string
}

func newCapture(dir string) *capture {
	if dir == "" {
		return nil
	}
	return &capture{
		path: filepath.Join(dir, fmt.Sprintf("capture-%s.jsonl", time.Now().Format("20060102-150405"))),
	}
}

func (c *capture) record(remoteAddr string, messageNum int64, direction string, data []byte) {
	if c == nil {
		return
	}

	line, err := json.Marshal(StanzaRecord{
		Timestamp:  time.Now(),
		MessageNum: messageNum,
		RemoteAddr: remoteAddr,
		Direction:  direction,
		Length:     len(data),
		Payload:    string(data),
	})
	if err != nil {
		logging.Error("Failed to marshal stanza record", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logging.Error("Failed to open capture file",
			zap.String("filename", c.path),
			zap.Error(err),
		)
		return
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		logging.Error("Failed to write to capture file",
			zap.String("filename", c.path),
			zap.Error(err),
		)
	}
}
