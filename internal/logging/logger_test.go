package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected logrus.Level
	}{
		{"Default", "", logrus.InfoLevel},
		{"Debug", "debug", logrus.DebugLevel},
		{"Unknown", "loud", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.input, &bytes.Buffer{}, false)
			if l.GetLevel() != tt.expected {
				t.Errorf("level = %v; want %v", l.GetLevel(), tt.expected)
			}
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New("info", &buf, true).WithField("file", "a.csv").Info("file converted")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q", buf.String())
	}
	if entry["file"] != "a.csv" || entry["msg"] != "file converted" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "dimconv.log")
	f, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	New("info", f, false).Info("hello")
	if !strings.HasSuffix(f.Name(), "dimconv.log") {
		t.Errorf("unexpected file %s", f.Name())
	}
}
