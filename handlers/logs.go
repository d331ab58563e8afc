package handlers

import (
	"bufio"
	"net/http"
	"os"
	"strconv"
)

const maxLogLines = 5000

// LogsHandler serves recent application log lines for troubleshooting.
type LogsHandler struct {
	LogFile string
}

// NewLogsHandler creates a logs handler reading from the given file.
func NewLogsHandler(logFile string) *LogsHandler {
	return &LogsHandler{LogFile: logFile}
}

// GetLogs returns the last N lines of the log file as plain text.
func (h *LogsHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	limit := 500
	if v := r.URL.Query().Get("lines"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxLogLines {
		limit = maxLogLines
	}

	file, err := os.Open(h.LogFile)
	if err != nil {
		respondError(w, http.StatusNotFound, "log file not available")
		return
	}
	defer file.Close()

	// Ring buffer of the last N lines. Log files stay small enough under
	// rotation that a single pass is fine.
	lines := make([]string, 0, limit)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(lines) == limit {
			lines = lines[1:]
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read log file")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, line := range lines {
		w.Write([]byte(line))
		w.Write([]byte("\n"))
	}
}
