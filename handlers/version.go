package handlers

import (
	"net/http"
	"os"
	"strings"
	"sync"
)

// Version is read from version.txt next to the binary, "dev" otherwise.
var (
	version     string
	versionOnce sync.Once
)

type VersionHandler struct{}

type VersionResponse struct {
	Version string `json:"version"`
}

func NewVersionHandler() *VersionHandler {
	return &VersionHandler{}
}

// AppVersion reads the version from version.txt (cached after first read).
func AppVersion() string {
	versionOnce.Do(func() {
		version = "dev"
		data, err := os.ReadFile("version.txt")
		if err != nil {
			return
		}
		if v := strings.TrimSpace(string(data)); v != "" {
			version = v
		}
	})
	return version
}

// GetVersion returns the running application version.
func (h *VersionHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, VersionResponse{Version: AppVersion()})
}
