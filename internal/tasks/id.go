package tasks

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns an identifier of the form task_YYYYmmdd_HHMMSS_<8 hex>.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "task_" + now.UTC().Format("20060102_150405") + "_" + suffix
}
