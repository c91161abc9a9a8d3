package posture

import (
	"regexp"
	"strings"

	"github.com/g960059/devmode/internal/model"
	"github.com/g960059/devmode/internal/revline"
)

var eventCodePattern = regexp.MustCompile(`event index 0x(..)`)

// PostureForCode maps the virtual button event code to a posture.
func PostureForCode(code string) (model.Posture, bool) {
	switch strings.ToLower(code) {
	case "cc":
		return model.PostureTablet, true
	case "cd":
		return model.PostureLaptop, true
	default:
		return model.PostureUnknown, false
	}
}

// ParseLog walks the log backward and returns the posture announced by the
// most recent recognised event line carrying marker. Lines with an
// unrecognised code are skipped. maxLines <= 0 scans the whole file.
func ParseLog(path string, chunkSize, maxLines int, marker string) (model.Posture, bool, error) {
	scanned := 0
	for line, err := range revline.Lines(path, chunkSize) {
		if err != nil {
			return model.PostureUnknown, false, err
		}
		if strings.Contains(line, marker) {
			if m := eventCodePattern.FindStringSubmatch(line); m != nil {
				if p, ok := PostureForCode(m[1]); ok {
					return p, true, nil
				}
			}
		}
		scanned++
		if maxLines > 0 && scanned >= maxLines {
			break
		}
	}
	return model.PostureUnknown, false, nil
}
