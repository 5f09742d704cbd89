package core

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// mediaTypes mirrors the extensions the service accepts from the camera and
// recorder. Anything else is sniffed from the content.
var mediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".mov":  "video/mp4",
	".m4a":  "audio/m4a",
	".aac":  "audio/aac",
}

// GuessMIME infers a media type from the file name, falling back to the
// standard extension table and then to content sniffing of head.
func GuessMIME(name string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(strings.SplitN(name, "?", 2)[0]))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	if len(head) > 0 {
		return http.DetectContentType(head)
	}
	return "application/octet-stream"
}

// SniffFile reads the first 512 bytes of path for content detection.
func SniffFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, nil
	}
	return buf[:n], nil
}

// StampedName builds upload file names of the form prefix_{epochMillis}.ext.
func StampedName(prefix, ext string, at time.Time) string {
	return fmt.Sprintf("%s_%d.%s", prefix, at.UnixMilli(), strings.TrimPrefix(ext, "."))
}

// ParseArea parses a positive hectare value.
func ParseArea(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid area '%s' (expected a number of hectares)", s)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid area '%s' (must be greater than zero)", s)
	}
	return v, nil
}

// FormatDate renders a timestamp as YYYY-MM-DD in local time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02")
}

// FormatWait renders a remaining wait such as "1m05s".
func FormatWait(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	m := int(d / time.Minute)
	s := int((d % time.Minute) / time.Second)
	if m == 0 {
		return fmt.Sprintf("%ds", s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
