package middleware

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/vova616/xxhash"
)

// requestLogger renders one access log line: `[id] METHOD /path?<hash> status in Nms`.
// Query strings are hashed so that request parameters never reach the logs verbatim.
type requestLogger struct {
	buf *bytes.Buffer
}

func newRequestLogger() *requestLogger {
	return &requestLogger{
		buf: &bytes.Buffer{},
	}
}

func (r *requestLogger) write(format string, args ...interface{}) {
	fmt.Fprintf(r.buf, format, args...)
}

func (r *requestLogger) requestID(id string) *requestLogger {
	if id != "" {
		r.write("[%s] ", id)
	}
	return r
}

func (r *requestLogger) requestType(reqType string) *requestLogger {
	r.write("%s ", reqType)
	return r
}

func (r *requestLogger) path(path string) *requestLogger {
	wrote := false
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			r.write("/%s", c)
			wrote = true
		}
	}
	if !wrote {
		r.write("/")
	}
	return r
}

func (r *requestLogger) query(rawQuery string) *requestLogger {
	if rawQuery != "" {
		r.write("?%#x", queryHash(rawQuery))
	}
	r.buf.WriteString(" ")
	return r
}

func (r *requestLogger) status(status int) *requestLogger {
	r.write("%03d", status)
	return r
}

func (r *requestLogger) duration(duration time.Duration) *requestLogger {
	r.write(" in %.2fms", duration.Seconds()*1000)
	return r
}

func (r *requestLogger) render() string {
	return r.buf.String()
}

func queryHash(rawQuery string) uint32 {
	return xxhash.Checksum32([]byte(rawQuery))
}
