// Package closer closes resources and logs the failure instead of returning it.
package closer

import (
	"errors"
	"io"
	"net"

	"golang.org/x/exp/slog"
)

// LogClose closes c and logs any error through log. Closing an already
// closed network connection is not reported.
func LogClose(c io.Closer, what string, log *slog.Logger) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return
		}
		log.Warn("Close failed", "what", what, "err", err)
	}
}
