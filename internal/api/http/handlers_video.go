package apihttp

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"mediastream/internal/metrics"
)

func (reg *StreamRegistry) handleVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	token := strings.TrimPrefix(r.URL.Path, "/video/")
	if token == "" || strings.Contains(token, "/") {
		http.NotFound(w, r)
		return
	}
	session, ok := reg.lookup(token)
	if !ok {
		http.NotFound(w, r)
		return
	}
	session.touch()

	size := session.file.Size
	w.Header().Set("Content-Type", fallbackContentType(session.file.MIME))
	w.Header().Set("Accept-Ranges", "bytes")
	// Close the connection after streaming so keep-alive does not pin a
	// pull stream after the player stops.
	w.Header().Set("Connection", "close")

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		reg.copyBody(w, session, 0, size, token)
		return
	}

	start, end, err := parseByteRange(rangeHeader, size)
	if err != nil {
		// Players treat 416 as "re-ask with a sane range"; a 400 would
		// abort playback, so malformed ranges get 416 too.
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if end < 0 {
		// Open-ended range: promise only what can be served promptly.
		// Ending the response early at the edge of the downloaded prefix
		// makes the player issue a follow-up range instead of stalling
		// inside one huge response.
		end = size - 1
		if avail := session.provider.AvailableLength(start); avail > 0 {
			if served := start + avail - 1; served < end {
				end = served
			}
		}
	}
	if maxEnd := start + reg.cfg.MaxChunkBytes - 1; end > maxEnd {
		end = maxEnd
	}
	if end > size-1 {
		end = size - 1
	}

	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	reg.copyBody(w, session, start, length, token)
}

func (reg *StreamRegistry) copyBody(w io.Writer, session *streamSession, off, length int64, token string) {
	body := newPullStream(session.provider, off, length, reg.cfg.RetryDelay, reg.cfg.ReadWait)
	defer body.Close()

	n, err := io.Copy(w, body)
	metrics.BytesServedTotal.Add(float64(n))
	if err != nil {
		// Client aborts are routine for media players.
		reg.logger.Debug("stream copy interrupted",
			slog.String("token", token),
			slog.Int64("offset", off),
			slog.Int64("written", n),
			slog.Any("error", err))
	}
}
