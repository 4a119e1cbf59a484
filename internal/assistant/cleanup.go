package assistant

import (
	"context"
	"log/slog"

	"github.com/MrWong99/voxdesk/pkg/provider/live"
)

// cleanupLocked is the only teardown path of a session. Every exit (toggle
// off, surface unmount, remote close, remote error, failed open) ends here.
// Second and later calls return immediately.
//
// Order matters: the capture callback is detached before the stream is
// released so that no tick fires into a half-closed graph, and playback is
// stopped before its output context is closed. The status flips to idle
// synchronously; the channel closes in the background.
func (s *Session) cleanupLocked(errMsg string) {
	if s.closed {
		return
	}
	s.closed = true

	if s.capture != nil {
		s.capture.SetProcessor(nil)
		if err := s.capture.Close(); err != nil {
			slog.Warn("assistant: close capture", "session_id", s.id, "err", err)
		}
		s.capture = nil
	}

	s.cancelQuietLocked()

	if s.scheduler != nil {
		s.scheduler.Reset()
	}
	if s.output != nil {
		if err := s.output.Close(); err != nil {
			slog.Warn("assistant: close output", "session_id", s.id, "err", err)
		}
		s.output = nil
	}

	s.mu.Lock()
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()
	if ch != nil {
		s.closeChannelAsync(ch)
	}

	// Aborts a dial still in progress.
	s.cancel()

	if s.started && s.cfg.Metrics != nil {
		s.cfg.Metrics.ActiveSessions.Add(context.Background(), -1)
	}
	s.setStatusLocked(StatusIdle, errMsg)
	close(s.done)

	slog.Info("assistant: session closed", "session_id", s.id, "surface", s.surface)
}

// closeChannelAsync closes ch on a tracked background goroutine.
func (s *Session) closeChannelAsync(ch live.Channel) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if err := ch.Close(); err != nil && !live.IsBenign(err) {
			slog.Debug("assistant: close channel", "session_id", s.id, "err", err)
		}
	}()
}
