// Package playback runs the external audio sink: an ffplay process fed
// raw PCM on stdin.
package playback

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/realtuner/stage/internal/core"
)

var ErrSinkClosed = errors.New("playback sink closed")

// Audio format contract with the capture side: 16-bit little-endian PCM,
// 44.1 kHz, mono.
var ffplayArgs = []string{
	"-fflags", "nobuffer",
	"-analyzeduration", "0",
	"-probesize", "32",
	"-f", "s16le",
	"-ar", "44100",
	"-ch_layout", "mono",
	"-nodisp",
	"-autoexit",
	"pipe:0",
}

// FFplaySink pipes PCM chunks into a long-lived ffplay process. One sink
// per distinct speaker; the relay spawns a new one when the speaker
// changes or the process dies.
type FFplaySink struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}

	closeTimeout time.Duration
	closeOnce    sync.Once
}

// NewFFplaySink spawns the process and starts a reaper goroutine.
func NewFFplaySink(bin string, closeTimeout time.Duration) (*FFplaySink, error) {
	cmd := exec.Command(bin, ffplayArgs...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}

	s := &FFplaySink{
		cmd:          cmd,
		stdin:        stdin,
		done:         make(chan struct{}),
		closeTimeout: closeTimeout,
	}
	go func() {
		err := cmd.Wait()
		close(s.done)
		log.Info().Err(err).Str("module", "playback").Int("pid", cmd.Process.Pid).Msg("sink process exited")
	}()
	log.Info().Str("module", "playback").Str("bin", bin).Int("pid", cmd.Process.Pid).Msg("sink process started")
	return s, nil
}

// Write feeds one PCM chunk to the process. Fails once it has exited;
// the caller decides whether to respawn.
func (s *FFplaySink) Write(chunk []byte) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}
	if _, err := s.stdin.Write(chunk); err != nil {
		return fmt.Errorf("sink write: %w", err)
	}
	return nil
}

// Close signals end-of-stream by closing stdin, waits briefly for the
// process to drain, then kills it.
func (s *FFplaySink) Close() {
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()
		select {
		case <-s.done:
		case <-time.After(s.closeTimeout):
			log.Warn().Str("module", "playback").Msg("sink did not exit, killing")
			_ = s.cmd.Process.Kill()
			<-s.done
		}
	})
}

// Factory adapts NewFFplaySink to the relay's core.SinkFactory seam.
func Factory(bin string, closeTimeout time.Duration) core.SinkFactory {
	return func() (core.PlaybackSink, error) {
		return NewFFplaySink(bin, closeTimeout)
	}
}
