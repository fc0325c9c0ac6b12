package ids

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"grimm.is/alertwall/internal/logging"
	"grimm.is/alertwall/internal/metrics"
)

var (
	// ErrLogNotFound means the alert log does not exist.
	ErrLogNotFound = errors.New("alert log not found")
	// ErrLogPermission means the alert log exists but cannot be read.
	ErrLogPermission = errors.New("alert log not readable")
)

// DefaultPollInterval bounds wake-up latency when no file event arrives.
const DefaultPollInterval = 250 * time.Millisecond

// TailerOptions configures OpenTailer.
type TailerOptions struct {
	PollInterval time.Duration
	// FromStart reads existing content instead of seeking to the end.
	FromStart bool
	Logger    *logging.Logger
}

// Tailer yields lines appended to a file, following rotation and truncation.
// It is not safe for concurrent use.
type Tailer struct {
	path    string
	poll    time.Duration
	logger  *logging.Logger
	metrics *metrics.Registry

	file    *os.File
	info    os.FileInfo
	reader  *bufio.Reader
	offset  int64 // bytes consumed from file
	partial bytes.Buffer
	pending []string // complete lines drained from a rotated-away file

	watcher   *fsnotify.Watcher
	wake      chan struct{}
	closeOnce sync.Once
}

// OpenTailer opens path and positions at its end. A missing or unreadable
// file is reported as ErrLogNotFound or ErrLogPermission.
func OpenTailer(path string, opts TailerOptions) (*Tailer, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	t := &Tailer{
		path:    filepath.Clean(path),
		poll:    opts.PollInterval,
		logger:  opts.Logger.WithComponent("tailer"),
		metrics: metrics.Get(),
		wake:    make(chan struct{}, 1),
	}

	if err := t.open(); err != nil {
		return nil, err
	}
	if !opts.FromStart {
		off, err := t.file.Seek(0, io.SeekEnd)
		if err != nil {
			t.file.Close()
			return nil, fmt.Errorf("seek %s: %w", t.path, err)
		}
		t.offset = off
		t.reader.Reset(t.file)
	}

	t.startWatcher()
	return t, nil
}

func (t *Tailer) open() error {
	f, err := os.Open(t.path)
	if err != nil {
		return classifyOpenError(t.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", t.path, err)
	}
	if info.IsDir() {
		f.Close()
		return fmt.Errorf("%s is a directory", t.path)
	}

	t.file = f
	t.info = info
	t.offset = 0
	if t.reader == nil {
		t.reader = bufio.NewReaderSize(f, 64*1024)
	} else {
		t.reader.Reset(f)
	}
	return nil
}

func classifyOpenError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s: %w", ErrLogNotFound, path, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s: %w", ErrLogPermission, path, err)
	default:
		return fmt.Errorf("open %s: %w", path, err)
	}
}

// startWatcher watches the parent directory so creates and renames of the
// file are seen. Without inotify the tailer falls back to polling.
func (t *Tailer) startWatcher() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Warn("file watcher unavailable, polling only", "error", err)
		return
	}
	if err := w.Add(filepath.Dir(t.path)); err != nil {
		w.Close()
		t.logger.Warn("cannot watch log directory, polling only", "dir", filepath.Dir(t.path), "error", err)
		return
	}
	t.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != t.path {
					continue
				}
				select {
				case t.wake <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				t.logger.Debug("file watcher error", "error", err)
			}
		}
	}()
}

// Next blocks until a complete line is available and returns it without
// its line terminator. Errors other than ctx cancellation are fatal read
// errors.
func (t *Tailer) Next(ctx context.Context) (string, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if len(t.pending) > 0 {
			line := t.pending[0]
			t.pending = t.pending[1:]
			return t.emit(line), nil
		}

		chunk, err := t.reader.ReadString('\n')
		t.offset += int64(len(chunk))
		if err == nil {
			t.partial.WriteString(chunk)
			line := t.partial.String()
			t.partial.Reset()
			return t.emit(line), nil
		}
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read %s: %w", t.path, err)
		}
		t.partial.WriteString(chunk)

		switched, err := t.checkRotation()
		if err != nil {
			return "", err
		}
		if switched {
			continue
		}

		if timer == nil {
			timer = time.NewTimer(t.poll)
		} else {
			timer.Reset(t.poll)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (t *Tailer) emit(line string) string {
	t.metrics.TailerLines.Inc()
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// checkRotation compares the open handle with what is now at the path.
// It reports true when the tailer switched to new content.
func (t *Tailer) checkRotation() (bool, error) {
	cur, err := os.Stat(t.path)
	if err != nil {
		// Mid-rotation the path may briefly not exist; keep waiting.
		return false, nil
	}

	if !os.SameFile(t.info, cur) {
		t.drainOld()
		old := t.file
		if err := t.open(); err != nil {
			if errors.Is(err, ErrLogNotFound) {
				return false, nil
			}
			return false, err
		}
		old.Close()
		t.metrics.TailerRotations.Inc()
		t.logger.Info("log rotated, reopened", "path", t.path)
		return true, nil
	}

	if cur.Size() < t.offset {
		if _, err := t.file.Seek(0, io.SeekStart); err != nil {
			return false, fmt.Errorf("seek %s: %w", t.path, err)
		}
		t.reader.Reset(t.file)
		t.offset = 0
		t.dropPartial("truncated")
		t.metrics.TailerRotations.Inc()
		t.logger.Info("log truncated, reading from start", "path", t.path)
		return true, nil
	}
	return false, nil
}

// drainOld queues any complete lines written to the old file after the last
// read, so nothing appended before rotation is lost.
func (t *Tailer) drainOld() {
	rest, err := io.ReadAll(t.reader)
	if err != nil {
		t.logger.Warn("error draining rotated log", "error", err)
	}
	t.partial.Write(rest)

	data := t.partial.String()
	t.partial.Reset()
	for {
		i := strings.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		t.pending = append(t.pending, data[:i+1])
		data = data[i+1:]
	}
	if data != "" {
		t.partial.WriteString(data)
		t.dropPartial("rotated")
	}
}

func (t *Tailer) dropPartial(why string) {
	if t.partial.Len() == 0 {
		return
	}
	t.logger.Warn("discarding incomplete line", "reason", why, "bytes", t.partial.Len())
	t.partial.Reset()
}

// Path returns the tailed path.
func (t *Tailer) Path() string {
	return t.path
}

// Close releases the file and the watcher.
func (t *Tailer) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.watcher != nil {
			t.watcher.Close()
		}
		if t.file != nil {
			err = t.file.Close()
		}
	})
	return err
}
