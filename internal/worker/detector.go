// Package worker runs an external face detector process and speaks a
// length-prefixed msgpack protocol with it over stdin/stdout.
package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-wellness/internal/types"
)

// ErrNotRunning is returned by DetectFace when the process is down and may
// not be restarted yet.
var ErrNotRunning = errors.New("worker: detector process not running")

// Config describes the detector process.
type Config struct {
	WorkerID string
	Command  string
	Args     []string
	// Timeout bounds one request/response round trip.
	Timeout time.Duration
	// MinScore drops faces reported below this confidence.
	MinScore float64
	// RestartBackoff is the minimum delay between respawn attempts.
	RestartBackoff time.Duration
}

// Stats counts detector traffic.
type Stats struct {
	Requests     uint64    `json:"requests"`
	Responses    uint64    `json:"responses"`
	Failures     uint64    `json:"failures"`
	Restarts     uint64    `json:"restarts"`
	AvgLatencyMS float64   `json:"avg_latency_ms"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	Running      bool      `json:"running"`
}

// ProcessDetector implements the posture detector capability with an
// external process. One request is in flight at a time.
type ProcessDetector struct {
	cfg Config

	// reqMu serializes DetectFace calls and process restarts.
	reqMu     sync.Mutex
	nextID    uint64
	lastSpawn time.Time

	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	// responses is replaced on every spawn; the reader goroutine owns
	// closing it.
	responses chan Response
	wg        sync.WaitGroup
	isActive  atomic.Bool

	requests       uint64
	responsesCount uint64
	failures       uint64
	restarts       uint64
	totalLatencyUS uint64
	lastSeenAt     atomic.Value // time.Time
}

// NewProcessDetector validates cfg. The process is spawned by Start.
func NewProcessDetector(cfg Config) (*ProcessDetector, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("worker: command is required")
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = "face-detector"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = 10 * time.Second
	}

	slog.Info("worker: face detector created",
		"worker_id", cfg.WorkerID,
		"command", cfg.Command,
		"args", cfg.Args,
		"timeout", cfg.Timeout,
	)
	return &ProcessDetector{cfg: cfg}, nil
}

// Start spawns the detector process.
func (d *ProcessDetector) Start(ctx context.Context) error {
	d.reqMu.Lock()
	defer d.reqMu.Unlock()

	if d.isActive.Load() {
		return fmt.Errorf("worker: already started")
	}
	d.parent = ctx
	if err := d.spawnLocked(); err != nil {
		return fmt.Errorf("failed to spawn detector process: %w", err)
	}
	return nil
}

func (d *ProcessDetector) spawnLocked() error {
	d.lastSpawn = time.Now()
	d.ctx, d.cancel = context.WithCancel(d.parent)

	cmd := exec.CommandContext(d.ctx, d.cfg.Command, d.cfg.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		d.cancel()
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		d.cancel()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		d.cancel()
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		d.cancel()
		return fmt.Errorf("failed to start detector process: %w", err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.responses = make(chan Response, 1)
	d.isActive.Store(true)
	d.lastSeenAt.Store(time.Now())

	d.wg.Add(3)
	go d.readResponses(stdout, d.responses)
	go d.logStderr(stderr)
	go d.waitProcess(d.ctx, cmd)

	slog.Info("worker: detector process spawned",
		"worker_id", d.cfg.WorkerID,
		"pid", cmd.Process.Pid,
	)
	return nil
}

// DetectFace sends frame to the process and waits for the matching answer.
// Any transport failure, timeout or process-reported error is returned so
// the caller can fall back.
func (d *ProcessDetector) DetectFace(ctx context.Context, frame types.Frame) (types.BoundingBox, bool, error) {
	d.reqMu.Lock()
	defer d.reqMu.Unlock()

	if !d.isActive.Load() {
		if err := d.restartLocked(); err != nil {
			atomic.AddUint64(&d.failures, 1)
			return types.BoundingBox{}, false, err
		}
	}

	d.nextID++
	req := Request{
		ID:        d.nextID,
		FrameData: frame.Data,
		Width:     frame.Width,
		Height:    frame.Height,
		Format:    "RGBA",
		TraceID:   frame.TraceID,
		Timestamp: frame.Timestamp.Format(time.RFC3339Nano),
	}

	start := time.Now()
	atomic.AddUint64(&d.requests, 1)

	timeout := time.NewTimer(d.cfg.Timeout)
	defer timeout.Stop()

	if err := d.send(req, timeout.C); err != nil {
		atomic.AddUint64(&d.failures, 1)
		return types.BoundingBox{}, false, err
	}

	for {
		select {
		case resp, ok := <-d.responses:
			if !ok {
				atomic.AddUint64(&d.failures, 1)
				return types.BoundingBox{}, false, fmt.Errorf("worker: detector process exited")
			}
			if resp.ID != req.ID {
				slog.Debug("worker: dropping stale response",
					"worker_id", d.cfg.WorkerID,
					"got_id", resp.ID,
					"want_id", req.ID,
				)
				continue
			}

			atomic.AddUint64(&d.responsesCount, 1)
			atomic.AddUint64(&d.totalLatencyUS, uint64(time.Since(start).Microseconds()))
			d.lastSeenAt.Store(time.Now())

			if resp.Error != "" {
				atomic.AddUint64(&d.failures, 1)
				return types.BoundingBox{}, false, fmt.Errorf("worker: detector error: %s", resp.Error)
			}
			box, found := bestFace(resp.Faces, d.cfg.MinScore)
			return box, found, nil

		case <-timeout.C:
			atomic.AddUint64(&d.failures, 1)
			return types.BoundingBox{}, false, fmt.Errorf("worker: no response within %s", d.cfg.Timeout)

		case <-ctx.Done():
			return types.BoundingBox{}, false, ctx.Err()
		}
	}
}

// send writes a request, giving up when the timer fires so a hung process
// cannot block the caller.
func (d *ProcessDetector) send(req Request, deadline <-chan time.Time) error {
	writeErr := make(chan error, 1)
	stdin := d.stdin
	go func() {
		writeErr <- writeMessage(stdin, req)
	}()

	select {
	case err := <-writeErr:
		if err != nil {
			return fmt.Errorf("failed to write to stdin: %w", err)
		}
		return nil
	case <-deadline:
		return fmt.Errorf("stdin write timeout (detector process may be hung)")
	case <-d.ctx.Done():
		return fmt.Errorf("worker context cancelled during write")
	}
}

func (d *ProcessDetector) restartLocked() error {
	if d.parent == nil {
		return ErrNotRunning
	}
	if d.parent.Err() != nil {
		return ErrNotRunning
	}
	if since := time.Since(d.lastSpawn); since < d.cfg.RestartBackoff {
		return fmt.Errorf("%w: restart in %s", ErrNotRunning, (d.cfg.RestartBackoff - since).Round(time.Second))
	}

	d.cancel()
	d.wg.Wait()

	atomic.AddUint64(&d.restarts, 1)
	slog.Warn("worker: restarting detector process",
		"worker_id", d.cfg.WorkerID,
		"restarts", atomic.LoadUint64(&d.restarts),
	)
	return d.spawnLocked()
}

func (d *ProcessDetector) readResponses(stdout io.Reader, out chan<- Response) {
	defer d.wg.Done()
	defer close(out)

	r := bufio.NewReader(stdout)
	for {
		var resp Response
		if err := readMessage(r, &resp); err != nil {
			if errors.Is(err, io.EOF) {
				slog.Debug("worker: detector stdout closed (EOF)", "worker_id", d.cfg.WorkerID)
			} else {
				slog.Error("worker: failed to read detector response",
					"worker_id", d.cfg.WorkerID,
					"error", err,
				)
			}
			return
		}

		select {
		case out <- resp:
		default:
			// Nobody is waiting: the request already timed out.
			slog.Warn("worker: dropping late response", "worker_id", d.cfg.WorkerID, "id", resp.ID)
		}
	}
}

// logStderr maps "[LEVEL]" tags in process output onto slog levels.
func (d *ProcessDetector) logStderr(stderr io.Reader) {
	defer d.wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case containsAny(line, "[ERROR]", "[CRITICAL]"):
			slog.Error("worker: detector error", "worker_id", d.cfg.WorkerID, "log", line)
		case containsAny(line, "[WARNING]", "[WARN]"):
			slog.Warn("worker: detector warning", "worker_id", d.cfg.WorkerID, "log", line)
		default:
			slog.Debug("worker: detector log", "worker_id", d.cfg.WorkerID, "log", line)
		}
	}
}

func (d *ProcessDetector) waitProcess(ctx context.Context, cmd *exec.Cmd) {
	defer d.wg.Done()

	err := cmd.Wait()
	d.isActive.Store(false)

	switch {
	case ctx.Err() != nil:
		slog.Debug("worker: detector process exited (shutdown)", "worker_id", d.cfg.WorkerID, "pid", cmd.Process.Pid)
	case err != nil:
		slog.Error("worker: detector process exited unexpectedly",
			"worker_id", d.cfg.WorkerID,
			"pid", cmd.Process.Pid,
			"error", err,
		)
	default:
		slog.Info("worker: detector process exited cleanly", "worker_id", d.cfg.WorkerID, "pid", cmd.Process.Pid)
	}
}

// Stats returns the current counters.
func (d *ProcessDetector) Stats() Stats {
	responses := atomic.LoadUint64(&d.responsesCount)
	var avg float64
	if responses > 0 {
		avg = float64(atomic.LoadUint64(&d.totalLatencyUS)) / float64(responses) / 1000
	}
	var lastSeen time.Time
	if v := d.lastSeenAt.Load(); v != nil {
		lastSeen = v.(time.Time)
	}
	return Stats{
		Requests:     atomic.LoadUint64(&d.requests),
		Responses:    responses,
		Failures:     atomic.LoadUint64(&d.failures),
		Restarts:     atomic.LoadUint64(&d.restarts),
		AvgLatencyMS: avg,
		LastSeenAt:   lastSeen,
		Running:      d.isActive.Load(),
	}
}

// Stop closes stdin, waits briefly for the process to exit and kills it
// otherwise.
func (d *ProcessDetector) Stop() error {
	d.reqMu.Lock()
	defer d.reqMu.Unlock()

	if d.cancel == nil {
		return nil
	}

	slog.Info("worker: stopping face detector", "worker_id", d.cfg.WorkerID)

	if d.stdin != nil {
		d.stdin.Close()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		slog.Warn("worker: stop timeout, force killing process", "worker_id", d.cfg.WorkerID)
		d.cancel()
		<-done
	}
	d.cancel()
	d.cancel = nil
	d.parent = nil
	d.isActive.Store(false)

	slog.Info("worker: face detector stopped",
		"worker_id", d.cfg.WorkerID,
		"requests", atomic.LoadUint64(&d.requests),
		"failures", atomic.LoadUint64(&d.failures),
	)
	return nil
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
