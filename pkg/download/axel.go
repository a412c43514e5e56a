package download

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/VividCortex/ewma"
	"golang.org/x/time/rate"

	"github.com/simulot/aspiradl/pkg/models"
)

type logger interface{ Printf(string, ...interface{}) }

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

// ErrUnavailable is returned when the axel binary can't be found
var ErrUnavailable = errors.New("axel is not available")

const (
	DefaultBinary           = "axel"
	DefaultStallTimeout     = 60 * time.Second
	DefaultProgressInterval = 500 * time.Millisecond
)

// Axel runs the axel accelerator.
// Once configured, an Axel is safe for concurrent use: each invocation keeps
// its state in its own child process and destination path.
type Axel struct {
	l                logger     // to produce some logs
	p                Progresser // to follow progession
	binary           string
	userAgent        string
	speedLimit       int64 // bytes per second, 0 for no limit
	maxRedirect      int
	stallTimeout     time.Duration // drop the download when axel is silent for that long
	progressInterval time.Duration
	extraArgs        []string
}

func NewAxel() *Axel {
	return &Axel{
		l:                nullLogger{},
		binary:           DefaultBinary,
		stallTimeout:     DefaultStallTimeout,
		progressInterval: DefaultProgressInterval,
	}
}

func (a *Axel) WithLogger(l interface{ Printf(string, ...interface{}) }) *Axel {
	a.l = l
	return a
}

func (a *Axel) WithProgresser(p Progresser) *Axel {
	a.p = p
	return a
}

// WithBinary sets the name or the path of the axel executable
func (a *Axel) WithBinary(b string) *Axel {
	if b != "" {
		a.binary = b
	}
	return a
}

func (a *Axel) WithUserAgent(ua string) *Axel {
	a.userAgent = ua
	return a
}

// WithSpeedLimit limits the transfer to bytesPerSecond, 0 means no limit
func (a *Axel) WithSpeedLimit(bytesPerSecond int64) *Axel {
	a.speedLimit = bytesPerSecond
	return a
}

func (a *Axel) WithMaxRedirect(n int) *Axel {
	a.maxRedirect = n
	return a
}

// WithStallTimeout sets the silence delay after which axel is killed
func (a *Axel) WithStallTimeout(d time.Duration) *Axel {
	if d > 0 {
		a.stallTimeout = d
	}
	return a
}

// WithProgressInterval sets the minimum delay between two progress samples
func (a *Axel) WithProgressInterval(d time.Duration) *Axel {
	a.progressInterval = d
	return a
}

// WithExtraArgs adds arguments placed before the URL
func (a *Axel) WithExtraArgs(args ...string) *Axel {
	a.extraArgs = append(a.extraArgs, args...)
	return a
}

// Locate returns the full path of the axel executable
func (a *Axel) Locate() (string, error) {
	p, err := exec.LookPath(a.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	return p, nil
}

// Version queries axel's version
func (a *Axel) Version(ctx context.Context) (string, error) {
	bin, err := a.Locate()
	if err != nil {
		return "", err
	}
	out, err := exec.CommandContext(ctx, bin, "--version").CombinedOutput()
	if err != nil && len(out) == 0 {
		return "", err
	}
	first := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	fields := strings.Fields(first)
	for i, f := range fields {
		if strings.EqualFold(f, "axel") && i+1 < len(fields) {
			return strings.TrimPrefix(fields[i+1], "version"), nil
		}
		if f == "version" && i+1 < len(fields) {
			return fields[i+1], nil
		}
	}
	return first, nil
}

// Args builds the command line for the spec. The URL is always the last argument.
// Axel resumes by itself when the state file sits next to the destination,
// so resuming is decided by what is left on the disk, see Invoke.
func (a *Axel) Args(spec models.TransferSpec) []string {
	params := []string{
		"-a", // Alternate progress display, one line we can parse
		"-n", strconv.Itoa(models.ClampConnections(spec.Connections)),
		"-o", spec.Destination,
	}
	if a.userAgent != "" {
		params = append(params, "-U", a.userAgent)
	}
	if a.speedLimit > 0 {
		params = append(params, "-s", strconv.FormatInt(a.speedLimit, 10))
	}
	if a.maxRedirect > 0 {
		params = append(params, "-m", strconv.Itoa(a.maxRedirect))
	}
	params = append(params, a.extraArgs...)
	return append(params, spec.SourceURL)
}

// Invoke runs axel for the spec until it exits and maps the result to an outcome.
func (a *Axel) Invoke(ctx context.Context, spec models.TransferSpec) models.Outcome {
	if ctx.Err() != nil {
		return models.CancelledOutcome()
	}

	bin, err := a.Locate()
	if err != nil {
		a.l.Printf("[AXEL] %s", err)
		return models.Fatal(models.ReasonAcceleratorUnavailable)
	}

	if err := os.MkdirAll(filepath.Dir(spec.Destination), 0777); err != nil {
		a.l.Printf("[AXEL] Can't create destination folder: %s", err)
		if errors.Is(err, fs.ErrPermission) {
			return models.Fatal(models.ReasonPermissionDenied)
		}
		return models.Retryable(models.ReasonIOError)
	}

	resumed := a.prepareResume(spec)

	r := &run{
		a:       a,
		spec:    spec,
		resumed: resumed,
		out:     newTail(20),
		avg:     ewma.NewMovingAverage(),
		limiter: rate.NewLimiter(rate.Every(a.progressInterval), 1),
	}
	if a.p != nil {
		r.slot = newProgressSlot(a.p, spec.ID)
	}
	return r.exec(ctx, bin)
}

// prepareResume leaves the partial download in place when it can be resumed,
// otherwise it clears what could make axel resume or rename the output.
func (a *Axel) prepareResume(spec models.TransferSpec) bool {
	_, partial := fileSize(spec.Destination)
	_, state := fileSize(StatePath(spec.Destination))

	if spec.Resume && partial && state {
		a.l.Printf("[AXEL] Resuming %q", spec.Destination)
		return true
	}
	if spec.Resume && (partial || state) {
		a.l.Printf("[AXEL] Resume state of %q is incomplete, starting from scratch", spec.Destination)
	}
	if partial || state {
		if err := ClearResumeState(spec.Destination, true); err != nil {
			a.l.Printf("[AXEL] Can't clear previous download of %q: %s", spec.Destination, err)
		}
	}
	return false
}

// run holds the state of one invocation
type run struct {
	a       *Axel
	spec    models.TransferSpec
	resumed bool
	out     *tail
	avg     ewma.MovingAverage
	limiter *rate.Limiter
	slot    *progressSlot // nil without progresser
	total   int64
}

func (r *run) exec(ctx context.Context, bin string) models.Outcome {
	a := r.a
	args := a.Args(r.spec)
	a.l.Printf("[AXEL] Start download of %s: %s %v", r.spec.ID, bin, args)

	pr, pw := io.Pipe()
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		pw.Close()
		r.closeProgress()
		a.l.Printf("[AXEL] Can't start %s: %s", bin, err)
		return models.Fatal(models.ReasonAcceleratorUnavailable)
	}

	wd := newWatchDog(a.stallTimeout, func() {
		a.l.Printf("[AXEL] %s is stalled, killing axel", r.spec.ID)
		cmd.Process.Kill()
	})

	parsed := make(chan struct{})
	go func() {
		defer close(parsed)
		r.parseOutput(pr, wd)
	}()

	err := cmd.Wait()
	wd.Stop()
	pw.Close()
	<-parsed

	o := r.outcome(ctx, err, wd.Fired())
	r.closeProgress()
	return o
}

func (r *run) closeProgress() {
	if r.slot != nil {
		r.slot.Close()
	}
}

func (r *run) outcome(ctx context.Context, err error, stalled bool) models.Outcome {
	a := r.a
	dest := r.spec.Destination

	// A clean exit with a non-empty file wins over a late cancellation or watchdog
	if err == nil {
		if size, ok := fileSize(dest); ok && size > 0 {
			if cerr := ClearResumeState(dest, false); cerr != nil {
				a.l.Printf("[AXEL] Can't remove state file of %q: %s", dest, cerr)
			}
			r.final(size)
			a.l.Printf("[AXEL] %s downloaded, %d bytes", r.spec.ID, size)
			return models.Succeeded()
		}
	}

	if ctx.Err() != nil {
		a.l.Printf("[AXEL] %s cancelled", r.spec.ID)
		return models.CancelledOutcome()
	}
	if stalled {
		return models.Retryable(models.ReasonStalled)
	}

	if err == nil {
		a.l.Printf("[AXEL] axel exited normally, but %q is missing or empty", dest)
		if r.resumed {
			return r.resumeInvalid()
		}
		return models.Retryable(models.ReasonVerificationFailed)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		a.l.Printf("[AXEL] %s: %s\n%s", r.spec.ID, err, r.out)
		return models.Retryable(models.ReasonProcessError)
	}

	reason, fatal := classify(r.out.Lines())
	a.l.Printf("[AXEL] %s: axel exits with code %d (%s)\n%s", r.spec.ID, exitErr.ExitCode(), reason, r.out)
	if fatal {
		return models.Fatal(reason)
	}
	if r.resumed && (reason == models.ReasonPartialContentMismatch || reason == models.ReasonResumeInvalid) {
		return r.resumeInvalid()
	}
	if reason == "" {
		// A negative code means axel was terminated by a signal
		if code := exitErr.ExitCode(); code >= 0 {
			reason = models.ReasonExitStatus(code)
		} else {
			reason = models.ReasonProcessError
		}
	}
	return models.Retryable(reason)
}

// resumeInvalid drops the unusable partial download so the next attempt starts fresh
func (r *run) resumeInvalid() models.Outcome {
	if err := ClearResumeState(r.spec.Destination, true); err != nil {
		r.a.l.Printf("[AXEL] Can't clear partial download of %q: %s", r.spec.Destination, err)
	}
	return models.Retryable(models.ReasonResumeInvalid)
}

func (r *run) parseOutput(rd io.Reader, wd *watchdog) {
	sc := bufio.NewScanner(rd)
	sc.Split(scanLines)
	for sc.Scan() {
		wd.Kick()
		l := sc.Text()
		if len(strings.TrimSpace(l)) == 0 {
			continue
		}
		if p, ok := parseProgress(l); ok {
			r.progress(p)
			continue
		}
		if n, ok := parseFileSize(l); ok {
			r.total = n
		}
		r.out.Add(l)
	}
	// Drain to let axel finish writing if the scanner gave up on a too long line
	io.Copy(io.Discard, rd)
}

func (r *run) progress(p progressLine) {
	if r.slot == nil {
		return
	}
	if p.rate >= 0 {
		r.avg.Add(p.rate)
	}
	total := r.total
	if total <= 0 {
		total = r.spec.ExpectedBytes
	}
	if total < 0 {
		total = 0
	}
	sample := models.ProgressionPayload{
		Total:   total,
		Percent: p.percent,
		Rate:    r.avg.Value(),
		ETA:     p.eta,
	}
	if total > 0 && p.percent >= 0 {
		sample.Current = int64(float64(total) * p.percent / 100)
	}
	if sample.ETA == 0 && sample.Rate > 0 && total > 0 {
		sample.ETA = time.Duration(float64(total-sample.Current) / sample.Rate * float64(time.Second))
	}
	if p.percent >= 100 || r.limiter.Allow() {
		r.slot.Put(sample)
	}
}

// final sends the last sample with the actual size
func (r *run) final(size int64) {
	if r.slot == nil {
		return
	}
	r.slot.Put(models.ProgressionPayload{
		Current: size,
		Total:   size,
		Percent: 100,
		Rate:    r.avg.Value(),
	})
}
