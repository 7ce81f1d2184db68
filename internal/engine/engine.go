package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jilongsong/voice-sdk/internal/audio"
	"github.com/jilongsong/voice-sdk/internal/config"
	"github.com/jilongsong/voice-sdk/internal/loudness"
	"github.com/jilongsong/voice-sdk/internal/match"
	"github.com/jilongsong/voice-sdk/internal/metrics"
	"github.com/jilongsong/voice-sdk/internal/session"
	"github.com/jilongsong/voice-sdk/internal/transport"
)

// Snapshot aggregates component state for the monitoring API.
type Snapshot struct {
	Running  bool              `json:"running"`
	Session  session.Info      `json:"session"`
	Matcher  match.Stats       `json:"matcher"`
	Framer   audio.FramerStats `json:"framer"`
	Pacer    audio.PacerStats  `json:"pacer"`
	Loudness loudness.Stats    `json:"loudness"`
}

// Engine wires the wake matcher, session machine, audio pipeline, and
// recognition transport together. One engine owns one capture resource;
// a fresh transport is dialed for every transcription session.
type Engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	clk     clock.Clock
	metrics *metrics.Metrics

	matcher   *match.Matcher
	autoReset *match.AutoResetScheduler
	session   *session.Machine
	framer    *audio.Framer
	pacer     *audio.Pacer
	meter     *loudness.Meter

	capture      AudioCapture
	recognizer   Recognizer
	newTransport TransportFactory

	mu           sync.Mutex
	running      bool
	ctx          context.Context
	transport    Transport
	sessionStart time.Time
	healthTimer  *clock.Timer
	healthGen    uint64

	onWake     func(match.WakeEvent)
	onResult   func(session.Result)
	onStatus   func(session.Status)
	onAutoStop func(session.StopReason)
	onError    func(error)
}

// New builds an engine from configuration and collaborators. Metrics may
// be nil; everything else is required.
func New(cfg *config.Config, capture AudioCapture, recognizer Recognizer, factory TransportFactory, m *metrics.Metrics, logger *slog.Logger, clk clock.Clock) (*Engine, error) {
	if cfg == nil {
		return nil, newError(KindConfig, "engine", fmt.Errorf("config is required"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, newError(KindConfig, "engine", err)
	}
	if capture == nil || recognizer == nil || factory == nil {
		return nil, newError(KindConfig, "engine", fmt.Errorf("capture, recognizer, and transport factory are required"))
	}
	if logger == nil {
		return nil, newError(KindConfig, "engine", fmt.Errorf("logger is required"))
	}
	if clk == nil {
		clk = clock.New()
	}

	e := &Engine{
		cfg:          cfg,
		logger:       logger,
		clk:          clk,
		metrics:      m,
		capture:      capture,
		recognizer:   recognizer,
		newTransport: factory,
	}

	matcher, err := match.NewMatcher(match.Config{
		FinalThreshold:          cfg.Wake.FinalThreshold,
		PartialThreshold:        cfg.Wake.PartialThreshold,
		NearMissSlack:           cfg.Wake.NearMissSlack,
		RequiredConsecutiveHits: cfg.Wake.ConsecutiveHits,
		RequiredNearMissHits:    cfg.Wake.NearMissHits,
		RefractoryWindow:        cfg.Wake.GetRefractory(),
		PartialBufferLimit:      cfg.Wake.BufferLimitRunes,
		LoudnessRelax:           cfg.Wake.LoudnessRelax,
		LoudnessWindow:          cfg.Wake.GetLoudnessWindow(),
	}, logger, clk)
	if err != nil {
		return nil, newError(KindConfig, "engine", err)
	}
	if err := matcher.SetPhrases(cfg.Wake.Phrases); err != nil {
		return nil, newError(KindConfig, "engine", err)
	}
	e.matcher = matcher
	matcher.OnWake(e.handleWake)

	autoReset, err := match.NewAutoResetScheduler(match.AutoResetConfig{
		Enabled:    cfg.AutoReset.Enabled,
		ResetDelay: cfg.AutoReset.GetResetDelay(),
	}, e.resetMatcher, logger, clk)
	if err != nil {
		return nil, newError(KindConfig, "engine", err)
	}
	e.autoReset = autoReset

	sess, err := session.NewMachine(session.AutoStopConfig{
		Enabled:         cfg.AutoStop.Enabled,
		SilenceTimeout:  cfg.AutoStop.GetSilenceTimeout(),
		NoSpeechTimeout: cfg.AutoStop.GetNoSpeechTimeout(),
		MaxDuration:     cfg.AutoStop.GetMaxDuration(),
	}, logger, clk)
	if err != nil {
		return nil, newError(KindConfig, "engine", err)
	}
	e.session = sess
	sess.OnStatusChange(e.handleSessionStatus)
	sess.OnAutoStop(e.handleAutoStop)
	sess.OnResult(e.handleSessionResult)

	framer, err := audio.NewFramer(audio.FramerConfig{
		FrameSamples:   cfg.Audio.FrameSamples,
		BytesPerSample: cfg.Audio.BitDepth / 8,
	})
	if err != nil {
		return nil, newError(KindConfig, "engine", err)
	}
	e.framer = framer

	pacer, err := audio.NewPacer(audio.PacerConfig{
		Interval:    cfg.Audio.GetPaceInterval(),
		MaxQueue:    cfg.Audio.MaxQueue,
		EndOfStream: cfg.Audio.EndOfStream,
	}, e.sendFrame, e.sendMarker, logger, clk)
	if err != nil {
		return nil, newError(KindConfig, "engine", err)
	}
	e.pacer = pacer

	meter, err := loudness.NewMeter(loudness.Config{
		Threshold: cfg.Loudness.Threshold,
		Smoothing: cfg.Loudness.Smoothing,
	})
	if err != nil {
		return nil, newError(KindConfig, "engine", err)
	}
	e.meter = meter

	return e, nil
}

// OnWake registers the wake event callback.
func (e *Engine) OnWake(fn func(match.WakeEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onWake = fn
}

// OnResult registers the session transcript callback.
func (e *Engine) OnResult(fn func(session.Result)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onResult = fn
}

// OnStatusChange registers the session status callback.
func (e *Engine) OnStatusChange(fn func(session.Status)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStatus = fn
}

// OnAutoStop registers the auto-stop reason callback.
func (e *Engine) OnAutoStop(fn func(session.StopReason)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAutoStop = fn
}

// OnError registers the classified error callback.
func (e *Engine) OnError(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onError = fn
}

// Start acquires the capture resource and begins always-on wake
// listening. Resource failures surface synchronously and leave the
// engine idle for an explicit retry.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return newError(KindConfig, "start", fmt.Errorf("engine already running"))
	}
	e.running = true
	e.ctx = ctx
	e.mu.Unlock()

	e.capture.OnChunk(e.handleChunk)
	e.recognizer.OnText(e.handleText)

	if err := e.capture.Start(ctx); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return newError(KindResource, "start", err)
	}
	if err := e.recognizer.Start(ctx); err != nil {
		e.capture.Stop()
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return newError(KindResource, "start", err)
	}

	e.mu.Lock()
	e.armHealthLocked()
	e.mu.Unlock()

	e.logger.Info("Engine started",
		slog.Int("phrases", len(e.cfg.Wake.Phrases)),
		slog.Bool("auto_reset", e.cfg.AutoReset.Enabled),
		slog.Bool("auto_stop", e.cfg.AutoStop.Enabled),
	)
	return nil
}

// Stop ends any live session and releases the capture resource. Safe to
// call when already stopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.healthGen++
	if e.healthTimer != nil {
		e.healthTimer.Stop()
		e.healthTimer = nil
	}
	e.mu.Unlock()

	e.StopSession()
	e.autoReset.Cancel()
	e.recognizer.Stop()
	e.capture.Stop()
	e.logger.Info("Engine stopped")
}

// SetWakeWord replaces the phrase set with a single phrase.
func (e *Engine) SetWakeWord(phrase string) error {
	return e.matcher.SetWakeWord(phrase)
}

// SetWakeWords replaces the configured phrase set.
func (e *Engine) SetWakeWords(phrases []string) error {
	return e.matcher.SetPhrases(phrases)
}

// ResetMatcher clears the trigger latch and all rolling match state.
func (e *Engine) ResetMatcher() {
	e.autoReset.Cancel()
	e.resetMatcher()
}

// UpdateAutoStop applies a partial auto-stop reconfiguration to the
// session machine.
func (e *Engine) UpdateAutoStop(update session.AutoStopUpdate) error {
	return e.session.UpdateAutoStop(update)
}

// UpdateAutoReset reconfigures the matcher auto-reset scheduler.
func (e *Engine) UpdateAutoReset(cfg match.AutoResetConfig) error {
	return e.autoReset.Update(cfg)
}

// StartSession explicitly opens a transcription session, dialing a fresh
// transport. Wake triggers call this internally.
func (e *Engine) StartSession() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return newError(KindConfig, "session", fmt.Errorf("engine not running"))
	}
	if e.transport != nil {
		e.mu.Unlock()
		return newError(KindConfig, "session", fmt.Errorf("session already live"))
	}
	ctx := e.ctx
	e.mu.Unlock()

	if err := e.session.Start(); err != nil {
		return newError(KindConfig, "session", err)
	}

	t, err := e.newTransport()
	if err == nil {
		t.OnMessage(e.handleTranscript)
		t.OnError(e.handleTransportError)
		t.OnClose(e.handleTransportClose)
		err = t.Start(ctx)
	}
	if err != nil {
		e.session.Stop()
		werr := newError(KindTransport, "session", err)
		e.surfaceError(werr)
		return werr
	}

	e.mu.Lock()
	e.transport = t
	e.sessionStart = e.clk.Now()
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordSessionStarted()
		e.metrics.RecordTransportConnect()
	}
	e.session.SetActive()
	return nil
}

// StopSession explicitly ends the live session. A no-op when idle.
func (e *Engine) StopSession() {
	e.session.Stop()
}

// Session returns a snapshot of the session machine.
func (e *Engine) Session() session.Info {
	return e.session.Info()
}

// Snapshot returns aggregated component state for monitoring.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()

	return Snapshot{
		Running:  running,
		Session:  e.session.Info(),
		Matcher:  e.matcher.Stats(),
		Framer:   e.framer.Stats(),
		Pacer:    e.pacer.Stats(),
		Loudness: e.meter.Stats(),
	}
}

// NotifyDeviceChange triggers an immediate health check, outside the
// periodic schedule.
func (e *Engine) NotifyDeviceChange() {
	e.ensureResourcesHealthy()
}

// ensureResourcesHealthy reattaches the capture pipeline if it dropped.
// Safe to call at any time; healthy resources make it a no-op.
func (e *Engine) ensureResourcesHealthy() {
	e.mu.Lock()
	running := e.running
	ctx := e.ctx
	e.mu.Unlock()

	if !running || e.capture.Healthy() {
		return
	}

	e.logger.Warn("Capture resource unhealthy, reattaching")
	e.StopSession()
	e.capture.Stop()
	if err := e.capture.Start(ctx); err != nil {
		e.surfaceError(newError(KindResource, "health", err))
		return
	}
	e.logger.Info("Capture resource reattached")
}

// armHealthLocked schedules the next periodic health check.
func (e *Engine) armHealthLocked() {
	gen := e.healthGen
	e.healthTimer = e.clk.AfterFunc(e.cfg.Health.GetCheckInterval(), func() {
		e.healthTick(gen)
	})
}

func (e *Engine) healthTick(gen uint64) {
	e.mu.Lock()
	if gen != e.healthGen || !e.running {
		e.mu.Unlock()
		return
	}
	e.armHealthLocked()
	e.mu.Unlock()

	e.ensureResourcesHealthy()
}

// handleChunk is the capture callback: every chunk feeds the loudness
// meter, and while a session is live it is framed and paced out.
func (e *Engine) handleChunk(pcm []byte) {
	samples, err := audio.DecodeSamples(pcm)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordParseError()
		}
		e.logger.Warn("Dropping malformed capture chunk",
			slog.String("error", err.Error()),
		)
		return
	}

	if res, err := e.meter.Process(samples, e.clk.Now()); err == nil {
		e.matcher.ObserveLoudness(res.Speech, res.Timestamp)
		if e.metrics != nil {
			e.metrics.RecordLoudnessWindow(res.Speech)
		}
	}

	if !e.sessionLive() {
		return
	}
	for _, frame := range e.framer.Write(pcm) {
		if e.pacer.Enqueue(frame) && e.metrics != nil {
			e.metrics.RecordFrameDropped()
		}
	}
	if e.metrics != nil {
		e.metrics.SetPacerQueueSize(e.pacer.QueueLength())
	}
}

// handleText is the recognizer callback feeding the wake matcher.
func (e *Engine) handleText(ev match.TextEvent) {
	if e.metrics != nil {
		e.metrics.RecordTextEvent(ev.Final)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.clk.Now()
	}
	e.matcher.HandleText(ev)
}

func (e *Engine) handleWake(ev match.WakeEvent) {
	if e.metrics != nil {
		e.metrics.RecordWakeTrigger(ev.Phrase, ev.Score)
	}
	e.autoReset.OnTrigger()

	e.mu.Lock()
	onWake := e.onWake
	e.mu.Unlock()
	if onWake != nil {
		onWake(ev)
	}

	if err := e.StartSession(); err != nil {
		e.logger.Error("Failed to start session on wake",
			slog.String("phrase", ev.Phrase),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) handleTranscript(msg transport.TranscriptMessage) {
	if e.metrics != nil {
		e.metrics.RecordTranscriptEvent(msg.Final)
	}
	e.session.HandleTranscript(msg.Text, msg.Final)
}

func (e *Engine) handleSessionResult(r session.Result) {
	e.mu.Lock()
	onResult := e.onResult
	e.mu.Unlock()
	if onResult != nil {
		onResult(r)
	}
}

func (e *Engine) handleSessionStatus(s session.Status) {
	switch s {
	case session.StatusStopping:
		e.drainAudio()
	case session.StatusIdle:
		e.releaseSession()
	}

	e.mu.Lock()
	onStatus := e.onStatus
	e.mu.Unlock()
	if onStatus != nil {
		onStatus(s)
	}
}

func (e *Engine) handleAutoStop(reason session.StopReason) {
	e.mu.Lock()
	start := e.sessionStart
	onAutoStop := e.onAutoStop
	e.mu.Unlock()

	if e.metrics != nil {
		duration := float64(0)
		if !start.IsZero() {
			duration = e.clk.Now().Sub(start).Seconds()
		}
		e.metrics.RecordSessionStopped(string(reason), duration)
	}
	if onAutoStop != nil {
		onAutoStop(reason)
	}
}

// drainAudio flushes the partial frame remainder and signals
// end-of-utterance before the transport is torn down.
func (e *Engine) drainAudio() {
	e.mu.Lock()
	t := e.transport
	e.mu.Unlock()
	if t == nil {
		return
	}

	last := e.framer.Flush()
	if len(last.Data) > 0 {
		if err := t.SendFrame(last.Data); err != nil {
			e.logger.Debug("Drain frame send failed",
				slog.String("error", err.Error()),
			)
		}
	}
	if err := t.SendMarker(e.cfg.Audio.EndOfStream); err != nil {
		e.logger.Debug("Drain marker send failed",
			slog.String("error", err.Error()),
		)
	}
	if e.metrics != nil {
		e.metrics.RecordBytesSent(len(last.Data))
	}
}

// releaseSession clears pacing state and closes the transport once the
// session reaches idle. No stale frames survive into the next session,
// and the matcher reset here cancels any auto-reset still pending from
// the wake that opened the session.
func (e *Engine) releaseSession() {
	e.mu.Lock()
	t := e.transport
	e.transport = nil
	e.sessionStart = time.Time{}
	e.mu.Unlock()

	e.pacer.Stop()
	e.framer.Reset()
	if e.metrics != nil {
		e.metrics.SetPacerQueueSize(0)
	}
	if t != nil {
		t.Close()
	}
	e.autoReset.Cancel()
	e.resetMatcher()
}

func (e *Engine) handleTransportError(err error) {
	if e.metrics != nil {
		e.metrics.RecordTransportError()
	}
	e.StopSession()
	e.surfaceError(newError(KindTransport, "transport", err))
}

func (e *Engine) handleTransportClose() {
	if e.sessionLive() {
		e.StopSession()
	}
}

// sendFrame is the pacer release callback.
func (e *Engine) sendFrame(frame audio.Frame) {
	e.mu.Lock()
	t := e.transport
	e.mu.Unlock()
	if t == nil {
		return
	}

	if len(frame.Data) > 0 {
		if err := t.SendFrame(frame.Data); err != nil {
			e.handleTransportError(err)
			return
		}
		if e.metrics != nil {
			e.metrics.RecordBytesSent(len(frame.Data))
			e.metrics.RecordFramePaced()
		}
	}
}

// sendMarker is the pacer end-of-stream callback.
func (e *Engine) sendMarker(marker string) {
	e.mu.Lock()
	t := e.transport
	e.mu.Unlock()
	if t == nil {
		return
	}
	t.SendMarker(marker)
}

func (e *Engine) resetMatcher() {
	e.matcher.Reset()
	if e.metrics != nil {
		e.metrics.RecordMatcherReset()
	}
}

func (e *Engine) sessionLive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport != nil
}

func (e *Engine) surfaceError(err error) {
	e.mu.Lock()
	onError := e.onError
	e.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}
