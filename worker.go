// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/flagkit/flagkit-go/internal/log"
)

// heartbeatMessage is the keepalive payload on the push channel. Any
// other text payload is an opaque "changed" notification.
const heartbeatMessage = "test message"

// PushMessageKind discriminates the frames a push channel can deliver.
type PushMessageKind int

const (
	// MessageText is a UTF-8 text frame, the only kind the worker
	// interprets.
	MessageText PushMessageKind = iota
	// MessageBinary is a binary frame, ignored.
	MessageBinary
	// MessageControl covers ping/pong and other control frames, ignored.
	MessageControl
)

// PushMessage is one frame read from the push channel.
type PushMessage struct {
	Kind PushMessageKind
	Data []byte
}

// PushChannel is an open notification channel to the server.
// ReadMessage blocks until a frame arrives; a server-initiated close is
// reported as an error wrapping ErrPushChannelClosed.
type PushChannel interface {
	ReadMessage() (PushMessage, error)
	Close() error
}

// ConfigurationID identifies one configuration on the server. All
// three parts are opaque strings supplied by the caller.
type ConfigurationID struct {
	GUID          string
	EnvironmentID string
	CollectionID  string
}

// ServerClient is the transport the core consumes: it fetches the full
// configuration document, opens the push channel, and accepts metering
// batches. Implementations wrap failures that cannot self-heal (URL or
// header construction) in UnrecoverableError; everything else is
// treated as recoverable by the worker.
type ServerClient interface {
	GetConfiguration(ctx context.Context, id ConfigurationID) ([]byte, error)
	OpenPushChannel(ctx context.Context, id ConfigurationID) (PushChannel, error)
	PushMetering(ctx context.Context, id ConfigurationID, payload []byte) error
}

// ModeState is the coarse operating state of the background worker.
type ModeState int

const (
	// StateOnline: the last fetched configuration is current.
	StateOnline ModeState = iota
	// StateOffline: the worker is running but the local snapshot may be
	// stale; the reason says why.
	StateOffline
	// StateDefunct: the worker terminated and will not recover.
	StateDefunct
)

// OfflineReason says why the worker is offline.
type OfflineReason int

const (
	// ReasonInitializing: no configuration has been fetched yet.
	ReasonInitializing OfflineReason = iota
	// ReasonFailedToGetNewConfiguration: the last fetch failed.
	ReasonFailedToGetNewConfiguration
	// ReasonConfigurationDataInvalid: the last fetched document did not
	// validate.
	ReasonConfigurationDataInvalid
	// ReasonWebsocketClosed: the push channel was closed by the server.
	ReasonWebsocketClosed
	// ReasonWebsocketError: the push channel failed.
	ReasonWebsocketError
)

// String returns a stable, log-friendly name for the reason.
func (r OfflineReason) String() string {
	switch r {
	case ReasonInitializing:
		return "Initializing"
	case ReasonFailedToGetNewConfiguration:
		return "FailedToGetNewConfiguration"
	case ReasonConfigurationDataInvalid:
		return "ConfigurationDataInvalid"
	case ReasonWebsocketClosed:
		return "WebsocketClosed"
	case ReasonWebsocketError:
		return "WebsocketError"
	}
	return "Unknown"
}

// CurrentMode is the tri-state operating mode of the worker. Reason is
// meaningful for StateOffline; Err for StateDefunct, where nil means a
// clean shutdown.
type CurrentMode struct {
	State  ModeState
	Reason OfflineReason
	Err    error
}

// worker keeps the local snapshot consistent with the server over the
// push channel. It owns the shared snapshot and mode; both are guarded
// by their own mutex and never held across I/O or evaluation.
type worker struct {
	client ServerClient
	id     ConfigurationID

	snapMu   sync.Mutex
	snapshot *Snapshot

	modeMu   sync.Mutex
	modeCond *sync.Cond
	mode     CurrentMode

	chanMu  sync.Mutex
	channel PushChannel

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newWorker(client ServerClient, id ConfigurationID) *worker {
	w := &worker{
		client: client,
		id:     id,
		mode:   CurrentMode{State: StateOffline, Reason: ReasonInitializing},
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	w.modeCond = sync.NewCond(&w.modeMu)
	return w
}

func (w *worker) start() {
	go w.run()
}

// Stop asks the worker to exit. The current push channel is closed to
// unblock the pending read; the worker observes the stop signal at its
// next read boundary. Stop does not wait for the worker goroutine.
func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.chanMu.Lock()
		if w.channel != nil {
			w.channel.Close()
		}
		w.chanMu.Unlock()
	})
}

func (w *worker) stopped() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// run is the outer loop: open the push channel, fetch, then consume
// notifications until the channel breaks. The channel is opened before
// the fetch so a change happening during the fetch queues on the
// channel instead of being lost.
func (w *worker) run() {
	defer close(w.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	for {
		if w.stopped() {
			w.setDefunct(nil)
			return
		}

		ch, err := w.client.OpenPushChannel(context.Background(), w.id)
		if err != nil {
			if !isRecoverable(err) {
				log.Error("worker", "flagkit: opening push channel: %v", err)
				w.setDefunct(err)
				return
			}
			w.setOffline(ReasonWebsocketError)
			select {
			case <-w.stop:
				w.setDefunct(nil)
				return
			case <-time.After(bo.NextBackOff()):
			}
			continue
		}
		bo.Reset()
		w.setChannel(ch)

		if err := w.refreshConfiguration(); err != nil {
			log.Error("worker", "flagkit: refreshing configuration: %v", err)
			ch.Close()
			w.setDefunct(err)
			return
		}

		if w.consumeChannel(ch) {
			w.setDefunct(nil)
			return
		}
	}
}

// consumeChannel runs the inner loop until the channel breaks. It
// returns true when the worker should terminate cleanly.
func (w *worker) consumeChannel(ch PushChannel) bool {
	defer ch.Close()
	for {
		if w.stopped() {
			return true
		}
		msg, err := ch.ReadMessage()
		if err != nil {
			if w.stopped() {
				return true
			}
			if errors.Is(err, ErrPushChannelClosed) {
				log.Debug("flagkit: push channel closed by server")
				w.setOffline(ReasonWebsocketClosed)
			} else {
				log.Debug("flagkit: push channel read error: %v", err)
				w.setOffline(ReasonWebsocketError)
			}
			return false
		}
		if err := w.dispatch(msg); err != nil {
			log.Error("worker", "flagkit: refreshing configuration: %v", err)
			w.setDefunct(err)
			return true
		}
	}
}

// dispatch interprets one frame. A heartbeat is a no-op while online
// and doubles as a recovery trigger while offline; any other text is a
// change notification. The returned error is always unrecoverable.
func (w *worker) dispatch(msg PushMessage) error {
	if msg.Kind != MessageText {
		return nil
	}
	if string(msg.Data) == heartbeatMessage && w.CurrentMode().State == StateOnline {
		return nil
	}
	return w.refreshConfiguration()
}

// refreshConfiguration fetches the full document and swaps in a new
// snapshot. Recoverable fetch errors and invalid documents demote the
// mode; only unrecoverable transport errors propagate.
func (w *worker) refreshConfiguration() error {
	raw, err := w.client.GetConfiguration(context.Background(), w.id)
	if err != nil {
		if !isRecoverable(err) {
			return err
		}
		log.Debug("flagkit: configuration fetch failed: %v", err)
		// Keep an earlier offline reason; only an online worker demotes.
		w.modeMu.Lock()
		if w.mode.State == StateOnline {
			w.mode = CurrentMode{State: StateOffline, Reason: ReasonFailedToGetNewConfiguration}
			w.modeCond.Broadcast()
		}
		w.modeMu.Unlock()
		return nil
	}

	snap, err := NewSnapshot(w.id.EnvironmentID, raw)
	if err != nil {
		log.Error("worker", "flagkit: fetched configuration is invalid: %v", err)
		w.setOffline(ReasonConfigurationDataInvalid)
		return nil
	}

	w.snapMu.Lock()
	w.snapshot = snap
	w.snapMu.Unlock()
	w.setOnline()
	log.Debug("flagkit: configuration refreshed: %d features, %d properties",
		len(snap.features), len(snap.properties))
	return nil
}

func (w *worker) setChannel(ch PushChannel) {
	w.chanMu.Lock()
	w.channel = ch
	w.chanMu.Unlock()
	// Close immediately when a stop raced with the open.
	if w.stopped() {
		ch.Close()
	}
}

func (w *worker) setOnline() {
	w.modeMu.Lock()
	w.mode = CurrentMode{State: StateOnline}
	w.modeCond.Broadcast()
	w.modeMu.Unlock()
}

func (w *worker) setOffline(reason OfflineReason) {
	w.modeMu.Lock()
	w.mode = CurrentMode{State: StateOffline, Reason: reason}
	w.modeCond.Broadcast()
	w.modeMu.Unlock()
}

func (w *worker) setDefunct(err error) {
	w.modeMu.Lock()
	w.mode = CurrentMode{State: StateDefunct, Err: err}
	w.modeCond.Broadcast()
	w.modeMu.Unlock()
}

// CurrentMode returns the worker's mode at this instant.
func (w *worker) CurrentMode() CurrentMode {
	w.modeMu.Lock()
	defer w.modeMu.Unlock()
	return w.mode
}

// currentSnapshot returns the last swapped-in snapshot, or nil before
// the first successful fetch. The returned snapshot is immutable.
func (w *worker) currentSnapshot() *Snapshot {
	w.snapMu.Lock()
	defer w.snapMu.Unlock()
	return w.snapshot
}

// waitUntilOnline blocks until the mode first becomes Online or
// Defunct, or the context is done.
func (w *worker) waitUntilOnline(ctx context.Context) error {
	watchdone := make(chan struct{})
	defer close(watchdone)
	go func() {
		select {
		case <-ctx.Done():
			w.modeMu.Lock()
			w.modeCond.Broadcast()
			w.modeMu.Unlock()
		case <-watchdone:
		}
	}()

	w.modeMu.Lock()
	defer w.modeMu.Unlock()
	for w.mode.State == StateOffline && ctx.Err() == nil {
		w.modeCond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.mode.State == StateDefunct {
		return &DefunctError{Err: w.mode.Err}
	}
	return nil
}
