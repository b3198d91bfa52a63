package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"kuner/internal/models"
)

var errDownloadInProgress = errors.New("model download already in progress")

type downloadState string

const (
	downloadIdle    downloadState = "idle"
	downloadRunning downloadState = "downloading"
	downloadDone    downloadState = "done"
	downloadFailed  downloadState = "error"
)

type progressEvent struct {
	State    downloadState   `json:"state"`
	Progress models.Progress `json:"progress"`
	Error    string          `json:"error,omitempty"`
}

// downloadHub runs at most one model install at a time and fans progress
// out to websocket subscribers. Progress frames are throttled so a fast
// link does not flood slow clients.
type downloadHub struct {
	downloader *models.Downloader

	mu       sync.Mutex
	state    downloadState
	last     progressEvent
	lastSent time.Time
	subs     map[chan progressEvent]struct{}
	onDone   func()
}

func newDownloadHub(onDone func()) *downloadHub {
	return &downloadHub{
		downloader: models.NewDownloader(),
		state:      downloadIdle,
		subs:       make(map[chan progressEvent]struct{}),
		onDone:     onDone,
	}
}

func (h *downloadHub) snapshot() progressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev := h.last
	ev.State = h.state
	return ev
}

// Start kicks off an install in the background. Returns
// errDownloadInProgress if one is already running.
func (h *downloadHub) Start(spec models.ModelSpec, modelsRoot string) error {
	h.mu.Lock()
	if h.state == downloadRunning {
		h.mu.Unlock()
		return errDownloadInProgress
	}
	h.state = downloadRunning
	h.last = progressEvent{State: downloadRunning}
	h.mu.Unlock()

	go func() {
		err := h.downloader.DownloadAndInstall(context.Background(), spec, modelsRoot, h.onProgress)
		h.mu.Lock()
		if err != nil {
			h.state = downloadFailed
			h.last = progressEvent{State: downloadFailed, Progress: h.last.Progress, Error: err.Error()}
		} else {
			h.state = downloadDone
			h.last = progressEvent{State: downloadDone, Progress: h.last.Progress}
		}
		final := h.last
		h.broadcastLocked(final)
		h.mu.Unlock()
		if err == nil && h.onDone != nil {
			h.onDone()
		}
	}()
	return nil
}

func (h *downloadHub) onProgress(p models.Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = progressEvent{State: downloadRunning, Progress: p}
	if time.Since(h.lastSent) < 200*time.Millisecond {
		return
	}
	h.lastSent = time.Now()
	h.broadcastLocked(h.last)
}

func (h *downloadHub) broadcastLocked(ev progressEvent) {
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of progress events plus an unsubscribe func.
func (h *downloadHub) Subscribe() (<-chan progressEvent, func()) {
	ch := make(chan progressEvent, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}
