package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ccastromar/veritas/internal/jobs"
	"github.com/ccastromar/veritas/internal/logx"
)

const wsWriteTimeout = 10 * time.Second

// StreamFrame is one message on the SSE and websocket streams.
type StreamFrame struct {
	Status        jobs.Status `json:"status"`
	Progress      int         `json:"progress"`
	StatusMessage string      `json:"statusMessage"`
	Event         string      `json:"event"`
	Detail        string      `json:"detail"`
	Timestamp     *time.Time  `json:"timestamp,omitempty"`
	ReportID      string      `json:"reportId,omitempty"`
}

// streamJob polls the job every PollInterval and emits each new event, then a
// final PIPELINE_DONE frame once the job is finished.
func (a *APIAgent) streamJob(ctx context.Context, id string, emit func(StreamFrame) error) error {
	t := time.NewTicker(a.opts.PollInterval)
	defer t.Stop()
	next := 0
	for {
		u, ok := a.jobs.Since(id, next)
		if !ok {
			return nil
		}
		for _, ev := range u.Events {
			ts := ev.Timestamp
			if err := emit(StreamFrame{
				Status:        u.Status,
				Progress:      u.Progress,
				StatusMessage: u.StatusMessage,
				Event:         ev.Event,
				Detail:        ev.Detail,
				Timestamp:     &ts,
			}); err != nil {
				return err
			}
		}
		next = u.Next
		if u.Status.Terminal() {
			detail := "Pipeline failed"
			if u.Status == jobs.StatusComplete {
				detail = "Report ready"
			}
			return emit(StreamFrame{
				Status:        u.Status,
				Progress:      u.Progress,
				StatusMessage: u.StatusMessage,
				Event:         "PIPELINE_DONE",
				Detail:        detail,
				ReportID:      u.ReportID,
			})
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (a *APIAgent) handleSSE(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := a.jobs.Get(id); !ok {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	err := a.streamJob(r.Context(), id, func(f StreamFrame) error {
		b, err := json.Marshal(f)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return err
		}
		return rc.Flush()
	})
	if err != nil && r.Context().Err() == nil {
		logx.L(id, "API", "sse stream ended: %v", err)
	}
}

func (a *APIAgent) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := a.jobs.Get(id); !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logx.L(id, "API", "websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The reader only watches for the client going away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	err = a.streamJob(ctx, id, func(f StreamFrame) error {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		return conn.WriteJSON(f)
	})
	if err != nil && ctx.Err() == nil {
		logx.L(id, "API", "websocket stream ended: %v", err)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(time.Second))
}
