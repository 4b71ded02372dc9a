// SPDX-License-Identifier: AGPL-3.0-or-later
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

const (
	TypeRunStart   = "prep.start"
	TypeRunFinish  = "prep.finish"
	TypeStepStart  = "step.start"
	TypeStepLog    = "step.log"
	TypeStepFinish = "step.finish"
)

type RunEvent struct {
	Sequence  int64                  `json:"sequence"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	RunID     string                 `json:"run_id"`
	Step      string                 `json:"step,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// eventSink turns the Sink methods into RunEvents handed to publish.
type eventSink struct {
	publish func(RunEvent)
}

func (s eventSink) EmitRunStart(runID, jobID string) {
	s.publish(RunEvent{
		Type:  TypeRunStart,
		RunID: runID,
		Data:  map[string]interface{}{"job_id": jobID},
	})
}

func (s eventSink) EmitRunFinish(runID, status string, err error) {
	data := map[string]interface{}{"status": status}
	if err != nil {
		data["error"] = err.Error()
	}
	s.publish(RunEvent{Type: TypeRunFinish, RunID: runID, Data: data})
}

func (s eventSink) EmitStepStart(runID, step string) {
	s.publish(RunEvent{Type: TypeStepStart, RunID: runID, Step: step})
}

func (s eventSink) EmitStepLog(runID, step, message string) {
	if message == "" {
		return
	}
	s.publish(RunEvent{Type: TypeStepLog, RunID: runID, Step: step, Message: message})
}

func (s eventSink) EmitStepFinish(runID, step string, data map[string]interface{}, err error) {
	out := make(map[string]interface{}, len(data)+2)
	for k, v := range data {
		out[k] = v
	}
	out["status"] = "completed"
	if err != nil {
		out["status"] = "failed"
		out["error"] = err.Error()
	}
	s.publish(RunEvent{Type: TypeStepFinish, RunID: runID, Step: step, Data: out})
}

// Emitter writes events to out as text lines or NDJSON.
type Emitter struct {
	eventSink
	mu     sync.Mutex
	seq    int64
	out    io.Writer
	json   bool
	redact func(string) string
}

func NewEmitter(out io.Writer, json bool) *Emitter {
	if out == nil {
		return nil
	}
	e := &Emitter{out: out, json: json}
	e.eventSink = eventSink{publish: e.emit}
	return e
}

// WithRedactor masks secret values in messages and string data.
func (e *Emitter) WithRedactor(fn func(string) string) *Emitter {
	if e != nil {
		e.redact = fn
	}
	return e
}

func (e *Emitter) nextSeq() int64 {
	e.seq++
	return e.seq
}

func (e *Emitter) emit(ev RunEvent) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ev.Sequence = e.nextSeq()
	ev.Timestamp = time.Now().UTC()
	if e.redact != nil {
		ev.Message = e.redact(ev.Message)
		for k, v := range ev.Data {
			if s, ok := v.(string); ok {
				ev.Data[k] = e.redact(s)
			}
		}
	}

	if e.json {
		payload, err := json.Marshal(ev)
		if err != nil {
			fmt.Fprintf(e.out, "{\"error\":%q}\n", err.Error())
			return
		}
		fmt.Fprintf(e.out, "%s\n", payload)
		return
	}

	WriteText(e.out, ev)
}

// WriteText renders ev as one human-readable line.
func WriteText(w io.Writer, ev RunEvent) {
	fmt.Fprintf(w, "[%d] %s", ev.Sequence, ev.Type)
	if ev.RunID != "" {
		fmt.Fprintf(w, " run=%s", ev.RunID)
	}
	if ev.Step != "" {
		fmt.Fprintf(w, " step=%s", ev.Step)
	}
	if ev.Message != "" {
		fmt.Fprintf(w, " msg=%s", ev.Message)
	}
	if len(ev.Data) > 0 {
		keys := make([]string, 0, len(ev.Data))
		for k := range ev.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(w, " data={")
		for i, k := range keys {
			if i > 0 {
				fmt.Fprintf(w, ", ")
			}
			fmt.Fprintf(w, "%s:%v", k, ev.Data[k])
		}
		fmt.Fprintf(w, "}")
	}
	fmt.Fprintln(w)
}
