// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func readEvents(t *testing.T, path string) []LifecycleEvent {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open event log: %v", err)
	}
	defer f.Close()

	var events []LifecycleEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev LifecycleEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("invalid JSON line %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

func TestEventLog_Sequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "events.jsonl")
	l := NewEventLog(path)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	steps := []error{
		l.LogStart("1.0.0", "/etc/appkiller.yaml"),
		l.LogRequest("req-1", "rfs_shutdown", "/com/nokia/osso_app_killer/rfs_shutdown", ":1.4"),
		l.LogFlowResult("req-1", "rfs_shutdown", "terminate_graceful", errors.New("script exited with status 2")),
		l.LogTermination(0, "rfs_shutdown finished"),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	events := readEvents(t, path)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}

	if events[0].Event != EventStart || events[0].Version != "1.0.0" {
		t.Errorf("start event = %+v", events[0])
	}
	if events[1].RequestID != "req-1" || events[1].Sender != ":1.4" {
		t.Errorf("request event = %+v", events[1])
	}
	if events[2].Success || events[2].Error == "" {
		t.Errorf("flow result should carry the failure: %+v", events[2])
	}
	if events[3].ExitCode == nil || *events[3].ExitCode != 0 || !events[3].Success {
		t.Errorf("termination event = %+v", events[3])
	}
	for _, ev := range events {
		if !ev.Timestamp.Equal(fixed) || ev.PID != os.Getpid() {
			t.Errorf("event missing stamp: %+v", ev)
		}
	}
}

func TestEventLog_Disabled(t *testing.T) {
	var nilLog *EventLog
	if nilLog.Enabled() {
		t.Error("nil log should be disabled")
	}
	if err := nilLog.LogDisconnect("system"); err != nil {
		t.Errorf("nil log should discard, got %v", err)
	}
	if err := NewEventLog("").LogTermination(1, "x"); err != nil {
		t.Errorf("zero-path log should discard, got %v", err)
	}
}

func TestEventLog_FatalTermination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l := NewEventLog(path)

	if err := l.LogDisconnect("system"); err != nil {
		t.Fatal(err)
	}
	if err := l.LogTermination(1, "system bus disconnected"); err != nil {
		t.Fatal(err)
	}

	events := readEvents(t, path)
	if events[0].Bus != "system" {
		t.Errorf("disconnect event = %+v", events[0])
	}
	if events[1].Success || *events[1].ExitCode != 1 {
		t.Errorf("fatal termination = %+v", events[1])
	}
}
