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

/*
Package lifecycle handles process bookkeeping for the coordinator.

The coordinator ends its own process by design (after a locale change or a
factory reset), so what happened right before exit has to survive in
files rather than in memory.

# PID File

An optional PID file guards against a second coordinator on the same
session. It is created atomically (O_EXCL) and held with an exclusive
flock for the life of the process. A file left behind by a dead process is
detected and replaced:

	pf := lifecycle.NewPIDFile("/run/user/1000/appkiller.pid")
	stale, err := pf.Acquire(os.Getpid())
	if errors.Is(err, lifecycle.ErrAlreadyRunning) {
	    // another coordinator owns the session
	}
	defer pf.Release()

# Event Log

EventLog appends one JSON object per line for start, request, flow result,
disconnect and termination events. A zero-path EventLog discards events, so
callers never need to check whether the feature is enabled.
*/
package lifecycle
