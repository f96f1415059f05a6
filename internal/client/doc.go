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
Package client calls the appkiller coordinator over the session bus.

It backs the akctl command line tool. Each endpoint is a plain method call
with no arguments:

	c, err := client.New(cfg)
	if err != nil {
	    return err
	}
	defer c.Close()

	res, err := c.Trigger(ctx, client.Restore)

The coordinator answers restore requests with exactly one reply. Locale
and RFS requests end the coordinator, so a missing reply is the normal
outcome for those and is reported as a Result with Replied set to false.
Named error replies come back as *RemoteError.

If the coordinator is not running the bus starts it on the first call,
provided a D-Bus activation file is installed (see akctl service-file).
*/
package client
