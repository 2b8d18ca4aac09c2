// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "github.com/momentics/hioload-loop/api"

// WaitBatch is the event buffer size loops pass to Wait.
const WaitBatch = 1024

// clampTimeout bounds a wait timeout to what the backends accept:
// -1 blocks, 0 polls, positive values cap at api.MaxTimeout milliseconds.
func clampTimeout(timeoutMS int) int {
	if timeoutMS < 0 {
		return -1
	}
	if timeoutMS > api.MaxTimeout {
		return api.MaxTimeout
	}
	return timeoutMS
}
