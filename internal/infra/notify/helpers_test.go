package notify

import "time"

const (
	timeoutForTest = time.Second
	tick           = 5 * time.Millisecond
)
