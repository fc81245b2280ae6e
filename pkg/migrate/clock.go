package migrate

import "time"

// timeNow is stubbed in tests.
var timeNow = func() time.Time { return time.Now().UTC() }
