package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// NowNs returns Unix nanoseconds as int64. Capture frames are stamped in ns
// so consumers can reconstruct inter-sample spacing.
func NowNs() int64 { return time.Now().UnixNano() }
