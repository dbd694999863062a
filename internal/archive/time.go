package archive

import "time"

func unixSeconds(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
