package timezone

import "time"

// Location is the institution's timezone; every parsed portal date is
// interpreted in it.
var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Tokyo")
	if err != nil {
		Location = time.FixedZone("JST", 9*60*60)
	}
}

// portal servers print wall-clock times in Japan regardless of where this
// process runs, so "now" has to be pinned too before taking .Year()
func Now() time.Time {
	return time.Now().In(Location)
}

func Date(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, Location)
}
