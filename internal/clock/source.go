package clock

import (
	"time"

	"github.com/beevik/ntp"
)

// ReferenceSource is the external "true time" collaborator. A query is one
// network round trip and may fail; the Clock retries on its own schedule.
type ReferenceSource interface {
	Now() (time.Time, error)
}

// NTPSource queries an NTP server for reference time.
type NTPSource struct {
	Host string
}

func NewNTPSource(host string) *NTPSource {
	return &NTPSource{Host: host}
}

func (s *NTPSource) Now() (time.Time, error) {
	resp, err := ntp.Query(s.Host)
	if err != nil {
		return time.Time{}, err
	}
	if err := resp.Validate(); err != nil {
		return time.Time{}, err
	}
	return time.Now().UTC().Add(resp.ClockOffset), nil
}

// LocalSource trusts the local clock. Used when no NTP host is configured,
// which keeps single-process deployments working with a zero offset.
type LocalSource struct{}

func (LocalSource) Now() (time.Time, error) {
	return time.Now().UTC(), nil
}
