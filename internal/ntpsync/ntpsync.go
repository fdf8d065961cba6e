// Package ntpsync periodically queries an NTP server and feeds the
// observed clock offset into cursorclock, per spec.md §6.4's NTP_* env
// vars and §5's "a background task periodically measures clock skew and
// applies it as an offset, without the request path block(ing) on network
// I/O" ambient requirement. No pack example imports an NTP client, so this
// speaks raw SNTP over UDP against the stdlib's net.Conn (justified in
// DESIGN.md: no third-party NTP library appears anywhere in the corpus).
package ntpsync

import (
	"encoding/binary"
	"log/slog"
	"net"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mixaill76/cursor-gateway/internal/cursorclock"
)

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01).
const ntpEpochOffset = 2208988800

// Config carries the NTP_* settings of spec.md §6.4.
type Config struct {
	Servers       []string
	SyncInterval  time.Duration
	SampleCount   int
	SampleSpacing time.Duration
}

// DefaultConfig holds the compile-time defaults.
func DefaultConfig() Config {
	return Config{
		Servers:       []string{"pool.ntp.org"},
		SyncInterval:  time.Hour,
		SampleCount:   4,
		SampleSpacing: 200 * time.Millisecond,
	}
}

// Syncer runs the periodic NTP query via a cron schedule.
type Syncer struct {
	cfg    Config
	logger *slog.Logger
	cron   *cron.Cron
}

// New builds a Syncer. Start must be called to begin the schedule.
func New(cfg Config, logger *slog.Logger) *Syncer {
	return &Syncer{cfg: cfg, logger: logger, cron: cron.New()}
}

// Start runs one sync immediately, then schedules further syncs every
// SyncInterval using a cron spec of "@every <interval>".
func (s *Syncer) Start() {
	s.syncOnce()
	spec := "@every " + s.cfg.SyncInterval.String()
	if _, err := s.cron.AddFunc(spec, s.syncOnce); err != nil {
		s.logger.Error("ntpsync: failed to schedule sync", "error", err)
		return
	}
	s.cron.Start()
}

// Stop halts the schedule; in-flight syncs are allowed to finish.
func (s *Syncer) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Syncer) syncOnce() {
	var offsets []time.Duration
	for _, server := range s.cfg.Servers {
		for i := 0; i < s.cfg.SampleCount; i++ {
			offset, err := queryOffset(server)
			if err != nil {
				s.logger.Warn("ntpsync: query failed", "server", server, "error", err)
				continue
			}
			offsets = append(offsets, offset)
			time.Sleep(s.cfg.SampleSpacing)
		}
		if len(offsets) > 0 {
			break
		}
	}
	if len(offsets) == 0 {
		s.logger.Warn("ntpsync: no successful samples this round")
		return
	}
	cursorclock.SetOffset(medianDuration(offsets))
}

// queryOffset sends one SNTP request and returns the local clock's skew
// relative to the server (positive means the local clock is behind).
func queryOffset(server string) (time.Duration, error) {
	conn, err := net.DialTimeout("udp", server+":123", 5*time.Second)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	packet := make([]byte, 48)
	packet[0] = 0x1B // LI=0, VN=3, Mode=3 (client)

	sendTime := time.Now()
	if _, err := conn.Write(packet); err != nil {
		return 0, err
	}
	if _, err := conn.Read(packet); err != nil {
		return 0, err
	}
	recvTime := time.Now()

	var secs, frac uint32
	secs = binary.BigEndian.Uint32(packet[40:44])
	frac = binary.BigEndian.Uint32(packet[44:48])

	serverTime := ntpToTime(secs, frac)
	roundTrip := recvTime.Sub(sendTime)
	midpoint := sendTime.Add(roundTrip / 2)

	return serverTime.Sub(midpoint), nil
}

func ntpToTime(secs, frac uint32) time.Time {
	unixSecs := int64(secs) - ntpEpochOffset
	nanos := int64(frac) * 1e9 / (1 << 32)
	return time.Unix(unixSecs, nanos).UTC()
}

func medianDuration(ds []time.Duration) time.Duration {
	sorted := append([]time.Duration(nil), ds...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted[len(sorted)/2]
}
