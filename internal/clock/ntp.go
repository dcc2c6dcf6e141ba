package clock

import (
	"context"
	"encoding/binary"
	"log/slog"
	"net"
	"time"

	"git.home.luguber.info/inful/nightlock/internal/errors"
	"git.home.luguber.info/inful/nightlock/internal/state"
)

// ntpEpochOffset is the seconds between the NTP epoch (1900) and the Unix
// epoch (1970).
const ntpEpochOffset = 2208988800

// QueryOffset performs one SNTP (RFC 4330) exchange against the server and
// returns the clock offset to add to local time. The four-timestamp
// midpoint formula cancels symmetric network delay.
func QueryOffset(ctx context.Context, server string, timeout time.Duration) (time.Duration, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "udp", server)
	if err != nil {
		return 0, errors.WrapIO(err, "ntp dial failed").WithContext("server", server)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, errors.WrapIO(err, "ntp set deadline failed")
	}

	// 48-byte client request, LI=0 VN=4 Mode=3.
	req := make([]byte, 48)
	req[0] = 0x23

	t1 := time.Now()
	putNTPTime(req[40:], t1)
	if _, err := conn.Write(req); err != nil {
		return 0, errors.WrapIO(err, "ntp write failed")
	}

	resp := make([]byte, 48)
	if _, err := conn.Read(resp); err != nil {
		return 0, errors.WrapIO(err, "ntp read failed").WithContext("server", server)
	}
	t4 := time.Now()

	t2 := getNTPTime(resp[32:]) // server receive
	t3 := getNTPTime(resp[40:]) // server transmit

	offset := (t2.Sub(t1) + t3.Sub(t4)) / 2
	return offset, nil
}

// SyncNTP refreshes the persisted NTP offset from the configured server.
// Failure logs and leaves the stored offset untouched.
func (e *Engine) SyncNTP(ctx context.Context, server string, timeout time.Duration) error {
	offset, err := QueryOffset(ctx, server, timeout)
	if err != nil {
		slog.Warn("NTP sync failed, keeping previous offset", "server", server, "error", err)
		return err
	}

	now := e.clock.Now()
	if err := e.store.Update(func(s *state.PersistedState) {
		s.NTPOffset = offset
		s.LastNTPSync = &now
	}); err != nil {
		return err
	}

	slog.Info("NTP sync complete", "server", server, "offset", offset.String())
	return nil
}

func putNTPTime(b []byte, t time.Time) {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / 1e9
	binary.BigEndian.PutUint32(b[:4], uint32(secs))
	binary.BigEndian.PutUint32(b[4:8], uint32(frac))
}

func getNTPTime(b []byte) time.Time {
	secs := binary.BigEndian.Uint32(b[:4])
	frac := binary.BigEndian.Uint32(b[4:8])
	nanos := (uint64(frac) * 1e9) >> 32
	return time.Unix(int64(secs)-ntpEpochOffset, int64(nanos))
}
