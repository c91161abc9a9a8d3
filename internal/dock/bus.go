package dock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Bus delivers one value per display topology change notification. The
// returned cancel function releases the subscription and is safe to call
// more than once.
type Bus interface {
	Subscribe(ctx context.Context) (<-chan struct{}, func(), error)
}

const (
	upstartPath       = dbus.ObjectPath("/com/ubuntu/Upstart")
	upstartMember     = "EventEmitted"
	drmChangedEventID = "drm-device-changed"
)

// SessionBus listens for the Upstart "drm-device-changed" event on the
// desktop session bus.
type SessionBus struct {
	conn *dbus.Conn
}

// DialSessionBus connects to the session bus of the current user.
func DialSessionBus() (*SessionBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &SessionBus{conn: conn}, nil
}

func (b *SessionBus) Close() error {
	return b.conn.Close()
}

func (b *SessionBus) Subscribe(_ context.Context) (<-chan struct{}, func(), error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(upstartPath),
		dbus.WithMatchMember(upstartMember),
		dbus.WithMatchArg(0, drmChangedEventID),
	}
	if err := b.conn.AddMatchSignal(opts...); err != nil {
		return nil, nil, fmt.Errorf("add match signal: %w", err)
	}
	raw := make(chan *dbus.Signal, 16)
	b.conn.Signal(raw)

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case sig, ok := <-raw:
				if !ok {
					return
				}
				if !isDRMChanged(sig) {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.conn.RemoveSignal(raw)
			_ = b.conn.RemoveMatchSignal(opts...)
			close(done)
		})
	}
	return out, cancel, nil
}

func isDRMChanged(sig *dbus.Signal) bool {
	if sig == nil || sig.Path != upstartPath {
		return false
	}
	if !strings.HasSuffix(sig.Name, "."+upstartMember) {
		return false
	}
	if len(sig.Body) == 0 {
		return false
	}
	name, ok := sig.Body[0].(string)
	return ok && name == drmChangedEventID
}
