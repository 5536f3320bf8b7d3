package serial

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventNames(t *testing.T) {
	tests := []struct {
		path       string
		read       string
		disconnect string
	}{
		{"/dev/ttyUSB0", "serial-read--dev-ttyUSB0", "serial-disconnected--dev-ttyUSB0"},
		{"/dev/serial/by-id/usb-FTDI.1", "serial-read--dev-serial-by-id-usb-FTDI-1", "serial-disconnected--dev-serial-by-id-usb-FTDI-1"},
		{"COM3", "serial-read-COM3", "serial-disconnected-COM3"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.read, ReadEventName(tt.path))
		require.Equal(t, tt.disconnect, DisconnectEventName(tt.path))
	}
}

func TestHubRoutesByPath(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	usb0 := hub.Subscribe("/dev/ttyUSB0")
	all := hub.Subscribe("")

	hub.Data(DataEvent{Path: "/dev/ttyUSB0", Data: []byte("a")})
	hub.Data(DataEvent{Path: "/dev/ttyUSB1", Data: []byte("b")})

	ev := <-usb0.C()
	require.Equal(t, "a", string(ev.Data))
	require.Empty(t, usb0.C())

	require.Equal(t, "a", string((<-all.C()).Data))
	ev = <-all.C()
	require.Equal(t, "/dev/ttyUSB1", ev.Path)
	require.Equal(t, ReadEventName("/dev/ttyUSB1"), ev.Name)
}

func TestHubDropsDataForSlowSubscriber(t *testing.T) {
	hub := NewHub(2)
	defer hub.Close()
	sub := hub.Subscribe("")

	for range 5 {
		hub.Data(DataEvent{Path: "/dev/ttyS0", Data: []byte("x")})
	}
	require.Equal(t, uint64(3), sub.Dropped())
	require.Len(t, sub.C(), 2)
}

func TestHubDisconnectWaitsForRoom(t *testing.T) {
	hub := NewHub(1)
	defer hub.Close()
	sub := hub.Subscribe("/dev/ttyS0")

	hub.Data(DataEvent{Path: "/dev/ttyS0", Data: []byte("x")})

	go func() {
		time.Sleep(100 * time.Millisecond)
		<-sub.C()
	}()

	cause := errors.New("gone")
	hub.Disconnected(DisconnectEvent{Path: "/dev/ttyS0", Err: cause})

	ev := <-sub.C()
	require.True(t, ev.Disconnected)
	require.ErrorIs(t, ev.Err, cause)
	require.Zero(t, sub.Dropped())
}

func TestHubDisconnectGivesUpOnStuckSubscribers(t *testing.T) {
	hub := NewHub(1)
	defer hub.Close()
	a := hub.Subscribe("")
	b := hub.Subscribe("")

	hub.Data(DataEvent{Path: "/dev/ttyS0", Data: []byte("x")})

	start := time.Now()
	hub.Disconnected(DisconnectEvent{Path: "/dev/ttyS0"})
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, disconnectSendTimeout-50*time.Millisecond)
	require.Less(t, elapsed, 2*disconnectSendTimeout)
	require.Equal(t, uint64(1), a.Dropped())
	require.Equal(t, uint64(1), b.Dropped())
}

func TestSubscriptionUnsubscribe(t *testing.T) {
	hub := NewHub(4)
	sub := hub.Subscribe("/dev/ttyS0")

	sub.Unsubscribe()
	_, ok := <-sub.C()
	require.False(t, ok)

	// Safe to repeat, and later events are not delivered.
	sub.Unsubscribe()
	hub.Data(DataEvent{Path: "/dev/ttyS0", Data: []byte("x")})

	hub.Close()
	hub.Close()
	late := hub.Subscribe("")
	_, ok = <-late.C()
	require.False(t, ok)
}
