package asciicall

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestSFU(t *testing.T) *SFU {
	t.Helper()

	var sfu = NewSFU("127.0.0.1:0", "127.0.0.1:0", log.New(io.Discard))
	require.NoError(t, sfu.Listen())
	t.Cleanup(sfu.Close)

	go sfu.Serve()

	return sfu
}

type testClient struct {
	tcp *net.TCPConn
	rd  *bufio.Reader
	udp *net.UDPConn
}

func dialTestClient(t *testing.T, sfu *SFU) *testClient {
	t.Helper()

	var conn, err = net.Dial("tcp", sfu.BoundTCPAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var udpAddr, resolveErr = net.ResolveUDPAddr("udp", sfu.BoundUDPAddr().String())
	require.NoError(t, resolveErr)

	var udp, udpErr = net.DialUDP("udp", nil, udpAddr)
	require.NoError(t, udpErr)
	t.Cleanup(func() { udp.Close() })

	return &testClient{
		tcp: conn.(*net.TCPConn),
		rd:  bufio.NewReader(conn),
		udp: udp,
	}
}

func (c *testClient) send(t *testing.T, line string) {
	t.Helper()

	var _, err = c.tcp.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (c *testClient) readLine(t *testing.T) string {
	t.Helper()

	require.NoError(t, c.tcp.SetReadDeadline(time.Now().Add(2*time.Second)))

	var line, err = c.rd.ReadString('\n')
	require.NoError(t, err)

	return line[:len(line)-1]
}

// Joining, priming, and frame forwarding between two paired peers.
func TestSFU_PairingAndForwarding(t *testing.T) {
	var sfu = startTestSFU(t)

	var a = dialTestClient(t, sfu)
	a.send(t, "JOIN room-1")
	assert.Equal(t, "OK: joined session", a.readLine(t))

	// Prime before the second member joins so the address match is
	// unambiguous.
	var _, pingErr = a.udp.Write([]byte("PING"))
	require.NoError(t, pingErr)
	time.Sleep(100 * time.Millisecond)

	var b = dialTestClient(t, sfu)
	b.send(t, "JOIN room-1")
	assert.Equal(t, "OK: joined session", b.readLine(t))

	_, pingErr = b.udp.Write([]byte("PING"))
	require.NoError(t, pingErr)

	// Both get exactly one CONNECTED once both addresses are bound.
	assert.Equal(t, "CONNECTED", a.readLine(t))
	assert.Equal(t, "CONNECTED", b.readLine(t))

	// A's frame datagram arrives at B verbatim.  A's priming datagram
	// came in before B joined and was dropped for lack of a peer; any
	// 4-byte priming datagram that does reach B is skipped.
	var frame, frameErr = NewAsciiFrame(1, 1, '@')
	require.NoError(t, frameErr)
	var payload = frame.Serialize()
	require.Len(t, payload, 17)

	var _, sendErr = a.udp.Write(payload)
	require.NoError(t, sendErr)

	var buf = make([]byte, maxDatagram)
	require.NoError(t, b.udp.SetReadDeadline(time.Now().Add(2*time.Second)))

	for {
		var n, readErr = b.udp.Read(buf)
		require.NoError(t, readErr)

		if n == 4 { // forwarded PING
			continue
		}

		assert.Equal(t, payload, buf[:n])
		break
	}
}

func TestSFU_SessionFull(t *testing.T) {
	var sfu = startTestSFU(t)

	var a = dialTestClient(t, sfu)
	a.send(t, "JOIN room-1")
	assert.Equal(t, "OK: joined session", a.readLine(t))

	var b = dialTestClient(t, sfu)
	b.send(t, "JOIN room-1")
	assert.Equal(t, "OK: joined session", b.readLine(t))

	var c = dialTestClient(t, sfu)
	c.send(t, "JOIN room-1")
	assert.Equal(t, "ERROR: session full", c.readLine(t))

	// The rejected connection stays usable.
	c.send(t, "LEAVE")
	assert.Equal(t, "OK: left session", c.readLine(t))
}

func TestSFU_UnknownCommand(t *testing.T) {
	var sfu = startTestSFU(t)

	var a = dialTestClient(t, sfu)
	a.send(t, "FROBNICATE")
	assert.Equal(t, "ERROR: unknown command", a.readLine(t))
}

func TestSFU_JoinWithoutID(t *testing.T) {
	var sfu = startTestSFU(t)

	var a = dialTestClient(t, sfu)
	a.send(t, "JOIN")
	assert.Equal(t, "ERROR: JOIN needs a session id", a.readLine(t))
}

// A LEAVE notifies the survivor exactly once, and the survivor's
// subsequent datagrams go nowhere.
func TestSFU_PeerLeave(t *testing.T) {
	var sfu = startTestSFU(t)

	var a = dialTestClient(t, sfu)
	a.send(t, "JOIN room-1")
	assert.Equal(t, "OK: joined session", a.readLine(t))

	var _, pingErr = a.udp.Write([]byte("PING"))
	require.NoError(t, pingErr)
	time.Sleep(100 * time.Millisecond)

	var b = dialTestClient(t, sfu)
	b.send(t, "JOIN room-1")
	assert.Equal(t, "OK: joined session", b.readLine(t))

	_, pingErr = b.udp.Write([]byte("PING"))
	require.NoError(t, pingErr)

	assert.Equal(t, "CONNECTED", a.readLine(t))
	assert.Equal(t, "CONNECTED", b.readLine(t))

	a.send(t, "LEAVE")
	assert.Equal(t, "OK: left session", a.readLine(t))
	assert.Equal(t, "DISCONNECTED", b.readLine(t))

	// Drain B's priming datagram, which was forwarded to A during
	// pairing.
	a.udp.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	for {
		if _, err := a.udp.Read(make([]byte, maxDatagram)); err != nil {
			break
		}
	}

	// No peer anymore: the datagram is dropped, nothing comes back
	// to A.
	var frame, _ = NewAsciiFrame(1, 1, '@')
	var _, sendErr = b.udp.Write(frame.Serialize())
	require.NoError(t, sendErr)

	require.NoError(t, a.udp.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var _, readErr = a.udp.Read(make([]byte, maxDatagram))
	assert.Error(t, readErr)
}

// A vanished connection behaves exactly like LEAVE.
func TestSFU_EOFTreatedAsLeave(t *testing.T) {
	var sfu = startTestSFU(t)

	var a = dialTestClient(t, sfu)
	a.send(t, "JOIN room-1")
	assert.Equal(t, "OK: joined session", a.readLine(t))

	var _, pingErr = a.udp.Write([]byte("PING"))
	require.NoError(t, pingErr)
	time.Sleep(100 * time.Millisecond)

	var b = dialTestClient(t, sfu)
	b.send(t, "JOIN room-1")
	assert.Equal(t, "OK: joined session", b.readLine(t))

	_, pingErr = b.udp.Write([]byte("PING"))
	require.NoError(t, pingErr)

	assert.Equal(t, "CONNECTED", a.readLine(t))
	assert.Equal(t, "CONNECTED", b.readLine(t))

	require.NoError(t, a.tcp.Close())

	assert.Equal(t, "DISCONNECTED", b.readLine(t))
}

// The slot freed by a LEAVE is reusable within the same session.
func TestSFU_RejoinAfterLeave(t *testing.T) {
	var sfu = startTestSFU(t)

	var a = dialTestClient(t, sfu)
	a.send(t, "JOIN room-1")
	assert.Equal(t, "OK: joined session", a.readLine(t))

	var b = dialTestClient(t, sfu)
	b.send(t, "JOIN room-1")
	assert.Equal(t, "OK: joined session", b.readLine(t))

	b.send(t, "LEAVE")
	assert.Equal(t, "OK: left session", b.readLine(t))
	assert.Equal(t, "DISCONNECTED", a.readLine(t))

	var c = dialTestClient(t, sfu)
	c.send(t, "JOIN room-1")
	assert.Equal(t, "OK: joined session", c.readLine(t))
}
