package asciicall

/*------------------------------------------------------------------
 *
 * Purpose:   	Selective forwarding unit for two-party calls.
 *
 * Description:	Two loops run concurrently.
 *
 *		The control loop accepts TCP connections and parses
 *		newline-terminated commands (JOIN <id>, LEAVE).  Each
 *		connection gets a handler goroutine plus a writer
 *		goroutine that turns session notifications into
 *		CONNECTED / DISCONNECTED lines.
 *
 *		The relay loop receives frame datagrams, learns each
 *		client's UDP source address from its first datagram,
 *		and forwards payloads verbatim to the paired peer.  The
 *		first time both peers of a session are bound, each gets
 *		a one-shot CONNECTED notification; that is the signal
 *		clients use to start transmitting.  Payloads are never
 *		inspected, buffered, or retransmitted.
 *
 *----------------------------------------------------------------*/

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
)

const (
	DefaultSFUTCPAddr = "0.0.0.0:8080"
	DefaultSFUUDPAddr = "0.0.0.0:4433"
	DefaultSFULogFile = "debug.log"

	// A UDP datagram can't exceed 64 KiB; one read buffer of that
	// size handles any frame a client can legally send.
	maxDatagram = 65536

	// Control notifications per connection are rare (one CONNECTED,
	// one DISCONNECTED per epoch); the buffer only has to absorb
	// scheduling jitter.
	notifyBuffer = 16
)

type SFU struct {
	TCPAddr string
	UDPAddr string

	sessions *SessionManager
	logger   *log.Logger

	tcpListener net.Listener
	udpConn     *net.UDPConn
}

func NewSFU(tcpAddr string, udpAddr string, logger *log.Logger) *SFU {
	return &SFU{
		TCPAddr:  tcpAddr,
		UDPAddr:  udpAddr,
		sessions: NewSessionManager(),
		logger:   logger,
	}
}

// Listen binds both channels.  A bind failure is fatal at startup and
// surfaced to the operator; nothing is partially started.
func (s *SFU) Listen() error {
	var tcpListener, tcpErr = net.Listen("tcp", s.TCPAddr)
	if tcpErr != nil {
		return fmt.Errorf("control channel bind: %w", tcpErr)
	}

	var udpAddr, resolveErr = net.ResolveUDPAddr("udp", s.UDPAddr)
	if resolveErr != nil {
		tcpListener.Close()
		return fmt.Errorf("data channel address: %w", resolveErr)
	}

	var udpConn, udpErr = net.ListenUDP("udp", udpAddr)
	if udpErr != nil {
		tcpListener.Close()
		return fmt.Errorf("data channel bind: %w", udpErr)
	}

	s.tcpListener = tcpListener
	s.udpConn = udpConn

	s.logger.Info("control channel listening", "addr", tcpListener.Addr())
	s.logger.Info("data channel listening", "addr", udpConn.LocalAddr())

	return nil
}

// BoundTCPAddr and BoundUDPAddr report the actual bound addresses,
// which matters when the configured port is 0.
func (s *SFU) BoundTCPAddr() net.Addr { return s.tcpListener.Addr() }
func (s *SFU) BoundUDPAddr() net.Addr { return s.udpConn.LocalAddr() }

// Serve runs the accept loop and the relay loop until Close.
func (s *SFU) Serve() {
	go s.relayLoop()

	for {
		var conn, err = s.tcpListener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "err", err)
			continue
		}

		go s.handleControl(conn)
	}
}

func (s *SFU) Close() {
	if s.tcpListener != nil {
		s.tcpListener.Close()
	}
	if s.udpConn != nil {
		s.udpConn.Close()
	}
}

/*------------------------------------------------------------------
 *
 * Name:        handleControl
 *
 * Purpose:     Serve one client's control connection.
 *
 * Description:	A writer goroutine owns all writes triggered by the
 *		session manager; command replies are written directly
 *		here.  EOF and read errors are treated as LEAVE so a
 *		vanished client always frees its slot and informs the
 *		survivor.
 *
 *----------------------------------------------------------------*/

func (s *SFU) handleControl(conn net.Conn) {
	defer conn.Close()

	var remote, addrErr = netip.ParseAddrPort(conn.RemoteAddr().String())
	if addrErr != nil {
		s.logger.Error("unparseable remote address", "addr", conn.RemoteAddr(), "err", addrErr)
		return
	}
	remote = normalizeAddrPort(remote)

	s.logger.Info("control connection", "from", remote)

	var notify = make(chan Notification, notifyBuffer)
	var writerDone = make(chan struct{})

	go func() {
		defer close(writerDone)

		for msg := range notify {
			var line string
			switch msg.Kind {
			case NotifyConnect:
				line = "CONNECTED\n"
			case NotifyDisconnect:
				line = "DISCONNECTED\n"
			default:
				continue
			}

			if _, err := conn.Write([]byte(line)); err != nil {
				s.logger.Warn("notify write failed", "to", remote, "err", err)
				return
			}

			s.logger.Debug("notify sent", "to", remote, "line", strings.TrimSpace(line))
		}
	}()

	defer func() {
		// EOF or error: same as LEAVE.
		s.sessions.NotifyPeer(remote, Notification{Kind: NotifyDisconnect})
		s.sessions.RemoveClient(remote)
		close(notify)
		<-writerDone
	}()

	var scanner = bufio.NewScanner(conn)
	for scanner.Scan() {
		var line = strings.TrimSpace(scanner.Text())
		var fields = strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "JOIN":
			if len(fields) < 2 {
				fmt.Fprintf(conn, "ERROR: JOIN needs a session id\n")
				continue
			}

			var id = fields[1]
			s.sessions.EnsureSession(id)
			if s.sessions.AddClient(id, remote, notify) {
				s.logger.Info("joined session", "client", remote, "session", id)
				fmt.Fprintf(conn, "OK: joined session\n")
			} else {
				s.logger.Info("join rejected, session full", "client", remote, "session", id)
				fmt.Fprintf(conn, "ERROR: session full\n")
			}

		case "LEAVE":
			s.sessions.NotifyPeer(remote, Notification{Kind: NotifyDisconnect})
			s.sessions.RemoveClient(remote)
			s.logger.Info("left session", "client", remote)
			fmt.Fprintf(conn, "OK: left session\n")

		default:
			s.logger.Debug("unknown command", "from", remote, "line", line)
			fmt.Fprintf(conn, "ERROR: unknown command\n")
		}
	}

	if err := scanner.Err(); err != nil {
		s.logger.Debug("control read ended", "from", remote, "err", err)
	}
}

/*------------------------------------------------------------------
 *
 * Name:        relayLoop
 *
 * Purpose:     Forward frame datagrams between paired peers.
 *
 * Description:	Per datagram: learn the source address if new, look up
 *		the peer, emit the one-shot CONNECTED pair when this
 *		datagram completed the binding, forward verbatim.  A
 *		datagram with no bound peer is dropped; there is no
 *		buffering and no retry, the next frame fully replaces
 *		this one.
 *
 *----------------------------------------------------------------*/

func (s *SFU) relayLoop() {
	var buf = make([]byte, maxDatagram)

	for {
		var n, src, err = s.udpConn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("data channel read failed", "err", err)
			continue
		}

		src = normalizeAddrPort(src)

		if !s.sessions.BindUnreliable(src) {
			s.logger.Debug("datagram from unbindable source dropped", "src", src, "len", n)
			continue
		}

		var dst, hasPeer = s.sessions.PeerUnreliableOf(src)
		if !hasPeer {
			s.logger.Debug("no bound peer yet, datagram dropped", "src", src)
			continue
		}

		s.maybeNotifyConnected(src, dst)

		if _, sendErr := s.udpConn.WriteToUDPAddrPort(buf[:n], dst); sendErr != nil {
			s.logger.Warn("forward failed", "dst", dst, "err", sendErr)
		}
	}
}

// maybeNotifyConnected delivers the one-shot CONNECTED pair the first
// time both peers of a session are bound.
func (s *SFU) maybeNotifyConnected(src netip.AddrPort, dst netip.AddrPort) {
	var srcControl, srcOK = s.sessions.ControlForUnreliable(src)
	var dstControl, dstOK = s.sessions.ControlForUnreliable(dst)
	if !srcOK || !dstOK {
		return
	}

	var id, idOK = s.sessions.SessionIDFor(dstControl)
	if !idOK || s.sessions.IsConnected(id) {
		return
	}

	s.sessions.MarkConnected(id)
	s.sessions.NotifyPeer(srcControl, Notification{Kind: NotifyConnect, SessionID: id})
	s.sessions.NotifyPeer(dstControl, Notification{Kind: NotifyConnect, SessionID: id})
	s.logger.Info("session connected", "session", id)
}

/*------------------------------------------------------------------
 *
 * Name:        SFUMain
 *
 * Purpose:     Entry point for the asciicall-sfu binary.
 *
 *----------------------------------------------------------------*/

func SFUMain() {
	var tcpAddr = pflag.String("tcp-addr", DefaultSFUTCPAddr, "Control channel listen address.")
	var udpAddr = pflag.String("udp-addr", DefaultSFUUDPAddr, "Data channel listen address.")
	var logFile = pflag.String("log-file", DefaultSFULogFile, "Log file path; strftime patterns are expanded.")
	var verbose = pflag.BoolP("verbose", "v", false, "Log at debug level, and echo the configuration.")
	var dnsSD = pflag.Bool("dns-sd", false, "Announce this SFU on the local network via DNS-SD.")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Parse()

	if *help {
		pflag.Usage()
		return
	}

	var logger, logClose, logErr = NewFileLogger(*logFile, *verbose)
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "can't open log file: %s\n", logErr)
		os.Exit(1)
	}
	defer logClose.Close()

	if *verbose {
		fmt.Println("SFU starting with configuration:")
		fmt.Println(" - control (TCP) address:", *tcpAddr)
		fmt.Println(" - data (UDP) address:", *udpAddr)
		fmt.Println(" - log file:", *logFile)
	} else {
		fmt.Println("SFU starting...")
	}

	var sfu = NewSFU(*tcpAddr, *udpAddr, logger)
	if err := sfu.Listen(); err != nil {
		logger.Error("startup failed", "err", err)
		fmt.Fprintf(os.Stderr, "startup failed: %s\n", err)
		os.Exit(1)
	}

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *dnsSD {
		go announceDNSSD(ctx, sfu.BoundTCPAddr(), logger)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		sfu.Close()
	}()

	sfu.Serve()
}
