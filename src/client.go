package asciicall

/*------------------------------------------------------------------
 *
 * Purpose:   	The client: capture, convert, send, receive, render.
 *
 * Description:	After the JOIN handshake, four tasks run until the
 *		control connection dies or the user quits:
 *
 *		control reader	- turns CONNECTED / DISCONNECTED lines
 *				  into the peerPresent flag; its EOF is
 *				  the session's end.
 *		producer	- at the target frame rate, captures a
 *				  camera frame, converts it, and
 *				  publishes it to the frame channel
 *				  (drop-oldest, so a slow consumer sees
 *				  fresh video, not a backlog).
 *		sender		- serializes published frames onto the
 *				  data channel.
 *		renderer	- drains whatever datagrams have
 *				  arrived, keeps the newest decodable
 *				  frame, paints it, and sleeps to the
 *				  next frame boundary.  Missed
 *				  deadlines never accumulate.
 *
 *		The data channel is fire-and-forget in both directions:
 *		a lost or mangled datagram just means the previous
 *		frame stays on screen one interval longer.
 *
 *----------------------------------------------------------------*/

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/term"
	"github.com/spf13/pflag"
)

const (
	DefaultClientTCPAddr = "127.0.0.1:8080"
	DefaultClientUDPAddr = "127.0.0.1:4433"
	DefaultClientLogFile = "asciicall.log"

	// Capacity of the produced-frame channel.  Big enough to ride
	// out scheduling hiccups, small enough that the peer never
	// watches second-old video after one.
	frameChannelCap = 20
)

type clientStats struct {
	framesSent     atomic.Int64
	framesReceived atomic.Int64
	framesDropped  atomic.Int64
	sendFailures   atomic.Int64
}

type Client struct {
	TCPAddr   string
	UDPAddr   string
	SessionID string

	video     VideoConfig
	pattern   *MockFrameGenerator // non-nil bypasses the camera
	cameraCmd string

	logger *log.Logger

	tcpConn   net.Conn
	tcpReader *bufio.Reader
	udpConn   *net.UDPConn

	connected   *WatchFlag
	peerPresent *WatchFlag
	frames      chan *AsciiFrame
	renderOut   io.Writer

	quitKey bool

	done     chan struct{}
	shutdown sync.Once

	stats clientStats
}

func NewClient(tcpAddr string, udpAddr string, sessionID string, video VideoConfig, logger *log.Logger) *Client {
	return &Client{
		TCPAddr:     tcpAddr,
		UDPAddr:     udpAddr,
		SessionID:   sessionID,
		video:       video,
		logger:      logger,
		connected:   NewWatchFlag(false),
		peerPresent: NewWatchFlag(false),
		frames:      make(chan *AsciiFrame, frameChannelCap),
		renderOut:   os.Stdout,
		done:        make(chan struct{}),
	}
}

// UseTestPattern replaces the camera-and-converter pipeline with a
// synthetic frame source.
func (c *Client) UseTestPattern(g *MockFrameGenerator) {
	c.pattern = g
}

func (c *Client) UseCameraCommand(cmd string) {
	c.cameraCmd = cmd
}

// EnableQuitKey makes Run watch the controlling terminal for 'q'.
func (c *Client) EnableQuitKey() {
	c.quitKey = true
}

// Shutdown makes every task wind down.  Idempotent; callable from any
// goroutine.
func (c *Client) Shutdown() {
	c.shutdown.Do(func() {
		c.connected.Set(false)
		close(c.done)
	})
}

/*------------------------------------------------------------------
 *
 * Name:        Connect
 *
 * Purpose:     Open both channels and join the session.
 *
 * Description:	The priming datagram is how the SFU learns this
 *		client's UDP source address; its content is irrelevant
 *		and the peer's deserializer will reject it.
 *
 *----------------------------------------------------------------*/

func (c *Client) Connect() error {
	var tcpConn, tcpErr = net.Dial("tcp", c.TCPAddr)
	if tcpErr != nil {
		return fmt.Errorf("control channel connect: %w", tcpErr)
	}

	var raddr, resolveErr = net.ResolveUDPAddr("udp", c.UDPAddr)
	if resolveErr != nil {
		tcpConn.Close()
		return fmt.Errorf("data channel address: %w", resolveErr)
	}

	var udpConn, udpErr = net.DialUDP("udp", nil, raddr)
	if udpErr != nil {
		tcpConn.Close()
		return fmt.Errorf("data channel connect: %w", udpErr)
	}

	c.tcpConn = tcpConn
	c.tcpReader = bufio.NewReader(tcpConn)
	c.udpConn = udpConn

	if _, err := fmt.Fprintf(tcpConn, "JOIN %s\n", c.SessionID); err != nil {
		c.closeChannels()
		return fmt.Errorf("JOIN write: %w", err)
	}

	var reply, replyErr = c.tcpReader.ReadString('\n')
	if replyErr != nil {
		c.closeChannels()
		return fmt.Errorf("JOIN reply: %w", replyErr)
	}

	reply = strings.TrimSpace(reply)
	if !strings.HasPrefix(reply, "OK") {
		c.closeChannels()
		return fmt.Errorf("server refused JOIN: %q", reply)
	}

	if _, err := udpConn.Write([]byte("PING")); err != nil {
		c.closeChannels()
		return fmt.Errorf("priming datagram: %w", err)
	}

	c.connected.Set(true)
	c.logger.Info("joined", "session", c.SessionID, "server", c.TCPAddr, "local_udp", udpConn.LocalAddr())

	return nil
}

func (c *Client) closeChannels() {
	if c.tcpConn != nil {
		c.tcpConn.Close()
	}
	if c.udpConn != nil {
		c.udpConn.Close()
	}
}

// Run spawns the tasks and blocks until shutdown, then leaves the
// session cleanly.
func (c *Client) Run() error {
	var wg sync.WaitGroup

	wg.Add(4)
	go c.controlReaderTask(&wg)
	go c.producerTask(&wg)
	go c.senderTask(&wg)
	go c.rendererTask(&wg)

	// The quit-key watcher is best effort; without a controlling
	// terminal it simply doesn't run.
	if c.quitKey {
		wg.Add(1)
		go c.quitKeyTask(&wg)
	}

	<-c.done

	// Best-effort LEAVE; the server treats our EOF the same way.
	c.tcpConn.SetWriteDeadline(time.Now().Add(time.Second))
	fmt.Fprintf(c.tcpConn, "LEAVE\n")

	c.closeChannels()
	wg.Wait()

	c.logger.Info("session ended",
		"frames_sent", c.stats.framesSent.Load(),
		"frames_received", c.stats.framesReceived.Load(),
		"frames_dropped", c.stats.framesDropped.Load(),
		"send_failures", c.stats.sendFailures.Load(),
	)

	return nil
}

func (c *Client) controlReaderTask(wg *sync.WaitGroup) {
	defer wg.Done()
	defer c.Shutdown()

	for {
		var line, err = c.tcpReader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				c.logger.Debug("control channel read ended", "err", err)
			}
			return
		}

		switch strings.TrimSpace(line) {
		case "CONNECTED":
			c.logger.Info("peer connected")
			c.peerPresent.Set(true)
		case "DISCONNECTED":
			c.logger.Info("peer disconnected")
			c.peerPresent.Set(false)
		default:
			c.logger.Debug("unexpected control line", "line", strings.TrimSpace(line))
		}
	}
}

func (c *Client) producerTask(wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(c.frames)

	var camera *Camera
	var converter *AsciiConverter
	var img *ImageFrame

	if c.pattern == nil {
		var err error

		camera, err = NewCamera(c.video.CameraWidth, c.video.CameraHeight, c.video.FPS, c.cameraCmd)
		if err != nil {
			c.logger.Error("camera setup failed", "err", err)
			c.Shutdown()
			return
		}
		defer camera.Close()

		converter, err = NewAsciiConverter(c.video.CameraWidth, c.video.CameraHeight, c.video.ConverterConfig())
		if err != nil {
			c.logger.Error("converter setup failed", "err", err)
			c.Shutdown()
			return
		}
		defer converter.Close()

		img, _ = NewImageFrame(c.video.CameraWidth, c.video.CameraHeight, DefaultBytesPerPixel)
	}

	var interval = time.Second / time.Duration(c.video.FPS)
	var ticker = time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		// Nobody to send to yet; don't fill the channel with
		// frames that would be stale by the time the peer shows.
		if !c.peerPresent.Get() {
			continue
		}

		var frame *AsciiFrame
		if c.pattern != nil {
			frame = c.pattern.GenerateFrame()
		} else {
			if err := camera.CaptureFrame(img); err != nil {
				c.logger.Warn("dropped capture frame", "err", err)
				continue
			}

			frame, _ = NewAsciiFrame(c.video.AsciiWidth, c.video.AsciiHeight, ' ')
			if err := converter.Convert(img, frame); err != nil {
				c.logger.Warn("dropped frame in conversion", "err", err)
				continue
			}
		}

		PublishDropOldest(c.frames, frame)
	}
}

func (c *Client) senderTask(wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		if !c.peerPresent.AwaitTrue(c.done) {
			return
		}

		select {
		case <-c.done:
			return
		case frame, ok := <-c.frames:
			if !ok {
				return
			}

			if _, err := c.udpConn.Write(frame.Serialize()); err != nil {
				c.stats.sendFailures.Add(1)
				c.logger.Debug("frame send failed", "err", err)
				continue
			}

			c.stats.framesSent.Add(1)
		}
	}
}

/*------------------------------------------------------------------
 *
 * Name:        rendererTask
 *
 * Purpose:     Paced painting of received frames.
 *
 * Description:	Arrival is bursty and unordered; each cycle drains the
 *		socket without blocking and keeps only the newest frame
 *		that decodes.  The pacing target is always "now plus
 *		one interval" so a missed deadline costs exactly one
 *		late frame, not a growing debt.
 *
 *----------------------------------------------------------------*/

func (c *Client) rendererTask(wg *sync.WaitGroup) {
	defer wg.Done()

	var renderer = NewRenderer(c.renderOut)
	var interval = time.Second / time.Duration(c.video.FPS)
	var buf = make([]byte, maxDatagram)

	for {
		if !c.peerPresent.AwaitTrue(c.done) {
			return
		}

		var target = time.Now().Add(interval)

		// Drain whatever is queued.  The deadline has to sit
		// slightly in the future: an already-expired deadline
		// fails reads without delivering buffered datagrams.
		var latest *AsciiFrame
		c.udpConn.SetReadDeadline(time.Now().Add(2 * time.Millisecond))
		for {
			var n, err = c.udpConn.Read(buf)
			if err != nil {
				break // drained (timeout), or socket closed
			}

			var frame, decodeErr = DeserializeAsciiFrame(buf[:n])
			if decodeErr != nil {
				c.stats.framesDropped.Add(1)
				c.logger.Debug("dropped undecodable datagram", "len", n, "err", decodeErr)
				continue
			}

			latest = frame
		}

		select {
		case <-c.done:
			return
		default:
		}

		if latest != nil {
			c.stats.framesReceived.Add(1)
			if err := renderer.Render(latest); err != nil {
				c.logger.Warn("render failed", "err", err)
			}
		}

		var now = time.Now()
		if now.Before(target) {
			time.Sleep(target.Sub(now))
		} else {
			c.logger.Debug("render overran frame interval", "late", now.Sub(target))
		}
	}
}

// quitKeyTask watches the controlling terminal (raw mode) for 'q' or
// Ctrl-C while the terminal itself is busy displaying video.
func (c *Client) quitKeyTask(wg *sync.WaitGroup) {
	defer wg.Done()

	var tty, err = term.Open("/dev/tty", term.RawMode)
	if err != nil {
		c.logger.Debug("no controlling terminal, quit key disabled", "err", err)
		return
	}

	defer tty.Close()
	defer tty.Restore()

	tty.SetReadTimeout(250 * time.Millisecond)

	var buf = make([]byte, 1)
	for {
		select {
		case <-c.done:
			return
		default:
		}

		var n, readErr = tty.Read(buf)
		if readErr != nil || n == 0 {
			continue
		}

		if buf[0] == 'q' || buf[0] == 0x03 {
			c.logger.Info("quit requested from keyboard")
			c.Shutdown()
			return
		}
	}
}

/*------------------------------------------------------------------
 *
 * Name:        ClientMain
 *
 * Purpose:     Entry point for the asciicall binary.
 *
 *----------------------------------------------------------------*/

func ClientMain() {
	var tcpAddr = pflag.String("tcp-addr", DefaultClientTCPAddr, "SFU control channel address.")
	var udpAddr = pflag.String("udp-addr", DefaultClientUDPAddr, "SFU data channel address.")
	var sessionID = pflag.String("session-id", "", "Session to join; both parties give the same id.  Random if omitted.")
	var testPattern = pflag.String("test-pattern", "", "Send a synthetic pattern instead of camera video (checkerboard or moving-line).")
	var cameraCmd = pflag.String("camera-cmd", "", "Custom capture command writing raw RGB24 to stdout; replaces the built-in ffmpeg invocation.")
	var configPath = pflag.String("config", "", "Video profile YAML; searched for in standard locations if omitted.")
	var logFile = pflag.String("log-file", DefaultClientLogFile, "Log file path; strftime patterns are expanded.")
	var verbose = pflag.BoolP("verbose", "v", false, "Log at debug level.")
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

	var video, configErr = LoadVideoConfig(*configPath)
	if configErr != nil {
		fmt.Fprintf(os.Stderr, "bad configuration: %s\n", configErr)
		os.Exit(1)
	}

	var id = *sessionID
	if id == "" {
		id = fmt.Sprintf("session-%06d", rand.IntN(1000000))
		fmt.Printf("using random session id %s\n", id)
	}

	var client = NewClient(*tcpAddr, *udpAddr, id, video, logger)
	client.EnableQuitKey()

	if *testPattern != "" {
		var pattern, patternErr = ParsePatternType(*testPattern)
		if patternErr != nil {
			fmt.Fprintf(os.Stderr, "%s\n", patternErr)
			os.Exit(1)
		}

		var generator, generatorErr = NewMockFrameGenerator(video.AsciiWidth, video.AsciiHeight, pattern)
		if generatorErr != nil {
			fmt.Fprintf(os.Stderr, "%s\n", generatorErr)
			os.Exit(1)
		}

		client.UseTestPattern(generator)
	} else if *cameraCmd != "" {
		client.UseCameraCommand(*cameraCmd)
	} else {
		if banner, probeErr := ProbeFFmpeg(); probeErr != nil {
			fmt.Fprintf(os.Stderr, "%s\n", probeErr)
			os.Exit(1)
		} else {
			logger.Info("capture process available", "ffmpeg", banner)
		}
	}

	if err := client.Connect(); err != nil {
		logger.Error("startup failed", "err", err)
		fmt.Fprintf(os.Stderr, "startup failed: %s\n", err)
		os.Exit(1)
	}

	var sigs = make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		client.Shutdown()
	}()

	client.Run()
}
