package asciicall

/*------------------------------------------------------------------
 *
 * Purpose:   	Announce the SFU control port via DNS-SD.
 *
 * Description:	Nobody enjoys typing IP addresses and ports; a client
 *		on the same network can discover an advertised SFU with
 *		any mDNS browser.  Announcement is opt-in (--dns-sd)
 *		because an SFU on a public host has nothing useful to
 *		multicast.
 *
 *----------------------------------------------------------------*/

import (
	"context"
	"net"
	"os"
	"strings"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

const dnsSDServiceType = "_asciicall._tcp"

// dnsSDDefaultName is "asciicall SFU on <hostname>", or just
// "asciicall SFU" when the hostname is unavailable.
func dnsSDDefaultName() string {
	var hostname, err = os.Hostname()
	if err != nil {
		return "asciicall SFU"
	}

	// Some systems return an FQDN; drop the domain part.
	hostname, _, _ = strings.Cut(hostname, ".")

	return "asciicall SFU on " + hostname
}

func announceDNSSD(ctx context.Context, tcpAddr net.Addr, logger *log.Logger) {
	var addr, ok = tcpAddr.(*net.TCPAddr)
	if !ok {
		logger.Warn("DNS-SD: control address is not TCP, not announcing")
		return
	}

	var service, serviceErr = dnssd.NewService(dnssd.Config{
		Name: dnsSDDefaultName(),
		Type: dnsSDServiceType,
		Port: addr.Port,
	})
	if serviceErr != nil {
		logger.Warn("DNS-SD: service setup failed", "err", serviceErr)
		return
	}

	var responder, responderErr = dnssd.NewResponder()
	if responderErr != nil {
		logger.Warn("DNS-SD: responder setup failed", "err", responderErr)
		return
	}

	if _, err := responder.Add(service); err != nil {
		logger.Warn("DNS-SD: announce failed", "err", err)
		return
	}

	logger.Info("DNS-SD: announcing", "name", service.Name, "type", dnsSDServiceType, "port", addr.Port)

	if err := responder.Respond(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("DNS-SD: responder stopped", "err", err)
	}
}
