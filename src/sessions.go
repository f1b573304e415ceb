package asciicall

/*------------------------------------------------------------------
 *
 * Purpose:   	In-memory registry of sessions and their members.
 *
 * Description:	A session is a named rendezvous holding up to two
 *		members.  Each member is known by its control (TCP)
 *		address and, once its first datagram arrives, by its
 *		learned data (UDP) address.  The manager keeps two
 *		secondary indexes so the relay loop can resolve a
 *		datagram source in O(1):
 *
 *			control addr -> session id
 *			data addr    -> control addr
 *
 *		One RWMutex guards everything, so the indexes can never
 *		be observed inconsistent with the sessions.  Notify
 *		channels are extracted under the lock but sent to
 *		outside it, so a slow client connection cannot block
 *		the manager.
 *
 *----------------------------------------------------------------*/

import (
	"net/netip"
	"sync"
)

// normalizeAddrPort strips any IPv4-in-IPv6 mapping so that a TCP
// remote address and a UDP source address for the same host compare
// equal.
func normalizeAddrPort(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

type NotifyKind int

const (
	NotifyConnect NotifyKind = iota
	NotifyDisconnect
	notifyFrame // reserved; frames never cross the control channel
)

// Notification crosses from the session manager to a member's control
// connection handler.
type Notification struct {
	Kind      NotifyKind
	SessionID string
}

type member struct {
	control netip.AddrPort
	notify  chan<- Notification
}

type Session struct {
	id      string
	clientA *member
	clientB *member
	udpA    *netip.AddrPort
	udpB    *netip.AddrPort

	// Latched when both data addresses are bound and CONNECTED has
	// gone out; cleared when a member leaves.
	connectedNotified bool
}

// addMember places a member in the first open slot.  Reports false
// when the session is full.
func (s *Session) addMember(m *member) bool {
	switch {
	case s.clientA == nil:
		s.clientA = m
	case s.clientB == nil:
		s.clientB = m
	default:
		return false
	}

	return true
}

func (s *Session) removeMember(control netip.AddrPort) {
	if s.clientA != nil && s.clientA.control == control {
		s.clientA = nil
		s.udpA = nil
	} else if s.clientB != nil && s.clientB.control == control {
		s.clientB = nil
		s.udpB = nil
	}

	s.connectedNotified = false
}

func (s *Session) empty() bool {
	return s.clientA == nil && s.clientB == nil
}

// peerNotify returns the notify channel of the other member.
func (s *Session) peerNotify(control netip.AddrPort) (chan<- Notification, bool) {
	if s.clientA != nil && s.clientA.control == control && s.clientB != nil {
		return s.clientB.notify, true
	}

	if s.clientB != nil && s.clientB.control == control && s.clientA != nil {
		return s.clientA.notify, true
	}

	return nil, false
}

// peerUDP returns the other member's bound data address.
func (s *Session) peerUDP(control netip.AddrPort) (netip.AddrPort, bool) {
	if s.clientA != nil && s.clientA.control == control {
		if s.udpB != nil {
			return *s.udpB, true
		}
		return netip.AddrPort{}, false
	}

	if s.clientB != nil && s.clientB.control == control {
		if s.udpA != nil {
			return *s.udpA, true
		}
	}

	return netip.AddrPort{}, false
}

// bindUDP records the data address for the member with the given
// control address.
func (s *Session) bindUDP(control netip.AddrPort, udp netip.AddrPort) {
	if s.clientA != nil && s.clientA.control == control {
		s.udpA = &udp
	} else if s.clientB != nil && s.clientB.control == control {
		s.udpB = &udp
	}
}

// unboundMember reports whether the member with the given control
// address is present and has no data address yet.
func (s *Session) unboundMember(control netip.AddrPort) bool {
	if s.clientA != nil && s.clientA.control == control {
		return s.udpA == nil
	}

	if s.clientB != nil && s.clientB.control == control {
		return s.udpB == nil
	}

	return false
}

func (s *Session) bothBound() bool {
	return s.udpA != nil && s.udpB != nil
}

type SessionManager struct {
	mu sync.RWMutex

	sessions     map[string]*Session
	controlToID  map[netip.AddrPort]string
	udpToControl map[netip.AddrPort]netip.AddrPort
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions:     map[string]*Session{},
		controlToID:  map[netip.AddrPort]string{},
		udpToControl: map[netip.AddrPort]netip.AddrPort{},
	}
}

// EnsureSession creates an empty session if none exists under id.
func (m *SessionManager) EnsureSession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		m.sessions[id] = &Session{id: id}
	}
}

// AddClient places the client in the session's first open slot.
// Reports false when the session is already full (or unknown).
func (m *SessionManager) AddClient(id string, control netip.AddrPort, notify chan<- Notification) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s, ok = m.sessions[id]
	if !ok {
		return false
	}

	if !s.addMember(&member{control: control, notify: notify}) {
		return false
	}

	m.controlToID[control] = id

	return true
}

/*------------------------------------------------------------------
 *
 * Name:        BindUnreliable
 *
 * Purpose:     Learn a member's data address from its first datagram.
 *
 * Description:	The client never declares its UDP port; NAT rewrites
 *		would make the declaration useless anyway.  Instead the
 *		first datagram's source address is matched against
 *		members whose control address shares the same host and
 *		whose data slot is still empty.  The match only binds
 *		when it is unambiguous: with zero or multiple
 *		candidates the address stays unbound and the datagram
 *		is dropped.  Clients prime immediately after JOIN, so
 *		in practice there is exactly one unbound member when
 *		the priming datagram lands.
 *
 * Returns:	true when the address is bound (now or previously).
 *
 *----------------------------------------------------------------*/

func (m *SessionManager) BindUnreliable(udp netip.AddrPort) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.udpToControl[udp]; ok {
		return true // already bound; idempotent
	}

	var candidate netip.AddrPort
	var candidateID string
	var count int

	for control, id := range m.controlToID {
		if control.Addr() != udp.Addr() {
			continue
		}

		var s, ok = m.sessions[id]
		if !ok || !s.unboundMember(control) {
			continue
		}

		candidate = control
		candidateID = id
		count++
	}

	if count != 1 {
		return false
	}

	m.sessions[candidateID].bindUDP(candidate, udp)
	m.udpToControl[udp] = candidate

	return true
}

// PeerUnreliableOf maps a member's data address to its peer's bound
// data address.
func (m *SessionManager) PeerUnreliableOf(udp netip.AddrPort) (netip.AddrPort, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var control, ok = m.udpToControl[udp]
	if !ok {
		return netip.AddrPort{}, false
	}

	var id, idOK = m.controlToID[control]
	if !idOK {
		return netip.AddrPort{}, false
	}

	var s, sOK = m.sessions[id]
	if !sOK {
		return netip.AddrPort{}, false
	}

	return s.peerUDP(control)
}

func (m *SessionManager) ControlForUnreliable(udp netip.AddrPort) (netip.AddrPort, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var control, ok = m.udpToControl[udp]

	return control, ok
}

func (m *SessionManager) SessionIDFor(control netip.AddrPort) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var id, ok = m.controlToID[control]

	return id, ok
}

// NotifyPeer enqueues msg to the peer of the member with the given
// control address.  The channel send happens outside the lock.
func (m *SessionManager) NotifyPeer(control netip.AddrPort, msg Notification) {
	m.mu.RLock()
	var notify chan<- Notification
	if id, ok := m.controlToID[control]; ok {
		if s, sOK := m.sessions[id]; sOK {
			notify, _ = s.peerNotify(control)
		}
	}
	m.mu.RUnlock()

	if notify != nil {
		// Channels are buffered well beyond the handful of control
		// messages a session can see; never block the caller on a
		// handler that has stopped draining.
		select {
		case notify <- msg:
		default:
		}
	}
}

// MarkConnected latches the one-shot CONNECTED delivery for a session.
func (m *SessionManager) MarkConnected(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.connectedNotified = true
	}
}

func (m *SessionManager) IsConnected(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s, ok = m.sessions[id]

	return ok && s.connectedNotified
}

// RemoveClient takes the member out of its session, drops both index
// entries, and destroys the session if it just became empty.
func (m *SessionManager) RemoveClient(control netip.AddrPort) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var id, ok = m.controlToID[control]
	if !ok {
		return
	}

	delete(m.controlToID, control)

	for udp, c := range m.udpToControl {
		if c == control {
			delete(m.udpToControl, udp)
		}
	}

	var s, sOK = m.sessions[id]
	if !sOK {
		return
	}

	s.removeMember(control)
	if s.empty() {
		delete(m.sessions, id)
	}
}
