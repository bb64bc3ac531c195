// Package network is the peer-bank relay of spec.md's supplemented
// networking layer: banks exchange promissory notes for hand-in and
// redemption over plain TCP, in the same fixed-command-then-gob-payload
// shape the teacher's P2P node uses for blocks and transactions
// (network/network.go in the original), but carrying notes instead of
// blocks and settling against a bank.Bank instead of mining one.
package network

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net"
	"os"
	"sync"
	"syscall"

	"github.com/vrecan/death/v3"

	"github.com/offlinecheck/checkbook/checkbook/bank"
	"github.com/offlinecheck/checkbook/checkbook/note"
	"github.com/offlinecheck/checkbook/persistence/ledger"
)

const (
	protocol      = "tcp"
	commandLength = 12
)

// NoteSubmission carries a note and the requested settlement action
// ("handin" or "redeem") from a peer relay.
type NoteSubmission struct {
	AddrFrom string
	Action   string
	NoteWire []byte
}

// Ack reports the outcome of a NoteSubmission back to the sender.
type Ack struct {
	OK    bool
	Error string
}

// CmdToBytes pads cmd into a fixed commandLength byte header.
func CmdToBytes(cmd string) []byte {
	var b [commandLength]byte
	copy(b[:], cmd)
	return b[:]
}

// BytesToCmd strips the zero padding CmdToBytes added.
func BytesToCmd(b []byte) string {
	var cmd []byte
	for _, c := range b {
		if c != 0x0 {
			cmd = append(cmd, c)
		}
	}
	return string(cmd)
}

// Relay is one bank's network-facing side: its settlement state and the
// peers it knows about.
type Relay struct {
	Address string
	Bank    *bank.Bank
	Store   *ledger.Store

	mu         sync.Mutex
	knownPeers []string
	seen       map[string]bool
}

// NewRelay constructs a relay bound to address for b, optionally mirroring
// settlement state to store after every submission.
func NewRelay(address string, b *bank.Bank, store *ledger.Store) *Relay {
	return &Relay{Address: address, Bank: b, Store: store}
}

// AddPeer registers a peer relay address to gossip submissions to.
func (r *Relay) AddPeer(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.knownPeers {
		if p == addr {
			return
		}
	}
	r.knownPeers = append(r.knownPeers, addr)
}

func gobEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SendNote submits a note to a peer relay for the given action and
// returns its acknowledgement.
func SendNote(addr, action string, noteWire []byte, from string) (Ack, error) {
	payload, err := gobEncode(NoteSubmission{AddrFrom: from, Action: action, NoteWire: noteWire})
	if err != nil {
		return Ack{}, err
	}
	request := append(CmdToBytes("note"), payload...)

	conn, err := net.Dial(protocol, addr)
	if err != nil {
		return Ack{}, fmt.Errorf("network: %s unreachable: %w", addr, err)
	}
	defer conn.Close()

	if _, err := io.Copy(conn, bytes.NewReader(request)); err != nil {
		return Ack{}, err
	}
	if err := conn.(*net.TCPConn).CloseWrite(); err != nil {
		return Ack{}, err
	}

	reply, err := ioutil.ReadAll(conn)
	if err != nil {
		return Ack{}, err
	}
	var ack Ack
	if err := gob.NewDecoder(bytes.NewReader(reply)).Decode(&ack); err != nil {
		return Ack{}, err
	}
	return ack, nil
}

// HandleConnection dispatches one incoming connection to the relay's
// command handlers and writes back an Ack.
func (r *Relay) HandleConnection(conn net.Conn) {
	defer conn.Close()
	req, err := ioutil.ReadAll(conn)
	if err != nil {
		log.Println("network: read error:", err)
		return
	}
	if len(req) < commandLength {
		return
	}

	command := BytesToCmd(req[:commandLength])
	var ack Ack
	switch command {
	case "note":
		ack = r.handleNote(req)
	default:
		ack = Ack{OK: false, Error: "unknown command"}
	}

	reply, err := gobEncode(ack)
	if err != nil {
		log.Println("network: encode error:", err)
		return
	}
	if _, err := conn.Write(reply); err != nil {
		log.Println("network: write error:", err)
	}
}

// submissionKey identifies a NoteSubmission by its payload alone, not its
// sender, so the same note gossiped in from two different peers dedupes
// to one entry in r.seen.
func submissionKey(payload NoteSubmission) string {
	return payload.Action + "\x00" + string(payload.NoteWire)
}

func (r *Relay) handleNote(req []byte) Ack {
	var payload NoteSubmission
	if err := gob.NewDecoder(bytes.NewReader(req[commandLength:])).Decode(&payload); err != nil {
		return Ack{OK: false, Error: err.Error()}
	}

	n, rest, err := note.DecodeNote(payload.NoteWire)
	if err != nil {
		return Ack{OK: false, Error: err.Error()}
	}
	if len(rest) != 0 {
		return Ack{OK: false, Error: "trailing bytes in note"}
	}

	// A note gossiped in from two peers (or looped back by a third) must
	// not be applied twice: redeem in particular raises Fraud on a second
	// application of the same note, so a duplicate submission is acked
	// and dropped here rather than replayed against the bank.
	key := submissionKey(payload)
	r.mu.Lock()
	if r.seen == nil {
		r.seen = make(map[string]bool)
	}
	if r.seen[key] {
		r.mu.Unlock()
		return Ack{OK: true}
	}
	r.seen[key] = true
	r.mu.Unlock()

	switch payload.Action {
	case "handin":
		err = r.Bank.HandInPromissoryNote(n)
	case "redeem":
		err = r.Bank.RedeemPromissoryNote(n)
	default:
		return Ack{OK: false, Error: "unknown action"}
	}
	if err != nil {
		return Ack{OK: false, Error: err.Error()}
	}

	if r.Store != nil {
		if err := r.Store.SaveBank(r.Bank); err != nil {
			return Ack{OK: false, Error: err.Error()}
		}
	}

	r.forward(payload)
	return Ack{OK: true}
}

// forward relays an accepted submission on to every other known peer, the
// same broadcast-to-known-nodes shape the teacher's HandleTx/MineTx use
// (network/network.go), skipping the peer we received it from so a
// two-bank gossip doesn't bounce a submission straight back.
func (r *Relay) forward(payload NoteSubmission) {
	r.mu.Lock()
	peers := append([]string(nil), r.knownPeers...)
	r.mu.Unlock()

	for _, p := range peers {
		if p == payload.AddrFrom || p == r.Address {
			continue
		}
		if _, err := SendNote(p, payload.Action, payload.NoteWire, r.Address); err != nil {
			log.Println("network: forward to", p, "failed:", err)
		}
	}
}

// waitForDeath installs a SIGINT/SIGTERM handler that closes the relay's
// ledger store before exiting, the same vrecan/death wiring the teacher
// uses to close its Badger handle on shutdown (network/network.go,
// CloseDB).
func (r *Relay) waitForDeath() {
	d := death.NewDeath(syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	d.WaitForDeathWithFunc(func() {
		if r.Store != nil {
			r.Store.Close()
		}
		os.Exit(0)
	})
}

// Serve listens on r.Address and handles connections until the process
// receives a shutdown signal.
func (r *Relay) Serve() error {
	ln, err := net.Listen(protocol, r.Address)
	if err != nil {
		return err
	}
	defer ln.Close()

	go r.waitForDeath()

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Println("network: accept error:", err)
			continue
		}
		go r.HandleConnection(conn)
	}
}
