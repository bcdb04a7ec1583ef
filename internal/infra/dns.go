// Package infra provides the network building blocks of the client: non-blocking
// sockets, the DNS wire codec, the address cache and body decoding.
package infra

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"golang.org/x/net/dns/dnsmessage"
)

// DNSPort is the standard DNS port.
const DNSPort = 53

// maxDNSPacketSize is the largest reply accepted over UDP without EDNS(0).
const maxDNSPacketSize = 512

var (
	// ErrNoAddresses is returned when a reply carries no usable address record.
	ErrNoAddresses = errors.New("no address records in reply")
	// ErrIDMismatch is returned for a reply to some other query.
	ErrIDMismatch = errors.New("reply transaction id does not match query")
)

// MaxDNSPacketSize returns the receive buffer size needed for a UDP reply.
func MaxDNSPacketSize() int {
	return maxDNSPacketSize
}

// BuildQuery encodes a recursive query for the A records of host.
func BuildQuery(id uint16, host string) ([]byte, error) {
	name, err := dnsmessage.NewName(strings.TrimSuffix(host, ".") + ".")
	if err != nil {
		return nil, fmt.Errorf("invalid host name %q: %w", host, err)
	}

	b := dnsmessage.NewBuilder(make([]byte, 0, maxDNSPacketSize), dnsmessage.Header{
		ID:               id,
		RecursionDesired: true,
	})
	if err := b.StartQuestions(); err != nil {
		return nil, fmt.Errorf("failed to start questions: %w", err)
	}
	if err := b.Question(dnsmessage.Question{
		Name:  name,
		Type:  dnsmessage.TypeA,
		Class: dnsmessage.ClassINET,
	}); err != nil {
		return nil, fmt.Errorf("failed to add question for %q: %w", host, err)
	}

	msg, err := b.Finish()
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}
	return msg, nil
}

// ParseAddressAnswers extracts the IPv4 addresses of every A/IN answer in a
// reply to the query with the given id. Other record types, such as the
// CNAME records of an alias chain, are skipped. A reply cut short after at
// least one address still yields the addresses read so far.
func ParseAddressAnswers(msg []byte, id uint16) ([]netip.Addr, error) {
	var p dnsmessage.Parser

	header, err := p.Start(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reply header: %w", err)
	}
	if header.ID != id {
		return nil, ErrIDMismatch
	}
	if !header.Response {
		return nil, errors.New("received non-response packet")
	}
	if header.RCode != dnsmessage.RCodeSuccess {
		return nil, fmt.Errorf("resolver returned %s", header.RCode)
	}

	if err := p.SkipAllQuestions(); err != nil {
		return nil, fmt.Errorf("failed to skip questions: %w", err)
	}

	var addrs []netip.Addr
	truncated := func(err error) ([]netip.Addr, error) {
		if len(addrs) > 0 {
			return addrs, nil
		}
		return nil, err
	}
	for {
		ah, err := p.AnswerHeader()
		if err == dnsmessage.ErrSectionDone {
			break
		}
		if err != nil {
			return truncated(fmt.Errorf("failed to parse answer header: %w", err))
		}

		if ah.Type != dnsmessage.TypeA || ah.Class != dnsmessage.ClassINET {
			if err := p.SkipAnswer(); err != nil {
				return truncated(fmt.Errorf("failed to skip answer: %w", err))
			}
			continue
		}

		r, err := p.AResource()
		if err != nil {
			return truncated(fmt.Errorf("failed to parse A record: %w", err))
		}
		addrs = append(addrs, netip.AddrFrom4(r.A))
	}

	if len(addrs) == 0 {
		return nil, ErrNoAddresses
	}
	return addrs, nil
}
