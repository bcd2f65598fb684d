// Package naia is the public facade: it wires the wire codec, packet
// framer, ack tracker, RTT estimator, tick manager, message channels,
// command pipeline, handshake and replication manager/applier together
// into a Client and a Server, so an application only ever touches this
// package and the manifest it registers its own types under.
package naia

import "github.com/cBournhonesque/naia-go/internal/channel"

// ChannelKind identifies one of the five message-channel delivery
// disciplines every connection carries, one instance of each.
type ChannelKind uint8

const (
	ChannelUnorderedUnreliable ChannelKind = iota
	ChannelSequencedUnreliable
	ChannelUnorderedReliable
	ChannelSequencedReliable
	ChannelOrderedReliable

	numChannelKinds = int(ChannelOrderedReliable) + 1
)

// channelOrder fixes the wire order every Data packet's channel
// sections are written and read in. Both peers must agree on this
// order; it is not carried on the wire.
var channelOrder = [numChannelKinds]ChannelKind{
	ChannelUnorderedUnreliable,
	ChannelSequencedUnreliable,
	ChannelUnorderedReliable,
	ChannelSequencedReliable,
	ChannelOrderedReliable,
}

func (k ChannelKind) String() string {
	switch k {
	case ChannelUnorderedUnreliable:
		return "unordered_unreliable"
	case ChannelSequencedUnreliable:
		return "sequenced_unreliable"
	case ChannelUnorderedReliable:
		return "unordered_reliable"
	case ChannelSequencedReliable:
		return "sequenced_reliable"
	case ChannelOrderedReliable:
		return "ordered_reliable"
	default:
		return "unknown"
	}
}

// channelSet holds one instance of every delivery discipline for a
// single connection.
type channelSet struct {
	channels [numChannelKinds]channel.Channel
}

func newChannelSet() *channelSet {
	return &channelSet{channels: [numChannelKinds]channel.Channel{
		ChannelUnorderedUnreliable: channel.NewUnorderedUnreliable(),
		ChannelSequencedUnreliable: channel.NewSequencedUnreliable(),
		ChannelUnorderedReliable:   channel.NewUnorderedReliable(),
		ChannelSequencedReliable:   channel.NewSequencedReliable(),
		ChannelOrderedReliable:     channel.NewOrderedReliable(),
	}}
}

func (s *channelSet) get(kind ChannelKind) channel.Channel {
	return s.channels[kind]
}

// send queues payload on the given channel for the next outgoing packet.
func (s *channelSet) send(kind ChannelKind, payload []byte) {
	s.channels[kind].SendMessage(payload)
}
