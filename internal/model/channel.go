package model

import "fmt"

type Channel string

const (
	ChannelCall    Channel = "CALL"
	ChannelEmail   Channel = "EMAIL"
	ChannelQTrade  Channel = "QTRADE"
	ChannelIdeal   Channel = "IDEAL"
	ChannelTrading Channel = "TRADING"
)

// DefaultChannels are aggregated when configuration does not name any.
var DefaultChannels = []Channel{ChannelCall, ChannelEmail, ChannelQTrade, ChannelIdeal}

// ChannelKind knows how a channel exposes the external counterparty.
type ChannelKind interface {
	Name() Channel
	// ExternalIdentity returns the counterparty name, or false when the
	// channel or record carries none.
	ExternalIdentity(r Record) (string, bool)
}

type fieldKind struct {
	name  Channel
	field func(Record) string
}

func (k fieldKind) Name() Channel { return k.name }

func (k fieldKind) ExternalIdentity(r Record) (string, bool) {
	if k.field == nil {
		return "", false
	}
	v := k.field(r)
	return v, v != ""
}

var kinds = map[Channel]ChannelKind{
	ChannelCall:    fieldKind{name: ChannelCall},
	ChannelEmail:   fieldKind{name: ChannelEmail, field: func(r Record) string { return r.OtherUserName }},
	ChannelQTrade:  fieldKind{name: ChannelQTrade, field: func(r Record) string { return r.Receiver }},
	ChannelIdeal:   fieldKind{name: ChannelIdeal, field: func(r Record) string { return r.ToName }},
	ChannelTrading: fieldKind{name: ChannelTrading},
}

func LookupChannel(c Channel) (ChannelKind, error) {
	k, ok := kinds[c]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, string(c))
	}
	return k, nil
}

// ParseChannels converts configured names, rejecting unknown ones.
func ParseChannels(names []string) ([]Channel, error) {
	if len(names) == 0 {
		return append([]Channel(nil), DefaultChannels...), nil
	}
	out := make([]Channel, 0, len(names))
	for _, n := range names {
		c := Channel(n)
		if _, err := LookupChannel(c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
