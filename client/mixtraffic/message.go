// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package mixtraffic

import (
	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/core/packet"
)

// MixMessage is a packet paired with the address of its first hop.
type MixMessage struct {
	Address addressing.RoutingAddress
	Packet  *packet.Packet
}

// NewMixMessage returns a MixMessage for pkt.
func NewMixMessage(address addressing.RoutingAddress, pkt *packet.Packet) MixMessage {
	return MixMessage{
		Address: address,
		Packet:  pkt,
	}
}
