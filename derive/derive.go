// Package derive computes the congestion indicators shown on the dashboard.
// Every function is total and free of side effects.
package derive

import (
	"strings"

	"aethermon/snapshot"
)

// IPCMarker identifies shared-memory channels.
const IPCMarker = "aeron:ipc"

// IsIPC reports whether channel is an in-process channel. IPC channels have
// no sender or receiver stage, so those fields are never shown for them.
func IsIPC(channel string) bool {
	return strings.Contains(channel, IPCMarker)
}

func IsBackPressured(p *snapshot.PublisherView) bool {
	return p != nil && p.BackPressureEvents != 0
}

func IsBacklogged(p *snapshot.PublisherView) bool {
	return p != nil && p.SendBacklog != 0
}

// AvailableBytes returns how far a subscription registration trails its
// reference position: the publisher position on IPC, the receiver position
// otherwise. A registration the subscriber does not report reads as
// position 0. The result is never negative.
func AvailableBytes(ipc bool, publisherPosition int64, sub *snapshot.SubscriberView, registration string) int64 {
	ref := publisherPosition
	var pos int64
	if sub != nil {
		if !ipc {
			ref = sub.ReceiverPosition
		}
		pos, _ = sub.SubscriberPositions.Get(registration)
	} else if !ipc {
		ref = 0
	}
	if avail := ref - pos; avail > 0 {
		return avail
	}
	return 0
}

func IsUnread(available int64) bool {
	return available > 0
}
