package members

import "time"

// BillableSeats computes the billable seat count from current
// membership rows. It is evaluated live on every sync, never cached
// as a mutable counter, so a disabled seat drops out of the count
// automatically once its paid term lapses.
//
// A seat is billable when it is not the owner's and it is active,
// pending (charged at invite time, so delaying acceptance does not
// delay billing), or disabled with its paid term still running.
func BillableSeats(rows []*Membership, now time.Time) int64 {
	var n int64
	for _, m := range rows {
		if m.IsOwner {
			continue
		}
		switch m.Status {
		case StatusActive, StatusPending:
			n++
		case StatusDisabled:
			if m.SeatBillingEndsAt != nil && m.SeatBillingEndsAt.After(now) {
				n++
			}
		}
	}
	return n
}
