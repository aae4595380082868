package dispatch

import (
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// SelectChannel picks the best delivery channel for one recipient.
//
// Preference order:
//  1. Channels the recipient marked Primary or Preferred that the
//     recipient can actually receive on, restricted to the notification's
//     preferred channels when it states any.
//  2. Any notification-preferred channel the recipient can receive on.
//  3. Any channel at all the recipient can receive on.
//
// Returns false when nothing qualifies. That is a per-recipient delivery
// failure cause, not an error.
func SelectChannel(n notification.Notification, r notification.Recipient) (notification.Channel, bool) {
	wanted := make(map[notification.Channel]struct{}, len(n.PreferredChannels))
	for _, ch := range n.PreferredChannels {
		wanted[ch] = struct{}{}
	}

	// Tier 1: recipient's own favorites, Primary before Preferred.
	for _, want := range []notification.Preference{notification.PreferencePrimary, notification.PreferencePreferred} {
		for _, ch := range notification.AllChannels {
			if r.PreferenceFor(ch) != want || !r.CanReceive(ch) {
				continue
			}
			if len(wanted) > 0 {
				if _, ok := wanted[ch]; !ok {
					continue
				}
			}
			return ch, true
		}
	}

	// Tier 2: whatever the notification prefers, in its stated order.
	for _, ch := range n.PreferredChannels {
		if r.CanReceive(ch) {
			return ch, true
		}
	}

	// Tier 3: anything reachable.
	for _, ch := range notification.AllChannels {
		if r.CanReceive(ch) {
			return ch, true
		}
	}

	return "", false
}
