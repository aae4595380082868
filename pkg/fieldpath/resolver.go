package fieldpath

import (
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// accessors maps lower-cased field names to typed getters. A table of
// closures keeps resolution reflection-free: unknown segments resolve to
// "absent" instead of erroring.
var accessors = map[string]func(n *notification.Notification) any{
	"id":         func(n *notification.Notification) any { return n.ID },
	"tenantid":   func(n *notification.Notification) any { return n.TenantID },
	"eventtype":  func(n *notification.Notification) any { return n.EventType },
	"priority":   func(n *notification.Notification) any { return n.Priority },
	"subject":    func(n *notification.Notification) any { return n.Subject },
	"content":    func(n *notification.Notification) any { return n.Content },
	"templateid": func(n *notification.Notification) any { return n.TemplateID },
	"scheduledfor": func(n *notification.Notification) any {
		if n.ScheduledFor == nil {
			return nil
		}
		return *n.ScheduledFor
	},
	"recipientcount": func(n *notification.Notification) any { return len(n.Recipients) },
	"metadata": func(n *notification.Notification) any {
		if n.Metadata == nil {
			return nil
		}
		return n.Metadata
	},
	"deliveryoptions": func(n *notification.Notification) any { return n.DeliveryOptions },
}

var optionAccessors = map[string]func(o notification.DeliveryOptions) any{
	"maxattempts":      func(o notification.DeliveryOptions) any { return o.MaxAttempts },
	"escalationdelay":  func(o notification.DeliveryOptions) any { return o.EscalationDelay },
	"enableescalation": func(o notification.DeliveryOptions) any { return o.EnableEscalation },
}

// Resolve walks a dotted path against a notification. Each leading
// segment is matched case-insensitively against the known fields first,
// then falls back to the metadata bag. Trailing segments descend into
// map values. The boolean reports presence: a path that resolves to an
// explicit nil metadata entry is present with a nil value, while an
// unknown path is absent.
func Resolve(n *notification.Notification, path string) (any, bool) {
	if n == nil || path == "" {
		return nil, false
	}

	segments := strings.Split(path, ".")
	head := strings.ToLower(segments[0])

	var current any
	switch {
	case head == "deliveryoptions" && len(segments) > 1:
		getter, ok := optionAccessors[strings.ToLower(segments[1])]
		if !ok {
			return nil, false
		}
		return descend(getter(n.DeliveryOptions), segments[2:])
	default:
		if getter, ok := accessors[head]; ok {
			current = getter(n)
			return descend(current, segments[1:])
		}
		// Unknown field name: fall back to the metadata bag.
		v, ok := metadataLookup(n.Metadata, segments[0])
		if !ok {
			return nil, false
		}
		return descend(v, segments[1:])
	}
}

// descend walks remaining segments through nested map values.
func descend(current any, segments []string) (any, bool) {
	for _, seg := range segments {
		switch m := current.(type) {
		case map[string]any:
			v, ok := metadataLookup(m, seg)
			if !ok {
				return nil, false
			}
			current = v
		case map[string]string:
			v, ok := stringMapLookup(m, seg)
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	return current, true
}

// metadataLookup prefers an exact key match, then falls back to a
// case-insensitive scan so rule authors do not need to mirror the exact
// casing producers used.
func metadataLookup(m map[string]any, key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func stringMapLookup(m map[string]string, key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
