package notification

// Channel represents a delivery medium.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
	ChannelSlack   Channel = "slack"
)

// AllChannels lists the supported channels in stable selection order.
// Channel selection and failover iterate this order when no stronger
// preference applies.
var AllChannels = []Channel{
	ChannelEmail,
	ChannelSMS,
	ChannelPush,
	ChannelWebhook,
	ChannelSlack,
}

// IsValid reports whether the channel is one of the supported media.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook, ChannelSlack:
		return true
	}
	return false
}

func (c Channel) String() string {
	return string(c)
}

// Preference expresses how strongly a recipient wants a given channel.
// The zero value means the recipient stated no preference.
type Preference int

const (
	PreferenceUnset Preference = iota
	PreferencePrimary
	PreferencePreferred
	PreferenceAllowed
	PreferenceOptOut
)

func (p Preference) String() string {
	switch p {
	case PreferencePrimary:
		return "primary"
	case PreferencePreferred:
		return "preferred"
	case PreferenceAllowed:
		return "allowed"
	case PreferenceOptOut:
		return "opt_out"
	default:
		return "unset"
	}
}
