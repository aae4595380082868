package notification

import (
	"time"

	"golang.org/x/text/language"
)

// Recipient is an addressable delivery target with per-channel capability
// and preference.
type Recipient struct {
	ID                 string                 `json:"id"`
	Name               string                 `json:"name"`
	Email              string                 `json:"email,omitempty"`
	PhoneNumber        string                 `json:"phone_number,omitempty"`
	DeviceToken        string                 `json:"device_token,omitempty"`
	WebhookURL         string                 `json:"webhook_url,omitempty"`
	SlackID            string                 `json:"slack_id,omitempty"`
	ChannelPreferences map[Channel]Preference `json:"channel_preferences,omitempty"`
	TimeZone           string                 `json:"time_zone,omitempty"`
	Language           string                 `json:"language,omitempty"`
}

// PreferenceFor returns the recipient's stated preference for the channel.
// Missing entries report PreferenceUnset.
func (r Recipient) PreferenceFor(ch Channel) Preference {
	if r.ChannelPreferences == nil {
		return PreferenceUnset
	}
	return r.ChannelPreferences[ch]
}

// CanReceive reports whether the recipient can be reached on the channel:
// the contact field the channel requires is present and the recipient has
// not opted out.
func (r Recipient) CanReceive(ch Channel) bool {
	if r.PreferenceFor(ch) == PreferenceOptOut {
		return false
	}
	switch ch {
	case ChannelEmail:
		return r.Email != ""
	case ChannelSMS:
		return r.PhoneNumber != ""
	case ChannelPush:
		return r.DeviceToken != ""
	case ChannelWebhook:
		return r.WebhookURL != ""
	case ChannelSlack:
		return r.SlackID != ""
	}
	return false
}

// Validate checks the recipient is addressable: it has an id and at
// least one channel contact field. Unparseable time zones and languages
// are not errors; they degrade to defaults at read time.
func (r Recipient) Validate() error {
	if r.ID == "" {
		return ErrMissingRecipientID
	}
	if r.Email == "" && r.PhoneNumber == "" && r.DeviceToken == "" && r.WebhookURL == "" && r.SlackID == "" {
		return ErrNoContactInfo
	}
	return nil
}

// Location resolves the recipient's time zone, falling back to UTC for
// empty or unparseable values.
func (r Recipient) Location() *time.Location {
	if r.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LanguageTag parses the recipient's language as a BCP 47 tag, falling
// back to English for empty or malformed values.
func (r Recipient) LanguageTag() language.Tag {
	if r.Language == "" {
		return language.English
	}
	tag, err := language.Parse(r.Language)
	if err != nil {
		return language.English
	}
	return tag
}

// clonePreferences deep-copies the preference map so copy-on-write
// notification mutations never alias recipient state.
func (r Recipient) clonePreferences() map[Channel]Preference {
	if r.ChannelPreferences == nil {
		return nil
	}
	out := make(map[Channel]Preference, len(r.ChannelPreferences))
	for ch, p := range r.ChannelPreferences {
		out[ch] = p
	}
	return out
}

// Clone returns an independent copy of the recipient.
func (r Recipient) Clone() Recipient {
	out := r
	out.ChannelPreferences = r.clonePreferences()
	return out
}
