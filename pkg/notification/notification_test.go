package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClone_Independence(t *testing.T) {
	t.Parallel()

	orig := Notification{
		ID:       "n1",
		TenantID: "t1",
		Subject:  "original",
		Recipients: []Recipient{
			{ID: "r1", Email: "a@example.com", ChannelPreferences: map[Channel]Preference{ChannelEmail: PreferencePrimary}},
		},
		PreferredChannels: []Channel{ChannelEmail},
		TemplateVariables: map[string]string{"name": "Ann"},
		Metadata:          map[string]any{"source": "api"},
	}

	clone := orig.Clone()
	clone.Recipients[0].Email = "b@example.com"
	clone.Recipients[0].ChannelPreferences[ChannelEmail] = PreferenceOptOut
	clone.PreferredChannels[0] = ChannelSMS
	clone.TemplateVariables["name"] = "Bob"
	clone.Metadata["source"] = "queue"

	assert.Equal(t, "a@example.com", orig.Recipients[0].Email)
	assert.Equal(t, PreferencePrimary, orig.Recipients[0].ChannelPreferences[ChannelEmail])
	assert.Equal(t, ChannelEmail, orig.PreferredChannels[0])
	assert.Equal(t, "Ann", orig.TemplateVariables["name"])
	assert.Equal(t, "api", orig.Metadata["source"])
}

func TestWithHelpers_PreserveID(t *testing.T) {
	t.Parallel()

	orig := Notification{ID: "stable", Subject: "a", Priority: PriorityLow}

	mutated := orig.
		WithSubject("b").
		WithContent("body").
		WithPriority(PriorityCritical).
		WithMetadata("k", "v").
		WithScheduledFor(time.Now().Add(time.Hour))

	assert.Equal(t, "stable", mutated.ID)
	assert.Equal(t, "b", mutated.Subject)
	assert.Equal(t, PriorityCritical, mutated.Priority)
	// Original untouched.
	assert.Equal(t, "a", orig.Subject)
	assert.Equal(t, PriorityLow, orig.Priority)
	assert.Nil(t, orig.ScheduledFor)
}

func TestAddRecipients_UnionByID(t *testing.T) {
	t.Parallel()

	n := Notification{Recipients: []Recipient{{ID: "r1"}, {ID: "r2"}}}
	out := n.AddRecipients(Recipient{ID: "r2"}, Recipient{ID: "r3"})

	require.Len(t, out.Recipients, 3)
	assert.Equal(t, "r1", out.Recipients[0].ID)
	assert.Equal(t, "r2", out.Recipients[1].ID)
	assert.Equal(t, "r3", out.Recipients[2].ID)
	assert.Len(t, n.Recipients, 2)
}

func TestRemoveRecipients(t *testing.T) {
	t.Parallel()

	n := Notification{Recipients: []Recipient{{ID: "r1"}, {ID: "r2"}, {ID: "r3"}}}
	out := n.RemoveRecipients("r2", "missing")

	require.Len(t, out.Recipients, 2)
	assert.Equal(t, "r1", out.Recipients[0].ID)
	assert.Equal(t, "r3", out.Recipients[1].ID)
}

func TestIsDue(t *testing.T) {
	t.Parallel()

	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, Notification{}.IsDue(now))
	assert.True(t, Notification{ScheduledFor: &past}.IsDue(now))
	assert.False(t, Notification{ScheduledFor: &future}.IsDue(now))
}

func TestRecipient_CanReceive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		recipient Recipient
		channel   Channel
		want      bool
	}{
		{
			name:      "email with address",
			recipient: Recipient{Email: "a@example.com"},
			channel:   ChannelEmail,
			want:      true,
		},
		{
			name:      "email without address",
			recipient: Recipient{},
			channel:   ChannelEmail,
			want:      false,
		},
		{
			name: "opted out despite address",
			recipient: Recipient{
				Email:              "a@example.com",
				ChannelPreferences: map[Channel]Preference{ChannelEmail: PreferenceOptOut},
			},
			channel: ChannelEmail,
			want:    false,
		},
		{
			name:      "sms with phone",
			recipient: Recipient{PhoneNumber: "+123456789"},
			channel:   ChannelSMS,
			want:      true,
		},
		{
			name:      "push without token",
			recipient: Recipient{},
			channel:   ChannelPush,
			want:      false,
		},
		{
			name:      "webhook with url",
			recipient: Recipient{WebhookURL: "https://example.com/hook"},
			channel:   ChannelWebhook,
			want:      true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.recipient.CanReceive(tt.channel))
		})
	}
}

func TestRecipient_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Recipient{ID: "r1", Email: "a@example.com"}.Validate())
	assert.NoError(t, Recipient{ID: "r1", SlackID: "U123"}.Validate())
	assert.ErrorIs(t, Recipient{Email: "a@example.com"}.Validate(), ErrMissingRecipientID)
	assert.ErrorIs(t, Recipient{ID: "r1"}.Validate(), ErrNoContactInfo)
}

func TestRecipient_LocationAndLanguage(t *testing.T) {
	t.Parallel()

	r := Recipient{TimeZone: "Europe/Berlin", Language: "de"}
	assert.Equal(t, "Europe/Berlin", r.Location().String())
	assert.Equal(t, "de", r.LanguageTag().String())

	bad := Recipient{TimeZone: "Nowhere/Invalid", Language: "???"}
	assert.Equal(t, time.UTC, bad.Location())
	assert.Equal(t, "en", bad.LanguageTag().String())
}

func TestState_Transitions(t *testing.T) {
	t.Parallel()

	assert.True(t, StatePending.CanTransitionTo(StateProcessing))
	assert.True(t, StateScheduled.CanTransitionTo(StateCancelled))
	assert.True(t, StateProcessing.CanTransitionTo(StateDelivered))
	assert.True(t, StateFailed.CanTransitionTo(StateProcessing))
	assert.True(t, StateDelivered.CanTransitionTo(StateAcknowledged))

	assert.False(t, StateDelivered.CanTransitionTo(StateProcessing))
	assert.False(t, StateCancelled.CanTransitionTo(StateProcessing))
	assert.False(t, StateAcknowledged.CanTransitionTo(StateFailed))
}

func TestParsePriority(t *testing.T) {
	t.Parallel()

	p, ok := ParsePriority("Critical")
	assert.True(t, ok)
	assert.Equal(t, PriorityCritical, p)

	_, ok = ParsePriority("bogus")
	assert.False(t, ok)

	assert.True(t, PriorityCritical > PriorityHigh)
	assert.True(t, PriorityHigh > PriorityNormal)
}
