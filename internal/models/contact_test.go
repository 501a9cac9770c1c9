package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestContactIdentity(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	sfdc, amoUser, fxaID, fxaEmail := "sfdc-1", "amo-42", "fxa-9", "fxa@example.com"

	tests := []struct {
		name    string
		contact Contact
		want    Identity
	}{
		{
			name:    "email only",
			contact: Contact{Email: Email{EmailID: id, PrimaryEmail: "a@example.com"}},
			want:    Identity{EmailID: id, PrimaryEmail: "a@example.com"},
		},
		{
			name: "all sub-entities",
			contact: Contact{
				Email:  Email{EmailID: id, PrimaryEmail: "a@example.com", SfdcID: &sfdc},
				AddOns: &AddOns{UserID: &amoUser},
				FxA:    &FirefoxAccount{FxaID: &fxaID, PrimaryEmail: &fxaEmail},
			},
			want: Identity{
				EmailID:         id,
				PrimaryEmail:    "a@example.com",
				SfdcID:          &sfdc,
				AmoUserID:       &amoUser,
				FxaID:           &fxaID,
				FxaPrimaryEmail: &fxaEmail,
			},
		},
		{
			name: "fxa present without keys",
			contact: Contact{
				Email: Email{EmailID: id},
				FxA:   &FirefoxAccount{},
			},
			want: Identity{EmailID: id},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.contact.Identity())
		})
	}
}

func TestContactNewsletter(t *testing.T) {
	t.Parallel()

	c := Contact{Newsletters: []Newsletter{{Name: "firefox-news"}, {Name: "hubs", Subscribed: true}}}

	n, ok := c.Newsletter("hubs")
	assert.True(t, ok)
	assert.True(t, n.Subscribed)

	_, ok = c.Newsletter("miti")
	assert.False(t, ok)
}

func TestPendingRecordDormant(t *testing.T) {
	t.Parallel()

	assert.False(t, PendingRecord{Retry: 2}.Dormant(3))
	assert.True(t, PendingRecord{Retry: 3}.Dormant(3))
	assert.True(t, PendingRecord{Retry: 4}.Dormant(3))
}
