package mapper_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/ctms-sync/internal/mapper"
	"github.com/Guizzs26/ctms-sync/internal/models"
)

func ptr[T any](v T) *T { return &v }

var emailID = uuid.MustParse("93db83d4-4119-4e0c-af87-a713786fa81d")

func sample() models.Contact {
	created := time.Date(2020, 3, 28, 15, 41, 0, 0, time.UTC)
	return models.Contact{
		Email: models.Email{
			EmailID:         emailID,
			PrimaryEmail:    " Jane@Example.com ",
			DoubleOptIn:     true,
			FirstName:       ptr("Jose\u0301"),
			MailingCountry:  ptr("us"),
			EmailFormat:     "H",
			EmailLang:       ptr("en"),
			CreateTimestamp: created,
			UpdateTimestamp: created.Add(time.Hour),
		},
		Newsletters: []models.Newsletter{
			{Name: "mozilla-and-you", Subscribed: true, Format: "H", Lang: ptr("en"), CreateTimestamp: created, UpdateTimestamp: created},
			{Name: "app-dev", Subscribed: false, Format: "T", UnsubReason: ptr("no thanks"), CreateTimestamp: created, UpdateTimestamp: created},
			{Name: "not-a-real-newsletter", Subscribed: true, Format: "H"},
		},
	}
}

func TestToExternal_MainTable(t *testing.T) {
	t.Parallel()

	rec, err := mapper.ToExternal(sample())
	require.NoError(t, err)

	assert.Equal(t, emailID, rec.EmailID)
	cols := rec.Columns
	assert.Equal(t, emailID.String(), cols["email_id"])
	assert.Equal(t, "Jane@Example.com", cols["email"])
	assert.Equal(t, "", cols["basket_token"])
	assert.Equal(t, "1", cols["double_opt_in"])
	assert.Equal(t, "0", cols["has_opted_out_of_email"])
	assert.Equal(t, "Jos\u00e9", cols["first_name"], "text is NFC normalized")
	assert.Equal(t, "", cols["last_name"])
	assert.Equal(t, "2020-03-28", cols["create_timestamp"])

	_, ok := cols["amo_user_id"]
	assert.False(t, ok, "absent sub-entities contribute no columns")
	_, ok = cols["fxa_id"]
	assert.False(t, ok)
}

func TestToExternal_SubscriptionFlags(t *testing.T) {
	t.Parallel()

	rec, err := mapper.ToExternal(sample())
	require.NoError(t, err)

	assert.Equal(t, "1", rec.Columns["sub_firefox_news"], "mozilla-and-you shares the firefox news flag")
	assert.Equal(t, "0", rec.Columns["sub_apps_and_hacks"])
	assert.Equal(t, "0", rec.Columns["sub_hubs"], "every flag is present")

	require.Len(t, rec.Newsletters, 2, "unknown newsletters are not synced")
	assert.Equal(t, "mozilla-and-you", rec.Newsletters[0].Name)
	assert.Equal(t, "app-dev", rec.Newsletters[1].Name)
	assert.Equal(t, "no thanks", rec.Newsletters[1].UnsubReason)
	assert.Equal(t, emailID.String(), rec.Newsletters[1].EmailID)
	assert.Equal(t, "2020-03-28", rec.Newsletters[1].CreateDate)
}

func TestToExternal_SubEntities(t *testing.T) {
	t.Parallel()

	c := sample()
	login := time.Date(2021, 7, 4, 23, 30, 0, 0, time.FixedZone("PDT", -7*3600))
	c.AddOns = &models.AddOns{UserID: ptr("123"), User: true, LastLogin: &login}
	c.FxA = &models.FirefoxAccount{FxaID: ptr("abc"), AccountDeleted: true}
	c.VpnWaitlist = &models.VpnWaitlist{Geo: ptr("fr"), Platform: ptr("ios\x00")}

	rec, err := mapper.ToExternal(c)
	require.NoError(t, err)

	cols := rec.Columns
	assert.Equal(t, "123", cols["amo_user_id"])
	assert.Equal(t, "1", cols["amo_user"])
	assert.Equal(t, "0", cols["amo_email_opt_in"])
	assert.Equal(t, "2021-07-05", cols["amo_last_login"], "dates are rendered in UTC")
	assert.Equal(t, "abc", cols["fxa_id"])
	assert.Equal(t, "1", cols["fxa_account_deleted"])
	assert.Equal(t, "", cols["fxa_lang"])
	assert.Equal(t, "fr", cols["vpn_waitlist_geo"])
	assert.Equal(t, "ios", cols["vpn_waitlist_platform"], "control characters are stripped")
}

func TestToExternal_MissingEmailID(t *testing.T) {
	t.Parallel()

	_, err := mapper.ToExternal(models.Contact{})
	require.ErrorIs(t, err, mapper.ErrMissingEmailID)
}

func TestSortedColumns(t *testing.T) {
	t.Parallel()

	rec := mapper.Record{Columns: map[string]string{"b": "2", "a": "1", "c": "3"}}
	assert.Equal(t, []mapper.Column{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}, {Name: "c", Value: "3"}}, rec.SortedColumns())

	row := mapper.NewsletterRow{EmailID: "x", Name: "hubs"}
	cols := row.Columns()
	require.Len(t, cols, 8)
	assert.Equal(t, "create_date", cols[0].Name)
	assert.Equal(t, "update_date", cols[len(cols)-1].Name)
}
