package change_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/ctms-sync/internal/change"
	"github.com/Guizzs26/ctms-sync/internal/models"
)

func strPtr(s string) *string { return &s }

func baseEmail() models.Email {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return models.Email{
		EmailID:         uuid.MustParse("332de237-cab7-4461-bcc3-48e68f42bd5c"),
		PrimaryEmail:    "contact@example.com",
		BasketToken:     uuid.NullUUID{UUID: uuid.MustParse("c4a7d759-bb52-457b-896b-90f1d3ef8433"), Valid: true},
		FirstName:       strPtr("Jane"),
		MailingCountry:  strPtr("us"),
		EmailFormat:     "H",
		EmailLang:       strPtr("en"),
		CreateTimestamp: created,
		UpdateTimestamp: created,
	}
}

func TestIsMaterialChange_Idempotent(t *testing.T) {
	t.Parallel()

	lastLogin := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	snapshots := []change.Snapshot{
		baseEmail(),
		models.AddOns{AddOnIDs: strPtr("a,b"), LastLogin: &lastLogin, User: true},
		models.FirefoxAccount{FxaID: strPtr("fxa-1"), AccountDeleted: true},
		models.VpnWaitlist{Geo: strPtr("fr"), Platform: strPtr("ios,mac")},
		models.Newsletter{Name: "mozilla-foundation", Subscribed: true, Format: "T"},
		models.Email{},
	}

	for _, s := range snapshots {
		changed, err := change.IsMaterialChange(s, s)
		require.NoError(t, err)
		assert.False(t, changed, "%s compared with itself", s.Kind())
	}
}

func TestIsMaterialChange_VolatileFieldsIgnored(t *testing.T) {
	t.Parallel()

	prev := baseEmail()
	next := prev
	next.UpdateTimestamp = prev.UpdateTimestamp.Add(time.Second)
	next.CreateTimestamp = prev.CreateTimestamp.Add(-time.Hour)
	next.UnsubscribeReason = strPtr("too many emails")

	changed, err := change.IsMaterialChange(prev, next)
	require.NoError(t, err)
	assert.False(t, changed)

	nl := models.Newsletter{Name: "firefox-news", Subscribed: false, Format: "H"}
	nl2 := nl
	nl2.UnsubReason = strPtr("not interested")
	nl2.UpdateTimestamp = time.Now()

	changed, err = change.IsMaterialChange(nl, nl2)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestIsMaterialChange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(e *models.Email)
		want   bool
	}{
		{
			name:   "empty string and nil are the same",
			mutate: func(e *models.Email) { e.LastName = strPtr("") },
			want:   false,
		},
		{
			name:   "set field cleared",
			mutate: func(e *models.Email) { e.FirstName = nil },
			want:   true,
		},
		{
			name:   "unset field now set",
			mutate: func(e *models.Email) { e.SfdcID = strPtr("001A000001aABcDEFG") },
			want:   true,
		},
		{
			name:   "text value changed",
			mutate: func(e *models.Email) { e.MailingCountry = strPtr("ca") },
			want:   true,
		},
		{
			name:   "enum changed",
			mutate: func(e *models.Email) { e.EmailFormat = "T" },
			want:   true,
		},
		{
			name:   "enum to empty member",
			mutate: func(e *models.Email) { e.EmailFormat = "" },
			want:   true,
		},
		{
			name:   "bool flipped",
			mutate: func(e *models.Email) { e.HasOptedOutOfEmail = true },
			want:   true,
		},
		{
			name:   "basket token cleared",
			mutate: func(e *models.Email) { e.BasketToken = uuid.NullUUID{} },
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			prev := baseEmail()
			next := baseEmail()
			tt.mutate(&next)

			changed, err := change.IsMaterialChange(prev, next)
			require.NoError(t, err)
			assert.Equal(t, tt.want, changed)
		})
	}
}

func TestIsMaterialChange_EmptyAndNilNormalizeBothWays(t *testing.T) {
	t.Parallel()

	withNil := baseEmail()
	withNil.LastName = nil
	withEmpty := baseEmail()
	withEmpty.LastName = strPtr("")

	for _, pair := range [][2]models.Email{{withNil, withEmpty}, {withEmpty, withNil}} {
		changed, err := change.IsMaterialChange(pair[0], pair[1])
		require.NoError(t, err)
		assert.False(t, changed)
	}
}

func TestIsMaterialChange_SetEquality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		prev *string
		next *string
		want bool
	}{
		{"reordered", strPtr("ios,mac,windows"), strPtr("windows,ios,mac"), false},
		{"spaces and duplicates", strPtr("ios, mac"), strPtr("mac,ios,ios"), false},
		{"only separators is absent", strPtr(" , "), nil, false},
		{"member added", strPtr("ios"), strPtr("ios,android"), true},
		{"member replaced", strPtr("ios"), strPtr("android"), true},
		{"set from nothing", nil, strPtr("linux"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			changed, err := change.IsMaterialChange(
				models.VpnWaitlist{Geo: strPtr("us"), Platform: tt.prev},
				models.VpnWaitlist{Geo: strPtr("us"), Platform: tt.next},
			)
			require.NoError(t, err)
			assert.Equal(t, tt.want, changed)
		})
	}
}

func TestIsMaterialChange_DateComparesCalendarDay(t *testing.T) {
	t.Parallel()

	morning := time.Date(2024, 5, 4, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 5, 4, 22, 30, 0, 0, time.UTC)
	nextDay := time.Date(2024, 5, 5, 8, 0, 0, 0, time.UTC)

	changed, err := change.IsMaterialChange(models.AddOns{LastLogin: &morning}, models.AddOns{LastLogin: &evening})
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = change.IsMaterialChange(models.AddOns{LastLogin: &morning}, models.AddOns{LastLogin: &nextDay})
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestIsMaterialChange_TypeMismatch(t *testing.T) {
	t.Parallel()

	_, err := change.IsMaterialChange(baseEmail(), models.FirefoxAccount{})
	require.ErrorIs(t, err, change.ErrTypeMismatch)

	_, err = change.Changed(models.Newsletter{}, models.VpnWaitlist{})
	require.ErrorIs(t, err, change.ErrTypeMismatch)
}

func TestChanged(t *testing.T) {
	t.Parallel()

	prev := baseEmail()
	next := baseEmail()
	next.MailingCountry = strPtr("de")
	next.DoubleOptIn = true
	next.UpdateTimestamp = next.UpdateTimestamp.Add(time.Minute)

	names, err := change.Changed(prev, next)
	require.NoError(t, err)
	assert.Equal(t, []string{"double_opt_in", "mailing_country"}, names)

	names, err = change.Changed(prev, prev)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestIsDefault(t *testing.T) {
	t.Parallel()

	assert.True(t, change.IsDefault(models.VpnWaitlist{}))
	assert.True(t, change.IsDefault(models.AddOns{AddOnIDs: strPtr("")}))
	assert.True(t, change.IsDefault(models.FirefoxAccount{}))
	assert.False(t, change.IsDefault(models.VpnWaitlist{Geo: strPtr("us")}))
	assert.False(t, change.IsDefault(models.AddOns{User: true}))
}
