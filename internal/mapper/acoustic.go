package mapper

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/Guizzs26/ctms-sync/internal/models"
	"github.com/Guizzs26/ctms-sync/pkg/encoding"
	"github.com/google/uuid"
)

var ErrMissingEmailID = errors.New("contact has no email_id")

// subscriptionFlags maps a newsletter name to its main-table flag column.
// Newsletters outside this table are not synced.
var subscriptionFlags = map[string]string{
	"about-mozilla":                     "sub_about_mozilla",
	"app-dev":                           "sub_apps_and_hacks",
	"common-voice":                      "sub_common_voice",
	"firefox-accounts-journey":          "sub_firefox_accounts_journey",
	"firefox-news":                      "sub_firefox_news",
	"hubs":                              "sub_hubs",
	"internet-health-report":            "sub_internet_health_report",
	"knowledge-is-power":                "sub_knowledge_is_power",
	"miti":                              "sub_miti",
	"mixed-reality":                     "sub_mixed_reality",
	"mozilla-and-you":                   "sub_firefox_news",
	"mozilla-fellowship-awardee-alumni": "sub_mozilla_fellowship_awardee_alumni",
	"mozilla-festival":                  "sub_mozilla_festival",
	"mozilla-foundation":                "sub_mozilla_foundation",
	"mozilla-technology":                "sub_mozilla_technology",
	"mozillians-nda":                    "sub_mozillians_nda",
	"take-action-for-the-internet":      "sub_take_action_for_the_internet",
	"test-pilot":                        "sub_test_pilot",
}

// Column is one name/value pair of the external representation.
type Column struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Record is a contact in the external platform's shape: one main-table row
// plus the rows of the newsletter relational table.
type Record struct {
	EmailID     uuid.UUID         `json:"email_id"`
	Columns     map[string]string `json:"columns"`
	Newsletters []NewsletterRow   `json:"newsletters"`
}

// SortedColumns returns the main-table columns ordered by name.
func (r Record) SortedColumns() []Column {
	return sortColumns(r.Columns)
}

// NewsletterRow is one row of the newsletter relational table.
type NewsletterRow struct {
	EmailID     string `json:"email_id"`
	Name        string `json:"newsletter_name"`
	Format      string `json:"newsletter_format"`
	Lang        string `json:"newsletter_lang"`
	Source      string `json:"newsletter_source"`
	UnsubReason string `json:"newsletter_unsub_reason"`
	CreateDate  string `json:"create_date"`
	UpdateDate  string `json:"update_date"`
}

// Columns returns the row ordered by column name.
func (n NewsletterRow) Columns() []Column {
	return sortColumns(map[string]string{
		"email_id":                n.EmailID,
		"newsletter_name":         n.Name,
		"newsletter_format":       n.Format,
		"newsletter_lang":         n.Lang,
		"newsletter_source":       n.Source,
		"newsletter_unsub_reason": n.UnsubReason,
		"create_date":             n.CreateDate,
		"update_date":             n.UpdateDate,
	})
}

// ToExternal converts a contact aggregate into its Acoustic record.
func ToExternal(c models.Contact) (Record, error) {
	if c.ID() == uuid.Nil {
		return Record{}, ErrMissingEmailID
	}

	cols := make(map[string]string, 48)
	for _, flag := range subscriptionFlags {
		cols[flag] = "0"
	}

	e := c.Email
	cols["email_id"] = e.EmailID.String()
	cols["email"] = encoding.Normalize(e.PrimaryEmail)
	cols["basket_token"] = nullUUID(e.BasketToken)
	cols["double_opt_in"] = flag(e.DoubleOptIn)
	cols["sfdc_id"] = text(e.SfdcID)
	cols["first_name"] = text(e.FirstName)
	cols["last_name"] = text(e.LastName)
	cols["mailing_country"] = text(e.MailingCountry)
	cols["email_format"] = e.EmailFormat
	cols["email_lang"] = text(e.EmailLang)
	cols["has_opted_out_of_email"] = flag(e.HasOptedOutOfEmail)
	cols["unsubscribe_reason"] = text(e.UnsubscribeReason)
	cols["create_timestamp"] = date(e.CreateTimestamp)

	if a := c.AddOns; a != nil {
		cols["amo_add_on_ids"] = text(a.AddOnIDs)
		cols["amo_display_name"] = text(a.DisplayName)
		cols["amo_email_opt_in"] = flag(a.EmailOptIn)
		cols["amo_language"] = text(a.Language)
		cols["amo_last_login"] = ""
		if a.LastLogin != nil {
			cols["amo_last_login"] = date(*a.LastLogin)
		}
		cols["amo_location"] = text(a.Location)
		cols["amo_profile_url"] = text(a.ProfileURL)
		cols["amo_user"] = flag(a.User)
		cols["amo_user_id"] = text(a.UserID)
		cols["amo_username"] = text(a.Username)
	}

	if f := c.FxA; f != nil {
		cols["fxa_id"] = text(f.FxaID)
		cols["fxa_primary_email"] = text(f.PrimaryEmail)
		cols["fxa_created_date"] = text(f.CreatedDate)
		cols["fxa_lang"] = text(f.Lang)
		cols["fxa_first_service"] = text(f.FirstService)
		cols["fxa_account_deleted"] = flag(f.AccountDeleted)
	}

	if v := c.VpnWaitlist; v != nil {
		cols["vpn_waitlist_geo"] = text(v.Geo)
		cols["vpn_waitlist_platform"] = text(v.Platform)
	}

	var rows []NewsletterRow
	for _, n := range c.Newsletters {
		column, ok := subscriptionFlags[n.Name]
		if !ok {
			continue
		}
		rows = append(rows, NewsletterRow{
			EmailID:     cols["email_id"],
			Name:        n.Name,
			Format:      n.Format,
			Lang:        text(n.Lang),
			Source:      text(n.Source),
			UnsubReason: text(n.UnsubReason),
			CreateDate:  date(n.CreateTimestamp),
			UpdateDate:  date(n.UpdateTimestamp),
		})
		if n.Subscribed {
			cols[column] = "1"
		}
	}

	return Record{EmailID: c.ID(), Columns: cols, Newsletters: rows}, nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return encoding.Normalize(*s)
}

func nullUUID(u uuid.NullUUID) string {
	if !u.Valid {
		return ""
	}
	return u.UUID.String()
}

// Acoustic has no timestamp columns; timestamps become ISO dates.
func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func sortColumns(m map[string]string) []Column {
	out := make([]Column, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, Column{Name: k, Value: m[k]})
	}
	return out
}
