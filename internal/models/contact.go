package models

import (
	"time"

	"github.com/Guizzs26/ctms-sync/internal/change"
	"github.com/google/uuid"
)

const (
	KindEmail       change.Kind = "email"
	KindAddOns      change.Kind = "amo"
	KindFxA         change.Kind = "fxa"
	KindVpnWaitlist change.Kind = "vpn_waitlist"
	KindNewsletter  change.Kind = "newsletter"
)

// Email is the primary profile of a contact. EmailID is the contact key.
type Email struct {
	EmailID            uuid.UUID     `json:"email_id"`
	PrimaryEmail       string        `json:"primary_email"`
	BasketToken        uuid.NullUUID `json:"basket_token"`
	DoubleOptIn        bool          `json:"double_opt_in"`
	SfdcID             *string       `json:"sfdc_id"`
	FirstName          *string       `json:"first_name"`
	LastName           *string       `json:"last_name"`
	MailingCountry     *string       `json:"mailing_country"`
	EmailFormat        string        `json:"email_format"` // H, T, N or ""
	EmailLang          *string       `json:"email_lang"`
	HasOptedOutOfEmail bool          `json:"has_opted_out_of_email"`
	UnsubscribeReason  *string       `json:"unsubscribe_reason"`
	CreateTimestamp    time.Time     `json:"create_timestamp"`
	UpdateTimestamp    time.Time     `json:"update_timestamp"`
}

func (e Email) Kind() change.Kind { return KindEmail }

func (e Email) Fields() []change.Field {
	return []change.Field{
		change.String("primary_email", e.PrimaryEmail),
		change.UUID("basket_token", e.BasketToken),
		change.Bool("double_opt_in", e.DoubleOptIn),
		change.Text("sfdc_id", e.SfdcID),
		change.Text("first_name", e.FirstName),
		change.Text("last_name", e.LastName),
		change.Text("mailing_country", e.MailingCountry),
		change.Enum("email_format", e.EmailFormat),
		change.Text("email_lang", e.EmailLang),
		change.Bool("has_opted_out_of_email", e.HasOptedOutOfEmail),
	}
}

// AddOns is the addons.mozilla.org (AMO) profile.
type AddOns struct {
	AddOnIDs        *string    `json:"add_on_ids"` // comma-separated
	DisplayName     *string    `json:"display_name"`
	EmailOptIn      bool       `json:"email_opt_in"`
	Language        *string    `json:"language"`
	LastLogin       *time.Time `json:"last_login"`
	Location        *string    `json:"location"`
	ProfileURL      *string    `json:"profile_url"`
	User            bool       `json:"user"`
	UserID          *string    `json:"user_id"`
	Username        *string    `json:"username"`
	CreateTimestamp time.Time  `json:"create_timestamp"`
	UpdateTimestamp time.Time  `json:"update_timestamp"`
}

func (a AddOns) Kind() change.Kind { return KindAddOns }

func (a AddOns) Fields() []change.Field {
	return []change.Field{
		change.Set("add_on_ids", a.AddOnIDs),
		change.Text("display_name", a.DisplayName),
		change.Bool("email_opt_in", a.EmailOptIn),
		change.Text("language", a.Language),
		change.Date("last_login", a.LastLogin),
		change.Text("location", a.Location),
		change.Text("profile_url", a.ProfileURL),
		change.Bool("user", a.User),
		change.Text("user_id", a.UserID),
		change.Text("username", a.Username),
	}
}

// FirefoxAccount is the FxA profile.
type FirefoxAccount struct {
	FxaID           *string   `json:"fxa_id"`
	PrimaryEmail    *string   `json:"primary_email"`
	CreatedDate     *string   `json:"created_date"`
	Lang            *string   `json:"lang"`
	FirstService    *string   `json:"first_service"`
	AccountDeleted  bool      `json:"account_deleted"`
	CreateTimestamp time.Time `json:"create_timestamp"`
	UpdateTimestamp time.Time `json:"update_timestamp"`
}

func (f FirefoxAccount) Kind() change.Kind { return KindFxA }

func (f FirefoxAccount) Fields() []change.Field {
	return []change.Field{
		change.Text("fxa_id", f.FxaID),
		change.Text("primary_email", f.PrimaryEmail),
		change.Text("created_date", f.CreatedDate),
		change.Text("lang", f.Lang),
		change.Text("first_service", f.FirstService),
		change.Bool("account_deleted", f.AccountDeleted),
	}
}

// VpnWaitlist is the Mozilla VPN waitlist entry.
type VpnWaitlist struct {
	Geo             *string   `json:"geo"`
	Platform        *string   `json:"platform"` // comma-separated
	CreateTimestamp time.Time `json:"create_timestamp"`
	UpdateTimestamp time.Time `json:"update_timestamp"`
}

func (v VpnWaitlist) Kind() change.Kind { return KindVpnWaitlist }

func (v VpnWaitlist) Fields() []change.Field {
	return []change.Field{
		change.Text("geo", v.Geo),
		change.Set("platform", v.Platform),
	}
}

// Newsletter is one subscription, unique by Name within a contact.
type Newsletter struct {
	Name            string    `json:"name"`
	Subscribed      bool      `json:"subscribed"`
	Format          string    `json:"format"` // H or T
	Lang            *string   `json:"lang"`
	Source          *string   `json:"source"`
	UnsubReason     *string   `json:"unsub_reason"`
	CreateTimestamp time.Time `json:"create_timestamp"`
	UpdateTimestamp time.Time `json:"update_timestamp"`
}

func (n Newsletter) Kind() change.Kind { return KindNewsletter }

func (n Newsletter) Fields() []change.Field {
	return []change.Field{
		change.String("name", n.Name),
		change.Bool("subscribed", n.Subscribed),
		change.Enum("format", n.Format),
		change.Text("lang", n.Lang),
		change.Text("source", n.Source),
	}
}

// Contact is the read-side aggregate of a contact's current snapshots.
type Contact struct {
	Email       Email           `json:"email"`
	AddOns      *AddOns         `json:"amo"`
	FxA         *FirefoxAccount `json:"fxa"`
	VpnWaitlist *VpnWaitlist    `json:"vpn_waitlist"`
	Newsletters []Newsletter    `json:"newsletters"`
}

func (c Contact) ID() uuid.UUID { return c.Email.EmailID }

// Identity holds the lookup keys of a contact. Nil fields are unknown.
type Identity struct {
	EmailID         uuid.UUID     `json:"email_id"`
	PrimaryEmail    string        `json:"primary_email"`
	BasketToken     uuid.NullUUID `json:"basket_token"`
	SfdcID          *string       `json:"sfdc_id"`
	AmoUserID       *string       `json:"amo_user_id"`
	FxaID           *string       `json:"fxa_id"`
	FxaPrimaryEmail *string       `json:"fxa_primary_email"`
}

// Identity projects the contact's keys. A missing sub-entity leaves its keys nil.
func (c Contact) Identity() Identity {
	id := Identity{
		EmailID:      c.Email.EmailID,
		PrimaryEmail: c.Email.PrimaryEmail,
		BasketToken:  c.Email.BasketToken,
		SfdcID:       c.Email.SfdcID,
	}
	if c.AddOns != nil {
		id.AmoUserID = c.AddOns.UserID
	}
	if c.FxA != nil {
		id.FxaID = c.FxA.FxaID
		id.FxaPrimaryEmail = c.FxA.PrimaryEmail
	}
	return id
}

// Newsletter returns the subscription with the given name.
func (c Contact) Newsletter(name string) (Newsletter, bool) {
	for _, n := range c.Newsletters {
		if n.Name == name {
			return n, true
		}
	}
	return Newsletter{}, false
}
