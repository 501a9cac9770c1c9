package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Guizzs26/ctms-sync/internal/models"
	"github.com/google/uuid"
)

// GetContact assembles the current Contact aggregate.
// It fails with models.ErrContactNotFound when the email row is gone.
func (t *Tx) GetContact(ctx context.Context, emailID uuid.UUID) (models.Contact, error) {
	email, err := t.getEmail(ctx, emailID)
	if err != nil {
		return models.Contact{}, err
	}

	c := models.Contact{Email: email}
	if c.AddOns, err = t.getAddOns(ctx, emailID); err != nil {
		return models.Contact{}, err
	}
	if c.FxA, err = t.getFxA(ctx, emailID); err != nil {
		return models.Contact{}, err
	}
	if c.VpnWaitlist, err = t.getVpnWaitlist(ctx, emailID); err != nil {
		return models.Contact{}, err
	}
	if c.Newsletters, err = t.getNewsletters(ctx, emailID); err != nil {
		return models.Contact{}, err
	}
	return c, nil
}

func (t *Tx) getEmail(ctx context.Context, emailID uuid.UUID) (models.Email, error) {
	query := `
		SELECT email_id, primary_email, basket_token, double_opt_in, sfdc_id, first_name, last_name,
		       mailing_country, email_format, email_lang, has_opted_out_of_email, unsubscribe_reason,
		       create_timestamp, update_timestamp
		FROM emails WHERE email_id = ?
	`
	var (
		e                                                        models.Email
		sfdcID, firstName, lastName, country, lang, unsubReason sql.NullString
	)
	err := t.queryRow(ctx, query, emailID).Scan(
		&e.EmailID, &e.PrimaryEmail, &e.BasketToken, &e.DoubleOptIn, &sfdcID, &firstName, &lastName,
		&country, &e.EmailFormat, &lang, &e.HasOptedOutOfEmail, &unsubReason,
		&e.CreateTimestamp, &e.UpdateTimestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Email{}, fmt.Errorf("%w: %s", models.ErrContactNotFound, emailID)
	}
	if err != nil {
		return models.Email{}, fmt.Errorf("failed to load email %s: %w", emailID, err)
	}

	e.SfdcID, e.FirstName, e.LastName = ptr(sfdcID), ptr(firstName), ptr(lastName)
	e.MailingCountry, e.EmailLang, e.UnsubscribeReason = ptr(country), ptr(lang), ptr(unsubReason)
	return e, nil
}

func (t *Tx) getAddOns(ctx context.Context, emailID uuid.UUID) (*models.AddOns, error) {
	query := `
		SELECT add_on_ids, display_name, email_opt_in, language, last_login, location, profile_url,
		       amo_user, user_id, username, create_timestamp, update_timestamp
		FROM amo WHERE email_id = ?
	`
	var (
		a                                                              models.AddOns
		addOnIDs, displayName, language, location, profileURL, userID sql.NullString
		username                                                       sql.NullString
		lastLogin                                                      sql.NullTime
	)
	err := t.queryRow(ctx, query, emailID).Scan(
		&addOnIDs, &displayName, &a.EmailOptIn, &language, &lastLogin, &location, &profileURL,
		&a.User, &userID, &username, &a.CreateTimestamp, &a.UpdateTimestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load amo of %s: %w", emailID, err)
	}

	a.AddOnIDs, a.DisplayName, a.Language = ptr(addOnIDs), ptr(displayName), ptr(language)
	a.Location, a.ProfileURL, a.UserID, a.Username = ptr(location), ptr(profileURL), ptr(userID), ptr(username)
	if lastLogin.Valid {
		a.LastLogin = &lastLogin.Time
	}
	return &a, nil
}

func (t *Tx) getFxA(ctx context.Context, emailID uuid.UUID) (*models.FirefoxAccount, error) {
	query := `
		SELECT fxa_id, primary_email, created_date, lang, first_service, account_deleted,
		       create_timestamp, update_timestamp
		FROM fxa WHERE email_id = ?
	`
	var (
		f                                                    models.FirefoxAccount
		fxaID, primaryEmail, createdDate, lang, firstService sql.NullString
	)
	err := t.queryRow(ctx, query, emailID).Scan(
		&fxaID, &primaryEmail, &createdDate, &lang, &firstService, &f.AccountDeleted,
		&f.CreateTimestamp, &f.UpdateTimestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fxa of %s: %w", emailID, err)
	}

	f.FxaID, f.PrimaryEmail, f.CreatedDate = ptr(fxaID), ptr(primaryEmail), ptr(createdDate)
	f.Lang, f.FirstService = ptr(lang), ptr(firstService)
	return &f, nil
}

func (t *Tx) getVpnWaitlist(ctx context.Context, emailID uuid.UUID) (*models.VpnWaitlist, error) {
	var (
		v             models.VpnWaitlist
		geo, platform sql.NullString
	)
	err := t.queryRow(ctx,
		`SELECT geo, platform, create_timestamp, update_timestamp FROM vpn_waitlist WHERE email_id = ?`,
		emailID,
	).Scan(&geo, &platform, &v.CreateTimestamp, &v.UpdateTimestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vpn waitlist of %s: %w", emailID, err)
	}

	v.Geo, v.Platform = ptr(geo), ptr(platform)
	return &v, nil
}

func (t *Tx) getNewsletters(ctx context.Context, emailID uuid.UUID) ([]models.Newsletter, error) {
	query := `
		SELECT name, subscribed, format, lang, source, unsub_reason, create_timestamp, update_timestamp
		FROM newsletters WHERE email_id = ?
		ORDER BY name ASC
	`
	rows, err := t.query(ctx, query, emailID)
	if err != nil {
		return nil, fmt.Errorf("failed to load newsletters of %s: %w", emailID, err)
	}
	defer rows.Close()

	var newsletters []models.Newsletter
	for rows.Next() {
		var (
			n                         models.Newsletter
			lang, source, unsubReason sql.NullString
		)
		if err := rows.Scan(&n.Name, &n.Subscribed, &n.Format, &lang, &source, &unsubReason,
			&n.CreateTimestamp, &n.UpdateTimestamp); err != nil {
			return nil, fmt.Errorf("failed to scan newsletter: %w", err)
		}
		n.Lang, n.Source, n.UnsubReason = ptr(lang), ptr(source), ptr(unsubReason)
		newsletters = append(newsletters, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate newsletters: %w", err)
	}
	return newsletters, nil
}

// SaveContact writes the contact's current snapshots. Rows that already exist
// keep their create_timestamp; every written row gets update_timestamp = now.
// Absent optional sub-entities and newsletters missing from c are deleted.
func (t *Tx) SaveContact(ctx context.Context, c models.Contact, now time.Time) error {
	now = dbTime(now)
	id := c.ID()
	e := c.Email

	emailQuery := `
		INSERT INTO emails (email_id, primary_email, basket_token, double_opt_in, sfdc_id, first_name,
		                    last_name, mailing_country, email_format, email_lang, has_opted_out_of_email,
		                    unsubscribe_reason, create_timestamp, update_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email_id) DO UPDATE SET
			primary_email = excluded.primary_email, basket_token = excluded.basket_token,
			double_opt_in = excluded.double_opt_in, sfdc_id = excluded.sfdc_id,
			first_name = excluded.first_name, last_name = excluded.last_name,
			mailing_country = excluded.mailing_country, email_format = excluded.email_format,
			email_lang = excluded.email_lang, has_opted_out_of_email = excluded.has_opted_out_of_email,
			unsubscribe_reason = excluded.unsubscribe_reason, update_timestamp = excluded.update_timestamp
	`
	if _, err := t.exec(ctx, emailQuery,
		id, e.PrimaryEmail, e.BasketToken, e.DoubleOptIn, e.SfdcID, e.FirstName,
		e.LastName, e.MailingCountry, e.EmailFormat, e.EmailLang, e.HasOptedOutOfEmail,
		e.UnsubscribeReason, now, now,
	); err != nil {
		return fmt.Errorf("failed to save email %s: %w", id, err)
	}

	if err := t.saveAddOns(ctx, id, c.AddOns, now); err != nil {
		return err
	}
	if err := t.saveFxA(ctx, id, c.FxA, now); err != nil {
		return err
	}
	if err := t.saveVpnWaitlist(ctx, id, c.VpnWaitlist, now); err != nil {
		return err
	}
	return t.saveNewsletters(ctx, id, c.Newsletters, now)
}

func (t *Tx) saveAddOns(ctx context.Context, id uuid.UUID, a *models.AddOns, now time.Time) error {
	if a == nil {
		return t.deleteFrom(ctx, "amo", id)
	}

	var lastLogin *time.Time
	if a.LastLogin != nil {
		d := a.LastLogin.UTC().Truncate(24 * time.Hour)
		lastLogin = &d
	}

	query := `
		INSERT INTO amo (email_id, add_on_ids, display_name, email_opt_in, language, last_login, location,
		                 profile_url, amo_user, user_id, username, create_timestamp, update_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email_id) DO UPDATE SET
			add_on_ids = excluded.add_on_ids, display_name = excluded.display_name,
			email_opt_in = excluded.email_opt_in, language = excluded.language,
			last_login = excluded.last_login, location = excluded.location,
			profile_url = excluded.profile_url, amo_user = excluded.amo_user,
			user_id = excluded.user_id, username = excluded.username,
			update_timestamp = excluded.update_timestamp
	`
	if _, err := t.exec(ctx, query,
		id, a.AddOnIDs, a.DisplayName, a.EmailOptIn, a.Language, lastLogin, a.Location,
		a.ProfileURL, a.User, a.UserID, a.Username, now, now,
	); err != nil {
		return fmt.Errorf("failed to save amo of %s: %w", id, err)
	}
	return nil
}

func (t *Tx) saveFxA(ctx context.Context, id uuid.UUID, f *models.FirefoxAccount, now time.Time) error {
	if f == nil {
		return t.deleteFrom(ctx, "fxa", id)
	}

	query := `
		INSERT INTO fxa (email_id, fxa_id, primary_email, created_date, lang, first_service, account_deleted,
		                 create_timestamp, update_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email_id) DO UPDATE SET
			fxa_id = excluded.fxa_id, primary_email = excluded.primary_email,
			created_date = excluded.created_date, lang = excluded.lang,
			first_service = excluded.first_service, account_deleted = excluded.account_deleted,
			update_timestamp = excluded.update_timestamp
	`
	if _, err := t.exec(ctx, query,
		id, f.FxaID, f.PrimaryEmail, f.CreatedDate, f.Lang, f.FirstService, f.AccountDeleted, now, now,
	); err != nil {
		return fmt.Errorf("failed to save fxa of %s: %w", id, err)
	}
	return nil
}

func (t *Tx) saveVpnWaitlist(ctx context.Context, id uuid.UUID, v *models.VpnWaitlist, now time.Time) error {
	if v == nil {
		return t.deleteFrom(ctx, "vpn_waitlist", id)
	}

	query := `
		INSERT INTO vpn_waitlist (email_id, geo, platform, create_timestamp, update_timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (email_id) DO UPDATE SET
			geo = excluded.geo, platform = excluded.platform, update_timestamp = excluded.update_timestamp
	`
	if _, err := t.exec(ctx, query, id, v.Geo, v.Platform, now, now); err != nil {
		return fmt.Errorf("failed to save vpn waitlist of %s: %w", id, err)
	}
	return nil
}

func (t *Tx) saveNewsletters(ctx context.Context, id uuid.UUID, newsletters []models.Newsletter, now time.Time) error {
	query := `
		INSERT INTO newsletters (email_id, name, subscribed, format, lang, source, unsub_reason,
		                         create_timestamp, update_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email_id, name) DO UPDATE SET
			subscribed = excluded.subscribed, format = excluded.format, lang = excluded.lang,
			source = excluded.source, unsub_reason = excluded.unsub_reason,
			update_timestamp = excluded.update_timestamp
	`
	names := make([]any, 0, len(newsletters)+1)
	names = append(names, id)
	for _, n := range newsletters {
		if _, err := t.exec(ctx, query,
			id, n.Name, n.Subscribed, n.Format, n.Lang, n.Source, n.UnsubReason, now, now,
		); err != nil {
			return fmt.Errorf("failed to save newsletter %s of %s: %w", n.Name, id, err)
		}
		names = append(names, n.Name)
	}

	prune := `DELETE FROM newsletters WHERE email_id = ?`
	if len(names) > 1 {
		prune += ` AND name NOT IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(names)-1), ", ") + `)`
	}
	if _, err := t.exec(ctx, prune, names...); err != nil {
		return fmt.Errorf("failed to prune newsletters of %s: %w", id, err)
	}
	return nil
}

// deleteFrom only ever receives table names from this file.
func (t *Tx) deleteFrom(ctx context.Context, table string, id uuid.UUID) error {
	if _, err := t.exec(ctx, `DELETE FROM `+table+` WHERE email_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete %s of %s: %w", table, id, err)
	}
	return nil
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
