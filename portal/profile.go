package portal

import (
	"context"
	"net/http"
	"net/url"

	portalcache "github.com/always-cache/portal-cache"
	"github.com/always-cache/portal-cache/record"
)

// Profile returns the student profile.
func (c *Client) Profile(ctx context.Context, refetch bool) (record.Profile, error) {
	token, e := c.token("profile")
	if e != nil {
		return record.Profile{}, e
	}
	p, _, err := fetchRecord(ctx, c, read[record.Profile]{
		call: "profile",
		req:  c.profileRequest(token),
		opts: []portalcache.Option{
			portalcache.WithTimeout(profileTimeout),
			portalcache.WithRefetch(refetch),
		},
		decode:        record.DecodeProfile,
		invalidJSON:   fail(http.StatusBadRequest, "Invalid response from server"),
		invalidRecord: fail(http.StatusNotFound, "Profile not found or invalid"),
	})
	if err != nil {
		return record.Profile{}, err
	}
	c.log.Info().Str("regNo", p.RegNo).Msg("Profile fetched")
	return p, nil
}

func (c *Client) editableProfileRequest(token string) portalcache.Request {
	return portalcache.Request{
		Method:  http.MethodPost,
		URL:     c.url("/app.php"),
		Params:  url.Values{"a": {"getStudDet"}, "univcode": {c.univCode}},
		Cookies: c.sessionCookies(token),
	}
}

// EditableProfile returns the profile fields the student may change.
func (c *Client) EditableProfile(ctx context.Context, refetch bool) (record.EditableProfile, error) {
	token, e := c.token("editable-profile")
	if e != nil {
		return record.EditableProfile{}, e
	}
	p, _, err := fetchRecord(ctx, c, read[record.EditableProfile]{
		call: "editable-profile",
		req:  c.editableProfileRequest(token),
		opts: []portalcache.Option{
			portalcache.WithTimeout(profileTimeout),
			portalcache.WithRefetch(refetch),
		},
		decode:        record.DecodeEditableProfile,
		invalidJSON:   fail(http.StatusBadRequest, "Failed to parse response JSON"),
		invalidRecord: fail(http.StatusBadRequest, "Profile data missing or malformed"),
	})
	return p, err
}

type ProfileUpdate struct {
	FatherName string `json:"ffatname"`
	MotherName string `json:"fmotname"`
	ABCID      string `json:"fabcno"`
}

func (u ProfileUpdate) empty() bool {
	return u.FatherName == "" && u.MotherName == "" && u.ABCID == ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// UpdateEditableProfile saves the given fields. Fields left empty keep their
// current value. On success the cached profile reads are evicted.
func (c *Client) UpdateEditableProfile(ctx context.Context, update ProfileUpdate) (ProfileUpdate, error) {
	if update.empty() {
		return ProfileUpdate{}, fail(http.StatusBadRequest, "At least one field must be provided")
	}
	token, e := c.token("update-profile")
	if e != nil {
		return ProfileUpdate{}, e
	}
	current, err := c.EditableProfile(ctx, false)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to fetch current editable profile")
		return ProfileUpdate{}, &Error{Status: http.StatusNotFound, Message: "Could not fetch current profile", Err: err}
	}

	saved := ProfileUpdate{
		FatherName: orDefault(update.FatherName, current.FatherName),
		MotherName: orDefault(update.MotherName, current.MotherName),
		ABCID:      orDefault(update.ABCID, current.ABCID),
	}
	ack, _, err := c.post(ctx, "update-profile", portalcache.Request{
		URL:    c.url("/app.php"),
		Params: url.Values{"a": {"saveStudDet"}, "univcode": {c.univCode}},
		Form: url.Values{
			"reg_no":    {current.RegNo},
			"fstudname": {current.FullName},
			"ffatname":  {saved.FatherName},
			"fmotname":  {saved.MotherName},
			"fabcno":    {saved.ABCID},
		},
		Cookies: c.sessionCookies(token),
	}, profileTimeout)
	if err != nil {
		return ProfileUpdate{}, err
	}
	if !ack.Success() {
		c.log.Warn().Str("status", ack.Status).Str("msg", ack.Message).Msg("Profile update failed")
		return ProfileUpdate{}, fail(http.StatusBadRequest, "Profile update failed")
	}

	c.pipeline.InvalidateRequest(ctx, c.editableProfileRequest(token))
	c.pipeline.InvalidateRequest(ctx, c.profileRequest(token))
	c.log.Info().Msg("Profile updated")
	return saved, nil
}
