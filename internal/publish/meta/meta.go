// Package meta holds the Graph API account plumbing shared by the two
// Meta-backed publishers: page token lookup, token validity, and the
// Instagram account linkage pre-flight.
package meta

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/inkwisp/mediadrop/internal/logutil"
	"github.com/inkwisp/mediadrop/internal/publish"
)

// Config identifies the Meta account the run publishes under.
type Config struct {
	BaseURL     string
	UserToken   string
	PageID      string
	InstagramID string
}

// Client issues account-level Graph API calls.
type Client struct {
	gw  *publish.Gateway
	cfg Config
}

// New builds a Client. The user token and page id are required.
func New(gw *publish.Gateway, cfg Config) (*Client, error) {
	var missing []string
	if cfg.UserToken == "" {
		missing = append(missing, "META_TOKEN")
	}
	if cfg.PageID == "" {
		missing = append(missing, "FB_PAGE_ID")
	}
	if len(missing) > 0 {
		return nil, publish.MissingEnvError{Provider: "meta", Variables: missing}
	}
	return &Client{gw: gw, cfg: cfg}, nil
}

type page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

type accountsResponse struct {
	Data []page `json:"data"`
}

// PageAccessToken resolves the page-scoped access token for the configured
// page id from the user's account list.
func (c *Client) PageAccessToken(ctx context.Context) (string, error) {
	endpoint := c.cfg.BaseURL + "/me/accounts"
	status, body, err := c.gw.Get(ctx, endpoint, url.Values{"access_token": {c.cfg.UserToken}})
	if err != nil {
		return "", fmt.Errorf("fetch page token: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("fetch page token: status %d: %s", status, publish.ErrorMessage(body))
	}

	var accounts accountsResponse
	if err := publish.DecodeJSON(endpoint, body, &accounts); err != nil {
		return "", err
	}

	for _, p := range accounts.Data {
		if p.ID != c.cfg.PageID {
			continue
		}
		if p.AccessToken == "" {
			return "", fmt.Errorf("page %s (%s) has no access token", p.Name, p.ID)
		}
		logutil.Debugf("page token resolved for %s", p.Name)
		return p.AccessToken, nil
	}

	return "", fmt.Errorf("page id %s not found among %d account(s)", c.cfg.PageID, len(accounts.Data))
}

type debugTokenResponse struct {
	Data struct {
		IsValid   bool  `json:"is_valid"`
		ExpiresAt int64 `json:"expires_at"`
	} `json:"data"`
}

// CheckToken validates the user token before any platform work starts. An
// invalid or expired token fails the run up front.
func (c *Client) CheckToken(ctx context.Context) error {
	endpoint := c.cfg.BaseURL + "/debug_token"
	status, body, err := c.gw.Get(ctx, endpoint, url.Values{
		"input_token":  {c.cfg.UserToken},
		"access_token": {c.cfg.UserToken},
	})
	if err != nil {
		return fmt.Errorf("check token: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("check token: status %d: %s", status, publish.ErrorMessage(body))
	}

	var debug debugTokenResponse
	if err := publish.DecodeJSON(endpoint, body, &debug); err != nil {
		return err
	}
	if !debug.Data.IsValid {
		return fmt.Errorf("meta token is invalid or expired")
	}

	if debug.Data.ExpiresAt > 0 {
		expiry := time.Unix(debug.Data.ExpiresAt, 0).UTC()
		logutil.Infof("meta token valid, expires %s (%dd left)", expiry.Format("2006-01-02"), int(time.Until(expiry).Hours()/24))
	} else {
		logutil.Infof("meta token valid, no expiry")
	}
	return nil
}

type linkageResponse struct {
	InstagramBusinessAccount *struct {
		ID string `json:"id"`
	} `json:"instagram_business_account"`
	ConnectedInstagramAccount *struct {
		ID string `json:"id"`
	} `json:"connected_instagram_account"`
}

// InstagramLinked verifies the configured Instagram account is connected to
// the page. The Instagram publisher is gated on this check.
func (c *Client) InstagramLinked(ctx context.Context, pageToken string) error {
	endpoint := c.cfg.BaseURL + "/" + c.cfg.PageID
	status, body, err := c.gw.Get(ctx, endpoint, url.Values{
		"fields":       {"instagram_business_account,connected_instagram_account"},
		"access_token": {pageToken},
	})
	if err != nil {
		return fmt.Errorf("check instagram linkage: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("check instagram linkage: status %d: %s", status, publish.ErrorMessage(body))
	}

	var linkage linkageResponse
	if err := publish.DecodeJSON(endpoint, body, &linkage); err != nil {
		return err
	}

	switch {
	case linkage.InstagramBusinessAccount != nil:
		if c.cfg.InstagramID != "" && linkage.InstagramBusinessAccount.ID != c.cfg.InstagramID {
			return fmt.Errorf("instagram id mismatch: connected %s, expected %s",
				linkage.InstagramBusinessAccount.ID, c.cfg.InstagramID)
		}
		return nil
	case linkage.ConnectedInstagramAccount != nil:
		return nil
	default:
		return fmt.Errorf("no instagram account connected to page %s", c.cfg.PageID)
	}
}
