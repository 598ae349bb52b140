package instagram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/inkwisp/mediadrop/internal/logutil"
	"github.com/inkwisp/mediadrop/internal/publish"
)

const providerName = "instagram"

// Config carries the account identity and every retry/poll knob for the
// Instagram Graph publishing sequence.
type Config struct {
	BaseURL   string
	AccountID string

	Publish       publish.Policy
	Verify        publish.Policy
	Readiness     publish.PollPolicy
	IndexingDelay time.Duration
}

// Client implements the Publisher interface for the Instagram Graph API.
type Client struct {
	gw        *publish.Gateway
	cfg       Config
	pageToken string
	notifier  publish.Notifier

	retrier  *publish.Retrier
	verifier *publish.Retrier
	poller   *publish.Poller
	sleep    func(time.Duration)
}

// New constructs an Instagram publisher. The page token comes from the
// account pre-flight; the account id must be configured.
func New(gw *publish.Gateway, cfg Config, pageToken string, notifier publish.Notifier) (*Client, error) {
	if cfg.AccountID == "" {
		return nil, publish.MissingEnvError{Provider: providerName, Variables: []string{"IG_ID"}}
	}
	if pageToken == "" {
		return nil, publish.MissingEnvError{Provider: providerName, Variables: []string{"META_TOKEN"}}
	}
	return &Client{
		gw:        gw,
		cfg:       cfg,
		pageToken: pageToken,
		notifier:  notifier,
		retrier:   publish.NewRetrier(cfg.Publish),
		verifier:  publish.NewRetrier(cfg.Verify),
		poller:    publish.NewPoller(providerName, cfg.Readiness),
		sleep:     time.Sleep,
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// Publish runs the container-create, readiness, publish, verify sequence for
// one media item.
func (c *Client) Publish(ctx context.Context, req publish.Request) publish.Result {
	res := publish.Result{Platform: providerName}

	creationID, err := c.createContainer(ctx, req)
	if err != nil {
		res.Err = err
		return res
	}
	logutil.Debugf("instagram container created: creation_id=%s", creationID)

	if req.Item.Kind == publish.KindVideo {
		if err := c.poller.Wait(ctx, c.statusCheck(creationID)); err != nil {
			res.Err = err
			return res
		}
	}

	remoteID, err := c.publishContainer(ctx, creationID)
	if err != nil {
		res.Err = err
		return res
	}
	res.Published = true
	res.RemoteID = remoteID

	if err := c.verify(ctx, remoteID); err != nil {
		logutil.Warnf("instagram post %s not verified: %v", remoteID, err)
		if c.notifier != nil {
			c.notifier.Notify(ctx, fmt.Sprintf("instagram post %s published but not verified: %v", remoteID, err), false)
		}
		return res
	}
	res.Verified = true
	return res
}

// createContainer issues the single container-create call. Failures here are
// not retried: the inputs, not server load, are almost always the cause.
func (c *Client) createContainer(ctx context.Context, req publish.Request) (string, error) {
	form := url.Values{
		"access_token": {c.pageToken},
		"caption":      {req.Caption},
	}
	if req.Item.Kind == publish.KindVideo {
		form.Set("media_type", "REELS")
		form.Set("video_url", req.MediaURL)
		form.Set("share_to_feed", "true")
	} else {
		form.Set("image_url", req.MediaURL)
	}

	endpoint := c.cfg.BaseURL + "/" + c.cfg.AccountID + "/media"
	status, body, err := c.gw.PostForm(ctx, endpoint, form)
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("create container: status %d: %s", status, publish.ErrorMessage(body))
	}

	var created publish.ContainerResponse
	if err := publish.DecodeJSON(endpoint, body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", publish.ValidationError{Provider: providerName, Reason: "no creation id returned"}
	}
	return created.ID, nil
}

func (c *Client) statusCheck(creationID string) publish.StatusFunc {
	endpoint := c.cfg.BaseURL + "/" + creationID
	return func(ctx context.Context) (publish.ContainerStatus, error) {
		status, body, err := c.gw.Get(ctx, endpoint, url.Values{
			"fields":       {"status_code"},
			"access_token": {c.pageToken},
		})
		if err != nil {
			return publish.StatusPending, fmt.Errorf("status check: %w", err)
		}
		if status != http.StatusOK {
			return publish.StatusPending, fmt.Errorf("status check: status %d: %s", status, publish.ErrorMessage(body))
		}

		var sr publish.StatusResponse
		if err := publish.DecodeJSON(endpoint, body, &sr); err != nil {
			return publish.StatusPending, err
		}
		logutil.Debugf("instagram container %s: %s", creationID, sr.State())
		return sr.State(), nil
	}
}

// publishContainer drives the publish call through the retry controller. The
// same creation id is reused on every attempt; the first success ends the
// loop.
func (c *Client) publishContainer(ctx context.Context, creationID string) (string, error) {
	endpoint := c.cfg.BaseURL + "/" + c.cfg.AccountID + "/media_publish"
	form := url.Values{
		"creation_id":  {creationID},
		"access_token": {c.pageToken},
	}

	var remoteID string
	err := c.retrier.Do(ctx, func(ctx context.Context) publish.Outcome {
		status, body, err := c.gw.PostForm(ctx, endpoint, form)
		if err != nil {
			return publish.Outcome{Message: err.Error(), Err: err}
		}
		if status != http.StatusOK {
			return publish.Outcome{StatusCode: status, Message: publish.ErrorMessage(body)}
		}

		var pr publish.ContainerResponse
		if err := publish.DecodeJSON(endpoint, body, &pr); err != nil {
			return publish.Outcome{StatusCode: status, Message: "undecodable publish response", Err: err}
		}
		if pr.ID == "" {
			err := &publish.MalformedResponseError{Endpoint: endpoint, Cause: fmt.Errorf("publish succeeded but no media id returned")}
			return publish.Outcome{StatusCode: status, Message: err.Error(), Err: err}
		}
		remoteID = pr.ID
		return publish.Outcome{OK: true}
	})
	if err != nil {
		return "", fmt.Errorf("publish container %s: %w", creationID, err)
	}
	return remoteID, nil
}

// verify polls the published media id for its permalink after the indexing
// delay. Failure is non-fatal for the publish itself.
func (c *Client) verify(ctx context.Context, remoteID string) error {
	c.sleep(c.cfg.IndexingDelay)

	endpoint := c.cfg.BaseURL + "/" + remoteID
	query := url.Values{
		"fields":       {"id,permalink_url,media_type,media_url,thumbnail_url,created_time"},
		"access_token": {c.pageToken},
	}

	return c.verifier.Do(ctx, func(ctx context.Context) publish.Outcome {
		status, body, err := c.gw.Get(ctx, endpoint, query)
		if err != nil {
			return publish.Outcome{Message: err.Error(), Err: err}
		}
		if status != http.StatusOK {
			return publish.Outcome{StatusCode: status, Message: publish.ErrorMessage(body)}
		}

		var vr publish.VerifyResponse
		if err := publish.DecodeJSON(endpoint, body, &vr); err != nil {
			return publish.Outcome{StatusCode: status, Message: "undecodable verify response", Err: err}
		}
		logutil.Infof("instagram post live: %s", vr.PermalinkURL)
		return publish.Outcome{OK: true}
	})
}
