package threads

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/inkwisp/mediadrop/internal/logutil"
	"github.com/inkwisp/mediadrop/internal/publish"
)

const providerName = "threads"

var hashtagRe = regexp.MustCompile(`#(\w+)`)

// Config carries the Threads account identity and retry/poll knobs.
type Config struct {
	BaseURL     string
	UserID      string
	AccessToken string

	Publish       publish.Policy
	Verify        publish.Policy
	Readiness     publish.PollPolicy
	IndexingDelay time.Duration
}

// Client implements the Publisher interface for the Threads API.
type Client struct {
	gw       *publish.Gateway
	cfg      Config
	notifier publish.Notifier

	retrier  *publish.Retrier
	verifier *publish.Retrier
	poller   *publish.Poller
	sleep    func(time.Duration)
}

// New constructs a Threads publisher from its configuration.
func New(gw *publish.Gateway, cfg Config, notifier publish.Notifier) (*Client, error) {
	var missing []string
	if cfg.UserID == "" {
		missing = append(missing, "THREADS_USER_ID")
	}
	if cfg.AccessToken == "" {
		missing = append(missing, "THREADS_ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return nil, publish.MissingEnvError{Provider: providerName, Variables: missing}
	}
	return &Client{
		gw:       gw,
		cfg:      cfg,
		notifier: notifier,
		retrier:  publish.NewRetrier(cfg.Publish),
		verifier: publish.NewRetrier(cfg.Verify),
		poller:   publish.NewPoller(providerName, cfg.Readiness),
		sleep:    time.Sleep,
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// TopicTag extracts the first hashtag keyword from a caption, without the
// leading '#'. Empty when the caption has none.
func TopicTag(caption string) string {
	if m := hashtagRe.FindStringSubmatch(caption); m != nil {
		return m[1]
	}
	return ""
}

// Publish runs the container-create, readiness (video only), publish, verify
// sequence for one media item.
func (c *Client) Publish(ctx context.Context, req publish.Request) publish.Result {
	res := publish.Result{Platform: providerName}

	creationID, err := c.createContainer(ctx, req)
	if err != nil {
		res.Err = err
		return res
	}
	logutil.Debugf("threads container created: creation_id=%s", creationID)

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
		logutil.Warnf("threads post %s not verified: %v", remoteID, err)
		if c.notifier != nil {
			c.notifier.Notify(ctx, fmt.Sprintf("threads post %s published but not verified: %v", remoteID, err), false)
		}
		return res
	}
	res.Verified = true
	return res
}

func (c *Client) createContainer(ctx context.Context, req publish.Request) (string, error) {
	form := url.Values{
		"access_token": {c.cfg.AccessToken},
		"text":         {req.Caption},
	}
	if tag := TopicTag(req.Caption); tag != "" {
		form.Set("topic_tag", tag)
	}
	if req.Item.Kind == publish.KindVideo {
		form.Set("media_type", "VIDEO")
		form.Set("video_url", req.MediaURL)
	} else {
		form.Set("media_type", "IMAGE")
		form.Set("image_url", req.MediaURL)
	}

	endpoint := c.cfg.BaseURL + "/" + c.cfg.UserID + "/threads"
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
		status, body, err := c.gw.Get(ctx, endpoint, url.Values{"access_token": {c.cfg.AccessToken}})
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
		logutil.Debugf("threads container %s: %s", creationID, sr.State())
		return sr.State(), nil
	}
}

func (c *Client) publishContainer(ctx context.Context, creationID string) (string, error) {
	endpoint := c.cfg.BaseURL + "/" + c.cfg.UserID + "/threads_publish"
	form := url.Values{
		"access_token": {c.cfg.AccessToken},
		"creation_id":  {creationID},
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
			err := &publish.MalformedResponseError{Endpoint: endpoint, Cause: fmt.Errorf("publish succeeded but no post id returned")}
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

func (c *Client) verify(ctx context.Context, remoteID string) error {
	c.sleep(c.cfg.IndexingDelay)

	endpoint := c.cfg.BaseURL + "/" + remoteID
	query := url.Values{"access_token": {c.cfg.AccessToken}}

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
		logutil.Infof("threads post live: id=%s", remoteID)
		return publish.Outcome{OK: true}
	})
}
