package facebook

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/inkwisp/mediadrop/internal/logutil"
	"github.com/inkwisp/mediadrop/internal/publish"
)

const providerName = "facebook"

// Reel constraints enforced by the platform.
const (
	reelAspectRatio     = 0.5625 // 9:16
	reelAspectTolerance = 0.01
	reelMinHeight       = 960
	reelMaxHeight       = 1920
	reelMinWidth        = 540
	reelMaxWidth        = 1080
	reelMinDuration     = 3.0
	reelMaxDuration     = 90.0
)

// Config carries the page identity and the retry/verify knobs for page
// publishing.
type Config struct {
	BaseURL string
	PageID  string

	Publish       publish.Policy
	Verify        publish.Policy
	IndexingDelay time.Duration
}

// Client implements the Publisher interface for Facebook Pages.
type Client struct {
	gw        *publish.Gateway
	cfg       Config
	pageToken string
	notifier  publish.Notifier

	retrier  *publish.Retrier
	verifier *publish.Retrier
	sleep    func(time.Duration)
}

// New constructs a Facebook page publisher.
func New(gw *publish.Gateway, cfg Config, pageToken string, notifier publish.Notifier) (*Client, error) {
	if cfg.PageID == "" {
		return nil, publish.MissingEnvError{Provider: providerName, Variables: []string{"FB_PAGE_ID"}}
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
		sleep:     time.Sleep,
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// Publish routes the item by media shape: images take the single-call photo
// path; videos go through the reel flow when eligible, otherwise the simple
// file-URL video flow.
func (c *Client) Publish(ctx context.Context, req publish.Request) publish.Result {
	if req.Item.Kind == publish.KindImage {
		return c.publishPhoto(ctx, req)
	}
	if ReelEligible(req.Info) {
		logutil.Infof("facebook: %s meets reel constraints", req.Item.Name)
		return c.publishReel(ctx, req)
	}
	logutil.Infof("facebook: %s posted as plain video", req.Item.Name)
	return c.publishVideo(ctx, req)
}

// ReelEligible applies the reel constraints: portrait orientation, near-9:16
// aspect, bounded dimensions and duration. Any unknown attribute forces
// ineligibility.
func ReelEligible(info publish.MediaInfo) bool {
	if info.Width == nil || info.Height == nil || info.Duration == nil {
		return false
	}
	w, h, d := *info.Width, *info.Height, *info.Duration
	if h <= w {
		return false
	}
	if math.Abs(float64(w)/float64(h)-reelAspectRatio) >= reelAspectTolerance {
		return false
	}
	if h < reelMinHeight || h > reelMaxHeight || w < reelMinWidth || w > reelMaxWidth {
		return false
	}
	return d >= reelMinDuration && d <= reelMaxDuration
}

// publishPhoto is the direct create-and-publish path for still images. There
// is no container, readiness poll, or verify-by-id machine.
func (c *Client) publishPhoto(ctx context.Context, req publish.Request) publish.Result {
	res := publish.Result{Platform: providerName}

	endpoint := c.cfg.BaseURL + "/" + c.cfg.PageID + "/photos"
	form := url.Values{
		"access_token": {c.pageToken},
		"url":          {req.MediaURL},
		"caption":      {req.Caption},
	}

	remoteID, err := c.publishForm(ctx, endpoint, form)
	if err != nil {
		res.Err = fmt.Errorf("publish photo: %w", err)
		return res
	}
	res.Published = true
	res.RemoteID = remoteID
	return res
}

type reelStartResponse struct {
	VideoID   string `json:"video_id"`
	UploadURL string `json:"upload_url"`
}

// publishReel runs the three-phase reel upload: start session, upload via
// hosted-file reference, finish/publish. Only the finish phase is retried.
func (c *Client) publishReel(ctx context.Context, req publish.Request) publish.Result {
	res := publish.Result{Platform: providerName}
	endpoint := c.cfg.BaseURL + "/" + c.cfg.PageID + "/video_reels"

	status, body, err := c.gw.PostForm(ctx, endpoint, url.Values{
		"upload_phase": {"start"},
		"access_token": {c.pageToken},
	})
	if err != nil {
		res.Err = fmt.Errorf("start reel upload: %w", err)
		return res
	}
	if status != http.StatusOK {
		res.Err = fmt.Errorf("start reel upload: status %d: %s", status, publish.ErrorMessage(body))
		return res
	}

	var start reelStartResponse
	if err := publish.DecodeJSON(endpoint, body, &start); err != nil {
		res.Err = err
		return res
	}
	if start.VideoID == "" || start.UploadURL == "" {
		res.Err = publish.ValidationError{Provider: providerName, Reason: "reel start returned no video_id or upload_url"}
		return res
	}
	logutil.Debugf("facebook reel session started: video_id=%s", start.VideoID)

	header := http.Header{}
	header.Set("Authorization", "OAuth "+c.pageToken)
	header.Set("file_url", req.MediaURL)
	status, body, err = c.gw.Post(ctx, start.UploadURL, header)
	if err != nil {
		res.Err = fmt.Errorf("upload reel: %w", err)
		return res
	}
	if status != http.StatusOK {
		res.Err = fmt.Errorf("upload reel: status %d: %s", status, publish.ErrorMessage(body))
		return res
	}

	finish := url.Values{
		"upload_phase":  {"finish"},
		"access_token":  {c.pageToken},
		"video_id":      {start.VideoID},
		"description":   {req.Caption},
		"video_state":   {"PUBLISHED"},
		"share_to_feed": {"true"},
	}
	remoteID, err := c.publishForm(ctx, endpoint, finish)
	if err != nil {
		res.Err = fmt.Errorf("finish reel: %w", err)
		return res
	}
	if remoteID == "" {
		remoteID = start.VideoID
	}
	res.Published = true
	res.RemoteID = remoteID

	res.Verified = c.verify(ctx, remoteID)
	return res
}

// publishVideo is the single-call path for videos that fail the reel
// constraints.
func (c *Client) publishVideo(ctx context.Context, req publish.Request) publish.Result {
	res := publish.Result{Platform: providerName}

	endpoint := c.cfg.BaseURL + "/" + c.cfg.PageID + "/videos"
	form := url.Values{
		"access_token": {c.pageToken},
		"file_url":     {req.MediaURL},
		"description":  {req.Caption},
	}

	remoteID, err := c.publishForm(ctx, endpoint, form)
	if err != nil {
		res.Err = fmt.Errorf("publish video: %w", err)
		return res
	}
	res.Published = true
	res.RemoteID = remoteID

	res.Verified = c.verify(ctx, remoteID)
	return res
}

// publishForm drives one form POST through the retry controller and returns
// the remote id from the first successful response.
func (c *Client) publishForm(ctx context.Context, endpoint string, form url.Values) (string, error) {
	var remoteID string
	err := c.retrier.Do(ctx, func(ctx context.Context) publish.Outcome {
		status, body, err := c.gw.PostForm(ctx, endpoint, form)
		if err != nil {
			return publish.Outcome{Message: err.Error(), Err: err}
		}
		if status != http.StatusOK {
			return publish.Outcome{StatusCode: status, Message: publish.ErrorMessage(body)}
		}

		var cr publish.ContainerResponse
		if err := publish.DecodeJSON(endpoint, body, &cr); err != nil {
			return publish.Outcome{StatusCode: status, Message: "undecodable publish response", Err: err}
		}
		remoteID = cr.ID
		return publish.Outcome{OK: true}
	})
	return remoteID, err
}

// verify polls the published video id after the indexing delay. Failure
// never rolls back the publish; it is reported as a warning.
func (c *Client) verify(ctx context.Context, remoteID string) bool {
	c.sleep(c.cfg.IndexingDelay)

	endpoint := c.cfg.BaseURL + "/" + remoteID
	query := url.Values{
		"fields":       {"id,permalink_url,created_time,length,title,description"},
		"access_token": {c.pageToken},
	}

	err := c.verifier.Do(ctx, func(ctx context.Context) publish.Outcome {
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
		logutil.Infof("facebook post live: %s", vr.PermalinkURL)
		return publish.Outcome{OK: true}
	})
	if err != nil {
		logutil.Warnf("facebook post %s not verified: %v", remoteID, err)
		if c.notifier != nil {
			c.notifier.Notify(ctx, fmt.Sprintf("facebook post %s published but not verified: %v", remoteID, err), false)
		}
		return false
	}
	return true
}
