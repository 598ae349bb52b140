package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwisp/mediadrop/internal/publish"
)

func intp(v int) *int          { return &v }
func floatp(v float64) *float64 { return &v }

func TestReelEligible(t *testing.T) {
	tests := []struct {
		name string
		info publish.MediaInfo
		want bool
	}{
		{
			"portrait 1080x1920 30s",
			publish.MediaInfo{Width: intp(1080), Height: intp(1920), Duration: floatp(30)},
			true,
		},
		{
			"landscape 1920x1080",
			publish.MediaInfo{Width: intp(1920), Height: intp(1080), Duration: floatp(30)},
			false,
		},
		{
			"duration over 90s",
			publish.MediaInfo{Width: intp(1080), Height: intp(1920), Duration: floatp(120)},
			false,
		},
		{
			"missing duration",
			publish.MediaInfo{Width: intp(1080), Height: intp(1920)},
			false,
		},
		{
			"missing dimensions",
			publish.MediaInfo{Duration: floatp(30)},
			false,
		},
		{
			"too small 540x959",
			publish.MediaInfo{Width: intp(540), Height: intp(959), Duration: floatp(30)},
			false,
		},
		{
			"portrait but not 9:16",
			publish.MediaInfo{Width: intp(800), Height: intp(1000), Duration: floatp(30)},
			false,
		},
		{
			"too short 2s",
			publish.MediaInfo{Width: intp(1080), Height: intp(1920), Duration: floatp(2)},
			false,
		},
		{
			"minimum bounds 540x960 3s",
			publish.MediaInfo{Width: intp(540), Height: intp(960), Duration: floatp(3)},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReelEligible(tt.info))
		})
	}
}

type pageServer struct {
	srv   *httptest.Server
	calls []string
}

// newPageServer fakes the page publishing endpoints and records the call
// sequence.
func newPageServer(t *testing.T) *pageServer {
	t.Helper()
	ps := &pageServer{}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/page1/video_reels":
			require.NoError(t, r.ParseForm())
			phase := r.PostFormValue("upload_phase")
			ps.calls = append(ps.calls, phase)
			if phase == "start" {
				json.NewEncoder(w).Encode(map[string]string{
					"video_id":   "v1",
					"upload_url": ps.srv.URL + "/upload",
				})
				return
			}
			assert.Equal(t, "v1", r.PostFormValue("video_id"))
			assert.Equal(t, "PUBLISHED", r.PostFormValue("video_state"))
			json.NewEncoder(w).Encode(map[string]string{"id": "reel9"})
		case r.Method == http.MethodPost && r.URL.Path == "/upload":
			ps.calls = append(ps.calls, "upload")
			assert.Equal(t, "OAuth page-token", r.Header.Get("Authorization"))
			assert.NotEmpty(t, r.Header.Get("file_url"))
			fmt.Fprint(w, `{"success":true}`)
		case r.Method == http.MethodPost && r.URL.Path == "/page1/videos":
			ps.calls = append(ps.calls, "videos")
			json.NewEncoder(w).Encode(map[string]string{"id": "vid9"})
		case r.Method == http.MethodPost && r.URL.Path == "/page1/photos":
			ps.calls = append(ps.calls, "photos")
			json.NewEncoder(w).Encode(map[string]string{"id": "ph9"})
		case r.Method == http.MethodGet:
			ps.calls = append(ps.calls, "verify")
			json.NewEncoder(w).Encode(map[string]string{"id": r.URL.Path[1:], "permalink_url": "https://fb.example/p"})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(publish.NewGateway(), Config{
		BaseURL: baseURL,
		PageID:  "page1",
		Publish: publish.Policy{MaxAttempts: 3, Interval: time.Millisecond, Budget: time.Minute},
		Verify:  publish.Policy{MaxAttempts: 3, Interval: time.Millisecond, Budget: time.Minute},
	}, "page-token", nil)
	require.NoError(t, err)
	return c
}

func videoRequest(info publish.MediaInfo, mediaURL string) publish.Request {
	return publish.Request{
		Item:     publish.UploadItem{Key: "inbox/clip.mp4", Name: "clip.mp4", Kind: publish.KindVideo},
		Caption:  "quiet clip",
		MediaURL: mediaURL,
		Info:     info,
	}
}

func TestPublishEligibleVideoTakesReelPath(t *testing.T) {
	ps := newPageServer(t)
	c := newTestClient(t, ps.srv.URL)

	info := publish.MediaInfo{Width: intp(1080), Height: intp(1920), Duration: floatp(30)}
	res := c.Publish(context.Background(), videoRequest(info, "https://signed.example/clip.mp4"))

	require.NoError(t, res.Err)
	assert.True(t, res.Published)
	assert.True(t, res.Verified)
	assert.Equal(t, "reel9", res.RemoteID)
	assert.Equal(t, []string{"start", "upload", "finish", "verify"}, ps.calls)
}

func TestPublishIneligibleVideoTakesSimplePath(t *testing.T) {
	ps := newPageServer(t)
	c := newTestClient(t, ps.srv.URL)

	info := publish.MediaInfo{Width: intp(1920), Height: intp(1080), Duration: floatp(30)}
	res := c.Publish(context.Background(), videoRequest(info, "https://signed.example/clip.mp4"))

	require.NoError(t, res.Err)
	assert.True(t, res.Published)
	assert.Equal(t, "vid9", res.RemoteID)
	assert.Equal(t, []string{"videos", "verify"}, ps.calls)
}

func TestPublishUnknownAttributesTakeSimplePath(t *testing.T) {
	ps := newPageServer(t)
	c := newTestClient(t, ps.srv.URL)

	res := c.Publish(context.Background(), videoRequest(publish.MediaInfo{}, "https://signed.example/clip.mp4"))

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"videos", "verify"}, ps.calls)
}

func TestPublishImageTakesPhotoPath(t *testing.T) {
	ps := newPageServer(t)
	c := newTestClient(t, ps.srv.URL)

	res := c.Publish(context.Background(), publish.Request{
		Item:     publish.UploadItem{Key: "inbox/pic.jpg", Name: "pic.jpg", Kind: publish.KindImage},
		Caption:  "still morning",
		MediaURL: "https://signed.example/pic.jpg",
	})

	require.NoError(t, res.Err)
	assert.True(t, res.Published)
	assert.False(t, res.Verified, "photo path has no verify-by-id check")
	assert.Equal(t, "ph9", res.RemoteID)
	assert.Equal(t, []string{"photos"}, ps.calls)
}

func TestPublishReelStartFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad page"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	info := publish.MediaInfo{Width: intp(1080), Height: intp(1920), Duration: floatp(30)}
	res := c.Publish(context.Background(), videoRequest(info, "https://signed.example/clip.mp4"))

	require.Error(t, res.Err)
	assert.False(t, res.Published)
	assert.Contains(t, res.Err.Error(), "start reel upload")
}

func TestVerifyFailureDoesNotRollBackPublish(t *testing.T) {
	var verifies int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			verifies++
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"message":"not indexed"}}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "vid9"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res := c.Publish(context.Background(), videoRequest(publish.MediaInfo{}, "https://signed.example/clip.mp4"))

	require.NoError(t, res.Err)
	assert.True(t, res.Published)
	assert.False(t, res.Verified)
	assert.Equal(t, 1, verifies, "404 is permanent, verification stops after one attempt")
}

func TestNewRequiresPageConfig(t *testing.T) {
	_, err := New(publish.NewGateway(), Config{}, "tok", nil)
	var missing publish.MissingEnvError
	require.ErrorAs(t, err, &missing)

	_, err = New(publish.NewGateway(), Config{PageID: "p"}, "", nil)
	require.ErrorAs(t, err, &missing)
}
