package publish

import (
	"context"
	"path/filepath"
	"strings"
)

// MediaKind distinguishes still images from videos.
type MediaKind int

const (
	KindImage MediaKind = iota
	KindVideo
)

func (k MediaKind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "image"
}

// UploadItem is one pending media object selected from storage.
type UploadItem struct {
	Key  string
	Name string
	Kind MediaKind
	Size int64
}

// MediaInfo carries the probed dimensions and duration of a video. A nil
// field means the attribute could not be determined.
type MediaInfo struct {
	Width    *int
	Height   *int
	Duration *float64
}

// Request is the per-run payload handed to every publisher.
type Request struct {
	Item     UploadItem
	Caption  string
	MediaURL string
	Info     MediaInfo
}

// Result is the outcome of one platform's publish attempt. Verified may be
// false while Published is true; verification never rolls a publish back.
type Result struct {
	Platform  string
	Published bool
	RemoteID  string
	Verified  bool
	Err       error
}

// Publisher abstracts a social platform that can publish one media item.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, req Request) Result
}

// Storage lists, links, probes and deletes pending media objects. The
// implementation owns its own retry policy; callers report failures as-is.
type Storage interface {
	List(ctx context.Context) ([]UploadItem, error)
	TemporaryLink(ctx context.Context, item UploadItem) (string, error)
	Probe(ctx context.Context, item UploadItem) (MediaInfo, error)
	Delete(ctx context.Context, item UploadItem) error
}

// Notifier delivers run updates. Urgent messages go out immediately; the
// rest are buffered until Flush. Implementations must never fail the run.
type Notifier interface {
	Notify(ctx context.Context, msg string, urgent bool)
	Flush(ctx context.Context)
}

var videoExts = map[string]struct{}{
	".mp4": {},
	".mov": {},
}

var imageExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// EligibleName reports whether the file name carries an accepted media extension.
func EligibleName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := videoExts[ext]; ok {
		return true
	}
	_, ok := imageExts[ext]
	return ok
}

// KindForName maps a file name to its media kind. Unknown extensions count
// as images; callers are expected to filter with EligibleName first.
func KindForName(name string) MediaKind {
	if _, ok := videoExts[strings.ToLower(filepath.Ext(name))]; ok {
		return KindVideo
	}
	return KindImage
}
