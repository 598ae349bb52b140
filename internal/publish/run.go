package publish

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/inkwisp/mediadrop/internal/logutil"
)

// GateFunc is an optional pre-flight check invoked before a publisher runs.
// A returned error skips that publisher for this run.
type GateFunc func(ctx context.Context, provider string) error

// Runner executes one publishing pass: select an item, hand it to every
// publisher in order, clean up, report.
type Runner struct {
	Storage    Storage
	Notifier   Notifier
	Publishers []Publisher
	Gate       GateFunc

	randInt func(n int) int
}

// RunReport aggregates the per-platform results of one pass.
type RunReport struct {
	RunID     string
	Item      UploadItem
	Results   []Result
	Published bool
}

// Run performs one pass and returns its report. The returned error is
// non-nil only for early storage failures or a publisher panic; per-platform
// publish failures are contained in the report. Once publishers have been
// attempted, the item is deleted and the buffered summary is flushed no
// matter what happened.
func (r *Runner) Run(ctx context.Context) (RunReport, error) {
	report := RunReport{RunID: uuid.NewString()}
	logutil.Infof("run %s started", report.RunID)

	items, err := r.Storage.List(ctx)
	if err != nil {
		r.notify(ctx, fmt.Sprintf("storage listing failed: %v", err), true)
		r.flush(ctx)
		return report, fmt.Errorf("list items: %w", err)
	}
	if len(items) == 0 {
		logutil.Infof("no pending items, nothing to do")
		return report, nil
	}

	item := items[r.pick(len(items))]
	report.Item = item
	logutil.Infof("selected %s (%s, %d bytes), %d item(s) pending", item.Name, item.Kind, item.Size, len(items))

	req := Request{Item: item, Caption: CaptionFromName(item.Name)}

	req.MediaURL, err = r.Storage.TemporaryLink(ctx, item)
	if err != nil {
		r.notify(ctx, fmt.Sprintf("temporary link for %s failed: %v", item.Name, err), true)
		r.flush(ctx)
		return report, fmt.Errorf("temporary link: %w", err)
	}

	if item.Kind == KindVideo {
		info, err := r.Storage.Probe(ctx, item)
		if err != nil {
			// Unknown attributes only force the conservative video path.
			logutil.Warnf("probe %s failed, treating attributes as unknown: %v", item.Name, err)
		} else {
			req.Info = info
		}
	}

	var panicked error
	defer r.flush(ctx)
	defer r.report(ctx, &report)
	defer r.cleanup(ctx, item)

	for _, pub := range r.Publishers {
		if r.Gate != nil {
			if err := r.Gate(ctx, pub.Name()); err != nil {
				logutil.Errorf("%s pre-flight failed: %v", pub.Name(), err)
				r.notify(ctx, fmt.Sprintf("%s skipped: %v", pub.Name(), err), true)
				report.Results = append(report.Results, Result{Platform: pub.Name(), Err: err})
				continue
			}
		}
		res := r.invoke(ctx, pub, req, &panicked)
		report.Results = append(report.Results, res)
		if res.Published {
			report.Published = true
		}
	}

	return report, panicked
}

// invoke contains one publisher's failure, including a panic, to that
// platform so the remaining publishers still run.
func (r *Runner) invoke(ctx context.Context, pub Publisher, req Request, panicked *error) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("%s publisher panicked: %v", pub.Name(), rec)
			r.notify(ctx, err.Error(), true)
			res = Result{Platform: pub.Name(), Err: err}
			*panicked = errors.Join(*panicked, err)
		}
	}()

	logutil.Infof("publishing to %s", pub.Name())
	res = pub.Publish(ctx, req)
	if res.Err != nil {
		logutil.Errorf("%s failed: %v", pub.Name(), res.Err)
		r.notify(ctx, fmt.Sprintf("%s failed: %v", pub.Name(), res.Err), true)
		return res
	}

	logutil.Infof("%s published id=%s verified=%t", pub.Name(), res.RemoteID, res.Verified)
	r.notify(ctx, fmt.Sprintf("%s published (id %s)", pub.Name(), res.RemoteID), true)
	return res
}

// cleanup deletes the source item regardless of per-platform outcomes. A
// failed publish never blocks deletion.
func (r *Runner) cleanup(ctx context.Context, item UploadItem) {
	if err := r.Storage.Delete(ctx, item); err != nil {
		logutil.Warnf("delete %s failed: %v", item.Name, err)
		r.notify(ctx, fmt.Sprintf("could not delete %s: %v", item.Name, err), false)
		return
	}
	logutil.Infof("deleted %s", item.Name)
}

func (r *Runner) report(ctx context.Context, report *RunReport) {
	parts := make([]string, 0, len(report.Results))
	for _, res := range report.Results {
		mark := "failed"
		switch {
		case res.Published && res.Verified:
			mark = "published+verified"
		case res.Published:
			mark = "published"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", res.Platform, mark))
	}

	status := "no platform published"
	if report.Published {
		status = "done"
	}
	r.notify(ctx, fmt.Sprintf("run %s %s | %s | %s", report.RunID, status, report.Item.Name, strings.Join(parts, " | ")), true)
}

func (r *Runner) notify(ctx context.Context, msg string, urgent bool) {
	if r.Notifier == nil {
		logutil.Infof("%s", msg)
		return
	}
	r.Notifier.Notify(ctx, msg, urgent)
}

func (r *Runner) flush(ctx context.Context) {
	if r.Notifier != nil {
		r.Notifier.Flush(ctx)
	}
}

func (r *Runner) pick(n int) int {
	if r.randInt != nil {
		return r.randInt(n)
	}
	return rand.Intn(n)
}

// CaptionFromName derives the caption from the file name: base name without
// extension, underscores as spaces.
func CaptionFromName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.ReplaceAll(base, "_", " ")
}
