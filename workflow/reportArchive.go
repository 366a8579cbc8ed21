package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/config"
	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/models/reports"
	"github.com/DataGeek404/micro-finance-app-sub001/render"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/bsm/redislock"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	reportArchiveLockKey = "lock:report-archive"
	reportArchiveActor   = "report-archive"
)

// ArchivedReport is one stored artifact of an archive run.
type ArchivedReport struct {
	Report string        `json:"report"`
	Format render.Format `json:"format"`
	URL    string        `json:"url"`
}

// ReportArchiver stores printable snapshots of the configured reports in blob storage.
type ReportArchiver struct {
	Records  gateway.Records
	Store    render.ObjectStore
	Locker   *redislock.Client
	Names    []string
	Location *time.Location
	OrgName  string
	LogoURL  string
	LockTTL  time.Duration
	Logger   *logrus.Logger
	Now      func() time.Time
}

func (a *ReportArchiver) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *ReportArchiver) logger() *logrus.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return config.GetLogger()
}

// RunOnce archives every configured report. Only one instance runs at a time; when
// another holds the lock RunOnce returns without doing anything.
func (a *ReportArchiver) RunOnce(ctx context.Context) ([]ArchivedReport, error) {
	if a.Locker != nil {
		ttl := a.LockTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		lock, err := a.Locker.Obtain(ctx, reportArchiveLockKey, ttl, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			a.logger().WithField("lock", reportArchiveLockKey).Info("report archive already running elsewhere")
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				config.LogError(a.logger(), "workflow", "ReportArchiver.RunOnce", "release", reportArchiveLockKey, err)
			}
		}()
	}

	ctx = utils.SystemContext(ctx, reportArchiveActor)
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}
	now := a.now().In(loc)
	day := now.Format("2006-01-02")

	var archived []ArchivedReport
	var failed []string
	for _, name := range a.Names {
		items, err := a.archive(ctx, name, day, reports.ReportOptions{
			OrgName:  a.OrgName,
			LogoURL:  a.LogoURL,
			Location: loc,
			Now:      now,
		})
		if err != nil {
			config.LogError(a.logger(), "workflow", "ReportArchiver.RunOnce", "archive", name, err)
			failed = append(failed, name)
			continue
		}
		archived = append(archived, items...)
	}

	a.logger().WithFields(logrus.Fields{
		"archived": len(archived),
		"failed":   failed,
		"day":      day,
	}).Info("report archive finished")

	if len(failed) > 0 {
		return archived, fmt.Errorf("report archive failed for %v", failed)
	}
	return archived, nil
}

func (a *ReportArchiver) archive(ctx context.Context, name, day string, opts reports.ReportOptions) ([]ArchivedReport, error) {
	doc, err := reports.BuildReport(ctx, a.Records, name, opts)
	if err != nil {
		return nil, err
	}
	surface := render.StorageSurface{Store: a.Store, Folder: fmt.Sprintf("reports/archive/%s/%s", name, day)}

	html, err := render.RenderArchiveHTML(doc)
	if err != nil {
		return nil, err
	}
	url, err := surface.Open(ctx, render.Artifact{Name: doc.Title, Format: render.FormatHTML, Body: html})
	if err != nil {
		return nil, err
	}
	result := []ArchivedReport{{Report: name, Format: render.FormatHTML, URL: url}}

	// an empty dataset still gets the printable page but no csv
	url, err = render.Export(ctx, doc, render.FormatCSV, surface)
	if errors.Is(err, render.ErrEmptyDataset) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	return append(result, ArchivedReport{Report: name, Format: render.FormatCSV, URL: url}), nil
}

// ScheduleReportArchive registers the archiver on spec (standard 5-field cron) in loc.
// An empty spec disables the job and returns a nil scheduler.
func ScheduleReportArchive(spec string, loc *time.Location, archiver *ReportArchiver) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := archiver.RunOnce(ctx); err != nil {
			config.LogError(archiver.logger(), "workflow", "ScheduleReportArchive", "run", spec, err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule report archive: %w", err)
	}
	return c, nil
}
