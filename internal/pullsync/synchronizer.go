// Package pullsync downloads remote records for monitored form
// groups and merges them into the local store behind a per-group
// watermark cursor.
package pullsync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/akvo/akvo-flow-mobile-sub002/internal/db"
	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/logging"
)

// maxPages bounds one sync run. A server that keeps producing pages
// past this is violating the protocol.
const maxPages = 1000

// Config holds synchronizer configuration.
type Config struct {
	// BaseURL is the server endpoint serving record pages.
	BaseURL  string
	DeviceID string
	Timeout  time.Duration
}

// wireResponse mirrors one answer on the wire.
type wireResponse struct {
	QuestionID string `json:"questionId"`
	Iteration  int    `json:"iteration"`
	Value      string `json:"value"`
	Type       string `json:"answerType"`
}

// wireSubmission mirrors one submission on the wire.
type wireSubmission struct {
	UUID          string         `json:"uuid"`
	FormID        string         `json:"formId"`
	SubmitterName string         `json:"submitter"`
	SubmittedAt   int64          `json:"collectionDate"`
	Version       float64        `json:"formVersion"`
	Responses     []wireResponse `json:"responses"`
}

// wireRecord mirrors one data point on the wire.
type wireRecord struct {
	RecordID     string           `json:"id"`
	Name         string           `json:"displayName"`
	Latitude     *float64         `json:"latitude"`
	Longitude    *float64         `json:"longitude"`
	LastModified int64            `json:"lastModified"`
	Submissions  []wireSubmission `json:"surveyInstances"`
}

// page is one response of the record endpoint. SyncTime is the
// server-side cursor, trusted only once a page adds no new records;
// mid-run it can sit ahead of records the server has not served yet.
type page struct {
	Records  []wireRecord `json:"dataPoints"`
	SyncTime int64        `json:"syncTime"`
}

// Result summarizes one sync run for a group.
type Result struct {
	GroupID   string
	Pages     int
	Records   int
	Watermark int64
}

// Synchronizer pulls record pages and merges them.
type Synchronizer struct {
	store  *db.Store
	client *resty.Client
	cfg    Config
}

// NewSynchronizer creates a pull Synchronizer.
func NewSynchronizer(store *db.Store, cfg Config) *Synchronizer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 45 * time.Second
	}
	client := resty.New().SetBaseURL(cfg.BaseURL).SetTimeout(cfg.Timeout)
	return &Synchronizer{store: store, client: client, cfg: cfg}
}

// Sync pulls all records newer than the group's watermark, one page
// at a time. The server's since filter is greater-or-equal, so each
// page is diffed against the previous page's record ids; a page that
// adds no new ids ends the run. Each surviving page is merged in one
// transaction together with the watermark advance, so a crash
// between pages merely re-fetches a page that merges idempotently.
// The watermark only ever moves to the newest lastModified actually
// merged; the server's own cursor is adopted at the frontier alone.
func (s *Synchronizer) Sync(ctx context.Context, groupID string) (*Result, error) {
	since, err := s.store.GetWatermark(groupID)
	if err != nil {
		return nil, err
	}

	res := &Result{GroupID: groupID, Watermark: since}
	previous := map[string]struct{}{}

	for {
		if res.Pages >= maxPages {
			return res, apperrors.New(apperrors.ErrPageOverflow,
				fmt.Sprintf("group %s exceeded %d pages in one run", groupID, maxPages))
		}

		pg, err := s.fetchPage(ctx, groupID, res.Watermark)
		if err != nil {
			return res, err
		}

		fresh, seen := dedupe(pg.Records, previous)
		if len(fresh) == 0 {
			// Frontier reached: nothing older than the server cursor
			// remains unserved, so adopting it is safe here and skips
			// the boundary refetch on the next run.
			if pg.SyncTime > res.Watermark {
				if err := s.store.SetWatermark(groupID, pg.SyncTime); err != nil {
					return res, err
				}
				res.Watermark = pg.SyncTime
			}
			return res, nil
		}

		records := make([]db.RemoteRecord, 0, len(fresh))
		latest := res.Watermark
		for _, r := range fresh {
			records = append(records, toRemote(groupID, r))
			if r.LastModified > latest {
				latest = r.LastModified
			}
		}

		if err := s.store.MergePage(groupID, records, latest); err != nil {
			return res, err
		}

		res.Pages++
		res.Records += len(fresh)
		res.Watermark = latest
		previous = seen

		logging.WithFields(logging.Fields{
			"group":     groupID,
			"records":   len(fresh),
			"watermark": latest,
		}).Debugf("merged page %d", res.Pages)
	}
}

// SyncAll runs Sync for every known form group. Per-group failures
// are isolated from siblings.
func (s *Synchronizer) SyncAll(ctx context.Context) ([]*Result, error) {
	groups, err := s.store.ListFormGroups()
	if err != nil {
		return nil, err
	}

	var results []*Result
	var firstErr error
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.Sync(ctx, g.GroupID)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			logging.WithFields(logging.Fields{"group": g.GroupID}).
				WithError(err).Warn("pull sync failed for group")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return results, firstErr
}

func (s *Synchronizer) fetchPage(ctx context.Context, groupID string, since int64) (*page, error) {
	var pg page
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"surveyGroupId": groupID,
			"timestamp":     strconv.FormatInt(since, 10),
			"androidId":     s.cfg.DeviceID,
		}).
		SetResult(&pg).
		Get("/datapoints")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransientNetwork, "record page request failed", err)
	}
	if resp.IsError() {
		return nil, apperrors.New(apperrors.ErrSyncFailed,
			fmt.Sprintf("record page request for group %s failed with status %s", groupID, resp.Status()))
	}
	return &pg, nil
}

// dedupe drops records already present in the previous page and
// returns the current page's id set for the next round.
func dedupe(records []wireRecord, previous map[string]struct{}) ([]wireRecord, map[string]struct{}) {
	seen := make(map[string]struct{}, len(records))
	fresh := records[:0:0]
	for _, r := range records {
		seen[r.RecordID] = struct{}{}
		if _, dup := previous[r.RecordID]; dup {
			continue
		}
		fresh = append(fresh, r)
	}
	return fresh, seen
}

func toRemote(groupID string, r wireRecord) db.RemoteRecord {
	rec := db.RemoteRecord{
		RecordID:     r.RecordID,
		GroupID:      groupID,
		Name:         r.Name,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		LastModified: r.LastModified,
	}
	for _, sub := range r.Submissions {
		remote := db.RemoteSubmission{
			UUID:          sub.UUID,
			FormID:        sub.FormID,
			SubmitterName: sub.SubmitterName,
			SubmittedAt:   sub.SubmittedAt,
			Version:       sub.Version,
		}
		for _, ans := range sub.Responses {
			remote.Responses = append(remote.Responses, db.RemoteResponse{
				QuestionID: ans.QuestionID,
				Iteration:  ans.Iteration,
				Value:      ans.Value,
				Type:       ans.Type,
			})
		}
		rec.Submissions = append(rec.Submissions, remote)
	}
	return rec
}
