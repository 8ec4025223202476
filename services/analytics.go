package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/arcfolio/folio_api/dto"
	"github.com/arcfolio/folio_api/model"
	"github.com/arcfolio/folio_api/shared"
)

// documentStore is the slice of DocStoreService the analytics service
// needs. Tests swap in an in-memory fake.
type documentStore interface {
	DocumentLister
	Get(ctx context.Context, id string) (*Document, error)
	Create(ctx context.Context, description string, files map[string]string) (*Document, error)
}

// AnalyticsService owns the visit-record write and read paths. The
// backing store is a paginated, rate-limited listing API with no
// server-side filter or sort, so the query path synthesizes filtering,
// ordering and cursor pagination client-side over repeated list calls.
type AnalyticsService struct {
	appContext.DefaultService

	store        documentStore
	rateLimitSvc *RateLimitService
	archiveSvc   *ArchiveService
}

const ANALYTICS_SVC = "analytics_svc"

const (
	listPerPage  = 100
	maxListPages = 10

	DefaultQueryLimit = 20
	MaxQueryLimit     = 100

	visitFilePrefix = "visit-"
	visitFileSuffix = ".json"
)

func (svc AnalyticsService) Id() string {
	return ANALYTICS_SVC
}

func (svc *AnalyticsService) Start() error {
	svc.store = svc.Service(DOCSTORE_SVC).(*DocStoreService)
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.archiveSvc = svc.Service(ARCHIVE_SVC).(*ArchiveService)
	return nil
}

// ==================== INGESTION ====================

// Track validates and persists one visit. The caller's own budget is
// checked before the shared store budget so a noisy client burns its own
// allowance first. The raw IP is anonymized before composing the record
// and never persisted or echoed back.
func (svc *AnalyticsService) Track(ctx context.Context, req dto.TrackVisitRequest, callerIP string) (*dto.TrackVisitResponse, error) {
	if req.Identifier == "" {
		return nil, shared.NewBadRequestError(nil, "identifier is required")
	}

	if _, err := svc.rateLimitSvc.CheckCaller(ctx, callerIP, "track"); err != nil {
		return nil, err
	}
	if _, err := svc.rateLimitSvc.CheckGlobal(ctx); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		ts = req.Timestamp.UTC()
	}

	classification := shared.ClassifyUserAgent(req.UserAgent, req.ScreenWidth)

	record := model.VisitRecord{
		Identifier:   req.Identifier,
		Timestamp:    ts,
		AnonymizedIP: shared.AnonymizeIP(callerIP),
		UserAgent:    req.UserAgent,
		Referrer:     req.Referrer,
		ScreenWidth:  req.ScreenWidth,
		ScreenHeight: req.ScreenHeight,
		Timezone:     req.Timezone,
		Language:     req.Language,
		DeviceType:   classification.DeviceType,
		Browser:      classification.Browser,
		OS:           classification.OS,
	}

	content, err := shared.JSONMarshal(record)
	if err != nil {
		return nil, shared.NewInternalError(err, "Failed to encode record")
	}

	doc, err := svc.store.Create(ctx, shared.AnalyticsRecordPrefix, map[string]string{
		recordFilename(ts): string(content),
	})
	if err != nil {
		return nil, err
	}

	recordsIngested.Inc()
	log.WithField("store_id", doc.ID).WithField("device", record.DeviceType).Debug("Visit recorded")

	return &dto.TrackVisitResponse{StoreID: doc.ID}, nil
}

// recordFilename derives a unique document filename from a
// nanosecond-resolution timestamp. Colons and periods are not accepted in
// upstream filenames, so they are folded to dashes.
func recordFilename(ts time.Time) string {
	name := ts.Format(time.RFC3339Nano)
	name = strings.ReplaceAll(name, ":", "-")
	name = strings.ReplaceAll(name, ".", "-")
	return visitFilePrefix + name + visitFileSuffix
}

// ==================== QUERY ====================

// Query walks the backing listing to produce one page of visit records.
// The cursor denotes a position in the store's listing order; the page
// itself is presented in record-timestamp order, newest first. Filtering
// only happens after each candidate is parsed, because the store cannot
// filter.
func (svc *AnalyticsService) Query(ctx context.Context, filters dto.VisitFilters, limit int, cursor, callerIP string) (*dto.QueryVisitsResponse, error) {
	if _, err := svc.rateLimitSvc.CheckCaller(ctx, callerIP, "query"); err != nil {
		return nil, err
	}
	if _, err := svc.rateLimitSvc.CheckGlobal(ctx); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	walk, err := svc.collectVisits(ctx, cursor, 2*limit)
	if err != nil {
		return nil, err
	}

	filtered := filterVisits(walk.records, filters)

	var (
		page       []model.StoredVisitRecord
		nextCursor string
	)

	if len(filtered) > limit {
		// More matches already in hand: resume from the last record that
		// makes it onto this page.
		page = filtered[:limit]
		nextCursor = page[len(page)-1].StoreID
	} else {
		page = filtered
		if !walk.exhausted && walk.lastListedID != "" {
			// The walk stopped early; deeper pages may still hold
			// matches, so resume from the last listing entry consumed.
			nextCursor = walk.lastListedID
		}
	}

	// Pages are sliced in listing order but displayed newest-first by the
	// record's own timestamp. The two orders can diverge when documents
	// are touched out of band; the cursor stays bound to listing order.
	sort.SliceStable(page, func(i, j int) bool {
		return page[i].Record.Timestamp.After(page[j].Record.Timestamp)
	})

	return &dto.QueryVisitsResponse{
		Count:      len(page),
		Total:      len(filtered),
		HasMore:    nextCursor != "",
		NextCursor: nextCursor,
		Stats:      AggregateVisitStats(page),
		Records:    page,
	}, nil
}

// visitWalk is the outcome of one bounded listing walk.
type visitWalk struct {
	records      []model.StoredVisitRecord // parsed, listing order
	lastListedID string                    // last raw entry consumed
	exhausted    bool                      // backing listing fully drained
}

// collectVisits drains the listing walker from the cursor position until
// enough raw entries have accumulated (headroom for filtering) or the
// listing runs out. A supplied cursor positions the walk strictly after
// the named entry; if the cursor never shows up inside the page bound the
// walk yields nothing.
func (svc *AnalyticsService) collectVisits(ctx context.Context, cursor string, target int) (*visitWalk, error) {
	walker := newListingWalker(svc.store, listPerPage, maxListPages)

	walk := &visitWalk{}
	skipping := cursor != ""
	accumulated := 0

	for {
		doc, err := walker.Next(ctx)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			walk.exhausted = true
			return walk, nil
		}

		if skipping {
			if doc.ID == cursor {
				skipping = false
			}
			continue
		}

		accumulated++
		walk.lastListedID = doc.ID

		if strings.HasPrefix(doc.Description, shared.AnalyticsRecordPrefix) {
			stored, err := svc.parseVisitDocument(ctx, doc)
			if err != nil {
				var docErr *shared.DocStoreError
				if errors.As(err, &docErr) || errors.Is(err, shared.ErrDocStoreAuth) {
					// Upstream failure mid-walk: abort, no partial results.
					return nil, err
				}
				// A single malformed record never fails the query.
				recordsSkipped.Inc()
				log.WithError(err).WithField("store_id", doc.ID).Warn("Skipping unparsable visit record")
			} else {
				walk.records = append(walk.records, *stored)
			}
		}

		if accumulated >= target {
			return walk, nil
		}
	}
}

// parseVisitDocument extracts and validates the visit payload from a
// listing entry, refetching the full document when the listing carried
// truncated content.
func (svc *AnalyticsService) parseVisitDocument(ctx context.Context, doc *Document) (*model.StoredVisitRecord, error) {
	name, file, ok := findVisitFile(doc)
	if !ok {
		return nil, errors.New("no visit payload file")
	}

	if file.Truncated {
		full, err := svc.store.Get(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		f, exists := full.Files[name]
		if !exists {
			return nil, errors.New("visit payload missing on full fetch")
		}
		file = f
	}

	var record model.VisitRecord
	if err := shared.JSONUnmarshal([]byte(file.Content), &record); err != nil {
		return nil, err
	}

	if record.Identifier == "" || record.Timestamp.IsZero() {
		return nil, errors.New("visit record missing required fields")
	}

	return &model.StoredVisitRecord{
		StoreID:   doc.ID,
		URL:       doc.URL,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		Record:    record,
	}, nil
}

func findVisitFile(doc *Document) (string, DocumentFile, bool) {
	for name, file := range doc.Files {
		if strings.HasPrefix(name, visitFilePrefix) && strings.HasSuffix(name, visitFileSuffix) {
			return name, file, true
		}
	}
	return "", DocumentFile{}, false
}

func filterVisits(records []model.StoredVisitRecord, filters dto.VisitFilters) []model.StoredVisitRecord {
	out := records[:0:0]
	for _, r := range records {
		if filters.DeviceType != "" && !strings.EqualFold(r.Record.DeviceType, filters.DeviceType) {
			continue
		}
		if filters.DateFrom != nil && r.Record.Timestamp.Before(*filters.DateFrom) {
			continue
		}
		if filters.DateTo != nil && r.Record.Timestamp.After(*filters.DateTo) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ==================== EXPORT ====================

// Export snapshots every reachable visit record to the archive bucket.
func (svc *AnalyticsService) Export(ctx context.Context, callerIP string) (*dto.ExportResponse, error) {
	if _, err := svc.rateLimitSvc.CheckCaller(ctx, callerIP, "export"); err != nil {
		return nil, err
	}
	if _, err := svc.rateLimitSvc.CheckGlobal(ctx); err != nil {
		return nil, err
	}

	walk, err := svc.collectVisits(ctx, "", listPerPage*maxListPages)
	if err != nil {
		return nil, err
	}

	key, err := svc.archiveSvc.StoreVisitRecords(ctx, walk.records)
	if err != nil {
		return nil, err
	}

	return &dto.ExportResponse{ObjectKey: key, Records: len(walk.records)}, nil
}
