package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfolio/folio_api/dto"
	"github.com/arcfolio/folio_api/model"
	"github.com/arcfolio/folio_api/shared"
)

// fakeDocStore mimics the backing document API: paginated listing in a
// fixed order, per-document get, create prepending to the listing.
type fakeDocStore struct {
	mu     sync.Mutex
	docs   []Document
	full   map[string]Document
	nextID int

	listCalls int
	getCalls  int
	listErr   error
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{full: make(map[string]Document)}
}

func (f *fakeDocStore) List(_ context.Context, page, perPage int) ([]Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}

	start := (page - 1) * perPage
	if start >= len(f.docs) {
		return nil, nil
	}
	end := start + perPage
	if end > len(f.docs) {
		end = len(f.docs)
	}
	return append([]Document(nil), f.docs[start:end]...), nil
}

func (f *fakeDocStore) Get(_ context.Context, id string) (*Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls++
	if doc, ok := f.full[id]; ok {
		return &doc, nil
	}
	for _, doc := range f.docs {
		if doc.ID == id {
			return &doc, nil
		}
	}
	return nil, fmt.Errorf("get: %w", shared.ErrDocNotFound)
}

func (f *fakeDocStore) Create(_ context.Context, description string, files map[string]string) (*Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	doc := Document{
		ID:          fmt.Sprintf("doc-%d", f.nextID),
		Description: description,
		CreatedAt:   time.Now(),
		Files:       make(map[string]DocumentFile, len(files)),
	}
	for name, content := range files {
		doc.Files[name] = DocumentFile{Content: content, Size: len(content)}
	}

	// Listing order is newest first.
	f.docs = append([]Document{doc}, f.docs...)
	return &doc, nil
}

// addVisit appends a stored visit to the end of the listing (older than
// everything already present).
func (f *fakeDocStore) addVisit(id string, rec model.VisitRecord) {
	content, _ := shared.JSONMarshal(rec)
	f.docs = append(f.docs, Document{
		ID:          id,
		Description: shared.AnalyticsRecordPrefix,
		CreatedAt:   rec.Timestamp,
		Files: map[string]DocumentFile{
			recordFilename(rec.Timestamp): {Content: string(content), Size: len(content)},
		},
	})
}

func newTestAnalytics(store *fakeDocStore) *AnalyticsService {
	svc := &AnalyticsService{}
	svc.store = store
	svc.rateLimitSvc = newTestRateLimiter(NewMemoryWindowStore())
	svc.archiveSvc = &ArchiveService{}
	return svc
}

func visitAt(identifier string, ts time.Time, device string) model.VisitRecord {
	return model.VisitRecord{
		Identifier: identifier,
		Timestamp:  ts,
		DeviceType: device,
		Browser:    "Chrome",
		OS:         "Linux",
	}
}

// ==================== INGESTION ====================

func TestTrack_NoUserAgentClassifiesUnknown(t *testing.T) {
	store := newFakeDocStore()
	svc := newTestAnalytics(store)

	resp, err := svc.Track(context.Background(), dto.TrackVisitRequest{Identifier: "u1"}, "203.0.113.42")
	require.NoError(t, err)
	require.NotEmpty(t, resp.StoreID)

	doc, err := store.Get(context.Background(), resp.StoreID)
	require.NoError(t, err)
	require.Len(t, doc.Files, 1)

	for _, file := range doc.Files {
		var rec model.VisitRecord
		require.NoError(t, shared.JSONUnmarshal([]byte(file.Content), &rec))
		assert.Equal(t, "unknown", rec.DeviceType)
		assert.Equal(t, "unknown", rec.Browser)
		assert.Equal(t, "unknown", rec.OS)
	}
}

func TestTrack_NeverPersistsRawIP(t *testing.T) {
	store := newFakeDocStore()
	svc := newTestAnalytics(store)

	resp, err := svc.Track(context.Background(), dto.TrackVisitRequest{Identifier: "u1"}, "203.0.113.42")
	require.NoError(t, err)

	doc, err := store.Get(context.Background(), resp.StoreID)
	require.NoError(t, err)

	for _, file := range doc.Files {
		assert.NotContains(t, file.Content, "203.0.113.42")
		assert.Contains(t, file.Content, "203.0.113.xxx")
	}
}

func TestTrack_MissingIdentifier(t *testing.T) {
	svc := newTestAnalytics(newFakeDocStore())

	_, err := svc.Track(context.Background(), dto.TrackVisitRequest{}, "1.2.3.4")

	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.StatusCode)
}

func TestTrack_RecordFilenameConvention(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)

	name := recordFilename(ts)

	assert.True(t, strings.HasPrefix(name, "visit-"))
	assert.True(t, strings.HasSuffix(name, ".json"))
	// Upstream filenames cannot carry colons or extra periods.
	assert.NotContains(t, name, ":")
	assert.Equal(t, 1, strings.Count(name, "."))
}

func TestTrack_GlobalBudgetExhausted(t *testing.T) {
	store := newFakeDocStore()
	svc := newTestAnalytics(store)
	svc.rateLimitSvc.configs["global_docstore"].MaxRequests = 1

	_, err := svc.rateLimitSvc.CheckGlobal(context.Background())
	require.NoError(t, err)

	_, err = svc.Track(context.Background(), dto.TrackVisitRequest{Identifier: "u1"}, "1.2.3.4")

	var rlErr *shared.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.True(t, rlErr.Global)
	assert.Equal(t, 503, rlErr.StatusCode())
	// Nothing was written.
	assert.Empty(t, store.docs)
}

func TestTrack_CallerBudgetExhausted(t *testing.T) {
	store := newFakeDocStore()
	svc := newTestAnalytics(store)
	svc.rateLimitSvc.configs["track"].MaxRequests = 1

	_, err := svc.Track(context.Background(), dto.TrackVisitRequest{Identifier: "u1"}, "1.2.3.4")
	require.NoError(t, err)

	_, err = svc.Track(context.Background(), dto.TrackVisitRequest{Identifier: "u1"}, "1.2.3.4")

	var rlErr *shared.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.False(t, rlErr.Global)
	assert.Equal(t, 429, rlErr.StatusCode())
}

// ==================== QUERY ====================

func TestQuery_FiltersDeviceTypeSortedDescending(t *testing.T) {
	store := newFakeDocStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	store.addVisit("m1", visitAt("u1", base.Add(3*time.Hour), "mobile"))
	store.addVisit("d1", visitAt("u2", base.Add(2*time.Hour), "desktop"))
	store.addVisit("m2", visitAt("u3", base.Add(1*time.Hour), "mobile"))
	store.addVisit("m3", visitAt("u1", base, "mobile"))

	svc := newTestAnalytics(store)

	resp, err := svc.Query(context.Background(), dto.VisitFilters{DeviceType: "mobile"}, 10, "", "1.2.3.4")
	require.NoError(t, err)

	require.Equal(t, 3, resp.Count)
	for _, r := range resp.Records {
		assert.Equal(t, "mobile", r.Record.DeviceType)
	}
	for i := 1; i < len(resp.Records); i++ {
		assert.False(t, resp.Records[i-1].Record.Timestamp.Before(resp.Records[i].Record.Timestamp),
			"records must be timestamp-descending")
	}
	assert.False(t, resp.HasMore)
}

func TestQuery_DateRangeFilter(t *testing.T) {
	store := newFakeDocStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		store.addVisit(fmt.Sprintf("v%d", i), visitAt("u1", base.AddDate(0, 0, 4-i), "desktop"))
	}

	svc := newTestAnalytics(store)

	from := base.AddDate(0, 0, 1)
	to := base.AddDate(0, 0, 3)
	resp, err := svc.Query(context.Background(), dto.VisitFilters{DateFrom: &from, DateTo: &to}, 10, "", "1.2.3.4")
	require.NoError(t, err)

	assert.Equal(t, 3, resp.Count)
	for _, r := range resp.Records {
		assert.False(t, r.Record.Timestamp.Before(from))
		assert.False(t, r.Record.Timestamp.After(to))
	}
}

func TestQuery_PaginationCompleteNoDuplicates(t *testing.T) {
	store := newFakeDocStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	const total = 25
	for i := 0; i < total; i++ {
		// Listing order newest first, matching creation order.
		store.addVisit(fmt.Sprintf("v%d", i), visitAt(fmt.Sprintf("u%d", i), base.Add(-time.Duration(i)*time.Minute), "desktop"))
	}

	svc := newTestAnalytics(store)
	ctx := context.Background()

	seen := make(map[string]int)
	cursor := ""
	pages := 0

	for {
		resp, err := svc.Query(ctx, dto.VisitFilters{}, 10, cursor, "1.2.3.4")
		require.NoError(t, err)

		for _, r := range resp.Records {
			seen[r.StoreID]++
		}

		pages++
		require.LessOrEqual(t, pages, 10, "walk must terminate")

		if !resp.HasMore {
			break
		}
		require.NotEmpty(t, resp.NextCursor)
		cursor = resp.NextCursor
	}

	assert.Len(t, seen, total, "every record must be reached exactly once")
	for id, n := range seen {
		assert.Equal(t, 1, n, "record %s appeared %d times", id, n)
	}
}

func TestQuery_SkipsMalformedRecords(t *testing.T) {
	store := newFakeDocStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	store.addVisit("good", visitAt("u1", base, "desktop"))
	store.docs = append(store.docs, Document{
		ID:          "bad",
		Description: shared.AnalyticsRecordPrefix,
		Files: map[string]DocumentFile{
			"visit-broken.json": {Content: "{not json"},
		},
	})

	svc := newTestAnalytics(store)

	resp, err := svc.Query(context.Background(), dto.VisitFilters{}, 10, "", "1.2.3.4")
	require.NoError(t, err, "one bad record must never fail the query")

	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "good", resp.Records[0].StoreID)
}

func TestQuery_IgnoresUnrelatedDocuments(t *testing.T) {
	store := newFakeDocStore()
	store.docs = append(store.docs, Document{
		ID:          "unrelated",
		Description: "dotfiles backup",
		Files:       map[string]DocumentFile{"vimrc": {Content: "set nocompatible"}},
	})
	store.addVisit("v1", visitAt("u1", time.Now().UTC(), "desktop"))

	svc := newTestAnalytics(store)

	resp, err := svc.Query(context.Background(), dto.VisitFilters{}, 10, "", "1.2.3.4")
	require.NoError(t, err)

	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "v1", resp.Records[0].StoreID)
}

func TestQuery_TruncatedContentTriggersFullFetch(t *testing.T) {
	store := newFakeDocStore()
	rec := visitAt("u1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "mobile")
	content, _ := shared.JSONMarshal(rec)
	name := recordFilename(rec.Timestamp)

	store.docs = append(store.docs, Document{
		ID:          "t1",
		Description: shared.AnalyticsRecordPrefix,
		Files: map[string]DocumentFile{
			name: {Content: string(content[:10]), Truncated: true, Size: len(content)},
		},
	})
	store.full["t1"] = Document{
		ID:          "t1",
		Description: shared.AnalyticsRecordPrefix,
		Files:       map[string]DocumentFile{name: {Content: string(content), Size: len(content)}},
	}

	svc := newTestAnalytics(store)

	resp, err := svc.Query(context.Background(), dto.VisitFilters{}, 10, "", "1.2.3.4")
	require.NoError(t, err)

	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "u1", resp.Records[0].Record.Identifier)
	assert.Equal(t, 1, store.getCalls, "full fetch expected for truncated content")
}

func TestQuery_ListErrorAbortsWalk(t *testing.T) {
	store := newFakeDocStore()
	store.listErr = &shared.DocStoreError{Op: "list", Status: 500}

	svc := newTestAnalytics(store)

	_, err := svc.Query(context.Background(), dto.VisitFilters{}, 10, "", "1.2.3.4")

	var docErr *shared.DocStoreError
	require.True(t, errors.As(err, &docErr), "walk must abort with no partial results")
}

func TestQuery_StatsInvariant(t *testing.T) {
	store := newFakeDocStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.addVisit("v1", visitAt("u1", base.Add(2*time.Hour), "mobile"))
	store.addVisit("v2", visitAt("u1", base.Add(time.Hour), "desktop"))
	store.addVisit("v3", visitAt("u2", base, "mobile"))

	svc := newTestAnalytics(store)

	resp, err := svc.Query(context.Background(), dto.VisitFilters{}, 10, "", "1.2.3.4")
	require.NoError(t, err)

	sum := 0
	for _, n := range resp.Stats.ByDeviceType {
		sum += n
	}
	assert.Equal(t, resp.Stats.TotalRecords, sum)
	assert.Equal(t, 2, resp.Stats.TotalUniqueUsers)
	assert.LessOrEqual(t, resp.Stats.TotalUniqueUsers, resp.Stats.TotalRecords)
}

func TestQuery_UnknownCursorYieldsEmptyPage(t *testing.T) {
	store := newFakeDocStore()
	store.addVisit("v1", visitAt("u1", time.Now().UTC(), "desktop"))

	svc := newTestAnalytics(store)

	resp, err := svc.Query(context.Background(), dto.VisitFilters{}, 10, "no-such-id", "1.2.3.4")
	require.NoError(t, err)

	assert.Equal(t, 0, resp.Count)
	assert.False(t, resp.HasMore)
}

// ==================== EXPORT ====================

func TestExport_UnconfiguredArchive(t *testing.T) {
	store := newFakeDocStore()
	store.addVisit("v1", visitAt("u1", time.Now().UTC(), "desktop"))

	svc := newTestAnalytics(store)

	_, err := svc.Export(context.Background(), "1.2.3.4")

	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, 503, appErr.StatusCode)
}
