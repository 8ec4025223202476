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

// ContactService persists contact-form submissions to the same backing
// document store the analytics path uses, under its own description
// prefix and its own caller budget.
type ContactService struct {
	appContext.DefaultService

	store        documentStore
	rateLimitSvc *RateLimitService
}

const CONTACT_SVC = "contact_svc"

const (
	contactFilePrefix = "contact-"
	contactFileSuffix = ".json"
)

func (svc ContactService) Id() string {
	return CONTACT_SVC
}

func (svc *ContactService) Start() error {
	svc.store = svc.Service(DOCSTORE_SVC).(*DocStoreService)
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	return nil
}

// Submit persists one contact-form submission. Field validation happens
// in the handler; the budgets here mirror the ingestion path.
func (svc *ContactService) Submit(ctx context.Context, req dto.SubmitContactRequest, callerIP string) (*dto.SubmitContactResponse, error) {
	if _, err := svc.rateLimitSvc.CheckCaller(ctx, callerIP, "contact"); err != nil {
		return nil, err
	}
	if _, err := svc.rateLimitSvc.CheckGlobal(ctx); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()

	record := model.ContactRecord{
		Name:      req.Name,
		Email:     req.Email,
		Message:   req.Message,
		Intent:    req.Intent,
		Timestamp: ts,
	}

	content, err := shared.JSONMarshal(record)
	if err != nil {
		return nil, shared.NewInternalError(err, "Failed to encode record")
	}

	name := contactFilePrefix + strings.NewReplacer(":", "-", ".", "-").Replace(ts.Format(time.RFC3339Nano)) + contactFileSuffix

	doc, err := svc.store.Create(ctx, shared.ContactRecordPrefix, map[string]string{name: string(content)})
	if err != nil {
		return nil, err
	}

	recordsIngested.Inc()
	log.WithField("store_id", doc.ID).WithField("intent", record.Intent).Info("Contact submission recorded")

	return &dto.SubmitContactResponse{StoreID: doc.ID}, nil
}

// List returns up to limit contact submissions, newest first, optionally
// narrowed to one intent. Contacts are low-volume, so there is no cursor:
// one bounded walk covers the lot.
func (svc *ContactService) List(ctx context.Context, limit int, intent, callerIP string) (*dto.ListContactsResponse, error) {
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

	walker := newListingWalker(svc.store, listPerPage, maxListPages)

	var records []model.StoredContactRecord
	for {
		doc, err := walker.Next(ctx)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			break
		}

		if !strings.HasPrefix(doc.Description, shared.ContactRecordPrefix) {
			continue
		}

		stored, err := svc.parseContactDocument(ctx, doc)
		if err != nil {
			var docErr *shared.DocStoreError
			if errors.As(err, &docErr) || errors.Is(err, shared.ErrDocStoreAuth) {
				return nil, err
			}
			recordsSkipped.Inc()
			log.WithError(err).WithField("store_id", doc.ID).Warn("Skipping unparsable contact record")
			continue
		}

		if intent != "" && !strings.EqualFold(stored.Record.Intent, intent) {
			continue
		}

		records = append(records, *stored)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Record.Timestamp.After(records[j].Record.Timestamp)
	})

	total := len(records)
	if len(records) > limit {
		records = records[:limit]
	}

	return &dto.ListContactsResponse{
		Count:   len(records),
		Total:   total,
		Records: records,
	}, nil
}

func (svc *ContactService) parseContactDocument(ctx context.Context, doc *Document) (*model.StoredContactRecord, error) {
	var name string
	var file DocumentFile
	found := false
	for n, f := range doc.Files {
		if strings.HasPrefix(n, contactFilePrefix) && strings.HasSuffix(n, contactFileSuffix) {
			name, file, found = n, f, true
			break
		}
	}
	if !found {
		return nil, errors.New("no contact payload file")
	}

	if file.Truncated {
		full, err := svc.store.Get(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		f, exists := full.Files[name]
		if !exists {
			return nil, errors.New("contact payload missing on full fetch")
		}
		file = f
	}

	var record model.ContactRecord
	if err := shared.JSONUnmarshal([]byte(file.Content), &record); err != nil {
		return nil, err
	}

	if record.Email == "" || record.Timestamp.IsZero() {
		return nil, errors.New("contact record missing required fields")
	}

	return &model.StoredContactRecord{
		StoreID:   doc.ID,
		URL:       doc.URL,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		Record:    record,
	}, nil
}
