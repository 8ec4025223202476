package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/arcfolio/folio_api/shared"
)

// Document mirrors the backing document-hosting API's unit of storage: an
// identified bag of named files. Listing responses may carry truncated
// file content; only a per-document Get guarantees the full payload.
type Document struct {
	ID          string                  `json:"id"`
	Description string                  `json:"description"`
	URL         string                  `json:"html_url"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
	Files       map[string]DocumentFile `json:"files"`
}

type DocumentFile struct {
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	Size      int    `json:"size"`
}

// DocumentLister is the slice of the store the listing walker needs; the
// full service satisfies it, and tests swap in an in-memory fake.
type DocumentLister interface {
	List(ctx context.Context, page, perPage int) ([]Document, error)
}

// DocStoreService adapts the remote document-hosting API the site uses as
// its database. The API offers paginated listing, per-document get, create
// and update; no server-side filtering or sorting exists, so everything
// above this adapter synthesizes those client-side.
type DocStoreService struct {
	appContext.DefaultService

	httpClient *http.Client
	apiURL     string
	token      string
}

const DOCSTORE_SVC = "docstore_svc"

func (svc DocStoreService) Id() string {
	return DOCSTORE_SVC
}

func (svc *DocStoreService) Configure(ctx *appContext.Context) error {
	svc.httpClient = &http.Client{
		Timeout: 10 * time.Second,
	}

	svc.apiURL = os.Getenv("DOCSTORE_API_URL")
	if svc.apiURL == "" {
		svc.apiURL = "https://api.github.com/gists"
	}

	svc.token = os.Getenv("DOCSTORE_TOKEN")

	return svc.DefaultService.Configure(ctx)
}

func (svc *DocStoreService) Start() error {
	if svc.token == "" {
		log.Warn("DOCSTORE_TOKEN not set, document store calls will be rejected upstream")
	}
	return nil
}

// List fetches one listing page. Pages are 1-based; the result is in the
// store's own listing order (creation-time descending for the upstream we
// target), which is the order cursors are resolved against.
func (svc *DocStoreService) List(ctx context.Context, page, perPage int) ([]Document, error) {
	url := fmt.Sprintf("%s?page=%d&per_page=%d", svc.apiURL, page, perPage)

	var docs []Document
	if err := svc.do(ctx, http.MethodGet, url, nil, &docs, "list"); err != nil {
		return nil, err
	}
	return docs, nil
}

// Get fetches a single document with full, untruncated file content.
func (svc *DocStoreService) Get(ctx context.Context, id string) (*Document, error) {
	url := fmt.Sprintf("%s/%s", svc.apiURL, id)

	var doc Document
	if err := svc.do(ctx, http.MethodGet, url, nil, &doc, "get"); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Create writes a new private document and returns its store-assigned
// identity.
func (svc *DocStoreService) Create(ctx context.Context, description string, files map[string]string) (*Document, error) {
	body := createRequest{
		Description: description,
		Public:      false,
		Files:       make(map[string]filePayload, len(files)),
	}
	for name, content := range files {
		body.Files[name] = filePayload{Content: content}
	}

	var doc Document
	if err := svc.do(ctx, http.MethodPost, svc.apiURL, &body, &doc, "create"); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Update replaces file content on an existing document. Visit and contact
// records are append-only and never pass through here; this exists for
// out-of-band fixups of individual documents.
func (svc *DocStoreService) Update(ctx context.Context, id string, files map[string]string) (*Document, error) {
	body := createRequest{
		Files: make(map[string]filePayload, len(files)),
	}
	for name, content := range files {
		body.Files[name] = filePayload{Content: content}
	}

	url := fmt.Sprintf("%s/%s", svc.apiURL, id)

	var doc Document
	if err := svc.do(ctx, http.MethodPatch, url, &body, &doc, "update"); err != nil {
		return nil, err
	}
	return &doc, nil
}

type createRequest struct {
	Description string                 `json:"description,omitempty"`
	Public      bool                   `json:"public"`
	Files       map[string]filePayload `json:"files"`
}

type filePayload struct {
	Content string `json:"content"`
}

func (svc *DocStoreService) do(ctx context.Context, method, url string, body, out interface{}, op string) error {
	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &shared.DocStoreError{Op: op, Err: err}
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return &shared.DocStoreError{Op: op, Err: err}
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if svc.token != "" {
		req.Header.Set("Authorization", "Bearer "+svc.token)
	}

	docstoreCalls.WithLabelValues(op).Inc()

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		log.WithError(err).WithField("op", op).Error("Document store call failed")
		return &shared.DocStoreError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s (%s): %w", op, strconv.Itoa(resp.StatusCode), shared.ErrDocStoreAuth)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, shared.ErrDocNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		log.WithField("op", op).WithField("status", resp.StatusCode).Error("Document store returned non-2xx status")
		return &shared.DocStoreError{Op: op, Status: resp.StatusCode}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &shared.DocStoreError{Op: op, Err: err}
		}
	}

	return nil
}

// ==================== LISTING WALKER ====================

// listingWalker lazily enumerates raw listing entries across pages. It is
// finite (bounded by maxPages) and not restartable: once a page has been
// consumed the walker does not refetch it. Cursor resolution and
// accumulation on top of it stay unit-testable without network I/O.
type listingWalker struct {
	lister   DocumentLister
	perPage  int
	maxPages int

	page int
	buf  []Document
	idx  int
	done bool
}

func newListingWalker(lister DocumentLister, perPage, maxPages int) *listingWalker {
	return &listingWalker{
		lister:   lister,
		perPage:  perPage,
		maxPages: maxPages,
	}
}

// Next returns the next listing entry, or nil when the listing is
// exhausted or the page bound is hit. A store error aborts the walk.
func (w *listingWalker) Next(ctx context.Context) (*Document, error) {
	for {
		if w.idx < len(w.buf) {
			doc := w.buf[w.idx]
			w.idx++
			return &doc, nil
		}

		if w.done || w.page >= w.maxPages {
			return nil, nil
		}

		w.page++
		docs, err := w.lister.List(ctx, w.page, w.perPage)
		if err != nil {
			return nil, err
		}

		if len(docs) < w.perPage {
			w.done = true
		}
		if len(docs) == 0 {
			return nil, nil
		}

		w.buf = docs
		w.idx = 0
	}
}
