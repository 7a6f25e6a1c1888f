package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/zakazai/enrichdb/internal/lookup"
	"github.com/zakazai/enrichdb/internal/notify"
	"github.com/zakazai/enrichdb/internal/storage"
	"github.com/zakazai/enrichdb/internal/types"
)

// DefaultExcludedDomains are skipped unless overridden with WithExcludedDomains
var DefaultExcludedDomains = []string{"verkada"}

// ErrInvalidPayload is wrapped by Handle when the input is not a JSON object
// with an optional string email.
var ErrInvalidPayload = errors.New("invalid payload")

var ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "enrichdb_ingest_total",
	Help: "Total number of ingestion requests by outcome.",
}, []string{"outcome"})

const (
	outcomeStored    = "stored"
	outcomeSkipped   = "skipped"
	outcomeInvalid   = "invalid"
	outcomeLookup    = "lookup_error"
	outcomeStore     = "store_error"
	outcomeForwarded = "forward_error"
)

// MalformedEmailError is returned for addresses that cannot be split into
// name, domain and top level name.
type MalformedEmailError struct {
	Email  string
	Reason string
}

func (e *MalformedEmailError) Error() string {
	return fmt.Sprintf("malformed email %q: %s", e.Email, e.Reason)
}

// Request is the ingestion input. A nil Email means there is nothing to do.
type Request struct {
	Email *string `json:"email"`
}

// Record is the enriched row stored and forwarded for one email
type Record struct {
	Key          int    `json:"-"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Domain       string `json:"domain"`
	TopLevelName string `json:"topLevelName"`
	Age          int    `json:"age"`
	Gender       string `json:"gender"`
	Nationality  string `json:"nationality"`
}

// Row returns the record as store values
func (r *Record) Row() map[string]interface{} {
	return map[string]interface{}{
		"name":         r.Name,
		"email":        r.Email,
		"domain":       r.Domain,
		"topLevelName": r.TopLevelName,
		"age":          r.Age,
		"gender":       r.Gender,
		"nationality":  r.Nationality,
	}
}

// Handler enriches emails and appends them to a table
type Handler struct {
	store         storage.Storage
	table         string
	ages          lookup.AgeLookup
	genders       lookup.GenderLookup
	nationalities lookup.NationalityLookup
	sink          notify.Sink
	excluded      map[string]bool
	logger        *types.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithExcludedDomains replaces the excluded domain list. Matching is case
// insensitive.
func WithExcludedDomains(domains []string) Option {
	return func(h *Handler) {
		h.excluded = make(map[string]bool, len(domains))
		for _, d := range domains {
			h.excluded[strings.ToLower(strings.TrimSpace(d))] = true
		}
	}
}

func WithLogger(logger *types.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func NewHandler(store storage.Storage, table string, ages lookup.AgeLookup, genders lookup.GenderLookup,
	nationalities lookup.NationalityLookup, sink notify.Sink, opts ...Option) *Handler {
	if sink == nil {
		sink = notify.NopSink{}
	}
	h := &Handler{
		store:         store,
		table:         table,
		ages:          ages,
		genders:       genders,
		nationalities: nationalities,
		sink:          sink,
		logger:        types.GlobalLogger.WithModule("ingest"),
	}
	WithExcludedDomains(DefaultExcludedDomains)(h)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle decodes a JSON payload such as {"email": "Kyle@ccompany.com"} and
// processes it. A nil record with a nil error means nothing was done.
func (h *Handler) Handle(ctx context.Context, payload []byte) (*Record, error) {
	var req Request
	decoder := json.NewDecoder(bytes.NewReader(payload))
	if err := decoder.Decode(&req); err != nil {
		ingestTotal.WithLabelValues(outcomeInvalid).Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if decoder.More() {
		ingestTotal.WithLabelValues(outcomeInvalid).Inc()
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrInvalidPayload)
	}
	return h.HandleRequest(ctx, req)
}

func (h *Handler) HandleRequest(ctx context.Context, req Request) (*Record, error) {
	if req.Email == nil {
		ingestTotal.WithLabelValues(outcomeSkipped).Inc()
		return nil, nil
	}
	email := *req.Email

	rec, skip, err := h.parse(email)
	if err != nil {
		ingestTotal.WithLabelValues(outcomeInvalid).Inc()
		return nil, err
	}
	if skip {
		h.logger.Debug("skipping excluded email %s", email)
		ingestTotal.WithLabelValues(outcomeSkipped).Inc()
		return nil, nil
	}

	if err := h.enrich(ctx, rec); err != nil {
		ingestTotal.WithLabelValues(outcomeLookup).Inc()
		return nil, err
	}

	key, err := h.store.Insert(h.table, rec.Row())
	if err != nil {
		ingestTotal.WithLabelValues(outcomeStore).Inc()
		return nil, err
	}
	rec.Key = key

	if err := h.sink.Forward(ctx, rec); err != nil {
		h.logger.Error("forwarding %s failed: %v", email, err)
		ingestTotal.WithLabelValues(outcomeForwarded).Inc()
		var fwdErr *notify.ForwardingError
		if !errors.As(err, &fwdErr) {
			err = &notify.ForwardingError{Err: err}
		}
		return nil, err
	}

	h.logger.Info("stored %s in %s under key %d", email, h.table, key)
	ingestTotal.WithLabelValues(outcomeStored).Inc()
	return rec, nil
}

// parse splits an email into its parts. skip reports an excluded domain.
func (h *Handler) parse(email string) (rec *Record, skip bool, err error) {
	name, host, ok := strings.Cut(email, "@")
	if !ok {
		return nil, false, &MalformedEmailError{Email: email, Reason: "missing @"}
	}
	if name == "" {
		return nil, false, &MalformedEmailError{Email: email, Reason: "empty name"}
	}
	if strings.Contains(host, "@") {
		return nil, false, &MalformedEmailError{Email: email, Reason: "more than one @"}
	}

	domain, _, _ := strings.Cut(host, ".")
	if h.excluded[strings.ToLower(domain)] {
		return nil, true, nil
	}

	topLevelName, ok := strings.CutPrefix(host, domain+".")
	if !ok || domain == "" || topLevelName == "" {
		return nil, false, &MalformedEmailError{Email: email, Reason: "host must look like domain.tld"}
	}

	return &Record{
		Name:         name,
		Email:        email,
		Domain:       domain,
		TopLevelName: topLevelName,
	}, false, nil
}

// enrich runs the three lookups concurrently. The first failure cancels
// the others.
func (h *Handler) enrich(ctx context.Context, rec *Record) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		age, err := h.ages.Age(gctx, rec.Name)
		rec.Age = age
		return err
	})
	g.Go(func() error {
		gender, err := h.genders.Gender(gctx, rec.Name)
		rec.Gender = gender
		return err
	})
	g.Go(func() error {
		nationality, err := h.nationalities.Nationality(gctx, rec.Name)
		rec.Nationality = nationality
		return err
	})

	return g.Wait()
}
