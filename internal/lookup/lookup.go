package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/zakazai/enrichdb/internal/types"
)

// Service names used in errors, logs and metric labels
const (
	ServiceAge         = "agify"
	ServiceGender      = "genderize"
	ServiceNationality = "nationalize"
)

// Default public endpoints
const (
	DefaultAgeURL         = "https://api.agify.io"
	DefaultGenderURL      = "https://api.genderize.io"
	DefaultNationalityURL = "https://api.nationalize.io"
)

var lookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "enrichdb_lookup_duration_seconds",
	Help: "Duration of external lookup requests in seconds by service.",
}, []string{"service"})

// AgeLookup estimates an age from a first name
type AgeLookup interface {
	Age(ctx context.Context, name string) (int, error)
}

// GenderLookup estimates a gender from a first name
type GenderLookup interface {
	Gender(ctx context.Context, name string) (string, error)
}

// NationalityLookup returns the most likely country code for a first name
type NationalityLookup interface {
	Nationality(ctx context.Context, name string) (string, error)
}

// ExternalLookupError is returned when a lookup service cannot be reached
// or does not yield the requested field.
type ExternalLookupError struct {
	Service string
	Name    string
	Err     error
}

func (e *ExternalLookupError) Error() string {
	return fmt.Sprintf("%s lookup for %q failed: %v", e.Service, e.Name, e.Err)
}

func (e *ExternalLookupError) Unwrap() error {
	return e.Err
}

// Options tunes a lookup client. Zero values fall back to defaults.
type Options struct {
	Timeout   time.Duration
	CacheSize int
	RateLimit float64 // requests per second, 0 disables limiting
	Burst     int
}

// Client fetches one JSON document per name from a lookup service. Results
// are memoized per name.
type Client struct {
	service string
	baseURL string
	http    *http.Client
	cache   *lru.Cache
	limiter *rate.Limiter
	logger  *types.Logger
}

func newClient(service, baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}

	c := &Client{
		service: service,
		baseURL: baseURL,
		http:    &http.Client{Timeout: opts.Timeout},
		logger:  types.GlobalLogger.WithModule("lookup").WithField("service", service),
	}
	c.cache, _ = lru.New(opts.CacheSize)
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst)
	}
	return c
}

// fetch decodes the response for name into out.
func (c *Client) fetch(ctx context.Context, name string, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limit wait")
		}
	}

	start := time.Now()
	defer func() {
		lookupDuration.WithLabelValues(c.service).Observe(time.Since(start).Seconds())
	}()

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "invalid base url")
	}
	q := u.Query()
	q.Set("name", name)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func (c *Client) fail(name string, err error) error {
	c.logger.Warning("lookup for %q failed: %v", name, err)
	return &ExternalLookupError{Service: c.service, Name: name, Err: err}
}

func (c *Client) cached(name string) (interface{}, bool) {
	v, ok := c.cache.Get(name)
	if ok {
		c.logger.Debug("cache hit for %q", name)
	}
	return v, ok
}

// AgifyClient implements AgeLookup
type AgifyClient struct {
	*Client
}

func NewAgifyClient(baseURL string, opts Options) *AgifyClient {
	return &AgifyClient{newClient(ServiceAge, baseURL, opts)}
}

func (c *AgifyClient) Age(ctx context.Context, name string) (int, error) {
	if v, ok := c.cached(name); ok {
		return v.(int), nil
	}

	var body struct {
		Age *int `json:"age"`
	}
	if err := c.fetch(ctx, name, &body); err != nil {
		return 0, c.fail(name, err)
	}
	if body.Age == nil {
		return 0, c.fail(name, fmt.Errorf("no age in response"))
	}
	c.cache.Add(name, *body.Age)
	return *body.Age, nil
}

// GenderizeClient implements GenderLookup
type GenderizeClient struct {
	*Client
}

func NewGenderizeClient(baseURL string, opts Options) *GenderizeClient {
	return &GenderizeClient{newClient(ServiceGender, baseURL, opts)}
}

func (c *GenderizeClient) Gender(ctx context.Context, name string) (string, error) {
	if v, ok := c.cached(name); ok {
		return v.(string), nil
	}

	var body struct {
		Gender *string `json:"gender"`
	}
	if err := c.fetch(ctx, name, &body); err != nil {
		return "", c.fail(name, err)
	}
	if body.Gender == nil {
		return "", c.fail(name, fmt.Errorf("no gender in response"))
	}
	c.cache.Add(name, *body.Gender)
	return *body.Gender, nil
}

// NationalizeClient implements NationalityLookup. Only the first, most
// probable, country is used.
type NationalizeClient struct {
	*Client
}

func NewNationalizeClient(baseURL string, opts Options) *NationalizeClient {
	return &NationalizeClient{newClient(ServiceNationality, baseURL, opts)}
}

func (c *NationalizeClient) Nationality(ctx context.Context, name string) (string, error) {
	if v, ok := c.cached(name); ok {
		return v.(string), nil
	}

	var body struct {
		Country []struct {
			CountryID   string  `json:"country_id"`
			Probability float64 `json:"probability"`
		} `json:"country"`
	}
	if err := c.fetch(ctx, name, &body); err != nil {
		return "", c.fail(name, err)
	}
	if len(body.Country) == 0 {
		return "", c.fail(name, fmt.Errorf("no country in response"))
	}
	country := body.Country[0].CountryID
	c.cache.Add(name, country)
	return country, nil
}
