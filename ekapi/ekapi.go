package ekapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/danthegoodman1/ekdb/config"
	"github.com/danthegoodman1/ekdb/gologger"
	"github.com/danthegoodman1/ekdb/utils"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
)

var (
	ErrBadStatus = errors.New("bad response status")

	logger = gologger.NewLogger()
)

type (
	// Page is one batch of rows from the batch endpoint. RowData tuples are
	// positional and follow ColumnNames.
	Page struct {
		ColumnNames []string `json:"columnNames"`
		RowData     [][]any  `json:"rowData"`
		HasMore     bool     `json:"hasMore"`
		PKLastValue int64    `json:"pkLastValue"`
	}

	Client struct {
		baseURL    string
		httpClient *http.Client
		maxRetries uint64
	}
)

// NewClient creates a client for the API rooted at cfg.BaseURL.
func NewClient(cfg config.Sync) (*Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.TLSInsecure},
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("error in http2.ConfigureTransport: %w", err)
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.HTTPTimeout,
		},
		maxRetries: cfg.MaxRetries,
	}, nil
}

// BatchURL returns the batch endpoint URL for a page of table starting at pkStart.
func (c *Client) BatchURL(table config.Table, pkStart int64, perPage int) string {
	q := url.Values{}
	q.Set("pkStartValue", strconv.FormatInt(pkStart, 10))
	q.Set("pkName", table.PrimaryKey)
	q.Set("perPage", strconv.Itoa(perPage))
	return fmt.Sprintf("%s/tables/%s/batch?%s", c.baseURL, url.PathEscape(table.Name), q.Encode())
}

// FetchPage requests up to perPage rows of table whose primary key is >= pkStart.
func (c *Client) FetchPage(ctx context.Context, table config.Table, pkStart int64, perPage int) (*Page, error) {
	u := c.BatchURL(table, pkStart, perPage)
	var page *Page
	err := utils.ReliableOp(ctx, c.maxRetries, func(ctx context.Context) (err error) {
		page, err = c.get(ctx, u)
		return
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, u string) (*Page, error) {
	logger := zerolog.Ctx(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("error in http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	s := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error in httpClient.Do: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		err = fmt.Errorf("%w %d from %s: %s", ErrBadStatus, res.StatusCode, u, strings.TrimSpace(string(body)))
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return nil, permanent{err}
		}
		return nil, err
	}

	page, err := DecodePage(res.Body)
	if err != nil {
		return nil, permanent{err}
	}
	logger.Debug().Str("url", u).Int("rows", len(page.RowData)).Str("durationHuman", time.Since(s).String()).Msg("fetched page")
	return page, nil
}

// DecodePage parses a batch endpoint response body. Numbers are kept as json.Number.
func DecodePage(r io.Reader) (*Page, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var page Page
	if err := dec.Decode(&page); err != nil {
		return nil, fmt.Errorf("error decoding page: %w", err)
	}
	if page.ColumnNames == nil {
		return nil, errors.New("error decoding page: missing columnNames")
	}
	for i, row := range page.RowData {
		if len(row) != len(page.ColumnNames) {
			return nil, fmt.Errorf("error decoding page: row %d has %d values for %d columns", i, len(row), len(page.ColumnNames))
		}
	}
	return &page, nil
}

type permanent struct{ error }

func (p permanent) Unwrap() error     { return p.error }
func (p permanent) IsPermanent() bool { return true }
