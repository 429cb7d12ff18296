// Package pid provides clients of the persistent identifier service used to
// mint URNs and DOIs for published datasets.
package pid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrServiceUnavailable is returned for every failure talking to the PID
// service. The underlying cause is logged.
var ErrServiceUnavailable = errors.New("pid service unavailable")

const doiScheme = "doi:"

// Client talks to the PID microservice.
type Client struct {
	logger         logrus.FieldLogger
	baseURL        *url.URL
	apiKey         string
	landingPageURL string
	doiPrefix      string
	client         *http.Client
}

var _ catalog.PIDIssuer = (*Client)(nil)

// NewClient returns a usable Client. landingPageURL is the base of the public
// dataset pages that identifiers resolve to.
func NewClient(logger logrus.FieldLogger, baseURL, apiKey, landingPageURL, doiPrefix string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "error processing PID service URL (%q)", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("PID service URL (%q) must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	const (
		dialTimeout      = 5 * time.Second
		handshakeTimeout = 5 * time.Second
	)
	return &Client{
		logger:         logger,
		baseURL:        u,
		apiKey:         apiKey,
		landingPageURL: strings.TrimSuffix(landingPageURL, "/"),
		doiPrefix:      doiPrefix,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: dialTimeout}).DialContext,
				TLSHandshakeTimeout: handshakeTimeout,
			},
		},
	}, nil
}

func (c *Client) datasetURL(id uuid.UUID) string {
	return fmt.Sprintf("%s/dataset/%s", c.landingPageURL, id)
}

// CreateURN implements catalog.PIDIssuer.
func (c *Client) CreateURN(ctx context.Context, datasetID uuid.UUID) (string, error) {
	payload := map[string]interface{}{
		"url":     c.datasetURL(datasetID),
		"type":    "URN",
		"persist": 0,
	}
	status, body, err := c.do(ctx, http.MethodPost, "/v1/pid", payload)
	if err != nil {
		return "", c.unavailable(err, datasetID, "POST /v1/pid")
	}
	if err := checkStatus(status, body); err != nil {
		return "", c.unavailable(err, datasetID, "POST /v1/pid")
	}
	pid := strings.TrimSpace(body)
	if !strings.HasPrefix(pid, "urn:") {
		return "", c.unavailable(errors.Errorf("invalid identifier %q, expected prefix %q", pid, "urn:"), datasetID, "POST /v1/pid")
	}
	c.logger.WithFields(logrus.Fields{"dataset": datasetID, "pid": pid}).Info("URN created")
	return pid, nil
}

// CreateDOI implements catalog.PIDIssuer. The returned identifier carries
// the doi: scheme.
func (c *Client) CreateDOI(ctx context.Context, d *catalog.Dataset) (string, error) {
	payload := dataciteEnvelope(d, c.datasetURL(d.ID), "publish")
	status, body, err := c.do(ctx, http.MethodPost, "/v1/pid/doi", payload)
	if err != nil {
		return "", c.unavailable(err, d.ID, "POST /v1/pid/doi")
	}
	if err := checkStatus(status, body); err != nil {
		return "", c.unavailable(err, d.ID, "POST /v1/pid/doi")
	}
	doi := strings.TrimSpace(body)
	if !strings.HasPrefix(doi, c.doiPrefix) {
		return "", c.unavailable(errors.Errorf("invalid identifier %q, expected prefix %q", doi, c.doiPrefix), d.ID, "POST /v1/pid/doi")
	}
	c.logger.WithFields(logrus.Fields{"dataset": d.ID, "pid": doi}).Info("DOI created")
	return doiScheme + doi, nil
}

// UpdateDOIMetadata implements catalog.PIDIssuer. DOIs unknown to the
// service are registered first.
func (c *Client) UpdateDOIMetadata(ctx context.Context, doi string, d *catalog.Dataset) error {
	doi = strings.TrimPrefix(doi, doiScheme)

	exists, err := c.doiExists(ctx, doi, d.ID)
	if err != nil {
		return err
	}
	if !exists {
		if err := c.insertPID(ctx, doi, d.ID); err != nil {
			return err
		}
	}

	path := "/v1/pid/doi/" + doi
	payload := dataciteEnvelope(d, c.datasetURL(d.ID), "")
	status, body, err := c.do(ctx, http.MethodPut, path, payload)
	if err != nil {
		return c.unavailable(err, d.ID, "PUT "+path)
	}
	if err := checkStatus(status, body); err != nil {
		return c.unavailable(err, d.ID, "PUT "+path)
	}
	c.logger.WithFields(logrus.Fields{"dataset": d.ID, "pid": doi}).Info("DOI metadata updated")
	return nil
}

func (c *Client) doiExists(ctx context.Context, doi string, id uuid.UUID) (bool, error) {
	path := "/get/v1/pid/" + doi
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, c.unavailable(err, id, "GET "+path)
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	if err := checkStatus(status, body); err != nil {
		return false, c.unavailable(err, id, "GET "+path)
	}
	if got := strings.TrimSpace(body); got != c.datasetURL(id) {
		return false, c.unavailable(errors.Errorf("dataset url (%s) doesn't match: %s", c.datasetURL(id), got), id, "GET "+path)
	}
	return true, nil
}

func (c *Client) insertPID(ctx context.Context, pid string, id uuid.UUID) error {
	path := "/v1/pid/" + pid
	status, body, err := c.do(ctx, http.MethodPost, path, map[string]string{"URL": c.datasetURL(id)})
	if err != nil {
		return c.unavailable(err, id, "POST "+path)
	}
	if err := checkStatus(status, body); err != nil {
		return c.unavailable(err, id, "POST "+path)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) (int, string, error) {
	var reader io.Reader
	if payload != nil {
		blob, err := json.Marshal(payload)
		if err != nil {
			return 0, "", errors.Wrap(err, "error encoding payload")
		}
		reader = bytes.NewReader(blob)
	}
	rel, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return 0, "", err
	}
	base := *c.baseURL
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	req, err := http.NewRequestWithContext(ctx, method, base.ResolveReference(rel).String(), reader)
	if err != nil {
		return 0, "", errors.Wrap(err, "error creating request")
	}
	req.Header.Set("apikey", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", errors.Wrap(err, "error sending request")
	}
	defer resp.Body.Close()
	blob, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, "", errors.Wrap(err, "error reading response")
	}
	return resp.StatusCode, string(blob), nil
}

func checkStatus(status int, body string) error {
	if status < 200 || status > 299 {
		return errors.Errorf("unexpected status code %d: %s", status, strings.TrimSpace(body))
	}
	return nil
}

func (c *Client) unavailable(err error, id uuid.UUID, request string) error {
	c.logger.WithFields(logrus.Fields{
		"dataset": id,
		"request": request,
	}).Error("PID service request failed: ", err)
	return errors.Wrap(ErrServiceUnavailable, err.Error())
}
