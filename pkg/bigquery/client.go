// Package bigquery wraps the warehouse client used for findings export.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/taxnovahq/taxnova-backend/pkg/config"
	"github.com/taxnovahq/taxnova-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client streams rows into the audit reporting dataset. It is scoped to a
// single dataset whose tables are provisioned out of band.
type Client struct {
	client        *bigquery.Client
	dataset       *bigquery.Dataset
	projectID     string
	findingsTable string
}

// NewClient connects to BigQuery and verifies that the reporting dataset and
// findings table exist before returning.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	findingsTable := strings.TrimSpace(cfg.FindingsTable)
	if findingsTable == "" {
		return nil, errTableNameRequired
	}

	bqClient, err := bigquery.NewClient(ctx, projectID, credentialOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	client := &Client{
		client:        bqClient,
		dataset:       bqClient.Dataset(datasetID),
		projectID:     projectID,
		findingsTable: findingsTable,
	}

	if err := client.verifySchema(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(ctx, "bigquery client initialized")
	}
	return client, nil
}

// credentialOptions resolves GCP credentials, preferring inline JSON over a
// credentials file path.
func credentialOptions(gcp config.GCPConfig) []option.ClientOption {
	if json := strings.TrimSpace(gcp.CredentialsJSON); json != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(json))}
	}
	if file := strings.TrimSpace(gcp.ApplicationCredentials); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

func (c *Client) verifySchema(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}
	if _, err := c.dataset.Table(c.findingsTable).Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("table %q does not exist", c.findingsTable)
		}
		return fmt.Errorf("checking table %q: %w", c.findingsTable, err)
	}
	return nil
}

// Ping verifies the dataset and findings table are still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errClientNotInitialized
	}
	return c.verifySchema(ctx)
}

// InsertRows streams rows into the named table within the reporting dataset.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

// Close releases the underlying BigQuery client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}
