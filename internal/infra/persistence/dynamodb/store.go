// Package dynamodb persists records to Amazon DynamoDB (or a compatible
// endpoint such as DynamoDB Local), one table per namespace.
package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hashicorp/go-hclog"

	"graphsync/pkg/domain"
)

var _ domain.Backend = (*Store)(nil)

const (
	attrID        = "id"
	attrPrototype = "prototype"
	attrPayload   = "payload"

	defaultNamespace = "objects"
	defaultWait      = 2 * time.Minute
)

var tablePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,255}$`)

// Config holds construction parameters. Empty credentials fall back to the
// default AWS credential chain.
type Config struct {
	Region          string
	Endpoint        string // optional; DynamoDB Local or another compatible endpoint
	TablePrefix     string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// WaitTimeout bounds how long Configure waits for a new table to become active.
	WaitTimeout time.Duration
	// HTTPClient overrides the transport; tests use it to avoid the network.
	HTTPClient *http.Client
}

// Environment variables:
//
//	GRAPHSYNC_DYNAMODB_REGION=<region> (default us-east-1)
//	GRAPHSYNC_DYNAMODB_ENDPOINT=<url> (optional)
//	GRAPHSYNC_DYNAMODB_TABLE_PREFIX=<prefix> (optional)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// ConfigFromEnv reads Config from process environment.
func ConfigFromEnv() Config {
	return Config{
		Region:      os.Getenv("GRAPHSYNC_DYNAMODB_REGION"),
		Endpoint:    os.Getenv("GRAPHSYNC_DYNAMODB_ENDPOINT"),
		TablePrefix: os.Getenv("GRAPHSYNC_DYNAMODB_TABLE_PREFIX"),
	}
}

// Store is a DynamoDB-backed domain.Backend.
type Store struct {
	client *dynamodb.Client
	prefix string
	wait   time.Duration
	logger hclog.Logger

	mu    sync.RWMutex
	table string
}

// New builds a client from cfg. It performs no network calls; Configure
// must run before Save or Reload.
func New(ctx context.Context, cfg Config, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})
	wait := cfg.WaitTimeout
	if wait <= 0 {
		wait = defaultWait
	}
	return &Store{client: client, prefix: cfg.TablePrefix, wait: wait, logger: logger.Named("dynamodb")}, nil
}

// Configure creates the namespace table when missing, waits until it is
// active and selects it. An existing table is not an error.
func (s *Store) Configure(ctx context.Context, namespace string) error {
	if namespace == "" {
		namespace = defaultNamespace
	}
	table := s.prefix + namespace
	if !tablePattern.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []dtypes.AttributeDefinition{
			{AttributeName: aws.String(attrID), AttributeType: dtypes.ScalarAttributeTypeS},
		},
		KeySchema: []dtypes.KeySchemaElement{
			{AttributeName: aws.String(attrID), KeyType: dtypes.KeyTypeHash},
		},
		BillingMode: dtypes.BillingModePayPerRequest,
	})
	var inUse *dtypes.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, s.wait); err != nil {
		return fmt.Errorf("wait for table %s: %w", table, err)
	}
	s.mu.Lock()
	s.table = table
	s.mu.Unlock()
	s.logger.Debug("namespace configured", "table", table, "existed", inUse != nil)
	return nil
}

// Save upserts record. PutItem replaces any item with the same key.
func (s *Store) Save(ctx context.Context, record domain.Record) error {
	if record.ID == "" {
		return domain.InvalidIDError{Reason: "id cannot be empty"}
	}
	table, err := s.currentTable()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", record.ID, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item: map[string]dtypes.AttributeValue{
			attrID:        &dtypes.AttributeValueMemberS{Value: record.ID},
			attrPrototype: &dtypes.AttributeValueMemberS{Value: record.PrototypeName},
			attrPayload:   &dtypes.AttributeValueMemberS{Value: string(payload)},
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", record.ID, err)
	}
	return nil
}

// Reload reads the record with a strongly consistent GetItem.
func (s *Store) Reload(ctx context.Context, id string) (domain.Record, error) {
	table, err := s.currentTable()
	if err != nil {
		return domain.Record{}, err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            map[string]dtypes.AttributeValue{attrID: &dtypes.AttributeValueMemberS{Value: id}},
		ConsistentRead: aws.Bool(true),
	})
	var missing *dtypes.ResourceNotFoundException
	if errors.As(err, &missing) {
		return domain.Record{}, domain.NotFoundError{ID: id}
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return domain.Record{}, domain.NotFoundError{ID: id}
	}
	rec := domain.Record{ID: id, PrototypeName: stringAttr(out.Item, attrPrototype)}
	if err := json.Unmarshal([]byte(stringAttr(out.Item, attrPayload)), &rec.Data); err != nil {
		return domain.Record{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) currentTable() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.table == "" {
		return "", fmt.Errorf("dynamodb namespace not configured")
	}
	return s.table, nil
}

func stringAttr(item map[string]dtypes.AttributeValue, name string) string {
	if v, ok := item[name].(*dtypes.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
