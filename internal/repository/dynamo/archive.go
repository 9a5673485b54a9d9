// Package dynamo archives reviewed and expired conflict violations to
// DynamoDB for long-term audit.
package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	appconfig "github.com/ignite/keylock/internal/config"
	"github.com/ignite/keylock/internal/domain"
)

// PutItemAPI is the slice of the DynamoDB client the archive uses.
type PutItemAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// ViolationItem is the stored shape of an archived violation.
// PK groups a streamer's history; SK orders it by detection time.
type ViolationItem struct {
	PK                    string   `dynamodbav:"PK"`
	SK                    string   `dynamodbav:"SK"`
	ID                    string   `dynamodbav:"ID"`
	CampaignID            string   `dynamodbav:"CampaignID"`
	RuleID                string   `dynamodbav:"RuleID"`
	RuleName              string   `dynamodbav:"RuleName,omitempty"`
	ConflictType          string   `dynamodbav:"ConflictType"`
	Severity              string   `dynamodbav:"Severity"`
	Message               string   `dynamodbav:"Message"`
	ConflictingCampaigns  []string `dynamodbav:"ConflictingCampaigns,omitempty"`
	ConflictingCategories []string `dynamodbav:"ConflictingCategories,omitempty"`
	ConflictingBrands     []string `dynamodbav:"ConflictingBrands,omitempty"`
	Status                string   `dynamodbav:"Status"`
	DetectedAt            string   `dynamodbav:"DetectedAt"`
	ResolvedAt            string   `dynamodbav:"ResolvedAt,omitempty"`
	ResolutionNote        string   `dynamodbav:"ResolutionNote,omitempty"`
	TTL                   int64    `dynamodbav:"TTL,omitempty"`
}

// ViolationArchive implements violation.Archiver.
type ViolationArchive struct {
	client    PutItemAPI
	tableName string
	ttl       time.Duration
}

// NewViolationArchive wraps an existing client. ttl <= 0 stores items
// without expiry.
func NewViolationArchive(client PutItemAPI, tableName string, ttl time.Duration) *ViolationArchive {
	return &ViolationArchive{client: client, tableName: tableName, ttl: ttl}
}

// NewFromAWS builds an archive from the archive config. Static keys are used
// when both are set, otherwise the default credential chain (and optional
// shared profile) applies.
func NewFromAWS(ctx context.Context, cfg appconfig.ArchiveConfig) (*ViolationArchive, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	} else if cfg.AWSProfile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.AWSProfile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewViolationArchive(client, cfg.DynamoDBTable, cfg.TTL()), nil
}

// Archive writes one violation. Re-archiving the same violation overwrites
// the earlier item.
func (a *ViolationArchive) Archive(ctx context.Context, v domain.ConflictViolation) error {
	item := toItem(v)
	if a.ttl > 0 {
		item.TTL = v.DetectedAt.Add(a.ttl).Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling violation: %w", err)
	}
	_, err = a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting violation to DynamoDB: %w", err)
	}
	return nil
}

func toItem(v domain.ConflictViolation) ViolationItem {
	item := ViolationItem{
		PK:                    "STREAMER#" + v.StreamerID,
		SK:                    fmt.Sprintf("VIOLATION#%s#%s", v.DetectedAt.UTC().Format(time.RFC3339Nano), v.ID),
		ID:                    v.ID,
		CampaignID:            v.CampaignID,
		RuleID:                v.RuleID,
		RuleName:              v.RuleName,
		ConflictType:          string(v.ConflictType),
		Severity:              string(v.Severity),
		Message:               v.Message,
		ConflictingCampaigns:  v.ConflictingCampaigns,
		ConflictingCategories: v.ConflictingCategories,
		ConflictingBrands:     v.ConflictingBrands,
		Status:                string(v.Status),
		DetectedAt:            v.DetectedAt.UTC().Format(time.RFC3339),
		ResolutionNote:        v.ResolutionNote,
	}
	if v.ResolvedAt != nil {
		item.ResolvedAt = v.ResolvedAt.UTC().Format(time.RFC3339)
	}
	return item
}
