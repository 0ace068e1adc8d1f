package cdn

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/smithy-go"
)

// CloudFrontAPI is the subset of the CloudFront SDK client used here.
type CloudFrontAPI interface {
	CreateInvalidation(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
	ListInvalidations(ctx context.Context, params *cloudfront.ListInvalidationsInput, optFns ...func(*cloudfront.Options)) (*cloudfront.ListInvalidationsOutput, error)
}

// CloudFront submits batches to Amazon CloudFront.
type CloudFront struct {
	api      CloudFrontAPI
	maxItems int32
}

// NewCloudFront builds a client from the default AWS credential chain.
func NewCloudFront(ctx context.Context, region string) (*CloudFront, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cdn: load aws config: %w", err)
	}
	return NewCloudFrontWithAPI(cloudfront.NewFromConfig(cfg)), nil
}

// NewCloudFrontWithAPI wraps an existing SDK client.
func NewCloudFrontWithAPI(api CloudFrontAPI) *CloudFront {
	return &CloudFront{api: api, maxItems: 25}
}

func (c *CloudFront) CreateInvalidation(ctx context.Context, batch Batch) (Confirmation, error) {
	out, err := c.api.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(batch.Distribution),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String(batch.CallerReference),
			Paths: &types.Paths{
				Quantity: aws.Int32(int32(len(batch.Paths))),
				Items:    append([]string(nil), batch.Paths...),
			},
		},
	})
	if err != nil {
		return Confirmation{}, classify("create invalidation", err)
	}
	if out == nil || out.Invalidation == nil {
		return Confirmation{}, errors.New("cdn: create invalidation: empty response")
	}
	return Confirmation{
		ID:        aws.ToString(out.Invalidation.Id),
		Status:    aws.ToString(out.Invalidation.Status),
		CreatedAt: aws.ToTime(out.Invalidation.CreateTime),
	}, nil
}

func (c *CloudFront) ListInvalidations(ctx context.Context, distribution string) ([]Invalidation, error) {
	out, err := c.api.ListInvalidations(ctx, &cloudfront.ListInvalidationsInput{
		DistributionId: aws.String(distribution),
		MaxItems:       aws.Int32(c.maxItems),
	})
	if err != nil {
		return nil, classify("list invalidations", err)
	}
	if out == nil || out.InvalidationList == nil {
		return nil, nil
	}
	items := make([]Invalidation, 0, len(out.InvalidationList.Items))
	for _, item := range out.InvalidationList.Items {
		items = append(items, Invalidation{
			ID:        aws.ToString(item.Id),
			Status:    aws.ToString(item.Status),
			CreatedAt: aws.ToTime(item.CreateTime),
		})
	}
	return items, nil
}

func classify(op string, err error) error {
	var tooMany *types.TooManyInvalidationsInProgress
	if errors.As(err, &tooMany) {
		return fmt.Errorf("cdn: %s: %w: %w", op, ErrThrottled, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "Throttling" {
		return fmt.Errorf("cdn: %s: %w: %w", op, ErrThrottled, err)
	}
	return fmt.Errorf("cdn: %s: %w", op, err)
}
