package metrics

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricOperationCount is the metric published once per dispatched operation
const MetricOperationCount = "OperationCount"

// CloudWatchClient defines the interface for CloudWatch operations
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher publishes operation outcome counts to CloudWatch
type CloudWatchPublisher struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchPublisher creates a new CloudWatchPublisher
func NewCloudWatchPublisher(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchPublisher{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordOperation publishes a count of one for the operation and outcome.
// Publication failures are logged and otherwise ignored.
func (p *CloudWatchPublisher) RecordOperation(ctx context.Context, operation, outcome string) {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(MetricOperationCount),
				Value:      aws.Float64(1),
				Unit:       types.StandardUnitCount,
				Dimensions: []types.Dimension{
					{Name: aws.String("Operation"), Value: aws.String(operation)},
					{Name: aws.String("Outcome"), Value: aws.String(outcome)},
				},
			},
		},
	})
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to publish operation metric",
			slog.String("operation", operation),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
	}
}
