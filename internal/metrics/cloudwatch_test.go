package metrics

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type mockCloudWatchClient struct {
	input *cloudwatch.PutMetricDataInput
	err   error
}

func (m *mockCloudWatchClient) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestCloudWatchPublisher_PublishesCountWithDimensions(t *testing.T) {
	client := &mockCloudWatchClient{}
	publisher := NewCloudWatchPublisher(client, "AwsSecMcp", nil)

	publisher.RecordOperation(context.Background(), "list_findings", "success")

	if client.input == nil {
		t.Fatal("expected PutMetricData to be called")
	}
	if *client.input.Namespace != "AwsSecMcp" {
		t.Errorf("expected namespace 'AwsSecMcp', got '%s'", *client.input.Namespace)
	}
	if len(client.input.MetricData) != 1 {
		t.Fatalf("expected 1 datum, got %d", len(client.input.MetricData))
	}

	datum := client.input.MetricData[0]
	if *datum.MetricName != MetricOperationCount {
		t.Errorf("expected metric name '%s', got '%s'", MetricOperationCount, *datum.MetricName)
	}
	if *datum.Value != 1 {
		t.Errorf("expected value 1, got %f", *datum.Value)
	}
	if datum.Unit != types.StandardUnitCount {
		t.Errorf("expected unit Count, got %s", datum.Unit)
	}

	dims := make(map[string]string)
	for _, d := range datum.Dimensions {
		dims[*d.Name] = *d.Value
	}
	if dims["Operation"] != "list_findings" {
		t.Errorf("expected Operation dimension 'list_findings', got '%s'", dims["Operation"])
	}
	if dims["Outcome"] != "success" {
		t.Errorf("expected Outcome dimension 'success', got '%s'", dims["Outcome"])
	}
}

func TestCloudWatchPublisher_FailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	client := &mockCloudWatchClient{err: errors.New("throttled")}
	publisher := NewCloudWatchPublisher(client, "AwsSecMcp", logger)

	publisher.RecordOperation(context.Background(), "list_detectors", "fault")

	if !strings.Contains(buf.String(), "throttled") {
		t.Errorf("expected failure to be logged, got %q", buf.String())
	}
}
