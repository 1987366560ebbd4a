package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const yamlRegistry = `
role_name: SecurityAuditRole
session_name: audit-session
sessions:
  123456789012_aws_dev:
    role_arn: arn:aws:sts::123456789012:assumed-role/DevAudit/someone
    region: eu-west-1
  prod:
    role_arn: arn:aws:iam::210987654321:role/ProdAudit
    external_id: shared-secret
`

func TestParseDocument_YAML(t *testing.T) {
	doc, err := ParseDocument([]byte(yamlRegistry))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.RoleName != "SecurityAuditRole" || doc.SessionName != "audit-session" {
		t.Errorf("unexpected document header %+v", doc)
	}
	if len(doc.Sessions) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(doc.Sessions))
	}
}

func TestParseDocument_JSON(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"sessions": {"123456789012_aws_dev": {"region": "us-west-2"}}, "role_name": "Audit"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Sessions["123456789012_aws_dev"].Region != "us-west-2" {
		t.Errorf("unexpected document %+v", doc)
	}
}

func TestParseDocument_Invalid(t *testing.T) {
	if _, err := ParseDocument([]byte("sessions: [unterminated")); err == nil {
		t.Error("expected error for invalid document")
	}
}

func TestNewRegistry_NormalizesTargets(t *testing.T) {
	doc, _ := ParseDocument([]byte(yamlRegistry))
	r, err := NewRegistry(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dev, err := r.Lookup("123456789012_aws_dev")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Target{
		Key:         "123456789012_aws_dev",
		AccountID:   "123456789012",
		AccountName: "aws_dev",
		RoleARN:     "arn:aws:iam::123456789012:role/DevAudit",
		Region:      "eu-west-1",
	}
	if !reflect.DeepEqual(dev, want) {
		t.Errorf("expected %+v, got %+v", want, dev)
	}

	prod, _ := r.Lookup("prod")
	if prod.AccountID != "210987654321" || prod.ExternalID != "shared-secret" {
		t.Errorf("expected account from role ARN, got %+v", prod)
	}

	if r.SessionName() != "audit-session" {
		t.Errorf("unexpected session name %q", r.SessionName())
	}
	if !reflect.DeepEqual(r.Keys(), []string{"123456789012_aws_dev", "prod"}) {
		t.Errorf("unexpected keys %v", r.Keys())
	}
}

func TestNewRegistry_DerivesRoleFromRoleName(t *testing.T) {
	r, err := NewRegistry(Document{
		RoleName: "Audit",
		Sessions: map[string]Target{"123456789012_aws_dev": {Region: "us-east-2"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	target, _ := r.Lookup("123456789012_aws_dev")
	if target.RoleARN != "arn:aws:iam::123456789012:role/Audit" {
		t.Errorf("unexpected role ARN %q", target.RoleARN)
	}
}

func TestNewRegistry_Rejects(t *testing.T) {
	cases := []Document{
		{Sessions: map[string]Target{"default": {RoleARN: "arn:aws:iam::123456789012:role/A"}}},
		{Sessions: map[string]Target{"123456789012_aws_dev": {}}},
		{RoleName: "Audit", Sessions: map[string]Target{"named": {}}},
	}
	for _, doc := range cases {
		if _, err := NewRegistry(doc); err == nil {
			t.Errorf("expected error for %+v", doc)
		}
	}
}

func TestRegistry_Lookup_UnregisteredKeys(t *testing.T) {
	derived, _ := NewRegistry(Document{RoleName: "Audit"})
	target, err := derived.Lookup("999999999999_aws_sandbox")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.RoleARN != "arn:aws:iam::999999999999:role/Audit" || target.AccountName != "aws_sandbox" {
		t.Errorf("unexpected derived target %+v", target)
	}

	if _, err := derived.Lookup("not-an-account"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession, got %v", err)
	}

	strict, _ := NewRegistry(Document{})
	if _, err := strict.Lookup("999999999999_aws_sandbox"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession without role_name, got %v", err)
	}

	var none *Registry
	if _, err := none.Lookup("999999999999_aws_sandbox"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession from nil registry, got %v", err)
	}
	if none.SessionName() != DefaultSessionName {
		t.Errorf("unexpected default session name %q", none.SessionName())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.yaml")
	if err := os.WriteFile(path, []byte(yamlRegistry), 0o600); err != nil {
		t.Fatalf("failed to write registry: %v", err)
	}

	r, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Keys()) != 2 {
		t.Errorf("expected 2 keys, got %v", r.Keys())
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

type mockParameterReader struct {
	input *ssm.GetParameterInput
	value string
	err   error
}

func (m *mockParameterReader) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(m.value)}}, nil
}

func TestLoadParameter(t *testing.T) {
	reader := &mockParameterReader{value: yamlRegistry}

	r, err := LoadParameter(context.Background(), reader, "/aws-sec-mcp/sessions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if aws.ToString(reader.input.Name) != "/aws-sec-mcp/sessions" || !aws.ToBool(reader.input.WithDecryption) {
		t.Errorf("expected decrypted read of the named parameter, got %+v", reader.input)
	}
	if len(r.Keys()) != 2 {
		t.Errorf("expected 2 keys, got %v", r.Keys())
	}
}

func TestLoadParameter_Errors(t *testing.T) {
	if _, err := LoadParameter(context.Background(), &mockParameterReader{err: errors.New("denied")}, "p"); err == nil {
		t.Error("expected read error")
	}
	if _, err := LoadParameter(context.Background(), &mockParameterReader{}, "p"); err == nil {
		t.Error("expected error for empty parameter")
	}
}

// mockQuerier implements TableQuerier for testing
type mockQuerier struct {
	pk    string
	items []map[string]types.AttributeValue
	err   error
}

func (m *mockQuerier) QueryByPK(ctx context.Context, pk string) ([]map[string]types.AttributeValue, error) {
	m.pk = pk
	if m.err != nil {
		return nil, m.err
	}
	return m.items, nil
}

func createTestSessionItem(key string, target Target) map[string]types.AttributeValue {
	target.Key = TablePrefix + key
	item, _ := attributevalue.MarshalMap(target)
	item["pk"] = &types.AttributeValueMemberS{Value: TablePrefix}
	return item
}

func TestLoadTable(t *testing.T) {
	querier := &mockQuerier{
		items: []map[string]types.AttributeValue{
			createTestSessionItem("123456789012_aws_dev", Target{RoleARN: "arn:aws:iam::123456789012:role/DevAudit"}),
			createTestSessionItem("210987654321_aws_prod", Target{Region: "ap-southeast-2"}),
		},
	}

	r, err := LoadTable(context.Background(), querier, "Audit", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if querier.pk != TablePrefix {
		t.Errorf("expected query on %s, got %s", TablePrefix, querier.pk)
	}
	prod, err := r.Lookup("210987654321_aws_prod")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prod.RoleARN != "arn:aws:iam::210987654321:role/Audit" || prod.Region != "ap-southeast-2" {
		t.Errorf("unexpected target %+v", prod)
	}
	if r.SessionName() != DefaultSessionName {
		t.Errorf("expected default session name, got %q", r.SessionName())
	}
}

func TestLoadTable_SkipsUsageOnlyRecordsWithoutRoleName(t *testing.T) {
	usageOnly := map[string]types.AttributeValue{
		"pk":          &types.AttributeValueMemberS{Value: TablePrefix},
		"sk":          &types.AttributeValueMemberS{Value: TablePrefix + "123456789012_aws_dev"},
		"firstUsedAt": &types.AttributeValueMemberS{Value: "2026-01-01T00:00:00Z"},
		"lastUsedAt":  &types.AttributeValueMemberS{Value: "2026-01-02T00:00:00Z"},
		"useCount":    &types.AttributeValueMemberN{Value: "3"},
	}
	querier := &mockQuerier{items: []map[string]types.AttributeValue{
		usageOnly,
		createTestSessionItem("prod", Target{RoleARN: "arn:aws:iam::210987654321:role/ProdAudit"}),
	}}

	r, err := LoadTable(context.Background(), querier, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(r.Keys(), []string{"prod"}) {
		t.Errorf("expected only the record with a role, got %v", r.Keys())
	}

	derived, err := LoadTable(context.Background(), querier, "Audit", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dev, err := derived.Lookup("123456789012_aws_dev")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dev.RoleARN != "arn:aws:iam::123456789012:role/Audit" {
		t.Errorf("expected role derived from role name, got %q", dev.RoleARN)
	}
}

func TestLoadTable_QueryError(t *testing.T) {
	if _, err := LoadTable(context.Background(), &mockQuerier{err: errors.New("throttled")}, "", ""); err == nil {
		t.Error("expected error")
	}
}

func TestLoad_AppliesDefaultsToDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	if err := os.WriteFile(path, []byte(`{"sessions": {"123456789012_aws_dev": {}}}`), 0o600); err != nil {
		t.Fatalf("failed to write registry: %v", err)
	}

	r, err := Load(context.Background(), Sources{File: path, RoleName: "Audit", SessionName: "from-flags"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	target, _ := r.Lookup("123456789012_aws_dev")
	if target.RoleARN != "arn:aws:iam::123456789012:role/Audit" {
		t.Errorf("expected role derived from default role name, got %q", target.RoleARN)
	}
	if r.SessionName() != "from-flags" {
		t.Errorf("expected default session name, got %q", r.SessionName())
	}
}

func TestLoad_DocumentRoleNameWins(t *testing.T) {
	reader := &mockParameterReader{value: yamlRegistry}

	r, err := Load(context.Background(), Sources{Parameter: "p", Parameters: reader, RoleName: "Other"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	target, _ := r.Lookup("555555555555_aws_new")
	if target.RoleARN != "arn:aws:iam::555555555555:role/SecurityAuditRole" {
		t.Errorf("expected document role name, got %q", target.RoleARN)
	}
}

func TestLoad_NoSources(t *testing.T) {
	r, err := Load(context.Background(), Sources{RoleName: "Audit"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Keys()) != 0 {
		t.Errorf("expected empty registry, got %v", r.Keys())
	}
	if _, err := r.Lookup("123456789012_aws_dev"); err != nil {
		t.Errorf("expected derived target, got %v", err)
	}
}

func TestLoad_ParameterWithoutClient(t *testing.T) {
	if _, err := Load(context.Background(), Sources{Parameter: "p"}); err == nil {
		t.Error("expected error")
	}
}

func TestLoad_TableSource(t *testing.T) {
	querier := &mockQuerier{items: []map[string]types.AttributeValue{
		createTestSessionItem("123456789012_aws_dev", Target{Region: "eu-west-2"}),
	}}

	r, err := Load(context.Background(), Sources{Table: querier, RoleName: "Audit"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(r.Keys(), []string{"123456789012_aws_dev"}) {
		t.Errorf("unexpected keys %v", r.Keys())
	}
}
