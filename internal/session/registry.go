// Package session resolves opaque session contexts into AWS configuration.
//
// A session context names an account scope as "<12-digit account id>_<name>".
// The registry maps keys to the IAM role assumed for them; the empty key and
// "default" select the process's own credentials.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"gopkg.in/yaml.v3"
)

// DefaultKey selects the base credentials, as does the empty key
const DefaultKey = "default"

// TablePrefix is the partition key and sort key prefix of session records
const TablePrefix = "SESSION#"

// ErrUnknownSession is returned for session keys that cannot be resolved
var ErrUnknownSession = errors.New("unknown session context")

var keyPattern = regexp.MustCompile(`^(\d{12})_(.+)$`)

// Target describes the role assumed for a session
type Target struct {
	Key         string `json:"-" yaml:"-" dynamodbav:"sk"`
	AccountID   string `json:"account_id,omitempty" yaml:"account_id,omitempty" dynamodbav:"accountId,omitempty"`
	AccountName string `json:"account_name,omitempty" yaml:"account_name,omitempty" dynamodbav:"accountName,omitempty"`
	RoleARN     string `json:"role_arn,omitempty" yaml:"role_arn,omitempty" dynamodbav:"roleArn,omitempty"`
	Region      string `json:"region,omitempty" yaml:"region,omitempty" dynamodbav:"region,omitempty"`
	ExternalID  string `json:"external_id,omitempty" yaml:"external_id,omitempty" dynamodbav:"externalId,omitempty"`
}

// Document is the on-disk form of a registry
type Document struct {
	RoleName    string            `json:"role_name,omitempty" yaml:"role_name,omitempty"`
	SessionName string            `json:"session_name,omitempty" yaml:"session_name,omitempty"`
	Sessions    map[string]Target `json:"sessions,omitempty" yaml:"sessions,omitempty"`
}

// Registry holds the known session targets
type Registry struct {
	roleName    string
	sessionName string
	targets     map[string]Target
}

// DefaultSessionName is the STS role session name used when none is configured
const DefaultSessionName = "aws-sec-mcp"

// IsDefault reports whether key selects the base credentials
func IsDefault(key string) bool {
	return key == "" || key == DefaultKey
}

// NewRegistry validates doc and builds a registry.
// Assumed-role ARNs are normalized and missing account IDs are taken from the role ARN
// or, failing that, derived from the key.
func NewRegistry(doc Document) (*Registry, error) {
	r := &Registry{
		roleName:    doc.RoleName,
		sessionName: doc.SessionName,
		targets:     make(map[string]Target, len(doc.Sessions)),
	}
	if r.sessionName == "" {
		r.sessionName = DefaultSessionName
	}

	for key, target := range doc.Sessions {
		if err := r.add(key, target); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(key string, target Target) error {
	if IsDefault(key) {
		return fmt.Errorf("session key %q is reserved", key)
	}
	target.Key = key

	if m := keyPattern.FindStringSubmatch(key); m != nil {
		if target.AccountID == "" {
			target.AccountID = m[1]
		}
		if target.AccountName == "" {
			target.AccountName = m[2]
		}
	}

	target.RoleARN = NormalizeRoleARN(target.RoleARN)
	if target.AccountID == "" {
		target.AccountID = AccountFromARN(target.RoleARN)
	}
	if target.RoleARN == "" {
		if r.roleName == "" || target.AccountID == "" {
			return fmt.Errorf("session %q has no role_arn", key)
		}
		target.RoleARN = RoleARN(target.AccountID, r.roleName)
	}

	r.targets[key] = target
	return nil
}

// ParseDocument decodes a registry document, trying JSON before YAML
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	jsonErr := json.Unmarshal(data, &doc)
	if jsonErr == nil {
		return doc, nil
	}

	doc = Document{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse session registry as JSON (%v) or YAML: %w", jsonErr, err)
	}
	return doc, nil
}

// LoadFile loads a registry from a JSON or YAML file
func LoadFile(path string) (*Registry, error) {
	return Load(context.Background(), Sources{File: path})
}

// TableQuerier defines the interface for querying session records from storage
type TableQuerier interface {
	QueryByPK(ctx context.Context, pk string) ([]map[string]types.AttributeValue, error)
}

// LoadTable loads session records stored under TablePrefix.
// roleName and sessionName play the same role as in a Document.
// Records with no role are skipped unless roleName can supply one.
func LoadTable(ctx context.Context, querier TableQuerier, roleName, sessionName string) (*Registry, error) {
	items, err := querier.QueryByPK(ctx, TablePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	doc := Document{
		RoleName:    roleName,
		SessionName: sessionName,
		Sessions:    make(map[string]Target, len(items)),
	}
	for _, item := range items {
		var target Target
		if err := attributevalue.UnmarshalMap(item, &target); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
		}
		if target.RoleARN == "" && roleName == "" {
			continue
		}
		key := strings.TrimPrefix(target.Key, TablePrefix)
		doc.Sessions[key] = target
	}
	return NewRegistry(doc)
}

// Lookup returns the target for key.
// Unregistered keys of the account form derive a target from the registry's role name.
func (r *Registry) Lookup(key string) (Target, error) {
	if r != nil {
		if target, ok := r.targets[key]; ok {
			return target, nil
		}
		if m := keyPattern.FindStringSubmatch(key); m != nil && r.roleName != "" {
			return Target{
				Key:         key,
				AccountID:   m[1],
				AccountName: m[2],
				RoleARN:     RoleARN(m[1], r.roleName),
			}, nil
		}
	}
	return Target{}, fmt.Errorf("%w: %s", ErrUnknownSession, key)
}

// Keys returns the registered session keys in sorted order
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.targets))
	for k := range r.targets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SessionName returns the STS role session name
func (r *Registry) SessionName() string {
	if r == nil || r.sessionName == "" {
		return DefaultSessionName
	}
	return r.sessionName
}
