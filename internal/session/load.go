package session

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Sources selects where the session registry is loaded from.
// The first configured of File, Parameter and Table is used. With none configured
// the registry is empty and only derives targets from RoleName.
type Sources struct {
	File       string
	Parameter  string
	Parameters ParameterReader
	Table      TableQuerier

	// RoleName and SessionName apply when the loaded document leaves them unset
	RoleName    string
	SessionName string
}

// Load builds the registry described by src
func Load(ctx context.Context, src Sources) (*Registry, error) {
	switch {
	case src.File != "":
		data, err := os.ReadFile(src.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read session registry: %w", err)
		}
		return src.fromData(data)

	case src.Parameter != "":
		if src.Parameters == nil {
			return nil, fmt.Errorf("no SSM client for parameter %s", src.Parameter)
		}
		out, err := src.Parameters.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(src.Parameter),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get parameter %s: %w", src.Parameter, err)
		}
		if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
			return nil, fmt.Errorf("parameter %s is empty", src.Parameter)
		}
		return src.fromData([]byte(aws.ToString(out.Parameter.Value)))

	case src.Table != nil:
		return LoadTable(ctx, src.Table, src.RoleName, src.SessionName)
	}

	return NewRegistry(Document{RoleName: src.RoleName, SessionName: src.SessionName})
}

func (src Sources) fromData(data []byte) (*Registry, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	if doc.RoleName == "" {
		doc.RoleName = src.RoleName
	}
	if doc.SessionName == "" {
		doc.SessionName = src.SessionName
	}
	return NewRegistry(doc)
}
