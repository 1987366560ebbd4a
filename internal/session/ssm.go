package session

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterReader defines the interface for SSM Parameter Store reads
type ParameterReader interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadParameter loads a registry document stored in an SSM parameter.
// SecureString parameters are decrypted.
func LoadParameter(ctx context.Context, reader ParameterReader, name string) (*Registry, error) {
	return Load(ctx, Sources{Parameter: name, Parameters: reader})
}
