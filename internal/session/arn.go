package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// IdentityAPI defines the STS call used to report the caller identity
type IdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// RoleARN returns the IAM role ARN for roleName in accountID.
// roleName may include a path, e.g. "security/AuditRole".
func RoleARN(accountID, roleName string) string {
	return "arn:aws:iam::" + accountID + ":role/" + strings.Trim(roleName, "/")
}

// NormalizeRoleARN converts an assumed-role ARN to its source role ARN.
// Input:  arn:aws:sts::123456789012:assumed-role/RoleName/SessionName
// Output: arn:aws:iam::123456789012:role/RoleName
// If the ARN is already a role ARN or any other format, it's returned unchanged.
func NormalizeRoleARN(arn string) string {
	if !strings.Contains(arn, ":assumed-role/") {
		return arn
	}

	parts := strings.Split(arn, ":")
	if len(parts) < 6 {
		return arn
	}

	// assumed-role/RoleName/SessionName, or with path: assumed-role/path/to/RoleName/SessionName
	resourceParts := strings.Split(parts[5], "/")
	if len(resourceParts) < 3 {
		return arn
	}

	return RoleARN(parts[4], strings.Join(resourceParts[1:len(resourceParts)-1], "/"))
}

// AccountFromARN returns the account ID field of an ARN, or "" when absent
func AccountFromARN(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) < 6 || parts[0] != "arn" {
		return ""
	}
	return parts[4]
}

// CallerIdentity returns the caller's ARN with assumed roles normalized to their source role
func CallerIdentity(ctx context.Context, api IdentityAPI) (string, error) {
	out, err := api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	return NormalizeRoleARN(aws.ToString(out.Arn)), nil
}
