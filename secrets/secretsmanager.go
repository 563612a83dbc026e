package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerResolver resolves secrets from AWS Secrets Manager.
//
// References have the form awssm://region/secret-id or awssm:///secret-id
// (region from the default AWS config chain). A fragment selects one field of
// a JSON secret: awssm://us-east-1/prod/qwen#api_key.
type SecretsManagerResolver struct {
	// NewClient builds a client for region. Nil uses the default AWS config chain.
	NewClient func(ctx context.Context, region string) (SecretsManagerAPI, error)
}

// Scheme returns "awssm".
func (r *SecretsManagerResolver) Scheme() string {
	return "awssm"
}

// Resolve fetches the secret's string value.
func (r *SecretsManagerResolver) Resolve(ctx context.Context, reference string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	region, secretID, field, err := parseSecretsManagerReference(reference)
	if err != nil {
		return "", err
	}

	newClient := r.NewClient
	if newClient == nil {
		newClient = defaultSecretsManagerClient
	}
	client, err := newClient(ctx, region)
	if err != nil {
		return "", &BackendError{
			Backend:   "AWS Secrets Manager",
			Reference: reference,
			Reason:    "loading AWS configuration: " + err.Error(),
			Fix:       "Configure credentials with: aws configure\nOr run: aws sso login",
			Err:       err,
		}
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", r.classifyError(err, reference, secretID)
	}
	if out.SecretString == nil {
		return "", &BackendError{
			Backend:   "AWS Secrets Manager",
			Reference: reference,
			Reason:    "secret has no string value",
			Fix:       "Store the API key as a SecretString, not SecretBinary.",
		}
	}

	value := *out.SecretString
	if field == "" {
		return strings.TrimSpace(value), nil
	}
	return extractJSONField(value, field, reference)
}

func defaultSecretsManagerClient(ctx context.Context, region string) (SecretsManagerAPI, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// classifyError converts SDK errors to actionable error types.
func (r *SecretsManagerResolver) classifyError(err error, reference, secretID string) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return &NotFoundError{Reference: reference, Backend: "AWS Secrets Manager"}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException":
			return &BackendError{
				Backend:   "AWS Secrets Manager",
				Reference: reference,
				Reason:    "access denied",
				Fix:       "Check IAM permissions for secretsmanager:GetSecretValue on " + secretID,
				Err:       err,
			}
		case "ExpiredTokenException", "ExpiredToken":
			return &BackendError{
				Backend:   "AWS Secrets Manager",
				Reference: reference,
				Reason:    "AWS credentials expired",
				Fix:       "Run: aws sso login\nOr refresh your credentials.",
				Err:       err,
			}
		}
	}

	return &BackendError{
		Backend:   "AWS Secrets Manager",
		Reference: reference,
		Reason:    err.Error(),
		Err:       err,
	}
}

// parseSecretsManagerReference extracts region, secret id and JSON field.
// awssm:///prod/qwen -> ("", "prod/qwen", "")
// awssm://eu-west-1/prod/qwen#api_key -> ("eu-west-1", "prod/qwen", "api_key")
func parseSecretsManagerReference(ref string) (region, secretID, field string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", "", &InvalidReferenceError{Reference: ref, Reason: "invalid URI"}
	}
	if u.Scheme != "awssm" {
		return "", "", "", &InvalidReferenceError{Reference: ref, Reason: "expected awssm:// scheme"}
	}

	secretID = strings.TrimPrefix(u.Path, "/")
	if secretID == "" {
		return "", "", "", &InvalidReferenceError{Reference: ref, Reason: "missing secret id"}
	}
	return u.Host, secretID, u.Fragment, nil
}

// extractJSONField returns a string field of a JSON object secret.
func extractJSONField(secret, field, reference string) (string, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(secret), &obj); err != nil {
		return "", &BackendError{
			Backend:   "AWS Secrets Manager",
			Reference: reference,
			Reason:    "secret is not a JSON object, cannot select field " + field,
			Err:       err,
		}
	}
	v, ok := obj[field]
	if !ok {
		return "", &NotFoundError{Reference: reference, Backend: "AWS Secrets Manager"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &BackendError{
			Backend:   "AWS Secrets Manager",
			Reference: reference,
			Reason:    "field " + field + " is not a string",
		}
	}
	return strings.TrimSpace(s), nil
}
