package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsManager struct {
	gotID   string
	secret  *string
	err     error
	regions []string
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.gotID = aws.ToString(in.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.secret}, nil
}

func (f *fakeSecretsManager) resolver() *SecretsManagerResolver {
	return &SecretsManagerResolver{
		NewClient: func(ctx context.Context, region string) (SecretsManagerAPI, error) {
			f.regions = append(f.regions, region)
			return f, nil
		},
	}
}

func TestSecretsManagerResolver_PlainSecret(t *testing.T) {
	fake := &fakeSecretsManager{secret: aws.String("sk-plain\n")}

	val, err := fake.resolver().Resolve(context.Background(), "awssm://eu-west-1/prod/qwen")
	require.NoError(t, err)
	assert.Equal(t, "sk-plain", val)
	assert.Equal(t, "prod/qwen", fake.gotID)
	assert.Equal(t, []string{"eu-west-1"}, fake.regions)
}

func TestSecretsManagerResolver_JSONField(t *testing.T) {
	fake := &fakeSecretsManager{secret: aws.String(`{"api_key":"sk-json","other":1}`)}
	r := fake.resolver()

	val, err := r.Resolve(context.Background(), "awssm:///prod/qwen#api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-json", val)
	assert.Equal(t, []string{""}, fake.regions, "empty host should defer to default region chain")

	_, err = r.Resolve(context.Background(), "awssm:///prod/qwen#missing")
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)

	_, err = r.Resolve(context.Background(), "awssm:///prod/qwen#other")
	var backendErr *BackendError
	assert.ErrorAs(t, err, &backendErr)
}

func TestSecretsManagerResolver_NoStringValue(t *testing.T) {
	fake := &fakeSecretsManager{}

	_, err := fake.resolver().Resolve(context.Background(), "awssm:///prod/qwen")
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Contains(t, backendErr.Reason, "no string value")
}

func TestSecretsManagerResolver_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantFound  bool
		wantReason string
	}{
		{
			name: "not found",
			err:  &types.ResourceNotFoundException{Message: aws.String("missing")},
		},
		{
			name:       "access denied",
			err:        &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "nope"},
			wantFound:  true,
			wantReason: "access denied",
		},
		{
			name:       "expired",
			err:        &smithy.GenericAPIError{Code: "ExpiredTokenException"},
			wantFound:  true,
			wantReason: "AWS credentials expired",
		},
		{
			name:       "other",
			err:        errors.New("throttled"),
			wantFound:  true,
			wantReason: "throttled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSecretsManager{err: tt.err}
			_, err := fake.resolver().Resolve(context.Background(), "awssm:///prod/qwen")

			if !tt.wantFound {
				var notFound *NotFoundError
				assert.ErrorAs(t, err, &notFound)
				return
			}
			var backendErr *BackendError
			require.ErrorAs(t, err, &backendErr)
			assert.Equal(t, tt.wantReason, backendErr.Reason)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestSecretsManagerResolver_ClientError(t *testing.T) {
	r := &SecretsManagerResolver{
		NewClient: func(ctx context.Context, region string) (SecretsManagerAPI, error) {
			return nil, errors.New("no credentials")
		},
	}
	_, err := r.Resolve(context.Background(), "awssm:///prod/qwen")
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Contains(t, backendErr.Reason, "no credentials")
}

func TestParseSecretsManagerReference(t *testing.T) {
	tests := []struct {
		ref        string
		wantRegion string
		wantID     string
		wantField  string
		wantErr    bool
	}{
		{"awssm:///qwen", "", "qwen", "", false},
		{"awssm://us-east-1/team/qwen#key", "us-east-1", "team/qwen", "key", false},
		{"awssm://us-east-1/", "", "", "", true},
		{"ssm:///qwen", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			region, id, field, err := parseSecretsManagerReference(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRegion, region)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantField, field)
		})
	}
}
