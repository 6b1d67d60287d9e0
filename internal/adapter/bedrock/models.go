package bedrock

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/tracer"
)

// converseAPI is the subset of the Bedrock runtime client used to probe models.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// CheckCredentials resolves the configured AWS credentials without calling Bedrock.
func (c *Client) CheckCredentials(ctx context.Context) error {
	if c.creds == nil {
		return domain.NewDomainError("bedrock.CheckCredentials", domain.ErrAuthInvalid, "no credentials provider")
	}
	if _, err := c.creds.Retrieve(ctx); err != nil {
		return domain.NewDomainError("bedrock.CheckCredentials", domain.ErrAuthInvalid, err.Error())
	}
	return nil
}

// ProbeModel sends a one-token request to verify the model is enabled for the account.
func (c *Client) ProbeModel(ctx context.Context, modelID string) error {
	return c.call(ctx, "Converse", func(ctx context.Context) error {
		_, err := c.models.Converse(ctx, &bedrockruntime.ConverseInput{
			ModelId: aws.String(modelID),
			Messages: []types.Message{{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "ping"}},
			}},
			InferenceConfig: &types.InferenceConfiguration{MaxTokens: aws.Int32(1)},
		})
		return err
	}, tracer.StringAttr("model.id", modelID))
}
