package modelconfig

import "github.com/go-playground/validator/v10"

// BedrockCredentials mirrors spec.md §4.5's Bedrock-class requirement:
// {access_key, secret_key, optional session_token, region}.
type BedrockCredentials struct {
	AccessKey    string `validate:"required"`
	SecretKey    string `validate:"required"`
	SessionToken string
	Region       string `validate:"required"`
}

// OpenAICredentials mirrors spec.md §4.5's OpenAI-class requirement:
// {api_key}.
type OpenAICredentials struct {
	APIKey string `validate:"required"`
}

var credentialValidator = validator.New()

// ValidateBedrockCredentials validates c against spec.md §4.5's Bedrock-class
// required fields.
func ValidateBedrockCredentials(c BedrockCredentials) error {
	return credentialValidator.Struct(c)
}

// ValidateOpenAICredentials validates c against spec.md §4.5's OpenAI-class
// required fields.
func ValidateOpenAICredentials(c OpenAICredentials) error {
	return credentialValidator.Struct(c)
}
