package bedrock

import (
	"errors"

	"github.com/aws/smithy-go"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
)

// mapError classifies an SDK error into a domain sentinel. Anything that is
// not a recognised service error, including transport failures, is reported
// as the remote being unavailable.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrRemoteUnavailable) {
		return err
	}

	sentinel := domain.ErrRemoteUnavailable
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ResourceNotFoundException":
			sentinel = domain.ErrNotFound
		case "ConflictException":
			sentinel = domain.ErrConflict
		case "ThrottlingException", "TooManyRequestsException":
			sentinel = domain.ErrThrottled
		case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
			sentinel = domain.ErrAuthInvalid
		case "ValidationException", "ServiceQuotaExceededException":
			sentinel = domain.ErrInvalidInput
		}
	}
	return domain.NewDomainError("bedrock."+op, sentinel, err.Error())
}

// emptyResponse reports a successful call whose payload is missing.
func emptyResponse(op string) error {
	return domain.NewDomainError("bedrock."+op, domain.ErrRemoteUnavailable, "empty response")
}
