package agent

import (
	"encoding/json"

	"github.com/answer42/agentcore/internal/corekit"
)

// parseAndValidate unmarshals raw into a *T and runs struct-tag
// validation, wrapping any failure as KindInvalidResponse.
func parseAndValidate[T any](raw string) (*T, error) {
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidResponse, "failed to parse provider response as JSON", err)
	}
	if err := validate.Struct(&out); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidResponse, "provider response failed schema validation", err)
	}
	return &out, nil
}
