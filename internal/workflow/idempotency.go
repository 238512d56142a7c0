package workflow

import "github.com/google/uuid"

// IdempotencyKey derives a deterministic key for a side-effecting step from
// the step id, the operation, and the resource it touches. Retried attempts
// of the same step reuse the key, so a re-invocation after partial completion
// lands on the same artifact instead of duplicating it.
func IdempotencyKey(stepID, operation, resourceID string) string {
	name := stepID + "|" + operation + "|" + resourceID
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("sceneforge:"+name)).String()
}
