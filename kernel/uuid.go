package kernel

import "github.com/google/uuid"

func UuidV7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IdempotencyKey returns a random (v4) key suitable for the Idempotency-Key header.
func IdempotencyKey() string {
	return uuid.NewString()
}

func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}
