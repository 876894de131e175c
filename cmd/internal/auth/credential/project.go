package credential

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyUser is returned when a per-user pointer is addressed without a user id.
var ErrEmptyUser = errors.New("credential: empty user id")

func projectKey(userID string) string {
	return keyProjectByUserPx + userID
}

// RememberProject records userID's last active project in the durable tier.
func (s *Store) RememberProject(ctx context.Context, userID, projectID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrEmptyUser
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return s.durable.Delete(ctx, projectKey(userID))
	}
	return s.durable.SetAll(ctx, map[string]string{projectKey(userID): projectID})
}

// LastProject returns userID's pointer, falling back to the legacy unnamespaced one.
// legacy reports whether the fallback was used.
func (s *Store) LastProject(ctx context.Context, userID string) (projectID string, legacy bool, err error) {
	if userID = strings.TrimSpace(userID); userID != "" {
		v, err := s.get(ctx, s.durable, projectKey(userID))
		if err != nil {
			return "", false, err
		}
		if v != "" {
			return v, false, nil
		}
	}

	v, err := s.get(ctx, s.durable, keyLegacyProject)
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

// ForgetProject clears userID's pointer only. Other users' pointers are untouched.
func (s *Store) ForgetProject(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	return s.durable.Delete(ctx, projectKey(userID))
}

// ForgetLegacyProject clears the shared unnamespaced pointer.
func (s *Store) ForgetLegacyProject(ctx context.Context) error {
	return s.durable.Delete(ctx, keyLegacyProject)
}

// SetLegacyProject writes the unnamespaced pointer. Kept for migrating older installs.
func (s *Store) SetLegacyProject(ctx context.Context, projectID string) error {
	return s.durable.SetAll(ctx, map[string]string{keyLegacyProject: strings.TrimSpace(projectID)})
}
