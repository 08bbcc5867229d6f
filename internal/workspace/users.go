package workspace

import (
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/zepposd/docudigitize/internal/errors"
	"github.com/zepposd/docudigitize/internal/models"
)

// Users returns the known users in the order they were added.
func (w *Workspace) Users() []models.User {
	return w.st.Users.All()
}

// Login returns the user called name, adding it first when no user with
// that name exists. Names compare case-insensitively; the stored spelling
// wins.
func (w *Workspace) Login(name string) (models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.User{}, fmt.Errorf("user name is required")
	}

	if u, ok := w.st.Users.Get(models.NameKey(name)); ok {
		return u, nil
	}

	u, err := w.st.Users.Create(models.User{Name: name})
	if err != nil {
		return u, fmt.Errorf("adding user %s: %w", name, err)
	}

	w.logger.Info("user added on login", slog.String("user", name))

	return u, nil
}

// AddUser adds a user. A name that differs from an existing one only in
// case is rejected with ErrDuplicateName.
func (w *Workspace) AddUser(name string) (models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.User{}, fmt.Errorf("user name is required")
	}

	if _, ok := w.st.Users.Get(models.NameKey(name)); ok {
		return models.User{}, fmt.Errorf("user %s: %w", name, apperrors.ErrDuplicateName)
	}

	u, err := w.st.Users.Create(models.User{Name: name})
	if err != nil {
		return u, fmt.Errorf("adding user %s: %w", name, err)
	}

	return u, nil
}

// DeleteUser removes a user. Files uploaded by the user keep their
// attribution. Deleting an unknown user is a no-op.
func (w *Workspace) DeleteUser(name string) error {
	if err := w.st.Users.Delete(models.NameKey(name)); err != nil {
		return fmt.Errorf("deleting user %s: %w", name, err)
	}

	return nil
}
