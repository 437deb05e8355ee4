// -----------------------------------------------------------------------
// Session - current operator and desk preferences
// -----------------------------------------------------------------------

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
	"github.com/ternarybob/portico/internal/services/kv"
)

// Persisted preference keys
const (
	OperatorKey = "portico.operator"
	ThemeKey    = "portico.theme"
)

const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Service holds at most one current operator for the desk session.
// Every mutating desk action is attributed to it.
type Service struct {
	mu       sync.RWMutex
	operator models.Operator

	prefs    *kv.Service
	store    interfaces.RemoteStore
	events   interfaces.EventService
	validate *validator.Validate
	logger   arbor.ILogger
}

var _ interfaces.OperatorProvider = (*Service)(nil)

// NewService creates a session with no current operator. Call Restore to load the persisted one.
func NewService(prefs *kv.Service, store interfaces.RemoteStore, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		prefs:    prefs,
		store:    store,
		events:   events,
		validate: validator.New(),
		logger:   logger,
	}
}

// Restore loads the persisted operator and keeps it only if the roster still lists them.
// When the roster cannot be fetched the persisted operator is kept.
func (s *Service) Restore(ctx context.Context) error {
	raw, err := s.prefs.Get(ctx, OperatorKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load operator: %w", err)
	}

	var operator models.Operator
	if err := json.Unmarshal([]byte(raw), &operator); err != nil || operator.IsZero() {
		s.logger.Warn().Msg("Discarding unreadable persisted operator")
		return s.prefs.Delete(ctx, OperatorKey)
	}

	roster, err := s.store.GetUsers(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("operator", operator.Name).Msg("Roster unavailable, keeping persisted operator")
		s.set(ctx, operator)
		return nil
	}

	for _, member := range roster {
		if strings.EqualFold(strings.TrimSpace(member.Name), operator.Name) {
			s.set(ctx, member)
			s.logger.Info().Str("operator", member.Name).Msg("Operator restored")
			return nil
		}
	}

	s.logger.Info().Str("operator", operator.Name).Msg("Persisted operator no longer in roster")
	return s.prefs.Delete(ctx, OperatorKey)
}

// Select makes operator current and persists it.
func (s *Service) Select(ctx context.Context, operator models.Operator) error {
	operator.Name = strings.TrimSpace(operator.Name)
	operator.Role = strings.TrimSpace(operator.Role)
	if err := s.validate.Struct(operator); err != nil {
		return fmt.Errorf("%w: operator name must be at least 2 characters", models.ErrValidation)
	}

	encoded, err := json.Marshal(operator)
	if err != nil {
		return err
	}
	if err := s.prefs.Set(ctx, OperatorKey, string(encoded), "Current desk operator"); err != nil {
		return err
	}

	s.set(ctx, operator)
	s.logger.Info().Str("operator", operator.Name).Msg("Operator selected")
	return nil
}

// Clear removes the current operator.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.prefs.Delete(ctx, OperatorKey); err != nil {
		return err
	}
	s.set(ctx, models.Operator{})
	return nil
}

// Current returns the current operator; ok is false when none is set.
func (s *Service) Current() (models.Operator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operator, !s.operator.IsZero()
}

// RequireIdentity returns the current operator or ErrUnauthenticated.
func (s *Service) RequireIdentity() (models.Operator, error) {
	operator, ok := s.Current()
	if !ok {
		return models.Operator{}, models.ErrUnauthenticated
	}
	return operator, nil
}

// Roster lists the operators registered in the store.
func (s *Service) Roster(ctx context.Context) ([]models.Operator, error) {
	return s.store.GetUsers(ctx)
}

// RegisterOperator adds operator to the store's roster.
func (s *Service) RegisterOperator(ctx context.Context, operator models.Operator) error {
	operator.Name = strings.TrimSpace(operator.Name)
	operator.Role = strings.TrimSpace(operator.Role)
	if err := s.validate.Struct(operator); err != nil {
		return fmt.Errorf("%w: operator name must be at least 2 characters", models.ErrValidation)
	}
	if err := s.store.SaveUser(ctx, operator); err != nil {
		s.logger.Warn().Str("operator", operator.Name).Err(err).Msg("Failed to register operator")
		return err
	}
	s.logger.Info().Str("operator", operator.Name).Str("role", operator.Role).Msg("Operator registered")
	return nil
}

// Theme returns the persisted theme, dark when unset.
func (s *Service) Theme(ctx context.Context) (string, error) {
	theme, err := s.prefs.GetOr(ctx, ThemeKey, ThemeDark)
	if err != nil {
		return ThemeDark, err
	}
	if theme != ThemeLight {
		return ThemeDark, nil
	}
	return theme, nil
}

// SetTheme persists the theme preference.
func (s *Service) SetTheme(ctx context.Context, theme string) error {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if err := s.validate.Var(theme, "oneof=dark light"); err != nil {
		return fmt.Errorf("%w: theme must be dark or light", models.ErrValidation)
	}
	return s.prefs.Set(ctx, ThemeKey, theme, "UI theme")
}

func (s *Service) set(ctx context.Context, operator models.Operator) {
	s.mu.Lock()
	s.operator = operator
	s.mu.Unlock()

	if s.events == nil {
		return
	}
	var payload *models.Operator
	if !operator.IsZero() {
		payload = &operator
	}
	if err := s.events.PublishSync(ctx, interfaces.Event{Type: interfaces.EventOperatorChanged, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Msg("Operator change handlers failed")
	}
}
