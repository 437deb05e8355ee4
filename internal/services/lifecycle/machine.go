package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/common"
	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
	"github.com/ternarybob/portico/internal/services/reconcile"
)

// ExitTimeLayout is the wall-clock format written to the store on completion.
const ExitTimeLayout = "15:04"

// Successor returns the next status in the lifecycle. Notified wraps to Waiting;
// the Machine's policy decides whether that wrap is ever sent to the store.
func Successor(status models.Status) models.Status {
	switch status {
	case models.StatusWaiting:
		return models.StatusSearching
	case models.StatusSearching:
		return models.StatusNotified
	default:
		return models.StatusWaiting
	}
}

// Machine applies status transitions, completions, discards and registrations.
// Every operation requires the current operator and is rejected before any store call without one.
type Machine struct {
	store    interfaces.RemoteStore
	state    *reconcile.State
	identity interfaces.OperatorProvider
	resync   interfaces.Resyncer
	validate *validator.Validate
	policy   string
	loc      *time.Location
	now      func() time.Time
	logger   arbor.ILogger
}

// NewMachine creates a lifecycle machine. resync may be set later with SetResyncer.
func NewMachine(
	store interfaces.RemoteStore,
	state *reconcile.State,
	identity interfaces.OperatorProvider,
	resync interfaces.Resyncer,
	config *common.Config,
	logger arbor.ILogger,
) *Machine {
	return &Machine{
		store:    store,
		state:    state,
		identity: identity,
		resync:   resync,
		validate: validator.New(),
		policy:   config.Lifecycle.NotifiedAdvance,
		loc:      config.Desk.Location(),
		now:      time.Now,
		logger:   logger,
	}
}

// SetResyncer sets the component that forced re-syncs go through.
func (m *Machine) SetResyncer(resync interfaces.Resyncer) {
	m.resync = resync
}

// Advance moves the active record created at createdAt to its successor status.
// On success the local record reflects the new status and responsible immediately
// and a re-sync is forced. On failure the prior confirmed state stays visible.
func (m *Machine) Advance(ctx context.Context, createdAt int64) (models.Withdrawal, error) {
	operator, err := m.identity.RequireIdentity()
	if err != nil {
		return models.Withdrawal{}, err
	}

	record, err := m.state.FindActive(createdAt)
	if err != nil {
		return models.Withdrawal{}, err
	}

	if record.Status == models.StatusNotified {
		switch m.policy {
		case common.NotifiedAdvanceNoop:
			return record, nil
		case common.NotifiedAdvanceReject:
			return record, fmt.Errorf("%w: %s is already notified", models.ErrTransitionFailed, record.Name)
		}
	}

	next := Successor(record.Status)
	if err := m.store.UpdateState(ctx, createdAt, next, operator.Name); err != nil {
		m.logger.Warn().
			Int64("created_at", createdAt).
			Str("to", string(next)).
			Err(err).
			Msg("Status transition failed")
		return record, fmt.Errorf("%w: %w", models.ErrTransitionFailed, err)
	}

	if err := m.state.ApplyStatus(createdAt, next, operator.Name); err != nil {
		// A sync replaced the set while the call was in flight; the re-sync below settles it
		m.logger.Debug().Int64("created_at", createdAt).Msg("Record vanished before local status update")
	}

	m.logger.Info().
		Str("name", record.Name).
		Str("from", string(record.Status)).
		Str("to", string(next)).
		Str("operator", operator.Name).
		Msg("Estado actualizado")

	m.forceSync(ctx)

	record.Status = next
	record.Responsible = operator.Name
	return record, nil
}

// Complete records the current desk clock time as the exit time of the record.
// The record is not moved locally; it leaves the active set when a re-sync confirms it.
func (m *Machine) Complete(ctx context.Context, createdAt int64, confirmer interfaces.Confirmer) (string, error) {
	operator, err := m.identity.RequireIdentity()
	if err != nil {
		return "", err
	}

	record, err := m.state.FindActive(createdAt)
	if err != nil {
		return "", err
	}

	if err := m.confirm(ctx, confirmer, fmt.Sprintf("¿Confirmar salida de %s?", record.Name)); err != nil {
		return "", err
	}

	exitTime := m.now().In(m.loc).Format(ExitTimeLayout)
	if err := m.store.Finish(ctx, createdAt, exitTime, operator.Name); err != nil {
		m.logger.Warn().Str("name", record.Name).Err(err).Msg("Error al finalizar el retiro")
		return "", err
	}

	m.logger.Info().
		Str("name", record.Name).
		Str("exit_time", exitTime).
		Str("operator", operator.Name).
		Msg("Retiro finalizado")

	m.forceSync(ctx)
	return exitTime, nil
}

// Discard deletes the record after confirmation.
func (m *Machine) Discard(ctx context.Context, createdAt int64, confirmer interfaces.Confirmer) error {
	if _, err := m.identity.RequireIdentity(); err != nil {
		return err
	}

	record, err := m.state.Find(createdAt)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("¿Estás seguro de eliminar a %s?\nEsta acción no se puede deshacer.", record.Name)
	if err := m.confirm(ctx, confirmer, prompt); err != nil {
		return err
	}

	if err := m.store.Delete(ctx, createdAt); err != nil {
		m.logger.Warn().Str("name", record.Name).Err(err).Msg("Error al eliminar el registro")
		return err
	}

	m.logger.Info().Str("name", record.Name).Msg("Registro eliminado")

	m.forceSync(ctx)
	return nil
}

// Register validates req, appends it to the store as Waiting and shows it locally
// as a pending record until the next changed snapshot replaces it.
func (m *Machine) Register(ctx context.Context, req models.RegisterRequest) (models.Withdrawal, error) {
	operator, err := m.identity.RequireIdentity()
	if err != nil {
		return models.Withdrawal{}, err
	}

	req.Normalize()
	if err := m.validate.Struct(req); err != nil {
		return models.Withdrawal{}, fmt.Errorf("%w: %s", models.ErrValidation, describeValidation(err))
	}

	record := models.Withdrawal{
		Name:        req.Name,
		Course:      req.Course,
		Reason:      req.Reason,
		CreatedAt:   m.now().UnixMilli(),
		Status:      models.StatusWaiting,
		Responsible: operator.Name,
	}

	if err := m.store.Add(ctx, record); err != nil {
		m.logger.Warn().Str("name", record.Name).Err(err).Msg("Error al registrar el alumno")
		return models.Withdrawal{}, err
	}

	m.state.InsertOptimistic(record)

	m.logger.Info().
		Str("name", record.Name).
		Str("course", record.Course).
		Str("operator", operator.Name).
		Msg("Alumno registrado")

	m.forceSync(ctx)

	record.Pending = true
	return record, nil
}

func (m *Machine) confirm(ctx context.Context, confirmer interfaces.Confirmer, prompt string) error {
	if confirmer == nil {
		return models.ErrConfirmationDeclined
	}
	ok, err := confirmer.Confirm(ctx, prompt)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrConfirmationDeclined
	}
	return nil
}

func (m *Machine) forceSync(ctx context.Context) {
	if m.resync == nil {
		return
	}
	if err := m.resync.TriggerSync(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Forced sync after mutation failed")
	}
}

// describeValidation turns validator errors into one short line per field.
func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "min":
			parts = append(parts, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
