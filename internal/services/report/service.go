// -----------------------------------------------------------------------
// Report - printable withdrawal report built from reconciled data
// -----------------------------------------------------------------------

package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/portico/internal/common"
	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
	"github.com/ternarybob/portico/internal/services/metrics"
	"github.com/ternarybob/portico/internal/services/reconcile"
)

// rankingRows caps the remote ranking table
const rankingRows = 10

// Service builds the desk report as markdown and renders it to PDF.
// It only reads reconciled state; it never triggers a sync.
type Service struct {
	state       *reconcile.State
	store       interfaces.RemoteStore
	pdf         interfaces.PDFService
	opts        metrics.Options
	title       string
	institution string
	now         func() time.Time
	logger      arbor.ILogger
}

// NewService creates a report service
func NewService(state *reconcile.State, store interfaces.RemoteStore, pdf interfaces.PDFService, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		state:       state,
		store:       store,
		pdf:         pdf,
		opts:        metrics.OptionsFromConfig(config),
		title:       config.Report.Title,
		institution: config.Report.Institution,
		now:         time.Now,
		logger:      logger,
	}
}

// remoteSections holds what the store contributed; nil fields were unavailable
type remoteSections struct {
	ranking []models.CourseCount
	monthly *models.MonthlyStats
}

// Generate renders the report to PDF bytes
func (s *Service) Generate(ctx context.Context) ([]byte, error) {
	markdown, err := s.Markdown(ctx)
	if err != nil {
		return nil, err
	}
	return s.pdf.ConvertMarkdownToPDF(markdown, s.title)
}

// Markdown builds the report. Store sections that fail to load are left out.
func (s *Service) Markdown(ctx context.Context) (string, error) {
	remote := s.fetchRemote(ctx)
	if err := ctx.Err(); err != nil {
		return "", err
	}

	snapshot := s.state.Snapshot()
	now := s.now()
	loc := s.opts.Location

	m := metrics.Project(snapshot.Active, snapshot.Historical, now, s.opts)

	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", s.title)
	fmt.Fprintf(&b, "**%s**\n\n", s.institution)
	fmt.Fprintf(&b, "Fecha de generación: %s  \nHora: %s\n\n", now.In(loc).Format("02-01-2006"), now.In(loc).Format("15:04"))

	b.WriteString("## Resumen ejecutivo\n\n")
	b.WriteString("| Indicador | Valor |\n|---|---|\n")
	fmt.Fprintf(&b, "| Alumnos activos | %d |\n", m.ActiveCount)
	fmt.Fprintf(&b, "| Completados hoy | %d |\n", m.CompletedToday)
	fmt.Fprintf(&b, "| Tiempo promedio | %d min |\n", m.AverageElapsedMinutes)
	fmt.Fprintf(&b, "| Tiempo excedido | %d |\n\n", m.OverdueCount)

	b.WriteString("## Distribución por estado\n\n")
	b.WriteString("| Estado | Cantidad | Porcentaje |\n|---|---|---|\n")
	total := 0
	for _, n := range m.StatusCounts {
		total += n
	}
	for _, status := range append(append([]models.Status{}, models.ActiveStatuses...), models.StatusCompleted) {
		n := m.StatusCounts[status]
		fmt.Fprintf(&b, "| %s | %d | %s |\n", status.Label(), n, percent(n, total))
	}
	b.WriteString("\n")

	b.WriteString("# Detalle de alumnos en proceso\n\n")
	cards := metrics.ActiveCards(snapshot.Active, now, s.opts)
	if len(cards) == 0 {
		b.WriteString("No hay alumnos en proceso de retiro en este momento.\n\n")
	} else {
		b.WriteString("| Alumno | Curso | Motivo | Estado | Entrada | Transcurrido |\n|---|---|---|---|---|---|\n")
		for _, card := range cards {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				cell(card.Name), cell(card.Course), cell(card.Reason), card.Status.Label(),
				card.Created(loc).Format("15:04"), card.ElapsedText)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Retirados hoy\n\n")
	withdrawn := metrics.WithdrawnToday(snapshot.Historical, now, s.opts)
	if len(withdrawn) == 0 {
		b.WriteString("No hay retiros finalizados hoy.\n\n")
	} else {
		b.WriteString("| Alumno | Curso | Entrada | Salida | Duración |\n|---|---|---|---|---|\n")
		for _, w := range withdrawn {
			duration := "N/A"
			if w.DurationMinutes != nil {
				duration = fmt.Sprintf("%d minutos", *w.DurationMinutes)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", cell(w.Name), cell(w.Course), w.EntryTime, cell(w.ExitTime), duration)
		}
		b.WriteString("\n")
	}

	b.WriteString("# Estadísticas mensuales\n\n")
	monthly := metrics.Monthly(snapshot.Historical, now, s.opts)
	fmt.Fprintf(&b, "Mes: %s\n\n", monthly.Month)
	fmt.Fprintf(&b, "- Total de retiros en el mes: %d\n- Promedio diario: %.1f\n\n", monthly.Total, monthly.AvgPerDay)
	if len(monthly.TopCourses) == 0 {
		b.WriteString("No hay datos suficientes para este mes.\n\n")
	} else {
		b.WriteString("| # | Curso | Retiros |\n|---|---|---|\n")
		for i, c := range monthly.TopCourses {
			fmt.Fprintf(&b, "| %d | %s | %d |\n", i+1, cell(c.Label), c.Count)
		}
		b.WriteString("\n")
	}

	if remote.monthly != nil && len(remote.monthly.Months) > 0 {
		b.WriteString("## Serie mensual\n\n| Mes | Retiros |\n|---|---|\n")
		for i, month := range remote.monthly.Months {
			if i >= len(remote.monthly.Values) {
				break
			}
			fmt.Fprintf(&b, "| %s | %g |\n", cell(month), remote.monthly.Values[i])
		}
		b.WriteString("\n")
	}

	if remote.ranking != nil {
		b.WriteString("# Ranking de retiros\n\n")
		if len(remote.ranking) == 0 {
			b.WriteString("Sin registros este mes.\n\n")
		} else {
			b.WriteString("| # | Alumno | Retiros |\n|---|---|---|\n")
			for i, c := range remote.ranking {
				if i == rankingRows {
					break
				}
				fmt.Fprintf(&b, "| %d | %s | %d |\n", i+1, cell(c.Label), c.Count)
			}
			b.WriteString("\n")
		}
	}

	return b.String(), nil
}

// fetchRemote loads the ranking and monthly series concurrently
func (s *Service) fetchRemote(ctx context.Context) remoteSections {
	var out remoteSections
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ranking, err := s.store.GetRanking(gctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Report ranking unavailable")
			return nil
		}
		if ranking == nil {
			ranking = []models.CourseCount{}
		}
		out.ranking = ranking
		return nil
	})
	g.Go(func() error {
		monthly, err := s.store.GetMonthlyStats(gctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Report monthly series unavailable")
			return nil
		}
		out.monthly = monthly
		return nil
	})

	_ = g.Wait()
	return out
}

func percent(n, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", float64(n)*100/float64(total))
}

// cell keeps free text from breaking the table row
func cell(s string) string {
	return strings.NewReplacer("|", "/", "\n", " ").Replace(strings.TrimSpace(s))
}
