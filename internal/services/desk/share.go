package desk

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/portico/internal/models"
)

const shareBaseURL = "https://wa.me/?text="

// ShareMessage is the status-specific WhatsApp text for a record.
func ShareMessage(w models.Withdrawal) string {
	switch models.NormalizeStatus(string(w.Status)) {
	case models.StatusSearching:
		return fmt.Sprintf("*LBSNG - Actualización*\nEstamos buscando a *%s* (%s) en su sala.", w.Name, w.Course)
	case models.StatusNotified:
		return fmt.Sprintf("*LBSNG - Alumno Avisado*\n*%s* ya fue notificado y se dirige a la salida.", w.Name)
	default:
		return fmt.Sprintf("*LBSNG - Aviso de Retiro*\nEl apoderado de *%s* (%s) está en portería esperando.\nMotivo: %s", w.Name, w.Course, w.Reason)
	}
}

// ShareLink returns the wa.me link that opens WhatsApp with ShareMessage prefilled.
func ShareLink(w models.Withdrawal) string {
	return shareBaseURL + strings.ReplaceAll(url.QueryEscape(ShareMessage(w)), "+", "%20")
}
