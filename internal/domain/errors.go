package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrDuplicate    = errors.New("recurso duplicado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrConflict     = errors.New("conflicto con el estado actual")

	// Credenciales de firma del emisor.
	ErrCredencialNoEncontrada = errors.New("credencial de firma no encontrada para el emisor")
	ErrCredencialExpirada     = errors.New("credencial de firma expirada")
	ErrFirmaFallida           = errors.New("la operación de firma falló")

	// Comunicación con la SAT. Un error transitorio admite reintento;
	// uno fatal detiene el procesamiento del documento.
	ErrAutoridadTransitorio = errors.New("error transitorio de la SAT")
	ErrAutoridadFatal       = errors.New("error fatal de la SAT")

	// ErrAnomaliaConciliacion marca un documento cuyo desenlace observado
	// contradice el estado registrado (ej. veredicto tardío tras anulación).
	ErrAnomaliaConciliacion = errors.New("anomalía de conciliación")

	// ErrDocumentoEnProceso indica que otro trabajo ya posee la exclusividad
	// del documento.
	ErrDocumentoEnProceso = errors.New("el documento ya está siendo procesado")
)

// ReglaIncumplida identifica una regla de validación FEL violada, con el
// código del catálogo de Reglas y Validaciones (ej. "2.2.4.11").
type ReglaIncumplida struct {
	Codigo  string
	Mensaje string
}

func (r ReglaIncumplida) String() string {
	return fmt.Sprintf("[%s] %s", r.Codigo, r.Mensaje)
}

// ErrorValidacion agrupa todas las reglas incumplidas de un documento. El
// documento se rechaza completo; nunca se certifica un DTE parcialmente
// válido.
type ErrorValidacion struct {
	Reglas []ReglaIncumplida
}

func (e *ErrorValidacion) Error() string {
	msgs := make([]string, len(e.Reglas))
	for i, r := range e.Reglas {
		msgs[i] = r.String()
	}
	return "validación fallida: " + strings.Join(msgs, "; ")
}

// EsValidacion indica si el error (o alguno en su cadena) es de validación.
func EsValidacion(err error) bool {
	var ve *ErrorValidacion
	return errors.As(err, &ve)
}

// EsTransitorio indica si el error admite reintento contra la SAT.
func EsTransitorio(err error) bool {
	return errors.Is(err, ErrAutoridadTransitorio)
}

// EsNotFound indica si el error corresponde a un recurso inexistente.
func EsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// EsDuplicado indica si el error corresponde a un recurso ya registrado.
func EsDuplicado(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// RechazoSAT representa un rechazo definitivo emitido por la SAT, con los
// códigos de error que acompañan el veredicto.
type RechazoSAT struct {
	Codigos  []string
	Mensajes []string
}

func (e *RechazoSAT) Error() string {
	return fmt.Sprintf("documento rechazado por la SAT: %s", strings.Join(e.Codigos, ", "))
}

func (e *RechazoSAT) Unwrap() error { return ErrAutoridadFatal }
