package entity

import "time"

// Estados de la máquina de envío a la SAT. Se persisten en el registro de
// certificación para poder reanudar tras un reinicio del proceso.
const (
	EnvioPendiente          = "PENDIENTE"           // Listo para enviar
	EnvioEnviando           = "ENVIANDO"            // Petición en vuelo hacia la SAT
	EnvioEsperandoResultado = "ESPERANDO_RESULTADO" // La SAT acusó recibo, veredicto pendiente
	EnvioCertificado        = "CERTIFICADO"         // Veredicto: autorizado
	EnvioRechazado          = "RECHAZADO"           // Veredicto: rechazado
	EnvioErrorTransitorio   = "ERROR_TRANSITORIO"   // Falla con reintento programado
	EnvioErrorFatal         = "ERROR_FATAL"         // Sin reintentos posibles
	EnvioAnulado            = "ANULADO"             // Cancelado por el emisor
	EnvioAnomalia           = "ANOMALIA"            // Desenlace contradice el registro
)

// SolicitudCertificacion es la entrada inmutable de un trabajo de
// certificación. ClaveIdempotencia permite al emisor repetir el envío sin
// duplicar documentos.
type SolicitudCertificacion struct {
	ID                string
	EmisorNIT         string
	ClaveIdempotencia string
	DocumentoUUID     string
	RecibidaEn        time.Time
}

// RegistroCertificacion es el registro persistente del avance de un documento
// por la máquina de envío. ProximoIntento sobrevive reinicios: el backoff no
// se reinicia al levantar de nuevo el proceso.
type RegistroCertificacion struct {
	ID             string
	DocumentoUUID  string
	EmisorNIT      string
	Estado         string
	Intentos       int
	ProximoIntento *time.Time // nil = sin reintento programado
	AcuseSAT       string     // número de acuse para consultar el veredicto
	CodigosSAT     []string   // códigos de error del veredicto, si hubo rechazo
	UltimoError    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EsTerminal indica si el registro alcanzó un desenlace definitivo.
func (r *RegistroCertificacion) EsTerminal() bool {
	switch r.Estado {
	case EnvioCertificado, EnvioRechazado, EnvioErrorFatal, EnvioAnulado, EnvioAnomalia:
		return true
	}
	return false
}

// ListoParaReintento indica si el registro tiene un reintento programado que
// ya venció en el instante dado.
func (r *RegistroCertificacion) ListoParaReintento(ahora time.Time) bool {
	return r.Estado == EnvioErrorTransitorio &&
		r.ProximoIntento != nil &&
		!ahora.Before(*r.ProximoIntento)
}
