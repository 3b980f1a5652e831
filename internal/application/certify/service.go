// Package certify orquesta el ciclo completo de certificación de un DTE:
//
//	Validación FEL → XML GT_Documento → Firma XAdES → Envío SAT → Veredicto
//
// El avance queda registrado en la máquina de envío persistente, así que un
// reinicio del proceso reanuda cada documento donde quedó.
package certify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dcifuentes/fel-certificador/internal/domain"
	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
	"github.com/dcifuentes/fel-certificador/internal/domain/fel"
	"github.com/dcifuentes/fel-certificador/internal/domain/repository"
	"github.com/dcifuentes/fel-certificador/internal/infrastructure/sat"
	pkgfel "github.com/dcifuentes/fel-certificador/pkg/fel"
	"github.com/dcifuentes/fel-certificador/pkg/logger"
)

// Config agrupa los parámetros de operación del servicio.
type Config struct {
	Workers            int           // trabajos concurrentes
	MaxIntentos        int           // intentos de envío por documento
	RetryBase          time.Duration // base del backoff exponencial
	RetryMax           time.Duration // tope del backoff
	PollInterval       time.Duration // intervalo del poller de pendientes
	TimeoutProceso     time.Duration // plazo máximo de un procesamiento en segundo plano
	NITCertificador    string
	NombreCertificador string
}

func (c Config) normalizada() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.MaxIntentos <= 0 {
		c.MaxIntentos = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.TimeoutProceso <= 0 {
		c.TimeoutProceso = 90 * time.Second
	}
	return c
}

// Service implementa los casos de uso de certificación, anulación y consulta.
type Service struct {
	dteRepo      repository.DTERepository
	emisorRepo   repository.EmisorRepository
	certRepo     repository.CertificacionRepository
	tx           TxRunner // opcional; nil = escrituras directas
	credenciales AlmacenCredenciales
	validador    *fel.Validador
	xmlBuilder   *sat.XMLBuilderService
	firmador     Firmador
	autoridad    sat.AutoridadSAT
	tasas        TasaCambio // opcional, puede ser nil
	cfg          Config
	log          *logger.Logger

	candados *candadosDocumento
	sem      chan struct{}
	reloj    func() time.Time
}

// NewService construye el servicio con todas sus dependencias. tx y tasas
// pueden ser nil: sin tx las escrituras de recepción van directas, sin tasas
// el certificador no opera documentos en moneda extranjera.
func NewService(
	dteRepo repository.DTERepository,
	emisorRepo repository.EmisorRepository,
	certRepo repository.CertificacionRepository,
	tx TxRunner,
	credenciales AlmacenCredenciales,
	validador *fel.Validador,
	xmlBuilder *sat.XMLBuilderService,
	firmador Firmador,
	autoridad sat.AutoridadSAT,
	tasas TasaCambio,
	cfg Config,
	log *logger.Logger,
) *Service {
	cfg = cfg.normalizada()
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		dteRepo:      dteRepo,
		emisorRepo:   emisorRepo,
		certRepo:     certRepo,
		tx:           tx,
		credenciales: credenciales,
		validador:    validador,
		xmlBuilder:   xmlBuilder,
		firmador:     firmador,
		autoridad:    autoridad,
		tasas:        tasas,
		cfg:          cfg,
		log:          log,
		candados:     nuevosCandados(),
		sem:          make(chan struct{}, cfg.Workers),
		reloj:        time.Now,
	}
}

// Certificar registra el documento y lo deja listo para procesar. Si la clave
// de idempotencia ya fue usada por el emisor, devuelve el documento original
// sin crear nada nuevo: repetir la petición es seguro.
func (s *Service) Certificar(ctx context.Context, emisorNIT, claveIdempotencia string, dte *entity.DTE) (*entity.DTE, error) {
	if dte == nil {
		return nil, fmt.Errorf("%w: documento vacío", domain.ErrInvalidInput)
	}
	if emisorNIT == "" {
		return nil, fmt.Errorf("%w: falta el NIT del emisor", domain.ErrInvalidInput)
	}
	if dte.EmisorNIT != "" && dte.EmisorNIT != emisorNIT {
		return nil, fmt.Errorf("%w: el documento pertenece a otro emisor", domain.ErrForbidden)
	}
	dte.EmisorNIT = emisorNIT

	// Repetición con la misma clave: devolver el documento original.
	if claveIdempotencia != "" {
		previa, err := s.certRepo.GetSolicitudPorClave(ctx, emisorNIT, claveIdempotencia)
		if err != nil && !domain.EsNotFound(err) {
			return nil, err
		}
		if previa != nil {
			return s.dteRepo.GetByUUID(ctx, emisorNIT, previa.DocumentoUUID)
		}
	}

	if err := pkgfel.ValidarUUIDAutorizacion(dte.UUID); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	// Serie y número se derivan del UUID de autorización; si el emisor los
	// mandó, la validación exige que coincidan con los derivados.
	if dte.Serie == "" {
		serie, err := pkgfel.SerieDesdeUUID(dte.UUID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		dte.Serie = serie
	}
	if dte.Numero == 0 {
		numero, err := pkgfel.NumeroDesdeUUID(dte.UUID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		dte.Numero = numero
	}

	ahora := s.reloj()
	dte.Estado = entity.EstadoBorrador
	dte.CreatedAt = ahora
	dte.UpdatedAt = ahora

	solicitud := &entity.SolicitudCertificacion{
		ID:                uuid.NewString(),
		EmisorNIT:         emisorNIT,
		ClaveIdempotencia: claveIdempotencia,
		DocumentoUUID:     dte.UUID,
		RecibidaEn:        ahora,
	}
	registro := &entity.RegistroCertificacion{
		ID:            uuid.NewString(),
		DocumentoUUID: dte.UUID,
		EmisorNIT:     emisorNIT,
		Estado:        entity.EnvioPendiente,
		CreatedAt:     ahora,
		UpdatedAt:     ahora,
	}

	// Documento, solicitud y registro se escriben juntos: o quedan los tres,
	// o no queda ninguno.
	crear := func(dteRepo repository.DTERepository, certRepo repository.CertificacionRepository) error {
		if err := dteRepo.Create(ctx, dte); err != nil {
			return err
		}
		if _, err := certRepo.CreateSolicitud(ctx, solicitud); err != nil {
			return err
		}
		return certRepo.CreateRegistro(ctx, registro)
	}
	var err error
	if s.tx != nil {
		err = s.tx.Run(ctx, crear)
	} else {
		err = crear(s.dteRepo, s.certRepo)
	}
	if err != nil {
		// carrera con otra petición idéntica: la clave ya quedó registrada
		if domain.EsDuplicado(err) && claveIdempotencia != "" {
			if previa, gerr := s.certRepo.GetSolicitudPorClave(ctx, emisorNIT, claveIdempotencia); gerr == nil {
				return s.dteRepo.GetByUUID(ctx, emisorNIT, previa.DocumentoUUID)
			}
		}
		return nil, err
	}
	return dte, nil
}

// ProcesarAsync dispara el procesamiento en una goroutine con su propio
// contexto, desacoplado del ciclo HTTP que recibió la solicitud.
func (s *Service) ProcesarAsync(emisorNIT, documentoUUID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TimeoutProceso)
		defer cancel()
		if err := s.Procesar(ctx, emisorNIT, documentoUUID); err != nil {
			s.log.Error().Err(err).
				Str("documento", documentoUUID).
				Str("emisor", emisorNIT).
				Msg("procesamiento de certificación falló")
		}
	}()
}

// Procesar avanza el documento por la máquina de envío hasta un estado
// terminal o hasta dejar programado el paso siguiente (reintento o consulta
// de veredicto). Es seguro llamarlo de nuevo: los estados terminales son
// definitivos y un documento en proceso retorna ErrDocumentoEnProceso.
func (s *Service) Procesar(ctx context.Context, emisorNIT, documentoUUID string) error {
	if !s.candados.adquirir(documentoUUID) {
		return fmt.Errorf("%w: %s", domain.ErrDocumentoEnProceso, documentoUUID)
	}
	defer s.candados.liberar(documentoUUID)

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	registro, err := s.certRepo.GetRegistro(ctx, documentoUUID)
	if err != nil {
		return err
	}
	if registro.EsTerminal() {
		return nil
	}
	dte, err := s.dteRepo.GetByUUID(ctx, emisorNIT, documentoUUID)
	if err != nil {
		return err
	}
	return s.avanzar(ctx, dte, registro)
}

// ConsultarEstado devuelve el documento con su registro de envío. La consulta
// está acotada al emisor autenticado: un emisor no ve documentos ajenos. Usa
// la lectura ligera: el polling de estado no necesita el XML firmado.
func (s *Service) ConsultarEstado(ctx context.Context, emisorNIT, documentoUUID string) (*entity.DTE, *entity.RegistroCertificacion, error) {
	dte, err := s.dteRepo.GetEstado(ctx, emisorNIT, documentoUUID)
	if err != nil {
		return nil, nil, err
	}
	registro, err := s.certRepo.GetRegistro(ctx, documentoUUID)
	if err != nil && !domain.EsNotFound(err) {
		return nil, nil, err
	}
	return dte, registro, nil
}

// ListarDocumentos lista los documentos del emisor, paginados.
func (s *Service) ListarDocumentos(ctx context.Context, emisorNIT string, limit, offset int) ([]*entity.DTE, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.dteRepo.ListByEmisor(ctx, emisorNIT, limit, offset)
}

// Anular solicita la anulación de un documento del emisor. Un documento
// certificado se anula ante la SAT; uno todavía pendiente de veredicto se
// marca anulado localmente y el veredicto tardío, si llega, se registra como
// anomalía en la conciliación.
func (s *Service) Anular(ctx context.Context, emisorNIT, documentoUUID, motivo string) (*entity.DTE, error) {
	if motivo == "" {
		return nil, fmt.Errorf("%w: la anulación requiere motivo", domain.ErrInvalidInput)
	}
	if !s.candados.adquirir(documentoUUID) {
		return nil, fmt.Errorf("%w: %s", domain.ErrDocumentoEnProceso, documentoUUID)
	}
	defer s.candados.liberar(documentoUUID)

	dte, err := s.dteRepo.GetByUUID(ctx, emisorNIT, documentoUUID)
	if err != nil {
		return nil, err
	}
	registro, err := s.certRepo.GetRegistro(ctx, documentoUUID)
	if err != nil {
		return nil, err
	}
	ahora := s.reloj()

	switch dte.Estado {
	case entity.EstadoCertificado:
		res, err := s.autoridad.AnularDTE(ctx, documentoUUID, motivo)
		if err != nil {
			return nil, err
		}
		if !res.Certificado {
			return nil, fmt.Errorf("%w: la SAT no aceptó la anulación: %v", domain.ErrAutoridadFatal, res.Mensajes)
		}
	case entity.EstadoEnviado:
		// Veredicto aún pendiente: anulación local. Si la SAT certifica
		// después, la conciliación lo reporta como anomalía.
	default:
		return nil, fmt.Errorf("%w: no se puede anular un documento en estado %s", domain.ErrConflict, dte.Estado)
	}

	if err := dte.Transicionar(entity.EstadoAnulado); err != nil {
		return nil, err
	}
	dte.MotivoRechazo = motivo
	if err := s.dteRepo.Update(ctx, dte); err != nil {
		return nil, err
	}
	registro.Estado = entity.EnvioAnulado
	registro.ProximoIntento = nil
	registro.UpdatedAt = ahora
	if err := s.certRepo.UpdateRegistro(ctx, registro); err != nil {
		return nil, err
	}
	s.log.Info().Str("documento", documentoUUID).Str("emisor", emisorNIT).Msg("documento anulado")
	return dte, nil
}
