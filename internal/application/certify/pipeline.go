package certify

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcifuentes/fel-certificador/internal/domain"
	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
	"github.com/dcifuentes/fel-certificador/internal/domain/fel"
	"github.com/dcifuentes/fel-certificador/internal/infrastructure/sat"
	pkgfel "github.com/dcifuentes/fel-certificador/pkg/fel"
)

// avanzar empuja el documento por las etapas que le falten. Cada etapa
// persiste su resultado antes de pasar a la siguiente: un corte en cualquier
// punto deja el avance registrado.
func (s *Service) avanzar(ctx context.Context, dte *entity.DTE, registro *entity.RegistroCertificacion) error {
	if dte.Estado == entity.EstadoBorrador {
		if err := s.validar(ctx, dte, registro); err != nil {
			return err
		}
	}
	if dte.Estado == entity.EstadoValidado {
		if err := s.firmar(ctx, dte, registro); err != nil {
			return err
		}
	}
	if dte.Estado == entity.EstadoFirmado || dte.Estado == entity.EstadoEnviado {
		return s.entregar(ctx, dte, registro)
	}
	return nil
}

// ── Etapa 1: validación de reglas FEL ─────────────────────────────────────────

func (s *Service) validar(ctx context.Context, dte *entity.DTE, registro *entity.RegistroCertificacion) error {
	// Emisor o establecimiento inexistentes no son errores de infraestructura:
	// el validador los convierte en reglas incumplidas.
	emisor, err := s.emisorRepo.GetByNIT(ctx, dte.EmisorNIT)
	if err != nil && !domain.EsNotFound(err) {
		return err
	}
	var establecimiento *entity.Establecimiento
	if emisor != nil {
		establecimiento, err = s.emisorRepo.GetEstablecimiento(ctx, dte.EmisorNIT, dte.CodigoEstablecimiento)
		if err != nil && !domain.EsNotFound(err) {
			return err
		}
	}

	tipoCambio := decimal.Zero
	if dte.Moneda != pkgfel.MonedaGTQ && s.tasas != nil {
		if tasa, terr := s.tasas.TasaGTQ(ctx, dte.Moneda, dte.FechaEmision); terr == nil {
			tipoCambio = tasa
		}
	}

	verr := s.validador.Validar(&fel.Contexto{
		DTE:                dte,
		Emisor:             emisor,
		Establecimiento:    establecimiento,
		FechaCertificacion: s.reloj(),
		TipoCambioGTQ:      tipoCambio,
	})
	if verr == nil {
		// Serie y número no se repiten dentro del año fiscal del emisor.
		desde := time.Date(dte.FechaEmision.Year(), time.January, 1, 0, 0, 0, 0, dte.FechaEmision.Location())
		hasta := desde.AddDate(1, 0, 0)
		existe, derr := s.dteRepo.ExisteCertificadoEnPeriodo(ctx, dte.EmisorNIT, dte.Serie, dte.Numero, desde, hasta)
		if derr != nil {
			return derr
		}
		if existe {
			verr = &domain.ErrorValidacion{Reglas: []domain.ReglaIncumplida{{
				Codigo:  "2.1.3.4",
				Mensaje: fmt.Sprintf("ya existe un DTE certificado con serie %s y número %d en el periodo", dte.Serie, dte.Numero),
			}}}
		}
	}
	if verr != nil {
		if !domain.EsValidacion(verr) {
			return verr
		}
		if terr := dte.Transicionar(entity.EstadoValidacionFallida); terr != nil {
			return terr
		}
		dte.MotivoRechazo = verr.Error()
		if err := s.dteRepo.Update(ctx, dte); err != nil {
			return err
		}
		if err := s.marcarRegistro(ctx, registro, entity.EnvioErrorFatal, verr.Error()); err != nil {
			return err
		}
		return verr
	}

	if err := dte.Transicionar(entity.EstadoValidado); err != nil {
		return err
	}
	return s.dteRepo.Update(ctx, dte)
}

// ── Etapa 2: construcción del GT_Documento y firma XAdES ──────────────────────

func (s *Service) firmar(ctx context.Context, dte *entity.DTE, registro *entity.RegistroCertificacion) error {
	credencial, err := s.credenciales.Obtener(dte.EmisorNIT)
	if err != nil {
		return s.marcarFallaFatal(ctx, dte, registro, err)
	}
	emisor, err := s.emisorRepo.GetByNIT(ctx, dte.EmisorNIT)
	if err != nil {
		return err
	}
	xmlBytes, err := s.xmlBuilder.Build(&sat.DocumentoBuildContext{
		DTE:                dte,
		Emisor:             emisor,
		CorreoEmisor:       emisor.Correo,
		NITCertificador:    s.cfg.NITCertificador,
		NombreCertificador: s.cfg.NombreCertificador,
		FechaCertificacion: s.reloj(),
	})
	if err != nil {
		return s.marcarFallaFatal(ctx, dte, registro, err)
	}
	firmado, err := s.firmador.Sign(xmlBytes, credencial.Cert)
	if err != nil {
		return s.marcarFallaFatal(ctx, dte, registro, err)
	}
	dte.XMLFirmado = string(firmado)
	if err := dte.Transicionar(entity.EstadoFirmado); err != nil {
		return err
	}
	return s.dteRepo.Update(ctx, dte)
}

// ── Etapa 3: entrega a la SAT ─────────────────────────────────────────────────

// entregar decide el paso de red según el estado persistido del registro.
func (s *Service) entregar(ctx context.Context, dte *entity.DTE, registro *entity.RegistroCertificacion) error {
	switch registro.Estado {
	case entity.EnvioEsperandoResultado:
		return s.consultarVeredicto(ctx, dte, registro)
	case entity.EnvioEnviando:
		// Reanudado tras un corte con la petición en vuelo. Con acuse se
		// consulta; sin acuse se reenvía: la SAT deduplica por UUID, así que
		// el reenvío nunca certifica dos veces.
		if registro.AcuseSAT != "" {
			return s.consultarVeredicto(ctx, dte, registro)
		}
		return s.enviar(ctx, dte, registro)
	case entity.EnvioErrorTransitorio:
		if !registro.ListoParaReintento(s.reloj()) {
			return nil
		}
		return s.enviar(ctx, dte, registro)
	default:
		return s.enviar(ctx, dte, registro)
	}
}

func (s *Service) enviar(ctx context.Context, dte *entity.DTE, registro *entity.RegistroCertificacion) error {
	registro.Estado = entity.EnvioEnviando
	registro.Intentos++
	registro.ProximoIntento = nil
	registro.UpdatedAt = s.reloj()
	// Se persiste ENVIANDO antes de la llamada: si el proceso muere con la
	// petición en vuelo, la reanudación sabe que pudo haber llegado a la SAT.
	if err := s.certRepo.UpdateRegistro(ctx, registro); err != nil {
		return err
	}
	if dte.Estado == entity.EstadoFirmado {
		if err := dte.Transicionar(entity.EstadoEnviado); err != nil {
			return err
		}
		if err := s.dteRepo.Update(ctx, dte); err != nil {
			return err
		}
	}

	res, err := s.autoridad.EnviarDTE(ctx, []byte(dte.XMLFirmado), dte.UUID)
	if err != nil {
		return s.manejarFalloEnvio(ctx, dte, registro, err)
	}
	if !res.Resuelto {
		registro.Estado = entity.EnvioEsperandoResultado
		registro.AcuseSAT = res.Acuse
		registro.UpdatedAt = s.reloj()
		if err := s.certRepo.UpdateRegistro(ctx, registro); err != nil {
			return err
		}
		dte.NumeroAcuseSAT = res.Acuse
		return s.dteRepo.Update(ctx, dte)
	}
	return s.conciliar(ctx, dte, registro, desenlaceDeEnvio(res))
}

// manejarFalloEnvio programa el reintento si el fallo es transitorio y quedan
// intentos; en cualquier otro caso cierra el documento como fallo fatal.
func (s *Service) manejarFalloEnvio(ctx context.Context, dte *entity.DTE, registro *entity.RegistroCertificacion, causa error) error {
	if domain.EsTransitorio(causa) && registro.Intentos < s.cfg.MaxIntentos {
		proximo := s.reloj().Add(CalcularEspera(registro.Intentos, s.cfg.RetryBase, s.cfg.RetryMax))
		registro.Estado = entity.EnvioErrorTransitorio
		registro.ProximoIntento = &proximo
		registro.UltimoError = causa.Error()
		registro.UpdatedAt = s.reloj()
		if err := s.certRepo.UpdateRegistro(ctx, registro); err != nil {
			return err
		}
		s.log.Warn().
			Str("documento", dte.UUID).
			Int("intento", registro.Intentos).
			Time("proximo_intento", proximo).
			Msg("envío a la SAT falló, reintento programado")
		return nil
	}
	if domain.EsTransitorio(causa) {
		causa = fmt.Errorf("reintentos agotados (%d): %w", registro.Intentos, causa)
	}
	return s.marcarFallaFatal(ctx, dte, registro, causa)
}

// consultarVeredicto pregunta a la SAT por un envío acusado. Un fallo
// transitorio de la consulta no consume intentos: el poller vuelve a pasar.
func (s *Service) consultarVeredicto(ctx context.Context, dte *entity.DTE, registro *entity.RegistroCertificacion) error {
	veredicto, err := s.autoridad.ConsultarDTE(ctx, registro.AcuseSAT)
	if err != nil {
		if domain.EsTransitorio(err) {
			registro.UltimoError = err.Error()
			registro.UpdatedAt = s.reloj()
			return s.certRepo.UpdateRegistro(ctx, registro)
		}
		return s.marcarFallaFatal(ctx, dte, registro, err)
	}
	if veredicto.Estado == sat.VeredictoEnProceso {
		return nil
	}
	return s.conciliar(ctx, dte, registro, desenlaceDeVeredicto(veredicto, registro.AcuseSAT))
}

// ── helpers de persistencia de fallos ─────────────────────────────────────────

func (s *Service) marcarRegistro(ctx context.Context, registro *entity.RegistroCertificacion, estado, ultimoError string) error {
	registro.Estado = estado
	registro.UltimoError = ultimoError
	registro.ProximoIntento = nil
	registro.UpdatedAt = s.reloj()
	return s.certRepo.UpdateRegistro(ctx, registro)
}

// marcarFallaFatal cierra el documento como irrecuperable y devuelve la causa.
func (s *Service) marcarFallaFatal(ctx context.Context, dte *entity.DTE, registro *entity.RegistroCertificacion, causa error) error {
	if terr := dte.Transicionar(entity.EstadoError); terr == nil {
		dte.MotivoRechazo = causa.Error()
		if err := s.dteRepo.Update(ctx, dte); err != nil {
			return err
		}
	}
	if err := s.marcarRegistro(ctx, registro, entity.EnvioErrorFatal, causa.Error()); err != nil {
		return err
	}
	s.log.Error().Err(causa).Str("documento", dte.UUID).Msg("certificación cerrada como fallo fatal")
	return causa
}
