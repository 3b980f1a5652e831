package certify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dcifuentes/fel-certificador/internal/domain"
	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
	"github.com/dcifuentes/fel-certificador/internal/infrastructure/sat"
)

// Desenlace es el resultado definitivo observado desde la SAT, normalizado
// desde un envío resuelto o desde una consulta de veredicto.
type Desenlace struct {
	Conocido    bool // false = la SAT reportó un estado fuera del catálogo
	Certificado bool
	Fecha       time.Time
	Acuse       string
	Codigos     []string
	Mensajes    []string
}

func desenlaceDeEnvio(res *sat.ResultadoEnvio) Desenlace {
	return Desenlace{
		Conocido:    true,
		Certificado: res.Certificado,
		Fecha:       res.FechaCertificacion,
		Acuse:       res.Acuse,
		Codigos:     res.Codigos,
		Mensajes:    res.Mensajes,
	}
}

func desenlaceDeVeredicto(v *sat.Veredicto, acuse string) Desenlace {
	return Desenlace{
		Conocido:    v.Estado == sat.VeredictoCertificado || v.Estado == sat.VeredictoRechazado,
		Certificado: v.Estado == sat.VeredictoCertificado,
		Fecha:       v.FechaCertificacion,
		Acuse:       acuse,
		Codigos:     v.Codigos,
		Mensajes:    v.Mensajes,
	}
}

// conciliar aplica el desenlace observado contra el estado registrado. Es
// idempotente: aplicar dos veces el mismo desenlace no cambia nada. Un
// desenlace que contradice un estado ya terminal (el caso típico es el
// veredicto tardío tras una anulación local) no sobreescribe el registro:
// se marca como anomalía para revisión.
func (s *Service) conciliar(ctx context.Context, dte *entity.DTE, registro *entity.RegistroCertificacion, d Desenlace) error {
	if registro.EsTerminal() {
		switch {
		case registro.Estado == entity.EnvioCertificado && d.Certificado:
			return nil
		case registro.Estado == entity.EnvioRechazado && !d.Certificado:
			return nil
		case registro.Estado == entity.EnvioAnulado:
			return s.marcarAnomalia(ctx, dte, registro,
				fmt.Sprintf("veredicto de la SAT (certificado=%t) recibido después de la anulación local", d.Certificado))
		default:
			return s.marcarAnomalia(ctx, dte, registro,
				fmt.Sprintf("desenlace certificado=%t contradice el estado registrado %s", d.Certificado, registro.Estado))
		}
	}
	if !d.Conocido {
		return s.marcarAnomalia(ctx, dte, registro, "la SAT reportó un estado fuera del catálogo de veredictos")
	}

	ahora := s.reloj()
	if d.Certificado {
		if err := dte.Transicionar(entity.EstadoCertificado); err != nil {
			return s.marcarAnomalia(ctx, dte, registro, err.Error())
		}
		dte.FechaCertificacion = d.Fecha
		if dte.FechaCertificacion.IsZero() {
			dte.FechaCertificacion = ahora
		}
		if d.Acuse != "" {
			dte.NumeroAcuseSAT = d.Acuse
		}
		if err := s.dteRepo.Update(ctx, dte); err != nil {
			return err
		}
		registro.Estado = entity.EnvioCertificado
		registro.AcuseSAT = dte.NumeroAcuseSAT
		registro.ProximoIntento = nil
		registro.UltimoError = ""
		registro.UpdatedAt = ahora
		if err := s.certRepo.UpdateRegistro(ctx, registro); err != nil {
			return err
		}
		s.log.Info().
			Str("documento", dte.UUID).
			Str("emisor", dte.EmisorNIT).
			Str("acuse", dte.NumeroAcuseSAT).
			Msg("documento certificado por la SAT")
		return nil
	}

	if err := dte.Transicionar(entity.EstadoRechazado); err != nil {
		return s.marcarAnomalia(ctx, dte, registro, err.Error())
	}
	dte.MotivoRechazo = motivoRechazo(d)
	if err := s.dteRepo.Update(ctx, dte); err != nil {
		return err
	}
	registro.Estado = entity.EnvioRechazado
	registro.CodigosSAT = d.Codigos
	registro.ProximoIntento = nil
	registro.UltimoError = dte.MotivoRechazo
	registro.UpdatedAt = ahora
	if err := s.certRepo.UpdateRegistro(ctx, registro); err != nil {
		return err
	}
	s.log.Warn().
		Str("documento", dte.UUID).
		Strs("codigos", d.Codigos).
		Msg("documento rechazado por la SAT")
	return nil
}

// marcarAnomalia congela el registro en ANOMALIA sin sobreescribir el estado
// del documento: la resolución es manual.
func (s *Service) marcarAnomalia(ctx context.Context, dte *entity.DTE, registro *entity.RegistroCertificacion, motivo string) error {
	registro.Estado = entity.EnvioAnomalia
	registro.UltimoError = motivo
	registro.ProximoIntento = nil
	registro.UpdatedAt = s.reloj()
	if err := s.certRepo.UpdateRegistro(ctx, registro); err != nil {
		return err
	}
	s.log.Error().
		Str("documento", dte.UUID).
		Str("estado_documento", dte.Estado).
		Msg("anomalía de conciliación: " + motivo)
	return fmt.Errorf("%w: %s", domain.ErrAnomaliaConciliacion, motivo)
}

func motivoRechazo(d Desenlace) string {
	partes := make([]string, 0, len(d.Codigos))
	for i, c := range d.Codigos {
		msg := ""
		if i < len(d.Mensajes) {
			msg = d.Mensajes[i]
		}
		partes = append(partes, fmt.Sprintf("[%s] %s", c, msg))
	}
	if len(partes) == 0 {
		return "rechazado por la SAT sin códigos de error"
	}
	return strings.Join(partes, "; ")
}
