package certify

import (
	"context"
	"errors"
	"time"

	"github.com/dcifuentes/fel-certificador/internal/domain"
)

// Reanudar procesa los registros no terminales: los que nunca arrancaron
// (PENDIENTE), los interrumpidos por un reinicio (ENVIANDO,
// ESPERANDO_RESULTADO) y los reintentos ya vencidos. Retorna cuántos
// terminaron sin error.
func (s *Service) Reanudar(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	registros, err := s.certRepo.ListReanudables(ctx, s.reloj(), limit)
	if err != nil {
		return 0, err
	}
	procesados := 0
	for _, registro := range registros {
		if err := s.Procesar(ctx, registro.EmisorNIT, registro.DocumentoUUID); err != nil {
			// otro worker ya lo tiene; la siguiente pasada lo levanta
			if errors.Is(err, domain.ErrDocumentoEnProceso) {
				continue
			}
			s.log.Warn().Err(err).
				Str("documento", registro.DocumentoUUID).
				Msg("reanudación del documento falló")
			continue
		}
		procesados++
	}
	return procesados, nil
}

// IniciarPoller ejecuta Reanudar cada PollInterval hasta que el contexto se
// cancele. Es el mecanismo que resuelve veredictos pendientes y dispara los
// reintentos programados.
func (s *Service) IniciarPoller(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Reanudar(ctx, 100); err != nil {
					s.log.Error().Err(err).Msg("pasada del poller de certificación falló")
				}
			}
		}
	}()
}
