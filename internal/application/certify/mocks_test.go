package certify

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/dcifuentes/fel-certificador/internal/domain"
	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
	"github.com/dcifuentes/fel-certificador/internal/infrastructure/keystore"
	"github.com/dcifuentes/fel-certificador/internal/infrastructure/sat"
)

// ── repositorios en memoria ───────────────────────────────────────────────────

type memDTERepo struct {
	mu   sync.Mutex
	docs map[string]*entity.DTE
}

func newMemDTERepo() *memDTERepo {
	return &memDTERepo{docs: make(map[string]*entity.DTE)}
}

func (r *memDTERepo) Create(_ context.Context, dte *entity.DTE) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[dte.UUID]; ok {
		return fmt.Errorf("%w: uuid %s", domain.ErrDuplicate, dte.UUID)
	}
	copia := *dte
	r.docs[dte.UUID] = &copia
	return nil
}

func (r *memDTERepo) Update(_ context.Context, dte *entity.DTE) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[dte.UUID]; !ok {
		return domain.ErrNotFound
	}
	copia := *dte
	r.docs[dte.UUID] = &copia
	return nil
}

func (r *memDTERepo) GetByUUID(_ context.Context, emisorNIT, uuid string) (*entity.DTE, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[uuid]
	if !ok || doc.EmisorNIT != emisorNIT {
		return nil, domain.ErrNotFound
	}
	copia := *doc
	return &copia, nil
}

func (r *memDTERepo) GetEstado(ctx context.Context, emisorNIT, uuid string) (*entity.DTE, error) {
	return r.GetByUUID(ctx, emisorNIT, uuid)
}

func (r *memDTERepo) ListByEmisor(_ context.Context, emisorNIT string, limit, _ int) ([]*entity.DTE, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.DTE
	for _, doc := range r.docs {
		if doc.EmisorNIT == emisorNIT && len(out) < limit {
			copia := *doc
			out = append(out, &copia)
		}
	}
	return out, nil
}

func (r *memDTERepo) ExisteCertificadoEnPeriodo(_ context.Context, emisorNIT, serie string, numero int64, desde, hasta time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.docs {
		if doc.EmisorNIT == emisorNIT && doc.Serie == serie && doc.Numero == numero &&
			doc.Estado == entity.EstadoCertificado &&
			!doc.FechaEmision.Before(desde) && doc.FechaEmision.Before(hasta) {
			return true, nil
		}
	}
	return false, nil
}

type memEmisorRepo struct {
	mu               sync.Mutex
	emisores         map[string]*entity.Emisor
	establecimientos map[string]*entity.Establecimiento // nit|codigo
}

func newMemEmisorRepo() *memEmisorRepo {
	return &memEmisorRepo{
		emisores:         make(map[string]*entity.Emisor),
		establecimientos: make(map[string]*entity.Establecimiento),
	}
}

func (r *memEmisorRepo) Create(_ context.Context, e *entity.Emisor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.emisores[e.NIT]; ok {
		return domain.ErrDuplicate
	}
	r.emisores[e.NIT] = e
	return nil
}

func (r *memEmisorRepo) GetByNIT(_ context.Context, nit string) (*entity.Emisor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.emisores[nit]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (r *memEmisorRepo) CreateEstablecimiento(_ context.Context, est *entity.Establecimiento) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clave := est.EmisorNIT + "|" + est.Codigo
	if _, ok := r.establecimientos[clave]; ok {
		return domain.ErrDuplicate
	}
	r.establecimientos[clave] = est
	return nil
}

func (r *memEmisorRepo) GetEstablecimiento(_ context.Context, emisorNIT, codigo string) (*entity.Establecimiento, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	est, ok := r.establecimientos[emisorNIT+"|"+codigo]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return est, nil
}

func (r *memEmisorRepo) agregar(e *entity.Emisor, est *entity.Establecimiento) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emisores[e.NIT] = e
	if est != nil {
		r.establecimientos[e.NIT+"|"+est.Codigo] = est
	}
}

type memCertRepo struct {
	mu          sync.Mutex
	solicitudes map[string]*entity.SolicitudCertificacion // emisor|clave
	registros   map[string]*entity.RegistroCertificacion  // documentoUUID
}

func newMemCertRepo() *memCertRepo {
	return &memCertRepo{
		solicitudes: make(map[string]*entity.SolicitudCertificacion),
		registros:   make(map[string]*entity.RegistroCertificacion),
	}
}

func (r *memCertRepo) CreateSolicitud(_ context.Context, s *entity.SolicitudCertificacion) (*entity.SolicitudCertificacion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ClaveIdempotencia != "" {
		clave := s.EmisorNIT + "|" + s.ClaveIdempotencia
		if previa, ok := r.solicitudes[clave]; ok {
			return previa, domain.ErrDuplicate
		}
		r.solicitudes[clave] = s
	}
	return s, nil
}

func (r *memCertRepo) GetSolicitudPorClave(_ context.Context, emisorNIT, clave string) (*entity.SolicitudCertificacion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.solicitudes[emisorNIT+"|"+clave]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (r *memCertRepo) CreateRegistro(_ context.Context, reg *entity.RegistroCertificacion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registros[reg.DocumentoUUID]; ok {
		return domain.ErrDuplicate
	}
	copia := *reg
	r.registros[reg.DocumentoUUID] = &copia
	return nil
}

func (r *memCertRepo) UpdateRegistro(_ context.Context, reg *entity.RegistroCertificacion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registros[reg.DocumentoUUID]; !ok {
		return domain.ErrNotFound
	}
	copia := *reg
	r.registros[reg.DocumentoUUID] = &copia
	return nil
}

func (r *memCertRepo) GetRegistro(_ context.Context, documentoUUID string) (*entity.RegistroCertificacion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registros[documentoUUID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copia := *reg
	return &copia, nil
}

func (r *memCertRepo) ListReanudables(_ context.Context, ahora time.Time, limit int) ([]*entity.RegistroCertificacion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.RegistroCertificacion
	for _, reg := range r.registros {
		if len(out) >= limit {
			break
		}
		switch {
		case reg.Estado == entity.EnvioPendiente,
			reg.Estado == entity.EnvioEnviando,
			reg.Estado == entity.EnvioEsperandoResultado:
			copia := *reg
			out = append(out, &copia)
		case reg.ListoParaReintento(ahora):
			copia := *reg
			out = append(out, &copia)
		}
	}
	return out, nil
}

// ── dobles de autoridad, firma y credenciales ─────────────────────────────────

type autoridadFake struct {
	mu         sync.Mutex
	envios     int
	consultas  int
	anulados   int
	enviarFn   func(uuid string, intento int) (*sat.ResultadoEnvio, error)
	consultaFn func(acuse string) (*sat.Veredicto, error)
	anularFn   func(uuid, motivo string) (*sat.ResultadoEnvio, error)
}

func (a *autoridadFake) EnviarDTE(_ context.Context, _ []byte, uuid string) (*sat.ResultadoEnvio, error) {
	a.mu.Lock()
	a.envios++
	intento := a.envios
	a.mu.Unlock()
	if a.enviarFn == nil {
		return &sat.ResultadoEnvio{Resuelto: true, Certificado: true, Acuse: "ACU-OK"}, nil
	}
	return a.enviarFn(uuid, intento)
}

func (a *autoridadFake) ConsultarDTE(_ context.Context, acuse string) (*sat.Veredicto, error) {
	a.mu.Lock()
	a.consultas++
	a.mu.Unlock()
	if a.consultaFn == nil {
		return &sat.Veredicto{Estado: sat.VeredictoEnProceso}, nil
	}
	return a.consultaFn(acuse)
}

func (a *autoridadFake) AnularDTE(_ context.Context, uuid, motivo string) (*sat.ResultadoEnvio, error) {
	a.mu.Lock()
	a.anulados++
	a.mu.Unlock()
	if a.anularFn == nil {
		return &sat.ResultadoEnvio{Resuelto: true, Certificado: true}, nil
	}
	return a.anularFn(uuid, motivo)
}

func (a *autoridadFake) totalEnvios() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.envios
}

type firmadorFake struct {
	err error
}

func (f *firmadorFake) Sign(xmlBytes []byte, _ tls.Certificate) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("<!--firmado-->"), xmlBytes...), nil
}

type credencialesFake struct {
	err error
}

func (c *credencialesFake) Obtener(emisorNIT string) (keystore.Credencial, error) {
	if c.err != nil {
		return keystore.Credencial{}, c.err
	}
	return keystore.Credencial{EmisorNIT: emisorNIT, Cert: tls.Certificate{}}, nil
}
