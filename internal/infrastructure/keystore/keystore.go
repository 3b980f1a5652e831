// Package keystore administra las credenciales de firma de los emisores.
// Cada emisor tiene su propia credencial; el almacén garantiza que un emisor
// nunca firma con la credencial de otro.
package keystore

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dcifuentes/fel-certificador/internal/domain"
	"github.com/dcifuentes/fel-certificador/internal/infrastructure/sat/signer"
)

// Credencial es el material de firma de un emisor con su ventana de vigencia.
type Credencial struct {
	EmisorNIT string
	Cert      tls.Certificate
	NoAntes   time.Time
	NoDespues time.Time
}

// Vigente indica si la credencial es usable en el instante dado.
func (c Credencial) Vigente(ahora time.Time) bool {
	return !ahora.Before(c.NoAntes) && !ahora.After(c.NoDespues)
}

// Store es el almacén de credenciales en memoria. Las lecturas son
// concurrentes; el registro y la rotación toman el lock exclusivo, así que
// una rotación nunca deja visible una credencial a medio reemplazar.
type Store struct {
	mu        sync.RWMutex
	porEmisor map[string]Credencial
}

// NewStore crea un almacén vacío.
func NewStore() *Store {
	return &Store{porEmisor: make(map[string]Credencial)}
}

// Obtener devuelve la credencial del emisor. Retorna
// domain.ErrCredencialNoEncontrada si el emisor no tiene credencial y
// domain.ErrCredencialExpirada si la registrada ya no es vigente.
func (s *Store) Obtener(emisorNIT string) (Credencial, error) {
	s.mu.RLock()
	cred, ok := s.porEmisor[emisorNIT]
	s.mu.RUnlock()
	if !ok {
		return Credencial{}, fmt.Errorf("%w: emisor %s", domain.ErrCredencialNoEncontrada, emisorNIT)
	}
	if !cred.Vigente(time.Now()) {
		return Credencial{}, fmt.Errorf("%w: emisor %s, venció el %s", domain.ErrCredencialExpirada, emisorNIT, cred.NoDespues.Format("2006-01-02"))
	}
	return cred, nil
}

// Registrar instala o rota la credencial del emisor de forma atómica. La
// vigencia se toma del certificado hoja.
func (s *Store) Registrar(emisorNIT string, cert tls.Certificate) error {
	if len(cert.Certificate) == 0 || cert.PrivateKey == nil {
		return fmt.Errorf("%w: credencial incompleta para %s", domain.ErrInvalidInput, emisorNIT)
	}
	hoja := cert.Leaf
	if hoja == nil {
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return fmt.Errorf("%w: certificado ilegible para %s: %v", domain.ErrInvalidInput, emisorNIT, err)
		}
		hoja = parsed
		cert.Leaf = parsed
	}
	s.mu.Lock()
	s.porEmisor[emisorNIT] = Credencial{
		EmisorNIT: emisorNIT,
		Cert:      cert,
		NoAntes:   hoja.NotBefore,
		NoDespues: hoja.NotAfter,
	}
	s.mu.Unlock()
	return nil
}

// Eliminar retira la credencial del emisor (baja del servicio).
func (s *Store) Eliminar(emisorNIT string) {
	s.mu.Lock()
	delete(s.porEmisor, emisorNIT)
	s.mu.Unlock()
}

// CargarDirectorio registra las credenciales encontradas en dir. Se espera un
// archivo por emisor nombrado con su NIT: "<nit>.p12" (con el password dado)
// o el par "<nit>.pem" y "<nit>.key". Los archivos ilegibles se reportan pero
// no detienen la carga del resto.
func (s *Store) CargarDirectorio(dir, passwordP12 string) (cargadas int, errs []error) {
	entradas, err := os.ReadDir(dir)
	if err != nil {
		return 0, []error{fmt.Errorf("leer directorio de credenciales: %w", err)}
	}
	for _, entrada := range entradas {
		if entrada.IsDir() {
			continue
		}
		nombre := entrada.Name()
		ruta := filepath.Join(dir, nombre)
		var (
			nit  string
			cert tls.Certificate
			lerr error
		)
		switch {
		case strings.HasSuffix(nombre, ".p12") || strings.HasSuffix(nombre, ".pfx"):
			nit = strings.TrimSuffix(strings.TrimSuffix(nombre, ".p12"), ".pfx")
			cert, lerr = signer.LoadFromP12(ruta, passwordP12)
		case strings.HasSuffix(nombre, ".pem"):
			nit = strings.TrimSuffix(nombre, ".pem")
			cert, lerr = signer.LoadFromPEM(ruta, filepath.Join(dir, nit+".key"))
		default:
			continue
		}
		if lerr != nil {
			errs = append(errs, fmt.Errorf("credencial %s: %w", nombre, lerr))
			continue
		}
		if err := s.Registrar(nit, cert); err != nil {
			errs = append(errs, err)
			continue
		}
		cargadas++
	}
	return cargadas, errs
}
