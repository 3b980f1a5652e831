package certify

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcifuentes/fel-certificador/internal/domain/repository"
	"github.com/dcifuentes/fel-certificador/internal/infrastructure/keystore"
)

// TxRunner ejecuta fn con repositorios atados a una misma transacción. Se usa
// en la recepción de solicitudes: documento, solicitud y registro de envío se
// escriben atómicamente. Puede ser nil (tests), en cuyo caso las escrituras
// van directas.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		dteRepo repository.DTERepository,
		certRepo repository.CertificacionRepository,
	) error) error
}

// Firmador firma un GT_Documento con la credencial del emisor.
type Firmador interface {
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
}

// AlmacenCredenciales entrega la credencial de firma de un emisor.
// La implementación concreta es el keystore en memoria.
type AlmacenCredenciales interface {
	Obtener(emisorNIT string) (keystore.Credencial, error)
}

// TasaCambio provee el tipo de cambio a quetzales para documentos emitidos en
// moneda extranjera. Puede ser nil: en ese caso los documentos en USD o EUR
// sujetos al límite de consumidor final se rechazan por falta de tasa.
type TasaCambio interface {
	TasaGTQ(ctx context.Context, moneda string, fecha time.Time) (decimal.Decimal, error)
}
