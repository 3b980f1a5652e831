package sat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dcifuentes/fel-certificador/internal/domain"
)

// Endpoints de la API REST de la SAT.
const (
	endpointToken     = "/getToken"
	endpointFactura   = "/postFactura"
	endpointConsulta  = "/consultaDTE"
	endpointAnulacion = "/postAnulacionDTE"
)

// Estados de veredicto reportados por la SAT.
const (
	VeredictoCertificado = "CERTIFICADO"
	VeredictoRechazado   = "RECHAZADO"
	VeredictoEnProceso   = "EN_PROCESO"
)

// ── Puerto (interfaz) ──────────────────────────────────────────────────────────

// ResultadoEnvio es el desenlace de entregar un DTE firmado a la SAT.
// Si Resuelto es false, la SAT solo acusó recibo: el veredicto se obtiene
// después consultando con el acuse.
type ResultadoEnvio struct {
	Resuelto           bool
	Certificado        bool
	Duplicado          bool // el UUID ya fue certificado antes; el resultado previo sigue vigente
	Acuse              string
	FechaCertificacion time.Time
	Codigos            []string
	Mensajes           []string
}

// Veredicto es el resultado de consultar un DTE pendiente por su acuse.
type Veredicto struct {
	Estado             string // CERTIFICADO | RECHAZADO | EN_PROCESO (u otro valor desconocido)
	FechaCertificacion time.Time
	Codigos            []string
	Mensajes           []string
}

// AutoridadSAT define el puerto de salida hacia la SAT. La implementación
// concreta usa la API REST; para tests se inyecta un doble.
type AutoridadSAT interface {
	// EnviarDTE entrega el GT_Documento firmado. Los errores de red y los
	// HTTP 5xx envuelven domain.ErrAutoridadTransitorio; los 4xx envuelven
	// domain.ErrAutoridadFatal.
	EnviarDTE(ctx context.Context, xmlFirmado []byte, documentoUUID string) (*ResultadoEnvio, error)
	// ConsultarDTE consulta el veredicto de un envío acusado.
	ConsultarDTE(ctx context.Context, acuse string) (*Veredicto, error)
	// AnularDTE solicita la anulación de un DTE certificado.
	AnularDTE(ctx context.Context, documentoUUID, motivo string) (*ResultadoEnvio, error)
}

// ── Implementación REST ────────────────────────────────────────────────────────

// ClienteSAT implementa AutoridadSAT contra la API REST. Cachea el token de
// acceso y lo renueva cuando expira o cuando la SAT responde 401.
type ClienteSAT struct {
	baseURL    string
	usuario    string
	clave      string
	tokenTTL   time.Duration
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpira time.Time
}

// NewClienteSAT construye el cliente con el timeout configurado.
func NewClienteSAT(baseURL, usuario, clave string, timeout, tokenTTL time.Duration) *ClienteSAT {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClienteSAT{
		baseURL:    baseURL,
		usuario:    usuario,
		clave:      clave,
		tokenTTL:   tokenTTL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ── Estructuras de la API ─────────────────────────────────────────────────────

type tokenRequest struct {
	Usuario string `json:"usuario"`
	Clave   string `json:"clave"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type facturaRequest struct {
	UUID   string `json:"uuid"`
	XMLDTE string `json:"xml_dte"` // GT_Documento firmado en Base64
}

type detalleError struct {
	Codigo  string `json:"codigo"`
	Mensaje string `json:"mensaje"`
}

type facturaResponse struct {
	Resultado          bool           `json:"resultado"`
	Duplicado          bool           `json:"duplicado"`
	Acuse              string         `json:"acuse"`
	FechaCertificacion string         `json:"fecha_certificacion"`
	Errores            []detalleError `json:"descripcion_errores"`
}

type consultaResponse struct {
	Estado             string         `json:"estado"`
	FechaCertificacion string         `json:"fecha_certificacion"`
	Errores            []detalleError `json:"descripcion_errores"`
}

type anulacionRequest struct {
	UUID   string `json:"uuid"`
	Motivo string `json:"motivo"`
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// EnviarDTE entrega el documento firmado a la SAT.
func (c *ClienteSAT) EnviarDTE(ctx context.Context, xmlFirmado []byte, documentoUUID string) (*ResultadoEnvio, error) {
	body := facturaRequest{
		UUID:   documentoUUID,
		XMLDTE: base64.StdEncoding.EncodeToString(xmlFirmado),
	}
	raw, err := c.doAuthenticated(ctx, http.MethodPost, endpointFactura, body)
	if err != nil {
		return nil, err
	}
	var resp facturaResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: respuesta de postFactura ilegible: %v", domain.ErrAutoridadTransitorio, err)
	}
	out := &ResultadoEnvio{
		Acuse:     resp.Acuse,
		Duplicado: resp.Duplicado,
	}
	for _, e := range resp.Errores {
		out.Codigos = append(out.Codigos, e.Codigo)
		out.Mensajes = append(out.Mensajes, e.Mensaje)
	}
	switch {
	case resp.Duplicado:
		// ya certificado: el primer desenlace sigue siendo el vigente
		out.Resuelto = true
		out.Certificado = true
		out.FechaCertificacion = parseFechaSAT(resp.FechaCertificacion)
	case resp.Resultado:
		out.Resuelto = true
		out.Certificado = true
		out.FechaCertificacion = parseFechaSAT(resp.FechaCertificacion)
	case len(resp.Errores) > 0:
		out.Resuelto = true
		out.Certificado = false
	default:
		// solo acuse: el veredicto llega después vía consultaDTE
		out.Resuelto = false
	}
	return out, nil
}

// ConsultarDTE consulta el veredicto de un DTE por su acuse.
func (c *ClienteSAT) ConsultarDTE(ctx context.Context, acuse string) (*Veredicto, error) {
	raw, err := c.doAuthenticated(ctx, http.MethodGet, endpointConsulta+"/"+acuse, nil)
	if err != nil {
		return nil, err
	}
	var resp consultaResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: respuesta de consultaDTE ilegible: %v", domain.ErrAutoridadTransitorio, err)
	}
	v := &Veredicto{
		Estado:             resp.Estado,
		FechaCertificacion: parseFechaSAT(resp.FechaCertificacion),
	}
	for _, e := range resp.Errores {
		v.Codigos = append(v.Codigos, e.Codigo)
		v.Mensajes = append(v.Mensajes, e.Mensaje)
	}
	return v, nil
}

// AnularDTE solicita la anulación de un DTE certificado.
func (c *ClienteSAT) AnularDTE(ctx context.Context, documentoUUID, motivo string) (*ResultadoEnvio, error) {
	raw, err := c.doAuthenticated(ctx, http.MethodPost, endpointAnulacion, anulacionRequest{
		UUID:   documentoUUID,
		Motivo: motivo,
	})
	if err != nil {
		return nil, err
	}
	var resp facturaResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: respuesta de postAnulacionDTE ilegible: %v", domain.ErrAutoridadTransitorio, err)
	}
	out := &ResultadoEnvio{
		Resuelto:    true,
		Certificado: resp.Resultado,
		Acuse:       resp.Acuse,
	}
	for _, e := range resp.Errores {
		out.Codigos = append(out.Codigos, e.Codigo)
		out.Mensajes = append(out.Mensajes, e.Mensaje)
	}
	return out, nil
}

// ── Autenticación y transporte ────────────────────────────────────────────────

// obtenerToken devuelve el token cacheado o pide uno nuevo a /getToken.
func (c *ClienteSAT) obtenerToken(ctx context.Context, forzar bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !forzar && c.token != "" && time.Now().Before(c.tokenExpira) {
		return c.token, nil
	}
	payload, _ := json.Marshal(tokenRequest{Usuario: c.usuario, Clave: c.clave})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpointToken, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: crear request de token: %v", domain.ErrAutoridadTransitorio, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: getToken: %v", domain.ErrAutoridadTransitorio, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: leer respuesta de token: %v", domain.ErrAutoridadTransitorio, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: credenciales del certificador rechazadas (%d)", domain.ErrAutoridadFatal, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: getToken devolvió %d", domain.ErrAutoridadTransitorio, resp.StatusCode)
	}
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil || tr.Token == "" {
		return "", fmt.Errorf("%w: token ilegible", domain.ErrAutoridadTransitorio)
	}
	c.token = tr.Token
	c.tokenExpira = time.Now().Add(c.tokenTTL)
	return c.token, nil
}

// doAuthenticated ejecuta la petición con token, renovándolo una vez si la
// SAT responde 401.
func (c *ClienteSAT) doAuthenticated(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	raw, status, err := c.doOnce(ctx, method, path, body, false)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		// token vencido en la SAT antes que en el cache local: renovar y reintentar
		raw, status, err = c.doOnce(ctx, method, path, body, true)
		if err != nil {
			return nil, err
		}
	}
	switch {
	case status >= 200 && status < 300:
		return raw, nil
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return nil, fmt.Errorf("%w: la SAT respondió %d en %s", domain.ErrAutoridadTransitorio, status, path)
	default:
		return nil, fmt.Errorf("%w: la SAT respondió %d en %s: %s", domain.ErrAutoridadFatal, status, path, string(raw))
	}
}

func (c *ClienteSAT) doOnce(ctx context.Context, method, path string, body interface{}, forzarToken bool) ([]byte, int, error) {
	token, err := c.obtenerToken(ctx, forzarToken)
	if err != nil {
		return nil, 0, err
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("serializar petición: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: crear request: %v", domain.ErrAutoridadTransitorio, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("%w: timeout o cancelación: %v", domain.ErrAutoridadTransitorio, ctx.Err())
		}
		return nil, 0, fmt.Errorf("%w: llamada HTTP fallida: %v", domain.ErrAutoridadTransitorio, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return nil, 0, fmt.Errorf("%w: leer respuesta: %v", domain.ErrAutoridadTransitorio, err)
	}
	return raw, resp.StatusCode, nil
}

func parseFechaSAT(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

var _ AutoridadSAT = (*ClienteSAT)(nil)
