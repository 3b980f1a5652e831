package certify

import "sync"

// candadosDocumento garantiza exclusividad por documento: dos trabajos nunca
// procesan el mismo UUID a la vez, aunque haya varios workers activos.
type candadosDocumento struct {
	mu      sync.Mutex
	enCurso map[string]struct{}
}

func nuevosCandados() *candadosDocumento {
	return &candadosDocumento{enCurso: make(map[string]struct{})}
}

// adquirir toma el candado del documento. Retorna false si otro trabajo ya lo
// posee; el llamador no debe bloquearse esperando.
func (c *candadosDocumento) adquirir(documentoUUID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ocupado := c.enCurso[documentoUUID]; ocupado {
		return false
	}
	c.enCurso[documentoUUID] = struct{}{}
	return true
}

func (c *candadosDocumento) liberar(documentoUUID string) {
	c.mu.Lock()
	delete(c.enCurso, documentoUUID)
	c.mu.Unlock()
}
