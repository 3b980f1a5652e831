package fel

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// uuidPattern acepta UUID v4 con guiones, en mayúsculas o minúsculas.
var uuidPattern = regexp.MustCompile(`^(?i)[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// numeroModulo acota el número de DTE al rango de un entero de 32 bits con signo.
const numeroModulo = 999999999

// ValidarUUIDAutorizacion valida que el UUID tenga el formato v4 que la SAT
// exige para el número de autorización.
func ValidarUUIDAutorizacion(uuid string) error {
	if !uuidPattern.MatchString(uuid) {
		return fmt.Errorf("fel: UUID de autorización %q no tiene formato v4 válido", uuid)
	}
	return nil
}

// SerieDesdeUUID deriva la serie del DTE: los primeros 8 caracteres
// hexadecimales del UUID sin guiones, en mayúsculas.
func SerieDesdeUUID(uuid string) (string, error) {
	if err := ValidarUUIDAutorizacion(uuid); err != nil {
		return "", err
	}
	limpio := strings.ReplaceAll(uuid, "-", "")
	return strings.ToUpper(limpio[:8]), nil
}

// NumeroDesdeUUID deriva el número del DTE: los caracteres hexadecimales 9 a 16
// del UUID sin guiones, interpretados en base 16 y reducidos módulo 999999999.
func NumeroDesdeUUID(uuid string) (int64, error) {
	if err := ValidarUUIDAutorizacion(uuid); err != nil {
		return 0, err
	}
	limpio := strings.ReplaceAll(uuid, "-", "")
	n, err := strconv.ParseInt(limpio[8:16], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("fel: porción hexadecimal del UUID ilegible: %w", err)
	}
	return n % numeroModulo, nil
}
