package fel

import (
	"fmt"
	"regexp"
)

var (
	nitPattern = regexp.MustCompile(`^\d{1,12}[0-9K]$`)
	cuiPattern = regexp.MustCompile(`^\d{13}$`)
)

// EsConsumidorFinal indica si el identificador del receptor es el genérico "CF".
func EsConsumidorFinal(id string) bool {
	return id == IDConsumidorFinal
}

// ValidarNIT valida el formato y el dígito verificador de un NIT guatemalteco
// según el algoritmo módulo 11 de la SAT. El último carácter es el dígito
// verificador, que puede ser 'K' cuando el residuo es 1.
func ValidarNIT(nit string) error {
	if !nitPattern.MatchString(nit) {
		return fmt.Errorf("fel: NIT %q no cumple el formato esperado (1 a 12 dígitos más verificador)", nit)
	}
	base := nit[:len(nit)-1]
	esperado := CalcularDigitoNIT(base)
	if nit[len(nit)-1] != esperado {
		return fmt.Errorf("fel: dígito verificador del NIT inválido: esperado %c, recibido %c", esperado, nit[len(nit)-1])
	}
	return nil
}

// CalcularDigitoNIT calcula el dígito verificador para la parte numérica del
// NIT. El multiplicador inicia en len(base)+1 y desciende de izquierda a
// derecha; residuo 0 produce '0', residuo 1 produce 'K', cualquier otro
// produce el carácter de 11 menos el residuo.
func CalcularDigitoNIT(base string) byte {
	var total int
	multiplicador := len(base) + 1
	for _, d := range base {
		total += int(d-'0') * multiplicador
		multiplicador--
	}
	switch residuo := total % 11; residuo {
	case 0:
		return '0'
	case 1:
		return 'K'
	default:
		return byte('0' + (11 - residuo))
	}
}

// ValidarCUI valida el formato y el dígito verificador de un CUI (DPI) de
// 13 dígitos emitido por RENAP. El noveno dígito es el verificador: se
// ponderan los primeros ocho dígitos con pesos 2 a 9 y se compara contra
// (total*10) mod 11, donde el resultado 10 se reduce a 0.
func ValidarCUI(cui string) error {
	if !cuiPattern.MatchString(cui) {
		return fmt.Errorf("fel: CUI %q no cumple el formato esperado (13 dígitos)", cui)
	}
	var total int
	for i := 0; i < 8; i++ {
		total += int(cui[i]-'0') * (i + 2)
	}
	calculado := (total * 10) % 11
	if calculado == 10 {
		calculado = 0
	}
	if int(cui[8]-'0') != calculado {
		return fmt.Errorf("fel: dígito verificador del CUI inválido: esperado %d, recibido %c", calculado, cui[8])
	}
	return nil
}
