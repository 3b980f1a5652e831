package certify

import "time"

// CalcularEspera devuelve la espera antes del intento siguiente: exponencial
// sobre la base, con tope. El valor se persiste en el registro junto con el
// contador de intentos, así que un reinicio del proceso no reinicia el
// backoff.
//
//	intento 1 → base, intento 2 → 2·base, intento 3 → 4·base ... hasta max
func CalcularEspera(intento int, base, max time.Duration) time.Duration {
	if intento < 1 {
		intento = 1
	}
	if base <= 0 {
		base = time.Second
	}
	espera := base
	for i := 1; i < intento; i++ {
		espera *= 2
		if max > 0 && espera >= max {
			return max
		}
	}
	if max > 0 && espera > max {
		return max
	}
	return espera
}
