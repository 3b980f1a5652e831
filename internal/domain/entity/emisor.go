package entity

import "time"

// Emisor es un contribuyente registrado ante el certificador. Cada emisor
// está aislado: sus documentos y su credencial de firma no son visibles para
// otros emisores.
type Emisor struct {
	NIT             string
	Nombre          string
	NombreComercial string
	AfiliacionIVA   string // "GEN" (general) | "PEQ" (pequeño contribuyente)
	Correo          string
	ClaveAPIHash    string // hash bcrypt de la clave de API del emisor
	Direccion       string
	CodigoPostal    string
	Municipio       string
	Departamento    string
	Pais            string
	Activo          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Establecimiento es una sucursal del emisor habilitada para emitir DTE.
type Establecimiento struct {
	EmisorNIT    string
	Codigo       string
	Nombre       string
	Activo       bool
	VigenteDesde time.Time
	VigenteHasta time.Time // cero = sin fecha de baja
}

// VigenteEn indica si el establecimiento estaba activo en la fecha dada.
func (e Establecimiento) VigenteEn(fecha time.Time) bool {
	if !e.Activo {
		return false
	}
	if fecha.Before(e.VigenteDesde) {
		return false
	}
	if !e.VigenteHasta.IsZero() && fecha.After(e.VigenteHasta) {
		return false
	}
	return true
}
