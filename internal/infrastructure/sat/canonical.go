package sat

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/ucarion/c14n"
)

// DocumentoElementID es el Id del elemento raíz al que apunta la Reference de
// la firma XAdES (debe coincidir con el Id del <GTDocumento>).
const DocumentoElementID = "gt-documento"

// Canonicalizar aplica Canonical XML 1.0 (REC-xml-c14n-20010315) sobre el
// documento. La SAT verifica la firma sobre la forma canónica: dos
// serializaciones distintas del mismo documento deben producir exactamente
// los mismos bytes.
func Canonicalizar(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	out, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, fmt.Errorf("sat: canonicalizar XML: %w", err)
	}
	return out, nil
}
