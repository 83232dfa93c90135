package store

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	goerrors "github.com/go-faster/errors"

	apperrors "github.com/scoutline/discovery/internal/errors"
	"github.com/scoutline/discovery/pkg/types"
)

//go:embed dossier_schema.json
var dossierSchemaJSON []byte

var (
	dossierSchemaOnce sync.Once
	dossierSchema     *openapi3.Schema
	dossierSchemaErr  error
)

func loadDossierSchema() (*openapi3.Schema, error) {
	dossierSchemaOnce.Do(func() {
		schema := &openapi3.Schema{}
		if err := json.Unmarshal(dossierSchemaJSON, schema); err != nil {
			dossierSchemaErr = goerrors.Wrap(err, "store: parsing embedded dossier schema")
			return
		}
		dossierSchema = schema
	})
	return dossierSchema, dossierSchemaErr
}

// ValidateDossier checks d against the embedded Dossier OpenAPI schema
// before persisting it: cheap defense against a field drifting out of
// sync between pkg/types and whatever reads the persisted JSON downstream.
func ValidateDossier(ctx context.Context, d types.Dossier) error {
	schema, err := loadDossierSchema()
	if err != nil {
		return apperrors.NewStoreError("loading dossier schema", err)
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return apperrors.NewStoreError("marshalling dossier for validation", err)
	}
	var asMap map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&asMap); err != nil {
		return apperrors.NewStoreError("decoding dossier for validation", err)
	}

	if err := schema.VisitJSON(asMap); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("dossier failed schema validation: %v", err))
	}
	return nil
}
