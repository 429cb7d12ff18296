// Package document reads, validates and writes the JSON documents that
// describe datasets outside of the store: files given to the command line
// and bodies of broker messages.
package document

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"sort"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/dataset.json
var datasetSchema []byte

// Validator checks dataset documents against the dataset JSON schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(datasetSchema))
	if err != nil {
		return nil, errors.Wrap(err, "dataset schema could not be compiled")
	}
	return &Validator{schema: schema}, nil
}

// Validate returns a *catalog.ValidationError keyed by document path when
// doc does not conform to the schema. Malformed JSON is reported as an
// ordinary error.
func (v *Validator) Validate(doc []byte) error {
	res, err := v.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return errors.Wrap(err, "document could not be read")
	}
	if res.Valid() {
		return nil
	}
	issues := res.Errors()
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Field() < issues[j].Field()
	})
	verr := &catalog.ValidationError{}
	for _, issue := range issues {
		verr.Add(issue.Field(), issue.Description())
	}
	return verr
}

// Decode validates doc and decodes it into a dataset.
func (v *Validator) Decode(doc []byte) (*catalog.Dataset, error) {
	if err := v.Validate(doc); err != nil {
		return nil, err
	}
	d := &catalog.Dataset{}
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(d); err != nil {
		return nil, errors.Wrap(err, "document could not be decoded")
	}
	return d, nil
}

// ReadFile reads and decodes the dataset document at path.
func (v *Validator) ReadFile(fs afero.Fs, path string) (*catalog.Dataset, error) {
	doc, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}
	return v.Decode(doc)
}

// Encode renders a dataset as an indented document.
func Encode(d *catalog.Dataset) ([]byte, error) {
	doc, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "dataset could not be encoded")
	}
	return doc, nil
}
