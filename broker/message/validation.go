package message

import (
	"context"
	"fmt"
	"sort"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"
	"github.com/JiscSD/rdss-metadata-catalog/document"

	"github.com/pkg/errors"
)

// Validator performs validation of incoming messages.
//
// Implementors return the stream to be decoded, which may differ from the
// one given. ValidationError may be returned to share validation issues
// precisely.
type Validator interface {
	Validate(ctx context.Context, stream []byte) ([]byte, error)
}

type ValidationError struct {
	Errors []ValidationErrorDetail
}

type ValidationErrorDetail struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

func (err ValidationError) Error() string {
	return fmt.Sprintf("validation issues: %+v", err.Errors)
}

func invalid(path, msg string) error {
	return ValidationError{Errors: []ValidationErrorDetail{{Path: path, Message: msg}}}
}

// NoOpValidatorImpl is a no-op validator.
type NoOpValidatorImpl struct{}

var _ Validator = (*NoOpValidatorImpl)(nil)

func NewNoOpValidator() *NoOpValidatorImpl {
	return &NoOpValidatorImpl{}
}

func (v *NoOpValidatorImpl) Validate(ctx context.Context, stream []byte) ([]byte, error) {
	return stream, nil
}

// schemaValidatorImpl checks the envelope headers and validates the
// dataset documents carried by create and update commands against the
// dataset schema.
type schemaValidatorImpl struct {
	documents *document.Validator
}

var _ Validator = (*schemaValidatorImpl)(nil)

func NewSchemaValidator(documents *document.Validator) Validator {
	return &schemaValidatorImpl{documents: documents}
}

// Validate implements the Validator interface.
func (v *schemaValidatorImpl) Validate(ctx context.Context, stream []byte) ([]byte, error) {
	envelope, err := Open(stream)
	if err != nil {
		return nil, invalid("messageHeader", err.Error())
	}

	if have := envelope.Attributes.Version; have != Version {
		return nil, invalid("messageHeader.version",
			fmt.Sprintf("version %s is not supported, only %s", have, Version))
	}

	if !envelope.Type().Known() {
		return nil, invalid("messageHeader.messageType",
			fmt.Sprintf("unexpected type %q", envelope.Attributes.MessageType))
	}

	doc, err := envelope.DatasetDocument()
	if err != nil {
		return nil, invalid("messageBody.dataset", err.Error())
	}
	if doc == nil {
		return stream, nil
	}

	err = v.documents.Validate(doc)
	var verr *catalog.ValidationError
	if errors.As(err, &verr) {
		return nil, fromCatalog(verr)
	}
	if err != nil {
		return nil, invalid("messageBody.dataset", err.Error())
	}

	return stream, nil
}

func fromCatalog(verr *catalog.ValidationError) ValidationError {
	fields := make([]string, 0, len(verr.Fields))
	for field := range verr.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	res := ValidationError{}
	for _, field := range fields {
		for _, msg := range verr.Fields[field] {
			res.Errors = append(res.Errors, ValidationErrorDetail{
				Path:    "messageBody.dataset." + field,
				Message: msg,
			})
		}
	}
	return res
}
