// Package errors defines the resolution error taxonomy and its HTTP mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// Kind identifies a class of resolution failure.
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindRecordValidation  Kind = "record_validation"
	KindClusterNotFound   Kind = "cluster_not_found"
	KindRecordNotFound    Kind = "record_not_found"
	KindBatchNotFound     Kind = "batch_not_found"
	KindInvalidTransition Kind = "invalid_transition"
)

var (
	ErrConfiguration     = stderrors.New("invalid resolution configuration")
	ErrRecordValidation  = stderrors.New("invalid source record")
	ErrClusterNotFound   = stderrors.New("cluster not found")
	ErrRecordNotFound    = stderrors.New("record not found")
	ErrBatchNotFound     = stderrors.New("batch not found")
	ErrInvalidTransition = stderrors.New("invalid cluster transition")
)

var sentinels = map[Kind]error{
	KindConfiguration:     ErrConfiguration,
	KindRecordValidation:  ErrRecordValidation,
	KindClusterNotFound:   ErrClusterNotFound,
	KindRecordNotFound:    ErrRecordNotFound,
	KindBatchNotFound:     ErrBatchNotFound,
	KindInvalidTransition: ErrInvalidTransition,
}

var statusCodes = map[Kind]int{
	KindConfiguration:     http.StatusBadRequest,
	KindRecordValidation:  http.StatusUnprocessableEntity,
	KindClusterNotFound:   http.StatusNotFound,
	KindRecordNotFound:    http.StatusNotFound,
	KindBatchNotFound:     http.StatusNotFound,
	KindInvalidTransition: http.StatusConflict,
}

// ResolutionError carries the kind of failure and the id it concerns.
type ResolutionError struct {
	Kind    Kind
	ID      string
	Message string
}

func newError(kind Kind, id, format string, args ...any) *ResolutionError {
	return &ResolutionError{
		Kind:    kind,
		ID:      id,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewConfigurationError reports an out-of-range weight or threshold.
func NewConfigurationError(format string, args ...any) *ResolutionError {
	return newError(KindConfiguration, "", format, args...)
}

// NewRecordValidationError reports a record that cannot take part in a run.
func NewRecordValidationError(recordID, format string, args ...any) *ResolutionError {
	return newError(KindRecordValidation, recordID, format, args...)
}

func NewClusterNotFound(clusterID string) *ResolutionError {
	return newError(KindClusterNotFound, clusterID, "cluster %s not found", clusterID)
}

func NewRecordNotFound(recordID string) *ResolutionError {
	return newError(KindRecordNotFound, recordID, "record %s not found", recordID)
}

func NewBatchNotFound(batchID string) *ResolutionError {
	return newError(KindBatchNotFound, batchID, "batch %s not found", batchID)
}

// NewInvalidTransition reports a cluster state change that is not allowed.
func NewInvalidTransition(clusterID, from, to string) *ResolutionError {
	return newError(KindInvalidTransition, clusterID, "cluster %s cannot move from %s to %s", clusterID, from, to)
}

func (e *ResolutionError) Error() string {
	return e.Message
}

// Is lets errors.Is match a ResolutionError against its kind's sentinel.
func (e *ResolutionError) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func (e *ResolutionError) Unwrap() error {
	return sentinels[e.Kind]
}

// StatusCode returns the HTTP status used when the error reaches a client.
func (e *ResolutionError) StatusCode() int {
	if code, ok := statusCodes[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func (e *ResolutionError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(e.StatusCode(), e.Error()).AddMetaValue("kind", string(e.Kind)).AddMetaValue("id", e.ID)
}

// AsResolutionError unwraps err into a ResolutionError when it holds one.
func AsResolutionError(err error) (*ResolutionError, bool) {
	var re *ResolutionError
	if stderrors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ToHTTPError converts any error into an HTTP error, defaulting to 500.
func ToHTTPError(err error) error {
	if err == nil {
		return nil
	}
	if re, ok := AsResolutionError(err); ok {
		return re.ToHTTPError()
	}
	if httperror.IsHTTPError(err) {
		return err
	}
	return httperror.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrClusterNotFound) || stderrors.Is(err, ErrRecordNotFound) || stderrors.Is(err, ErrBatchNotFound)
}
