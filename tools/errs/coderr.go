package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// CodeError is a domain error carrying a stable numeric code. It is also the
// JSON body returned by the REST path.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`

	cause error
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: e.Detail,
		cause:  e.cause,
	}
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	ret := e.clone()
	if ret.Detail == "" {
		ret.Detail = detail
	} else {
		ret.Detail += ", " + detail
	}
	return ret
}

// WrapMsg returns a copy of e with msg and kv appended to its detail.
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	ret := e.clone()
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if ret.Detail == "" {
			ret.Detail = detail
		} else {
			ret.Detail += ", " + detail
		}
	}
	return ret
}

// Wrap returns a copy of e that unwraps to cause.
func (e *CodeError) Wrap(cause error) error {
	ret := e.clone()
	ret.cause = cause
	if cause != nil && ret.Detail == "" {
		ret.Detail = cause.Error()
	}
	return ret
}

func (e *CodeError) Unwrap() error { return e.cause }

// Is matches any CodeError with the same code, so errors.Is(err, ErrNotFound)
// holds for values produced by WrapMsg, WithDetail and Wrap.
func (e *CodeError) Is(target error) bool {
	ce, ok := target.(*CodeError)
	if !ok {
		return false
	}
	return ce.Code == e.Code
}

const initialCapacity = 3

func (e *CodeError) Error() string {
	v := make([]string, 0, initialCapacity)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// HTTPStatus maps the code onto a response status.
func (e *CodeError) HTTPStatus() int {
	switch e.Code {
	case InvalidArgumentError:
		return http.StatusBadRequest
	case UnauthenticatedError:
		return http.StatusUnauthorized
	case NotParticipantError:
		return http.StatusForbidden
	case NotFoundError:
		return http.StatusNotFound
	case SelfRoomError:
		return http.StatusUnprocessableEntity
	case StoreUnavailableError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// From extracts the CodeError in err's chain, falling back to ErrInternal.
func From(err error) *CodeError {
	if err == nil {
		return nil
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return ErrInternal.WithDetail(err.Error())
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}
