package errors

import "net/http"

// Problem type URIs
const (
	TypeInvalidArgument  = "https://tickbook.dev/problems/invalid-argument"
	TypeIncompatibleUnit = "https://tickbook.dev/problems/incompatible-unit"
	TypeUnderflow        = "https://tickbook.dev/problems/underflow"
	TypeOverflow         = "https://tickbook.dev/problems/overflow"
	TypeDuplicateOrder   = "https://tickbook.dev/problems/duplicate-order"
	TypeNotFound         = "https://tickbook.dev/problems/not-found"
	TypeInvalidTick      = "https://tickbook.dev/problems/invalid-tick"
	TypeInternalError    = "https://tickbook.dev/problems/internal-error"
)

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return p.Detail
}

var problemTypes = map[Kind]struct {
	uri    string
	status int
}{
	KindInvalidArgument:  {TypeInvalidArgument, http.StatusBadRequest},
	KindIncompatibleUnit: {TypeIncompatibleUnit, http.StatusBadRequest},
	KindUnderflow:        {TypeUnderflow, http.StatusConflict},
	KindOverflow:         {TypeOverflow, http.StatusConflict},
	KindDuplicateOrder:   {TypeDuplicateOrder, http.StatusConflict},
	KindNotFound:         {TypeNotFound, http.StatusNotFound},
	KindInvalidTick:      {TypeInvalidTick, http.StatusUnprocessableEntity},
}

// ToProblem maps err onto problem details. Errors outside the taxonomy are
// reported as internal errors.
func ToProblem(err error, instance string) *ProblemDetails {
	kind, ok := KindOf(err)
	pt, known := problemTypes[kind]
	if !ok || !known {
		return &ProblemDetails{
			Type:     TypeInternalError,
			Title:    "Internal Server Error",
			Status:   http.StatusInternalServerError,
			Detail:   err.Error(),
			Instance: instance,
		}
	}
	return &ProblemDetails{
		Type:     pt.uri,
		Title:    string(kind),
		Status:   pt.status,
		Detail:   err.Error(),
		Instance: instance,
	}
}
