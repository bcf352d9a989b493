package api

import (
	"errors"
	"net/http"

	"github.com/seatsync/seatsync/pkg/httputil"
	"github.com/seatsync/seatsync/pkg/members"
)

// statusFor maps structured membership error codes to HTTP statuses
func statusFor(code members.Code) int {
	switch code {
	case members.CodeUnauthorized:
		return http.StatusUnauthorized
	case members.CodeForbidden, members.CodeFeatureNotAvailable, members.CodeTeamLimitReached:
		return http.StatusForbidden
	case members.CodeNotFound:
		return http.StatusNotFound
	case members.CodeConflict:
		return http.StatusConflict
	case members.CodePaymentRequired:
		return http.StatusPaymentRequired
	case members.CodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeMemberError writes a structured membership error. Unknown
// errors are masked as internal.
func writeMemberError(w http.ResponseWriter, err error) {
	var memberErr *members.Error
	if errors.As(err, &memberErr) {
		httputil.WriteErrorCode(w, statusFor(memberErr.Code), string(memberErr.Code), memberErr.Message)
		return
	}
	httputil.WriteInternalError(w, err)
}
